package game

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"petitbacserver/models"
)

// PointsPerWord は頭文字が一致した回答1つあたりの得点
const PointsPerWord = 10

// Normalize strips accents, lower-cases and trims s, so "Éléphant" becomes
// "elephant".
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// StartsWithLetter reports whether answer begins with letter, ignoring case
// and accents.
func StartsWithLetter(answer, letter string) bool {
	a := Normalize(answer)
	l := Normalize(letter)
	return a != "" && l != "" && strings.HasPrefix(a, l)
}

// Score computes a round's points and valid-answer count. Only the first
// letter is checked; category membership is not validated here.
func Score(answers models.Answers, letter string) (score, validWords int) {
	for _, answer := range answers {
		if StartsWithLetter(answer, letter) {
			validWords++
		}
	}
	return validWords * PointsPerWord, validWords
}
