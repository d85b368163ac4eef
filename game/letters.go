package game

import (
	"strconv"

	"petitbacserver/models"
)

// Alphabet はお題に使う19文字。答えにくい K, Q, W, X, Y, Z は除外しています。
const Alphabet = "ABCDEFGHIJLMNOPRSTV"

// Hash is a 31-based polynomial rolling hash over the UTF-8 bytes of s.
func Hash(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	return h
}

// PickLetter derives the prompt letter for round from seed. It starts at
// Hash(seed+round) mod len(Alphabet) and probes forward, wrapping, to the first
// letter not in used. When every letter is used the starting letter is
// returned.
func PickLetter(seed string, round int, used map[string]bool) string {
	start := int(Hash(seed+strconv.Itoa(round)) % uint32(len(Alphabet)))
	for i := 0; i < len(Alphabet); i++ {
		letter := string(Alphabet[(start+i)%len(Alphabet)])
		if !used[letter] {
			return letter
		}
	}
	return string(Alphabet[start])
}

// UsedLetters collects the letters of completed rounds plus the current one.
func UsedLetters(room *models.Room) map[string]bool {
	used := make(map[string]bool, len(room.RoundHistory)+1)
	for _, h := range room.RoundHistory {
		used[h.Letter] = true
	}
	if room.CurrentLetter != "" {
		used[room.CurrentLetter] = true
	}
	return used
}
