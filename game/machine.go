package game

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"petitbacserver/models"
)

// ErrNoChange is returned by idempotent transitions whose guard no longer
// holds. Nothing was modified and nothing should be written.
var ErrNoChange = errors.New("no change")

var transitions = map[models.RoomStatus][]models.RoomStatus{
	models.StatusWaiting:  {models.StatusPlaying},
	models.StatusPlaying:  {models.StatusPlaying, models.StatusFinished},
	models.StatusFinished: {models.StatusWaiting},
}

// CanTransition reports whether the status machine allows from -> to.
func CanTransition(from, to models.RoomStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SetReady flips a player's lobby readiness.
func SetReady(room *models.Room, name string, ready bool) error {
	if room.Status != models.StatusWaiting {
		return fmt.Errorf("%w: readiness can only change in the lobby", ErrInvalidTransition)
	}
	p := room.FindPlayer(name)
	if p == nil {
		return fmt.Errorf("%w: player %q in room %s", ErrNotFound, name, room.Code)
	}
	p.IsReady = ready
	return nil
}

// StartGame moves the lobby into round 1. The host is implicitly ready.
func StartGame(room *models.Room, caller, seed string, now time.Time) error {
	if err := requireHost(room, caller); err != nil {
		return err
	}
	if room.Status != models.StatusWaiting || !CanTransition(room.Status, models.StatusPlaying) {
		return fmt.Errorf("%w: cannot start from %s", ErrInvalidTransition, room.Status)
	}
	if len(room.Players) < 2 {
		return fmt.Errorf("%w: at least two players are required", ErrInvalidTransition)
	}
	var waiting []string
	for _, p := range room.Players {
		if !p.IsReady && !p.IsHost {
			waiting = append(waiting, p.Name)
		}
	}
	if len(waiting) > 0 {
		return fmt.Errorf("%w: not ready: %s", ErrInvalidTransition, strings.Join(waiting, ", "))
	}

	room.Seed = seed
	room.RoundHistory = []models.RoundHistory{}
	room.CurrentRound = 1
	room.CurrentLetter = ""
	room.CurrentLetter = PickLetter(seed, 1, UsedLetters(room))
	for i := range room.Players {
		room.Players[i].Score = 0
		room.Players[i].ValidWords = 0
	}
	resetRoundState(room, now)
	room.Status = models.StatusPlaying
	return nil
}

// SubmitAnswers replaces the player's own slice of the round's answers.
func SubmitAnswers(room *models.Room, name string, answers models.Answers) error {
	if room.Status != models.StatusPlaying {
		return fmt.Errorf("%w: no round in progress", ErrInvalidTransition)
	}
	p := room.FindPlayer(name)
	if p == nil {
		return fmt.Errorf("%w: player %q in room %s", ErrNotFound, name, room.Code)
	}
	if p.HasValidatedRound {
		return fmt.Errorf("%w: answers are locked once the round is validated", ErrForbidden)
	}
	for id := range answers {
		if !id.Valid() || !room.HasCategory(id) {
			return fmt.Errorf("%w: unknown category %q", ErrValidation, id)
		}
	}
	if room.Answers == nil {
		room.Answers = map[string]models.Answers{}
	}
	room.Answers[name] = answers.Clone()
	return nil
}

// ValidateRound marks name as done with the round and reports whether every
// player has now validated. Validating twice returns ErrNoChange.
func ValidateRound(room *models.Room, name string) (bool, error) {
	if room.Status != models.StatusPlaying {
		return false, fmt.Errorf("%w: no round in progress", ErrInvalidTransition)
	}
	p := room.FindPlayer(name)
	if p == nil {
		return false, fmt.Errorf("%w: player %q in room %s", ErrNotFound, name, room.Code)
	}
	if p.HasValidatedRound {
		return RoundComplete(room), ErrNoChange
	}
	p.HasValidatedRound = true
	return RoundComplete(room), nil
}

// RoundComplete reports whether a round is in progress and every player has
// validated it.
func RoundComplete(room *models.Room) bool {
	if room.Status != models.StatusPlaying || len(room.Players) == 0 {
		return false
	}
	for _, p := range room.Players {
		if !p.HasValidatedRound {
			return false
		}
	}
	return true
}

// AdvanceRound scores the round expectedRound and either draws the next
// letter or finishes the game. It only applies while the room is still
// playing expectedRound and every player validated; otherwise it returns
// ErrNoChange, so concurrent advances resolve to a single transition.
func AdvanceRound(room *models.Room, expectedRound int, now time.Time) error {
	if room.Status != models.StatusPlaying || room.CurrentRound != expectedRound || !RoundComplete(room) {
		return ErrNoChange
	}

	entry := models.RoundHistory{
		Round:         room.CurrentRound,
		Letter:        room.CurrentLetter,
		PlayerAnswers: make(map[string]models.PlayerRoundAnswers, len(room.Players)),
	}
	for i := range room.Players {
		p := &room.Players[i]
		answers := room.Answers[p.Name].Clone()
		if answers == nil {
			answers = models.Answers{}
		}
		score, valid := Score(answers, room.CurrentLetter)
		entry.PlayerAnswers[p.Name] = models.PlayerRoundAnswers{Answers: answers, ValidWords: valid, Score: score}
		p.Score += score
		p.ValidWords += valid
	}
	room.RoundHistory = append(room.RoundHistory, entry)

	if room.CurrentRound >= room.Settings.Rounds {
		room.Status = models.StatusFinished
		room.Answers = map[string]models.Answers{}
		for i := range room.Players {
			room.Players[i].HasValidatedRound = false
		}
		room.RoundEndTime = now
		return nil
	}

	room.CurrentRound++
	room.CurrentLetter = PickLetter(room.Seed, room.CurrentRound, UsedLetters(room))
	resetRoundState(room, now)
	return nil
}

// ForceAdvance lets the host close a round that is past its deadline, treating
// every player as validated with whatever answers they had.
func ForceAdvance(room *models.Room, caller string, now time.Time) error {
	if err := requireHost(room, caller); err != nil {
		return err
	}
	if room.Status != models.StatusPlaying {
		return fmt.Errorf("%w: no round in progress", ErrInvalidTransition)
	}
	if now.Before(room.RoundEndTime) {
		return fmt.Errorf("%w: round %d is still running", ErrForbidden, room.CurrentRound)
	}
	for i := range room.Players {
		room.Players[i].HasValidatedRound = true
	}
	return AdvanceRound(room, room.CurrentRound, now)
}

// Rematch sends a finished room back to the lobby, keeping players and
// settings.
func Rematch(room *models.Room, caller string) error {
	if err := requireHost(room, caller); err != nil {
		return err
	}
	if room.Status != models.StatusFinished || !CanTransition(room.Status, models.StatusWaiting) {
		return fmt.Errorf("%w: rematch is only possible once the game is finished", ErrInvalidTransition)
	}
	room.Status = models.StatusWaiting
	room.CurrentRound = 0
	room.CurrentLetter = ""
	room.Seed = ""
	room.RoundStartTime = time.Time{}
	room.RoundEndTime = time.Time{}
	room.Answers = map[string]models.Answers{}
	room.RoundHistory = []models.RoundHistory{}
	for i := range room.Players {
		p := &room.Players[i]
		p.IsReady = false
		p.HasValidatedRound = false
		p.Score = 0
		p.ValidWords = 0
	}
	return nil
}

func resetRoundState(room *models.Room, now time.Time) {
	room.Answers = map[string]models.Answers{}
	for i := range room.Players {
		room.Players[i].HasValidatedRound = false
	}
	room.RoundStartTime = now
	room.RoundEndTime = now.Add(time.Duration(room.Settings.TimeLimit) * time.Second)
}
