package game

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"petitbacserver/models"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// newLobby returns a waiting room with host first and every guest ready.
func newLobby(t *testing.T, rounds int, host string, guests ...string) *models.Room {
	t.Helper()
	settings := models.DefaultSettings()
	settings.Rounds = rounds
	room, err := NewRoom("ABC123", host, "id-"+host, settings, testNow)
	require.NoError(t, err)
	for _, g := range guests {
		require.NoError(t, Join(room, g, "id-"+g))
		require.NoError(t, SetReady(room, g, true))
	}
	return room
}

func startedGame(t *testing.T, rounds int, host string, guests ...string) *models.Room {
	t.Helper()
	room := newLobby(t, rounds, host, guests...)
	require.NoError(t, StartGame(room, host, "seed-"+host, testNow))
	return room
}

// matching builds an answer for every category starting with the room's letter.
func matching(room *models.Room) models.Answers {
	answers := models.Answers{}
	for _, c := range room.Settings.Categories {
		answers[c.ID] = strings.ToLower(room.CurrentLetter) + "mot"
	}
	return answers
}

func validateAll(t *testing.T, room *models.Room) {
	t.Helper()
	for _, p := range room.Players {
		_, err := ValidateRound(room, p.Name)
		require.NoError(t, err)
	}
}
