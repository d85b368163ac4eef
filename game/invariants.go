package game

import (
	"errors"
	"fmt"

	"petitbacserver/models"
)

// CheckInvariants verifies the properties every committed room must satisfy.
// An empty room is only valid as a document about to be deleted.
func CheckInvariants(room *models.Room) error {
	var errs []error

	if len(room.Players) > 0 {
		hosts := 0
		for _, p := range room.Players {
			if p.IsHost {
				hosts++
				if p.Name != room.Host {
					errs = append(errs, fmt.Errorf("host flag on %q but room host is %q", p.Name, room.Host))
				}
			}
		}
		if hosts != 1 {
			errs = append(errs, fmt.Errorf("expected exactly one host, found %d", hosts))
		}
	}

	seen := make(map[string]bool, len(room.Players))
	for _, p := range room.Players {
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("duplicate player name %q", p.Name))
		}
		seen[p.Name] = true
	}

	if room.CurrentRound < 0 || room.CurrentRound > room.Settings.Rounds {
		errs = append(errs, fmt.Errorf("current round %d outside [0, %d]", room.CurrentRound, room.Settings.Rounds))
	}
	finishedShape := room.CurrentRound == room.Settings.Rounds && len(room.RoundHistory) == room.Settings.Rounds
	if (room.Status == models.StatusFinished) != finishedShape {
		errs = append(errs, fmt.Errorf("status %s with round %d/%d and %d history entries",
			room.Status, room.CurrentRound, room.Settings.Rounds, len(room.RoundHistory)))
	}

	if len(room.RoundHistory) <= len(Alphabet) {
		letters := make(map[string]bool, len(room.RoundHistory))
		for _, h := range room.RoundHistory {
			if letters[h.Letter] {
				errs = append(errs, fmt.Errorf("letter %s used twice", h.Letter))
			}
			letters[h.Letter] = true
		}
	}

	if room.Host != "" && room.IsBanned(room.Host) {
		errs = append(errs, fmt.Errorf("host %q is banned", room.Host))
	}

	return errors.Join(errs...)
}
