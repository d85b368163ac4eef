package game

import (
	"fmt"
	"strings"
	"time"

	"petitbacserver/models"
)

// NewRoom builds a fresh lobby whose only player is the host.
func NewRoom(code, hostName, hostID string, settings models.Settings, now time.Time) (*models.Room, error) {
	name := strings.TrimSpace(hostName)
	if name == "" {
		return nil, fmt.Errorf("%w: host name is required", ErrValidation)
	}
	settings = settings.Normalize()
	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}
	return &models.Room{
		ID:   code,
		Code: code,
		Host: name,
		Players: []models.Player{{
			ID:     hostID,
			Name:   name,
			IsHost: true,
		}},
		Status:        models.StatusWaiting,
		Settings:      settings,
		Answers:       map[string]models.Answers{},
		RoundHistory:  []models.RoundHistory{},
		BannedPlayers: []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// ValidateSettings checks the category list: identifiers must be well-formed
// and unique, labels non-blank.
func ValidateSettings(s models.Settings) error {
	seen := make(map[models.CategoryID]bool, len(s.Categories))
	for _, c := range s.Categories {
		if !c.ID.Valid() {
			return fmt.Errorf("%w: invalid category id %q", ErrValidation, c.ID)
		}
		if strings.TrimSpace(c.Label) == "" {
			return fmt.Errorf("%w: category %q has no label", ErrValidation, c.ID)
		}
		if seen[c.ID] {
			return fmt.Errorf("%w: duplicate category %q", ErrValidation, c.ID)
		}
		seen[c.ID] = true
	}
	return nil
}

// Join appends a non-host, non-ready player.
func Join(room *models.Room, name, id string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: player name is required", ErrValidation)
	}
	if room.PlayerIndex(name) >= 0 {
		return fmt.Errorf("%w: name %q is already taken in room %s", ErrConflict, name, room.Code)
	}
	if room.IsBanned(name) {
		return fmt.Errorf("%w: %q is banned from room %s", ErrForbidden, name, room.Code)
	}
	if len(room.Players) >= room.Settings.MaxPlayers {
		return fmt.Errorf("%w: %d/%d players", ErrFull, len(room.Players), room.Settings.MaxPlayers)
	}
	if room.Status == models.StatusPlaying {
		return fmt.Errorf("%w: game in progress", ErrInvalidTransition)
	}
	room.Players = append(room.Players, models.Player{ID: id, Name: name})
	return nil
}

// Leave removes name from the room. When the host leaves, authority passes to
// the first remaining player. An empty room is left for the caller to delete.
func Leave(room *models.Room, name string) error {
	i := room.PlayerIndex(name)
	if i < 0 {
		return fmt.Errorf("%w: player %q in room %s", ErrNotFound, name, room.Code)
	}
	wasHost := room.Players[i].IsHost
	removePlayer(room, i)
	if wasHost && len(room.Players) > 0 {
		promote(room, 0)
	}
	return nil
}

// Kick removes target from the room. Host only.
func Kick(room *models.Room, caller, target string) error {
	if err := requireHost(room, caller); err != nil {
		return err
	}
	if target == caller {
		return fmt.Errorf("%w: the host cannot kick themselves", ErrValidation)
	}
	i := room.PlayerIndex(target)
	if i < 0 {
		return fmt.Errorf("%w: player %q in room %s", ErrNotFound, target, room.Code)
	}
	removePlayer(room, i)
	return nil
}

// Ban kicks target when present and bars the name from rejoining. Host only.
func Ban(room *models.Room, caller, target string) error {
	if err := requireHost(room, caller); err != nil {
		return err
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return fmt.Errorf("%w: player name is required", ErrValidation)
	}
	if target == caller {
		return fmt.Errorf("%w: the host cannot ban themselves", ErrValidation)
	}
	if i := room.PlayerIndex(target); i >= 0 {
		removePlayer(room, i)
	}
	if !room.IsBanned(target) {
		room.BannedPlayers = append(room.BannedPlayers, target)
	}
	return nil
}

// TransferHost hands host authority to target. Host only.
func TransferHost(room *models.Room, caller, target string) error {
	if err := requireHost(room, caller); err != nil {
		return err
	}
	if target == caller {
		return fmt.Errorf("%w: %q is already the host", ErrValidation, caller)
	}
	i := room.PlayerIndex(target)
	if i < 0 {
		return fmt.Errorf("%w: player %q in room %s", ErrNotFound, target, room.Code)
	}
	promote(room, i)
	return nil
}

func requireHost(room *models.Room, caller string) error {
	p := room.FindPlayer(caller)
	if p == nil {
		return fmt.Errorf("%w: %q is not in room %s", ErrForbidden, caller, room.Code)
	}
	if !p.IsHost || room.Host != caller {
		return fmt.Errorf("%w: only the host can do this", ErrForbidden)
	}
	return nil
}

func removePlayer(room *models.Room, i int) {
	name := room.Players[i].Name
	room.Players = append(room.Players[:i], room.Players[i+1:]...)
	// 途中のラウンドの回答は破棄する
	delete(room.Answers, name)
}

func promote(room *models.Room, i int) {
	for j := range room.Players {
		room.Players[j].IsHost = j == i
	}
	room.Host = room.Players[i].Name
}
