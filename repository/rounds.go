package repository

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"petitbacserver/game"
	"petitbacserver/models"
)

// StartGame moves the lobby into round 1 with a new seed. Host only.
func (r *Repository) StartGame(ctx context.Context, code, caller string) (*models.Room, error) {
	seed := uuid.New().String()
	room, err := r.UpdateGameState(ctx, code, func(room *models.Room) error {
		return game.StartGame(room, caller, seed, r.now())
	})
	if err != nil {
		return nil, err
	}
	r.logger.Info("Game started", zap.String("roomCode", room.Code), zap.String("letter", room.CurrentLetter))
	return room, nil
}

// SubmitAnswers stores the player's current answers for the round.
func (r *Repository) SubmitAnswers(ctx context.Context, code, playerName string, answers models.Answers) (*models.Room, error) {
	return r.UpdateGameState(ctx, code, func(room *models.Room) error {
		return game.SubmitAnswers(room, playerName, answers)
	})
}

// ValidateRound marks the player as done, optionally submitting final answers
// in the same write. If that write completed the round, a second transaction
// advances it.
func (r *Repository) ValidateRound(ctx context.Context, code, playerName string, answers models.Answers) (*models.Room, error) {
	room, err := r.UpdateGameState(ctx, code, func(room *models.Room) error {
		if p := room.FindPlayer(playerName); p != nil && p.HasValidatedRound && room.Status == models.StatusPlaying {
			return game.ErrNoChange
		}
		if answers != nil {
			if err := game.SubmitAnswers(room, playerName, answers); err != nil {
				return err
			}
		}
		_, err := game.ValidateRound(room, playerName)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r.advanceIfComplete(ctx, room)
}

// AdvanceRound closes expectedRound once every player validated. Calling it
// again for the same round, from any client, is a no-op.
func (r *Repository) AdvanceRound(ctx context.Context, code string, expectedRound int) (*models.Room, error) {
	room, changed, err := r.update(ctx, code, func(room *models.Room) error {
		return game.AdvanceRound(room, expectedRound, r.now())
	})
	if err != nil {
		return nil, err
	}
	if changed {
		r.afterAdvance(ctx, room, expectedRound)
	}
	return room, nil
}

// ForceAdvance closes an overdue round on the host's behalf.
func (r *Repository) ForceAdvance(ctx context.Context, code, caller string) (*models.Room, error) {
	var round int
	room, changed, err := r.update(ctx, code, func(room *models.Room) error {
		round = room.CurrentRound
		return game.ForceAdvance(room, caller, r.now())
	})
	if err != nil {
		return nil, err
	}
	if changed {
		r.afterAdvance(ctx, room, round)
	}
	return room, nil
}

// Rematch returns a finished room to the lobby. Host only.
func (r *Repository) Rematch(ctx context.Context, code, caller string) (*models.Room, error) {
	return r.UpdateGameState(ctx, code, func(room *models.Room) error {
		return game.Rematch(room, caller)
	})
}

func (r *Repository) advanceIfComplete(ctx context.Context, room *models.Room) (*models.Room, error) {
	if room == nil || !game.RoundComplete(room) {
		return room, nil
	}
	return r.AdvanceRound(ctx, room.Code, room.CurrentRound)
}

func (r *Repository) afterAdvance(ctx context.Context, room *models.Room, round int) {
	if room.Status != models.StatusFinished {
		r.logger.Info("Round advanced", zap.String("roomCode", room.Code), zap.Int("round", room.CurrentRound), zap.String("letter", room.CurrentLetter))
		return
	}
	r.logger.Info("Game finished", zap.String("roomCode", room.Code), zap.Int("rounds", round))
	if r.archive == nil {
		return
	}
	if err := r.archive.ArchiveGame(ctx, room); err != nil {
		r.logger.Error("Failed to archive game", zap.String("roomCode", room.Code), zap.Error(err))
	}
}
