package repository

import (
	"context"

	"go.uber.org/zap"

	"petitbacserver/game"
	"petitbacserver/models"
)

// KickPlayer removes target from the room. Host only.
func (r *Repository) KickPlayer(ctx context.Context, code, caller, target string) (*models.Room, error) {
	room, err := r.UpdateGameState(ctx, code, func(room *models.Room) error {
		return game.Kick(room, caller, target)
	})
	if err != nil {
		return nil, err
	}
	r.logger.Info("Player kicked", zap.String("roomCode", room.Code), zap.String("player", target))
	return r.advanceIfComplete(ctx, room)
}

// BanPlayer kicks target and bars the name from rejoining. Host only.
func (r *Repository) BanPlayer(ctx context.Context, code, caller, target string) (*models.Room, error) {
	room, err := r.UpdateGameState(ctx, code, func(room *models.Room) error {
		return game.Ban(room, caller, target)
	})
	if err != nil {
		return nil, err
	}
	r.logger.Info("Player banned", zap.String("roomCode", room.Code), zap.String("player", target))
	return r.advanceIfComplete(ctx, room)
}

// TransferHost hands host authority to target. Host only.
func (r *Repository) TransferHost(ctx context.Context, code, caller, target string) (*models.Room, error) {
	room, err := r.UpdateGameState(ctx, code, func(room *models.Room) error {
		return game.TransferHost(room, caller, target)
	})
	if err != nil {
		return nil, err
	}
	r.logger.Info("Host transferred", zap.String("roomCode", room.Code), zap.String("from", caller), zap.String("to", target))
	return room, nil
}
