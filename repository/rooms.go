package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"petitbacserver/game"
	"petitbacserver/models"
	"petitbacserver/store"
)

var errCodeTaken = errors.New("room code taken")

// CreateRoom opens a lobby with hostName as host under a fresh code.
func (r *Repository) CreateRoom(ctx context.Context, hostName string, settings models.Settings) (*models.Room, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := r.newCode()
		room, err := game.NewRoom(code, hostName, r.newID(), settings, r.now())
		if err != nil {
			return nil, err
		}
		room.Revision = 1
		doc, err := encodeRoom(room)
		if err != nil {
			return nil, err
		}

		err = r.store.Transaction(ctx, code, func(current []byte) ([]byte, error) {
			if current != nil {
				return nil, errCodeTaken
			}
			return doc, nil
		})
		switch {
		case err == nil:
			r.logger.Info("Room created", zap.String("roomCode", code), zap.String("host", room.Host))
			return room, nil
		case errors.Is(err, errCodeTaken), errors.Is(err, store.ErrConflict):
			r.logger.Debug("Room code already in use", zap.String("roomCode", code))
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: could not allocate a unique room code", game.ErrConflict)
}

// JoinRoom adds playerName to the room.
func (r *Repository) JoinRoom(ctx context.Context, code, playerName string) (*models.Room, error) {
	name := strings.TrimSpace(playerName)
	if name == "" {
		return nil, fmt.Errorf("%w: player name is required", game.ErrValidation)
	}
	id := r.newID()
	room, err := r.UpdateGameState(ctx, code, func(room *models.Room) error {
		return game.Join(room, name, id)
	})
	if err != nil {
		return nil, err
	}
	r.logger.Info("Player joined", zap.String("roomCode", room.Code), zap.String("player", name))
	return room, nil
}

// LeaveRoom removes playerName. It returns nil once the room is deleted.
func (r *Repository) LeaveRoom(ctx context.Context, code, playerName string) (*models.Room, error) {
	room, err := r.UpdateGameState(ctx, code, func(room *models.Room) error {
		return game.Leave(room, playerName)
	})
	if err != nil {
		return nil, err
	}
	if room == nil {
		r.logger.Info("Room deleted after last player left", zap.String("roomCode", game.NormalizeCode(code)))
		return nil, nil
	}
	r.logger.Info("Player left", zap.String("roomCode", room.Code), zap.String("player", playerName), zap.String("host", room.Host))
	return r.advanceIfComplete(ctx, room)
}

// SetPlayerReady toggles lobby readiness.
func (r *Repository) SetPlayerReady(ctx context.Context, code, playerName string, ready bool) (*models.Room, error) {
	return r.UpdateGameState(ctx, code, func(room *models.Room) error {
		return game.SetReady(room, playerName, ready)
	})
}
