package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"petitbacserver/models"
	"petitbacserver/store"
)

var errKeepRoom = errors.New("keep room")

// CleanupRooms deletes rooms nobody can use anymore: empty ones, finished ones
// without a host, and any room untouched for idleFor. It returns how many
// were deleted.
func (r *Repository) CleanupRooms(ctx context.Context, idleFor time.Duration) (int, error) {
	ids, err := r.store.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := r.now().Add(-idleFor)
	deleted := 0
	for _, id := range ids {
		var teardown bool
		err := r.store.Transaction(ctx, id, func(current []byte) ([]byte, error) {
			teardown = false
			if current == nil {
				return nil, errKeepRoom
			}
			room, err := decodeRoom(current)
			if err != nil {
				return nil, err
			}
			if !abandoned(room, cutoff) {
				return nil, errKeepRoom
			}
			teardown = true
			return nil, nil
		})
		switch {
		case err == nil && teardown:
			deleted++
			r.logger.Info("Abandoned room deleted", zap.String("roomCode", id))
		case err == nil, errors.Is(err, errKeepRoom):
		case errors.Is(err, store.ErrConflict):
			// 更新中のルームは使われているので残す
		default:
			r.logger.Error("Failed to inspect room", zap.String("roomCode", id), zap.Error(err))
		}
	}
	return deleted, nil
}

func abandoned(room *models.Room, cutoff time.Time) bool {
	if len(room.Players) == 0 {
		return true
	}
	if room.Status == models.StatusFinished && room.FindPlayer(room.Host) == nil {
		return true
	}
	return room.UpdatedAt.Before(cutoff)
}
