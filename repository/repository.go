// Package repository translates room intents into store transactions. Every
// mutation goes through one read-decide-write loop against the freshest
// document, retried with backoff while the store reports version conflicts.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"petitbacserver/game"
	"petitbacserver/models"
	"petitbacserver/store"
)

const (
	DefaultMaxAttempts = 5
	maxCodeAttempts    = 10
)

// Archiver persists finished games. Failures never block the game itself.
type Archiver interface {
	ArchiveGame(ctx context.Context, room *models.Room) error
}

// Mutation decides the next state of a room in place. Returning
// game.ErrNoChange aborts the write without error.
type Mutation func(room *models.Room) error

type Repository struct {
	store       store.Store
	logger      *zap.Logger
	archive     Archiver
	maxAttempts uint
	newBackOff  func() backoff.BackOff
	now         func() time.Time
	newCode     func() string
	newID       func() string
}

type Option func(*Repository)

func WithArchive(a Archiver) Option { return func(r *Repository) { r.archive = a } }

// WithMaxAttempts bounds how many times a conflicting transaction is tried.
func WithMaxAttempts(n int) Option {
	return func(r *Repository) {
		if n > 0 {
			r.maxAttempts = uint(n)
		}
	}
}

func WithBackOff(f func() backoff.BackOff) Option { return func(r *Repository) { r.newBackOff = f } }
func WithClock(now func() time.Time) Option      { return func(r *Repository) { r.now = now } }
func WithCodeGenerator(f func() string) Option   { return func(r *Repository) { r.newCode = f } }

func New(s store.Store, logger *zap.Logger, opts ...Option) *Repository {
	r := &Repository{
		store:       s,
		logger:      logger,
		maxAttempts: DefaultMaxAttempts,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 10 * time.Millisecond
			b.MaxInterval = 250 * time.Millisecond
			return b
		},
		now:     time.Now,
		newCode: game.NewRoomCode,
		newID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// UpdateGameState applies mutate transactionally to the latest version of the
// room and returns the committed state. A room left without players is
// deleted and nil is returned.
func (r *Repository) UpdateGameState(ctx context.Context, code string, mutate Mutation) (*models.Room, error) {
	room, _, err := r.update(ctx, code, mutate)
	return room, err
}

// update is the single choke point for writes. changed is false when mutate
// returned game.ErrNoChange.
func (r *Repository) update(ctx context.Context, code string, mutate Mutation) (*models.Room, bool, error) {
	code = game.NormalizeCode(code)
	if code == "" {
		return nil, false, fmt.Errorf("%w: room code is required", game.ErrValidation)
	}

	var (
		result  *models.Room
		changed bool
	)
	attempt := func() (struct{}, error) {
		result, changed = nil, false
		err := r.store.Transaction(ctx, code, func(current []byte) ([]byte, error) {
			if current == nil {
				return nil, fmt.Errorf("%w: room %s", game.ErrNotFound, code)
			}
			room, err := decodeRoom(current)
			if err != nil {
				return nil, err
			}
			if err := mutate(room); err != nil {
				if errors.Is(err, game.ErrNoChange) {
					result = room
				}
				return nil, err
			}
			changed = true
			if len(room.Players) == 0 {
				// 最後のプレイヤーが抜けたルームは削除する
				return nil, nil
			}
			if err := game.CheckInvariants(room); err != nil {
				return nil, fmt.Errorf("room %s: refusing to commit: %w", code, err)
			}
			room.Revision++
			room.UpdatedAt = r.now()
			result = room
			return encodeRoom(room)
		})
		if err == nil || errors.Is(err, store.ErrConflict) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}

	_, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(r.maxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.logger.Debug("Transaction conflict, retrying", zap.String("roomCode", code), zap.Duration("backoff", next))
		}),
	)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	switch {
	case err == nil:
		return result, changed, nil
	case errors.Is(err, game.ErrNoChange):
		return result, false, nil
	case errors.Is(err, store.ErrConflict):
		r.logger.Warn("Transaction retries exhausted", zap.String("roomCode", code), zap.Uint("attempts", r.maxAttempts))
		return nil, false, fmt.Errorf("%w: room %s is being updated concurrently", game.ErrConflict, code)
	default:
		return nil, false, err
	}
}

// FindRoomByCode returns the current snapshot of a room.
func (r *Repository) FindRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	code = game.NormalizeCode(code)
	if code == "" {
		return nil, fmt.Errorf("%w: room code is required", game.ErrValidation)
	}
	doc, err := r.store.Get(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: room %s", game.ErrNotFound, code)
	}
	if err != nil {
		return nil, err
	}
	return decodeRoom(doc)
}

// DeleteRoom removes a room unconditionally.
func (r *Repository) DeleteRoom(ctx context.Context, code string) error {
	return r.store.Delete(ctx, game.NormalizeCode(code))
}

// Subscribe calls onChange with every snapshot of the room, nil once it is
// deleted.
func (r *Repository) Subscribe(ctx context.Context, code string, onChange func(room *models.Room)) (func(), error) {
	code = game.NormalizeCode(code)
	return r.store.Subscribe(ctx, code, func(doc []byte) {
		if doc == nil {
			onChange(nil)
			return
		}
		room, err := decodeRoom(doc)
		if err != nil {
			r.logger.Error("Failed to decode room snapshot", zap.String("roomCode", code), zap.Error(err))
			return
		}
		onChange(room)
	})
}

func decodeRoom(doc []byte) (*models.Room, error) {
	var room models.Room
	if err := json.Unmarshal(doc, &room); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	if room.Answers == nil {
		room.Answers = map[string]models.Answers{}
	}
	return &room, nil
}

func encodeRoom(room *models.Room) ([]byte, error) {
	return json.Marshal(room)
}
