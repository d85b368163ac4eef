package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"petitbacserver/game"
	"petitbacserver/models"
)

// ErrRoomDeleted is returned by Run once the room no longer exists.
var ErrRoomDeleted = errors.New("room deleted")

// Intents is the part of the repository a session needs.
type Intents interface {
	Subscribe(ctx context.Context, code string, onChange func(room *models.Room)) (func(), error)
	AdvanceRound(ctx context.Context, code string, expectedRound int) (*models.Room, error)
	ValidateRound(ctx context.Context, code, playerName string, answers models.Answers) (*models.Room, error)
}

// Session follows one room on behalf of one player. It validates the player's
// draft when the round timer runs out and asks for the round to advance as
// soon as a snapshot shows every player validated. Both intents are safe to
// send from every client at once.
type Session struct {
	intents  Intents
	code     string
	name     string
	view     *View
	logger   *zap.Logger
	interval time.Duration
	now      func() time.Time
	onUpdate func(room *models.Room)
	onTick   func(left time.Duration)

	mu        sync.Mutex
	draft     models.Answers
	draftFor  int
	countdown *Countdown
	timedFor  int // countdown が対象とするラウンド
	wg        sync.WaitGroup
	closed    bool
	deleted   chan struct{}
	closeOnce sync.Once
}

type SessionOption func(*Session)

func WithTickInterval(d time.Duration) SessionOption {
	return func(s *Session) { s.interval = d }
}

func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// WithOnUpdate registers a callback for every accepted snapshot.
func WithOnUpdate(f func(room *models.Room)) SessionOption {
	return func(s *Session) { s.onUpdate = f }
}

func WithOnTick(f func(left time.Duration)) SessionOption {
	return func(s *Session) { s.onTick = f }
}

func NewSession(intents Intents, code, name string, logger *zap.Logger, opts ...SessionOption) *Session {
	s := &Session{
		intents:  intents,
		code:     game.NormalizeCode(code),
		name:     name,
		view:     NewView(name),
		logger:   logger,
		interval: time.Second,
		now:      time.Now,
		deleted:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) View() *View { return s.view }

// SetDraft records the answers typed so far for the round on screen. They are
// sent if that round times out.
func (s *Session) SetDraft(answers models.Answers) {
	round := 0
	if room := s.view.Room(); room != nil {
		round = room.CurrentRound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = answers.Clone()
	s.draftFor = round
}

// Run blocks until ctx ends or the room is deleted.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsubscribe, err := s.intents.Subscribe(ctx, s.code, func(room *models.Room) {
		s.handle(ctx, room)
	})
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		err = ctx.Err()
	case <-s.deleted:
		err = ErrRoomDeleted
	}
	unsubscribe()
	cancel()
	s.mu.Lock()
	s.closed = true
	s.stopCountdownLocked()
	s.mu.Unlock()
	s.wg.Wait()
	return err
}

func (s *Session) handle(ctx context.Context, room *models.Room) {
	if !s.view.Apply(room) {
		return
	}
	if room == nil {
		s.stopCountdown()
		s.closeOnce.Do(func() { close(s.deleted) })
		return
	}
	if s.onUpdate != nil {
		s.onUpdate(room.Clone())
	}

	if game.RoundComplete(room) {
		round := room.CurrentRound
		s.goIntent(func() {
			if _, err := s.intents.AdvanceRound(ctx, s.code, round); err != nil && ctx.Err() == nil {
				s.logger.Warn("Failed to advance round", zap.String("roomCode", s.code), zap.Int("round", round), zap.Error(err))
			}
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if room.Status != models.StatusPlaying {
		s.stopCountdownLocked()
		s.timedFor = 0
		return
	}
	if room.CurrentRound == s.timedFor {
		return
	}
	s.stopCountdownLocked()
	s.timedFor = room.CurrentRound
	round := room.CurrentRound
	s.countdown = StartCountdown(room.RoundEndTime, s.interval, s.now, s.onTick, func() {
		s.expire(ctx, round)
	})
}

// expire validates the draft for round, unless the session already moved on.
func (s *Session) expire(ctx context.Context, round int) {
	current := s.view.Room()
	if current == nil || current.Status != models.StatusPlaying || current.CurrentRound != round {
		return
	}
	if me := s.view.Me(); me == nil || me.HasValidatedRound {
		return
	}
	var draft models.Answers
	s.mu.Lock()
	if s.draftFor == round {
		draft = s.draft.Clone()
	}
	s.mu.Unlock()

	s.goIntent(func() {
		if _, err := s.intents.ValidateRound(ctx, s.code, s.name, draft); err != nil && ctx.Err() == nil {
			s.logger.Warn("Failed to validate round on timeout", zap.String("roomCode", s.code), zap.String("player", s.name), zap.Error(err))
		}
	})
}

func (s *Session) goIntent(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		f()
	}()
}

func (s *Session) stopCountdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCountdownLocked()
}

func (s *Session) stopCountdownLocked() {
	if s.countdown != nil {
		s.countdown.Stop()
		s.countdown = nil
	}
}
