package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"petitbacserver/game"
	"petitbacserver/models"
	"petitbacserver/store"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeArchive struct {
	mu    sync.Mutex
	games []*models.Room
	err   error
}

func (f *fakeArchive) ArchiveGame(ctx context.Context, room *models.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.games = append(f.games, room.Clone())
	return f.err
}

func (f *fakeArchive) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.games)
}

// flakyStore fails the first n transactions with a version conflict.
type flakyStore struct {
	store.Store
	conflicts atomic.Int32
	calls     atomic.Int32
}

func (f *flakyStore) Transaction(ctx context.Context, id string, fn store.TxFunc) error {
	f.calls.Add(1)
	if f.conflicts.Add(-1) >= 0 {
		return store.ErrConflict
	}
	return f.Store.Transaction(ctx, id, fn)
}

type fixture struct {
	repo    *Repository
	store   store.Store
	clock   *clock
	archive *fakeArchive
}

func newFixture(t *testing.T, s store.Store, opts ...Option) *fixture {
	t.Helper()
	if s == nil {
		s = store.NewMemoryStore()
	}
	f := &fixture{store: s, clock: newClock(), archive: &fakeArchive{}}
	base := []Option{
		WithClock(f.clock.Now),
		WithArchive(f.archive),
		WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
	}
	f.repo = New(s, zap.NewNop(), append(base, opts...)...)
	return f
}

func settings(rounds, maxPlayers int) models.Settings {
	s := models.DefaultSettings()
	s.Rounds = rounds
	s.MaxPlayers = maxPlayers
	return s
}

// lobby creates a room hosted by host with every guest joined and ready.
func (f *fixture) lobby(t *testing.T, s models.Settings, host string, guests ...string) string {
	t.Helper()
	ctx := context.Background()
	room, err := f.repo.CreateRoom(ctx, host, s)
	require.NoError(t, err)
	for _, g := range guests {
		_, err := f.repo.JoinRoom(ctx, room.Code, g)
		require.NoError(t, err)
		_, err = f.repo.SetPlayerReady(ctx, room.Code, g, true)
		require.NoError(t, err)
	}
	return room.Code
}

func (f *fixture) started(t *testing.T, rounds int, host string, guests ...string) *models.Room {
	t.Helper()
	code := f.lobby(t, settings(rounds, 8), host, guests...)
	room, err := f.repo.StartGame(context.Background(), code, host)
	require.NoError(t, err)
	return room
}

func matching(room *models.Room) models.Answers {
	answers := models.Answers{}
	for _, c := range room.Settings.Categories {
		answers[c.ID] = strings.ToLower(room.CurrentLetter) + "mot"
	}
	return answers
}

func TestCreateRoom(t *testing.T) {
	f := newFixture(t, nil)
	room, err := f.repo.CreateRoom(context.Background(), "  Alice ", models.Settings{})
	require.NoError(t, err)

	assert.Len(t, room.Code, game.CodeLength)
	assert.Equal(t, "Alice", room.Host)
	assert.Equal(t, models.StatusWaiting, room.Status)
	assert.Equal(t, int64(1), room.Revision)
	assert.Equal(t, models.DefaultSettings(), room.Settings)
	require.Len(t, room.Players, 1)
	assert.True(t, room.Players[0].IsHost)
	assert.NotEmpty(t, room.Players[0].ID)

	found, err := f.repo.FindRoomByCode(context.Background(), strings.ToLower(room.Code))
	require.NoError(t, err)
	assert.Equal(t, room.Code, found.Code)
}

func TestCreateRoomValidation(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.repo.CreateRoom(context.Background(), "   ", models.Settings{})
	assert.ErrorIs(t, err, game.ErrValidation)

	bad := models.DefaultSettings()
	bad.Categories = []models.Category{{ID: "Pays!", Label: "Pays"}}
	_, err = f.repo.CreateRoom(context.Background(), "Alice", bad)
	assert.ErrorIs(t, err, game.ErrValidation)
}

func TestCreateRoomRetriesTakenCode(t *testing.T) {
	codes := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	var i int
	f := newFixture(t, nil, WithCodeGenerator(func() string {
		c := codes[i]
		i++
		return c
	}))

	first, err := f.repo.CreateRoom(context.Background(), "Alice", models.Settings{})
	require.NoError(t, err)
	second, err := f.repo.CreateRoom(context.Background(), "Bob", models.Settings{})
	require.NoError(t, err)

	assert.Equal(t, "AAAAAA", first.Code)
	assert.Equal(t, "BBBBBB", second.Code)
	room, err := f.repo.FindRoomByCode(context.Background(), "AAAAAA")
	require.NoError(t, err)
	assert.Equal(t, "Alice", room.Host)
}

func TestCreateRoomGivesUpOnCodes(t *testing.T) {
	f := newFixture(t, nil, WithCodeGenerator(func() string { return "AAAAAA" }))
	_, err := f.repo.CreateRoom(context.Background(), "Alice", models.Settings{})
	require.NoError(t, err)
	_, err = f.repo.CreateRoom(context.Background(), "Bob", models.Settings{})
	assert.ErrorIs(t, err, game.ErrConflict)
}

func TestFindRoomByCodeNotFound(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.repo.FindRoomByCode(context.Background(), "NOPE00")
	assert.ErrorIs(t, err, game.ErrNotFound)
	_, err = f.repo.JoinRoom(context.Background(), "NOPE00", "Bob")
	assert.ErrorIs(t, err, game.ErrNotFound)
	_, err = f.repo.FindRoomByCode(context.Background(), " ")
	assert.ErrorIs(t, err, game.ErrValidation)
}

func TestJoinRoom(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	code := f.lobby(t, settings(3, 2), "Alice")

	_, err := f.repo.JoinRoom(ctx, code, "")
	assert.ErrorIs(t, err, game.ErrValidation)
	_, err = f.repo.JoinRoom(ctx, code, "Alice")
	assert.ErrorIs(t, err, game.ErrConflict)

	room, err := f.repo.JoinRoom(ctx, code, "Bob")
	require.NoError(t, err)
	assert.Len(t, room.Players, 2)
	assert.Equal(t, int64(2), room.Revision)

	_, err = f.repo.JoinRoom(ctx, code, "Carol")
	assert.ErrorIs(t, err, game.ErrFull)
}

func TestConcurrentJoinsAreNotLost(t *testing.T) {
	f := newFixture(t, nil, WithMaxAttempts(100))
	ctx := context.Background()
	code := f.lobby(t, settings(3, 27), "Host")

	const joiners = 12
	var wg sync.WaitGroup
	errs := make(chan error, joiners)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.repo.JoinRoom(ctx, code, fmt.Sprintf("player-%d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	room, err := f.repo.FindRoomByCode(ctx, code)
	require.NoError(t, err)
	assert.Len(t, room.Players, joiners+1)
	assert.Equal(t, int64(joiners+1), room.Revision)
	require.NoError(t, game.CheckInvariants(room))
}

func TestLeaveRoomTransfersHostAndDeletes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	code := f.lobby(t, settings(3, 4), "Alice", "Bob", "Carol")

	room, err := f.repo.LeaveRoom(ctx, code, "Alice")
	require.NoError(t, err)
	assert.Equal(t, "Bob", room.Host)
	assert.True(t, room.Players[0].IsHost)

	_, err = f.repo.LeaveRoom(ctx, code, "Alice")
	assert.ErrorIs(t, err, game.ErrNotFound)

	_, err = f.repo.LeaveRoom(ctx, code, "Bob")
	require.NoError(t, err)
	room, err = f.repo.LeaveRoom(ctx, code, "Carol")
	require.NoError(t, err)
	assert.Nil(t, room)

	_, err = f.repo.FindRoomByCode(ctx, code)
	assert.ErrorIs(t, err, game.ErrNotFound)
}

func TestBannedPlayerCannotRejoin(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	code := f.lobby(t, settings(3, 4), "Alice", "Bob")

	room, err := f.repo.BanPlayer(ctx, code, "Alice", "Bob")
	require.NoError(t, err)
	assert.Len(t, room.Players, 1)
	assert.Equal(t, []string{"Bob"}, room.BannedPlayers)

	_, err = f.repo.JoinRoom(ctx, code, "Bob")
	assert.ErrorIs(t, err, game.ErrForbidden)

	_, err = f.repo.KickPlayer(ctx, code, "Bob", "Alice")
	assert.ErrorIs(t, err, game.ErrForbidden)
}

func TestStaleHostIsForbidden(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	code := f.lobby(t, settings(3, 4), "Alice", "Bob", "Carol")

	room, err := f.repo.TransferHost(ctx, code, "Alice", "Bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob", room.Host)

	_, err = f.repo.KickPlayer(ctx, code, "Alice", "Carol")
	assert.ErrorIs(t, err, game.ErrForbidden)
	_, err = f.repo.StartGame(ctx, code, "Alice")
	assert.ErrorIs(t, err, game.ErrForbidden)

	room, err = f.repo.KickPlayer(ctx, code, "Bob", "Carol")
	require.NoError(t, err)
	assert.Len(t, room.Players, 2)
}

func TestSingleRoundGameFinishes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	room := f.started(t, 1, "Alice", "Bob")
	require.Equal(t, models.StatusPlaying, room.Status)
	require.Equal(t, 1, room.CurrentRound)

	answers := matching(room)
	room, err := f.repo.ValidateRound(ctx, room.Code, "Alice", answers)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPlaying, room.Status)

	room, err = f.repo.ValidateRound(ctx, room.Code, "Bob", models.Answers{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, room.Status)
	require.Len(t, room.RoundHistory, 1)
	assert.Equal(t, 60, room.Players[0].Score)
	assert.Equal(t, 0, room.Players[1].Score)
	assert.Empty(t, room.Answers)

	// 終了後に同じラウンドを進めても何も起きない
	again, err := f.repo.AdvanceRound(ctx, room.Code, 1)
	require.NoError(t, err)
	assert.Equal(t, room.Revision, again.Revision)
	assert.Equal(t, 1, f.archive.count())
}

func TestValidateRoundTwiceIsNoop(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	room := f.started(t, 2, "Alice", "Bob")

	first, err := f.repo.ValidateRound(ctx, room.Code, "Alice", matching(room))
	require.NoError(t, err)
	second, err := f.repo.ValidateRound(ctx, room.Code, "Alice", models.Answers{})
	require.NoError(t, err)
	assert.Equal(t, first.Revision, second.Revision)
	assert.Equal(t, matching(room), second.Answers["Alice"])

	_, err = f.repo.SubmitAnswers(ctx, room.Code, "Alice", models.Answers{})
	assert.ErrorIs(t, err, game.ErrForbidden)
}

func TestConcurrentValidationsAdvanceOnce(t *testing.T) {
	f := newFixture(t, nil, WithMaxAttempts(200))
	ctx := context.Background()
	players := []string{"p1", "p2", "p3", "p4", "p5", "p6"}
	room := f.started(t, 3, "host", players...)

	var wg sync.WaitGroup
	for _, name := range append([]string{"host"}, players...) {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_, err := f.repo.ValidateRound(ctx, room.Code, name, nil)
			assert.NoError(t, err)
		}(name)
	}
	wg.Wait()

	got, err := f.repo.FindRoomByCode(ctx, room.Code)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentRound)
	assert.Len(t, got.RoundHistory, 1)
	for _, p := range got.Players {
		assert.False(t, p.HasValidatedRound, p.Name)
	}
	// 7回の検証 + 1回の進行
	assert.Equal(t, room.Revision+8, got.Revision)
}

func TestConcurrentAdvanceIsIdempotent(t *testing.T) {
	f := newFixture(t, nil, WithMaxAttempts(200))
	ctx := context.Background()
	room := f.started(t, 3, "Alice", "Bob")

	// 進行前の状態を直接作る
	room, err := f.repo.UpdateGameState(ctx, room.Code, func(room *models.Room) error {
		for i := range room.Players {
			room.Players[i].HasValidatedRound = true
		}
		return nil
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.repo.AdvanceRound(ctx, room.Code, 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := f.repo.FindRoomByCode(ctx, room.Code)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentRound)
	assert.Len(t, got.RoundHistory, 1)
	assert.Equal(t, room.Revision+1, got.Revision)
}

func TestStalledPlayerBlocksUntilForced(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	room := f.started(t, 2, "Alice", "Bob")

	_, err := f.repo.ValidateRound(ctx, room.Code, "Alice", matching(room))
	require.NoError(t, err)

	f.clock.Advance(2 * time.Minute)
	got, err := f.repo.AdvanceRound(ctx, room.Code, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentRound)

	_, err = f.repo.ForceAdvance(ctx, room.Code, "Bob")
	assert.ErrorIs(t, err, game.ErrForbidden)

	got, err = f.repo.ForceAdvance(ctx, room.Code, "Alice")
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentRound)
	assert.Equal(t, 60, got.Players[0].Score)
}

func TestForceAdvanceBeforeDeadline(t *testing.T) {
	f := newFixture(t, nil)
	room := f.started(t, 2, "Alice", "Bob")
	_, err := f.repo.ForceAdvance(context.Background(), room.Code, "Alice")
	assert.ErrorIs(t, err, game.ErrForbidden)
}

func TestKickingLastUnvalidatedPlayerAdvances(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	room := f.started(t, 2, "Alice", "Bob", "Carol")

	_, err := f.repo.ValidateRound(ctx, room.Code, "Alice", nil)
	require.NoError(t, err)
	_, err = f.repo.ValidateRound(ctx, room.Code, "Bob", nil)
	require.NoError(t, err)

	got, err := f.repo.KickPlayer(ctx, room.Code, "Alice", "Carol")
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentRound)
	require.Len(t, got.RoundHistory, 1)
	assert.NotContains(t, got.RoundHistory[0].PlayerAnswers, "Carol")
}

func TestLeavingLastUnvalidatedPlayerAdvances(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	room := f.started(t, 1, "Alice", "Bob", "Carol")

	for _, name := range []string{"Alice", "Bob"} {
		_, err := f.repo.ValidateRound(ctx, room.Code, name, nil)
		require.NoError(t, err)
	}
	got, err := f.repo.LeaveRoom(ctx, room.Code, "Carol")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, got.Status)
	assert.Equal(t, 1, f.archive.count())
}

func TestRematch(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	room := f.started(t, 1, "Alice", "Bob")

	_, err := f.repo.Rematch(ctx, room.Code, "Alice")
	assert.ErrorIs(t, err, game.ErrInvalidTransition)

	for _, name := range []string{"Alice", "Bob"} {
		_, err := f.repo.ValidateRound(ctx, room.Code, name, matching(room))
		require.NoError(t, err)
	}
	_, err = f.repo.Rematch(ctx, room.Code, "Bob")
	assert.ErrorIs(t, err, game.ErrForbidden)

	got, err := f.repo.Rematch(ctx, room.Code, "Alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, got.Status)
	assert.Zero(t, got.CurrentRound)
	assert.Empty(t, got.RoundHistory)
	for _, p := range got.Players {
		assert.Zero(t, p.Score)
		assert.False(t, p.IsReady)
	}
}

func TestArchiveFailureDoesNotFailAdvance(t *testing.T) {
	f := newFixture(t, nil)
	f.archive.err = errors.New("database down")
	ctx := context.Background()
	room := f.started(t, 1, "Alice", "Bob")

	_, err := f.repo.ValidateRound(ctx, room.Code, "Alice", nil)
	require.NoError(t, err)
	got, err := f.repo.ValidateRound(ctx, room.Code, "Bob", nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, got.Status)
}

func TestConflictRetries(t *testing.T) {
	mem := store.NewMemoryStore()
	flaky := &flakyStore{Store: mem}
	f := newFixture(t, flaky, WithMaxAttempts(3))
	ctx := context.Background()
	code := f.lobby(t, settings(3, 4), "Alice")

	t.Run("clears", func(t *testing.T) {
		flaky.calls.Store(0)
		flaky.conflicts.Store(2)
		room, err := f.repo.JoinRoom(ctx, code, "Bob")
		require.NoError(t, err)
		assert.Len(t, room.Players, 2)
		assert.Equal(t, int32(3), flaky.calls.Load())
	})

	t.Run("exhausted", func(t *testing.T) {
		flaky.calls.Store(0)
		flaky.conflicts.Store(10)
		_, err := f.repo.JoinRoom(ctx, code, "Carol")
		assert.ErrorIs(t, err, game.ErrConflict)
		assert.Equal(t, int32(3), flaky.calls.Load())
	})

	t.Run("guard failures are not retried", func(t *testing.T) {
		flaky.calls.Store(0)
		flaky.conflicts.Store(0)
		_, err := f.repo.StartGame(ctx, code, "Bob")
		assert.ErrorIs(t, err, game.ErrForbidden)
		assert.Equal(t, int32(1), flaky.calls.Load())
	})
}

func TestInvariantViolationIsRefused(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	code := f.lobby(t, settings(3, 4), "Alice", "Bob")

	_, err := f.repo.UpdateGameState(ctx, code, func(room *models.Room) error {
		room.Players[1].IsHost = true
		return nil
	})
	require.Error(t, err)

	room, err := f.repo.FindRoomByCode(ctx, code)
	require.NoError(t, err)
	assert.False(t, room.Players[1].IsHost)
	assert.Equal(t, int64(3), room.Revision)
}

func TestSubscribe(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	code := f.lobby(t, settings(3, 4), "Alice")

	var (
		mu     sync.Mutex
		last   *models.Room
		gotNil bool
	)
	stop, err := f.repo.Subscribe(ctx, code, func(room *models.Room) {
		mu.Lock()
		defer mu.Unlock()
		if room == nil {
			gotNil = true
			return
		}
		last = room
	})
	require.NoError(t, err)
	defer stop()

	_, err = f.repo.JoinRoom(ctx, code, "Bob")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return last != nil && len(last.Players) == 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, f.repo.DeleteRoom(ctx, code))
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotNil
	}, time.Second, 5*time.Millisecond)
}

func TestCleanupRooms(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	active := f.lobby(t, settings(3, 4), "Alice")
	idle := f.lobby(t, settings(3, 4), "Bob")
	orphan := f.lobby(t, settings(1, 4), "Carol", "Dan")

	room, err := f.repo.StartGame(ctx, orphan, "Carol")
	require.NoError(t, err)
	for _, name := range []string{"Carol", "Dan"} {
		_, err := f.repo.ValidateRound(ctx, room.Code, name, nil)
		require.NoError(t, err)
	}
	// ホストが履歴上だけ残った終了済みルーム
	require.NoError(t, f.store.Put(ctx, orphan, mustRewrite(t, f, orphan, func(room *models.Room) {
		room.Host = "Carol"
		room.Players = room.Players[1:]
		room.Players[0].IsHost = false
	})))

	f.clock.Advance(2 * time.Hour)
	_, err = f.repo.JoinRoom(ctx, active, "Eve")
	require.NoError(t, err)

	deleted, err := f.repo.CleanupRooms(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	_, err = f.repo.FindRoomByCode(ctx, active)
	assert.NoError(t, err)
	_, err = f.repo.FindRoomByCode(ctx, idle)
	assert.ErrorIs(t, err, game.ErrNotFound)
	_, err = f.repo.FindRoomByCode(ctx, orphan)
	assert.ErrorIs(t, err, game.ErrNotFound)
}

func mustRewrite(t *testing.T, f *fixture, code string, edit func(room *models.Room)) []byte {
	t.Helper()
	room, err := f.repo.FindRoomByCode(context.Background(), code)
	require.NoError(t, err)
	edit(room)
	room.UpdatedAt = f.clock.Now().Add(3 * time.Hour)
	doc, err := encodeRoom(room)
	require.NoError(t, err)
	return doc
}
