package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ctchen222/tictactoe-solo/internal/auth"
	"ctchen222/tictactoe-solo/internal/bot"
	"ctchen222/tictactoe-solo/internal/events"
	eventmocks "ctchen222/tictactoe-solo/internal/events/mocks"
	"ctchen222/tictactoe-solo/internal/game"
	"ctchen222/tictactoe-solo/internal/repository"
	repomocks "ctchen222/tictactoe-solo/internal/repository/mocks"
	"ctchen222/tictactoe-solo/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// memoryStore backs the repository mock so the service sees saved state.
type memoryStore struct {
	mu       sync.Mutex
	sessions map[string]session.Session
	saves    int
	events   []events.Event

	// failSaves makes the next n saves fail.
	failSaves int
}

var errStoreUnavailable = errors.New("store unavailable")

func (m *memoryStore) pendingFailures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failSaves
}

func (m *memoryStore) failNextSaves(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSaves = n
}

func (m *memoryStore) get(id string) (session.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *memoryStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *memoryStore) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, 0, len(m.events))
	for _, e := range m.events {
		types = append(types, e.Type)
	}
	return types
}

type testService struct {
	svc   *sessionService
	store *memoryStore
}

func newTestService(t *testing.T, delay time.Duration) *testService {
	t.Helper()
	ctrl := gomock.NewController(t)
	store := &memoryStore{sessions: make(map[string]session.Session)}

	repo := repomocks.NewMockSessionRepository(ctrl)
	repo.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, s *session.Session) error {
		store.mu.Lock()
		defer store.mu.Unlock()
		if store.failSaves > 0 {
			store.failSaves--
			return errStoreUnavailable
		}
		store.sessions[s.ID] = *s
		store.saves++
		return nil
	}).AnyTimes()
	repo.EXPECT().FindByID(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, id string) (*session.Session, error) {
		store.mu.Lock()
		defer store.mu.Unlock()
		s, ok := store.sessions[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", repository.ErrSessionNotFound, id)
		}
		return &s, nil
	}).AnyTimes()
	repo.EXPECT().Delete(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, id string) error {
		store.mu.Lock()
		defer store.mu.Unlock()
		delete(store.sessions, id)
		return nil
	}).AnyTimes()

	publisher := eventmocks.NewMockPublisher(ctrl)
	publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, _ string, e events.Event) error {
		store.mu.Lock()
		defer store.mu.Unlock()
		store.events = append(store.events, e)
		return nil
	}).AnyTimes()

	thinker := bot.NewThinker(delay)
	t.Cleanup(thinker.Stop)

	svc := NewSessionService(repo, publisher, bot.NewSeededOpponent(1), thinker, auth.NewTokenIssuer("test", time.Hour))
	return &testService{svc: svc.(*sessionService), store: store}
}

func (ts *testService) started(t *testing.T, mode session.Mode) string {
	t.Helper()
	sess, _, err := ts.svc.Create(context.Background())
	require.NoError(t, err)
	_, err = ts.svc.Start(context.Background(), sess.ID, mode)
	require.NoError(t, err)
	return sess.ID
}

func TestSessionService_Create(t *testing.T) {
	ts := newTestService(t, 0)

	sess, token, err := ts.svc.Create(context.Background())

	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, session.PhaseIdle, sess.Phase())
	assert.NoError(t, ts.svc.Authorize(token, sess.ID))
	assert.ErrorIs(t, ts.svc.Authorize(token, "someone-else"), auth.ErrInvalidToken)

	stored, ok := ts.store.get(sess.ID)
	require.True(t, ok)
	assert.Equal(t, *sess, stored)
}

func TestSessionService_Get_NotFound(t *testing.T) {
	ts := newTestService(t, 0)

	_, err := ts.svc.Get(context.Background(), "missing")

	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
}

func TestSessionService_Start_InvalidMode(t *testing.T) {
	ts := newTestService(t, 0)
	sess, _, err := ts.svc.Create(context.Background())
	require.NoError(t, err)
	saves := ts.store.saveCount()

	_, err = ts.svc.Start(context.Background(), sess.ID, session.Mode("online"))

	assert.ErrorIs(t, err, session.ErrInvalidMode)
	assert.Equal(t, saves, ts.store.saveCount())
}

func TestSessionService_Move_ComputerRepliesInline(t *testing.T) {
	ts := newTestService(t, 0)
	id := ts.started(t, session.ModeComputer)

	sess, applied, err := ts.svc.Move(context.Background(), id, 0)

	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, game.MustParseBoard("X...O...."), sess.Board)
	assert.Equal(t, session.PhaseWaitingForHuman, sess.Phase())

	stored, _ := ts.store.get(id)
	assert.Equal(t, sess.Board, stored.Board)
}

func TestSessionService_Move_Rejected(t *testing.T) {
	ts := newTestService(t, 0)
	id := ts.started(t, session.ModeTwoHuman)
	_, applied, err := ts.svc.Move(context.Background(), id, 4)
	require.NoError(t, err)
	require.True(t, applied)
	saves := ts.store.saveCount()

	sess, applied, err := ts.svc.Move(context.Background(), id, 4)

	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, game.PlayerO, sess.Turn)
	assert.Equal(t, saves, ts.store.saveCount(), "rejected moves are not saved")
}

func TestSessionService_RoundFinishedOnce(t *testing.T) {
	ts := newTestService(t, 0)
	id := ts.started(t, session.ModeTwoHuman)
	ctx := context.Background()

	for _, idx := range []int{0, 3, 1, 4, 2} {
		_, applied, err := ts.svc.Move(ctx, id, idx)
		require.NoError(t, err)
		require.True(t, applied)
	}
	_, applied, err := ts.svc.Move(ctx, id, 8)
	require.NoError(t, err)
	assert.False(t, applied)

	sess, err := ts.svc.NextRound(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, session.Score{X: 1}, sess.Score)
	finished := 0
	for _, typ := range ts.store.eventTypes() {
		if typ == events.TypeRoundFinished {
			finished++
		}
	}
	assert.Equal(t, 1, finished)
}

func TestSessionService_ComputerNeverLoses(t *testing.T) {
	ts := newTestService(t, 0)
	id := ts.started(t, session.ModeComputer)
	ctx := context.Background()

	for round := 0; round < 5; round++ {
		for {
			sess, err := ts.svc.Get(ctx, id)
			require.NoError(t, err)
			if sess.Phase() == session.PhaseRoundOver {
				break
			}
			cells := sess.Board.EmptyCells()
			_, applied, err := ts.svc.Move(ctx, id, cells[round%len(cells)])
			require.NoError(t, err)
			require.True(t, applied)
		}
		_, err := ts.svc.NextRound(ctx, id)
		require.NoError(t, err)
	}

	sess, err := ts.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, sess.Score.X)
	assert.Equal(t, 5, sess.Score.O+sess.Score.Draws)
}

func TestSessionService_DelayedComputerMove(t *testing.T) {
	ts := newTestService(t, 100*time.Millisecond)
	id := ts.started(t, session.ModeComputer)

	sess, applied, err := ts.svc.Move(context.Background(), id, 8)
	require.NoError(t, err)
	require.True(t, applied)
	assert.Equal(t, session.PhaseWaitingForOpponent, sess.Phase())

	// The human cannot move while the computer is thinking.
	_, applied, err = ts.svc.Move(context.Background(), id, 0)
	require.NoError(t, err)
	assert.False(t, applied)

	assert.Eventually(t, func() bool {
		stored, _ := ts.store.get(id)
		return stored.Board[game.Center] == game.PlayerO
	}, time.Second, 5*time.Millisecond)

	stored, _ := ts.store.get(id)
	assert.Equal(t, game.PlayerX, stored.Turn)
}

func TestSessionService_StaleComputerMoveDropped(t *testing.T) {
	ts := newTestService(t, 30*time.Millisecond)
	id := ts.started(t, session.ModeComputer)
	ctx := context.Background()

	_, _, err := ts.svc.Move(ctx, id, 0)
	require.NoError(t, err)
	_, applied, err := ts.svc.ResetBoard(ctx, id)
	require.NoError(t, err)
	require.True(t, applied)

	time.Sleep(100 * time.Millisecond)

	stored, _ := ts.store.get(id)
	assert.True(t, stored.Board.IsEmpty())
	assert.Equal(t, game.PlayerX, stored.Turn)
}

func TestSessionService_LostComputerMoveResumesOnNextRequest(t *testing.T) {
	ts := newTestService(t, 20*time.Millisecond)
	id := ts.started(t, session.ModeComputer)
	ctx := context.Background()

	_, applied, err := ts.svc.Move(ctx, id, 0)
	require.NoError(t, err)
	require.True(t, applied)

	// The computer's reply fails to save and leaves nothing pending.
	ts.store.failNextSaves(1)
	assert.Eventually(t, func() bool {
		return ts.store.pendingFailures() == 0 && !ts.svc.thinker.Thinking(id)
	}, time.Second, 5*time.Millisecond)
	stored, _ := ts.store.get(id)
	require.Equal(t, session.PhaseWaitingForOpponent, stored.Phase())

	sess, applied, err := ts.svc.Move(ctx, id, 8)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, session.PhaseWaitingForOpponent, sess.Phase())
	assert.True(t, ts.svc.thinker.Thinking(id))

	assert.Eventually(t, func() bool {
		stored, _ := ts.store.get(id)
		return stored.Phase() == session.PhaseWaitingForHuman
	}, time.Second, 5*time.Millisecond)
	stored, _ = ts.store.get(id)
	assert.Equal(t, game.PlayerO, stored.Board[game.Center])
}

func TestSessionService_GetResumesLostComputerMove(t *testing.T) {
	ts := newTestService(t, 0)
	ctx := context.Background()

	// A session saved mid-delay by a process that has since stopped.
	stuck := session.New("stuck")
	require.NoError(t, stuck.Start(session.ModeComputer))
	require.True(t, stuck.HumanMove(0))
	ts.store.sessions[stuck.ID] = *stuck
	require.Equal(t, session.PhaseWaitingForOpponent, stuck.Phase())

	sess, err := ts.svc.Get(ctx, stuck.ID)

	require.NoError(t, err)
	assert.Equal(t, session.PhaseWaitingForHuman, sess.Phase())
	assert.Equal(t, game.PlayerO, sess.Board[game.Center])
	stored, _ := ts.store.get(stuck.ID)
	assert.Equal(t, *sess, stored)
}

func TestSessionService_PlayOpponentIgnoresOldRound(t *testing.T) {
	ts := newTestService(t, time.Hour)
	id := ts.started(t, session.ModeComputer)
	ctx := context.Background()

	sess, _, err := ts.svc.Move(ctx, id, 0)
	require.NoError(t, err)

	latest := ts.svc.playOpponent(ctx, id, sess.Round-1)

	require.NotNil(t, latest)
	assert.Equal(t, game.None, latest.Board[game.Center])
}

func TestSessionService_NewGameAndChangeMode(t *testing.T) {
	ts := newTestService(t, 0)
	id := ts.started(t, session.ModeTwoHuman)
	ctx := context.Background()
	for _, idx := range []int{0, 3, 1, 4, 2} {
		_, _, err := ts.svc.Move(ctx, id, idx)
		require.NoError(t, err)
	}

	sess, err := ts.svc.ChangeMode(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, session.PhaseIdle, sess.Phase())
	assert.Equal(t, session.Score{X: 1}, sess.Score)

	sess, err = ts.svc.NewGame(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, session.Score{}, sess.Score)

	_, err = ts.svc.NextRound(ctx, id)
	assert.ErrorIs(t, err, session.ErrNotStarted)
}

func TestSessionService_End(t *testing.T) {
	ts := newTestService(t, time.Hour)
	id := ts.started(t, session.ModeComputer)
	ctx := context.Background()

	_, _, err := ts.svc.Move(ctx, id, 0)
	require.NoError(t, err)
	require.Equal(t, 1, ts.svc.thinker.Pending())

	require.NoError(t, ts.svc.End(ctx, id))

	assert.Zero(t, ts.svc.thinker.Pending())
	_, ok := ts.store.get(id)
	assert.False(t, ok)
	types := ts.store.eventTypes()
	assert.Equal(t, events.TypeSessionEnded, types[len(types)-1])

	assert.ErrorIs(t, ts.svc.End(ctx, id), repository.ErrSessionNotFound)
}

func TestSessionService_SaveFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := repomocks.NewMockSessionRepository(ctrl)
	publisher := eventmocks.NewMockPublisher(ctrl)
	saveErr := errors.New("redis down")

	existing := session.New("s1")
	repo.EXPECT().FindByID(gomock.Any(), "s1").Return(existing, nil)
	repo.EXPECT().Save(gomock.Any(), gomock.Any()).Return(saveErr)

	svc := NewSessionService(repo, publisher, bot.NewSeededOpponent(1), bot.NewThinker(0), auth.NewTokenIssuer("test", time.Hour))

	_, err := svc.Start(context.Background(), "s1", session.ModeTwoHuman)

	assert.ErrorIs(t, err, saveErr)
}

func TestSessionService_PublishFailureDoesNotFailTheMove(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := repomocks.NewMockSessionRepository(ctrl)
	publisher := eventmocks.NewMockPublisher(ctrl)

	existing := session.New("s1")
	require.NoError(t, existing.Start(session.ModeTwoHuman))
	repo.EXPECT().FindByID(gomock.Any(), "s1").Return(existing, nil)
	repo.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)
	publisher.EXPECT().Publish(gomock.Any(), "s1", gomock.Any()).Return(errors.New("no subscribers"))

	svc := NewSessionService(repo, publisher, bot.NewSeededOpponent(1), bot.NewThinker(0), auth.NewTokenIssuer("test", time.Hour))

	sess, applied, err := svc.Move(context.Background(), "s1", 4)

	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, game.PlayerX, sess.Board[4])
}

func TestSessionLocks(t *testing.T) {
	locks := newSessionLocks()
	var wg sync.WaitGroup
	counter := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("same")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Zero(t, locks.size())
}
