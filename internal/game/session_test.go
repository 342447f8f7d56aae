package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stratum/internal/config"
	"stratum/internal/core"
	"stratum/internal/models"
)

// mockRoom collects events instead of writing them to websockets.
type mockRoom struct {
	mu           sync.Mutex
	events       []Event
	playerEvents map[uuid.UUID][]Event
}

func newMockRoom() *mockRoom {
	return &mockRoom{playerEvents: make(map[uuid.UUID][]Event)}
}

func (m *mockRoom) broadcast(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *mockRoom) broadcastToPlayer(id uuid.UUID, ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playerEvents[id] = append(m.playerEvents[id], ev)
}

func (m *mockRoom) lastOfType(t EventType) *Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].Type == t {
			ev := m.events[i]
			return &ev
		}
	}
	return nil
}

type sessionFixture struct {
	s      *Session
	white  *models.Player
	black  *models.Player
	oracle *stubOracle
	room   *mockRoom

	persisted chan models.CompletedGame
	completed chan models.CompletedGame
}

func newFixture(t *testing.T, oracle *stubOracle, opts ...func(*SessionParams)) *sessionFixture {
	t.Helper()
	white := &models.Player{ID: uuid.New(), Username: "anna", Rating: 1200, PeakRating: 1200, Provisional: true, Active: true}
	black := &models.Player{ID: uuid.New(), Username: "bo", Rating: 1200, PeakRating: 1200, Provisional: true, Active: true}

	params := SessionParams{
		White:          white,
		Black:          black,
		TimeControl:    models.TimeControl{InitialSec: 60, IncrementSec: 0},
		Rated:          true,
		Oracle:         oracle,
		ReconnectGrace: 50 * time.Millisecond,
		RatingCfg:      config.Default().Rating,
	}
	for _, o := range opts {
		o(&params)
	}

	s, err := NewSession(params)
	require.NoError(t, err)

	f := &sessionFixture{
		s: s, white: white, black: black, oracle: oracle,
		room:      newMockRoom(),
		persisted: make(chan models.CompletedGame, 1),
		completed: make(chan models.CompletedGame, 1),
	}
	s.BroadcastFn = f.room.broadcast
	s.BroadcastToPlayerFn = f.room.broadcastToPlayer
	s.PersistFn = func(rec models.CompletedGame) { f.persisted <- rec }
	s.OnComplete = func(rec models.CompletedGame) { f.completed <- rec }
	return f
}

func (f *sessionFixture) waitComplete(t *testing.T) models.CompletedGame {
	t.Helper()
	select {
	case rec := <-f.completed:
		return rec
	case <-time.After(2 * time.Second):
		t.Fatal("session never reached a terminal state")
		return models.CompletedGame{}
	}
}

func TestSessionRequiresDistinctPlayers(t *testing.T) {
	p := &models.Player{ID: uuid.New()}
	_, err := NewSession(SessionParams{White: p, Black: p, Oracle: &stubOracle{}, TimeControl: models.TimeControl{InitialSec: 60}})
	require.Error(t, err)
	assert.True(t, core.IsValidation(err))
}

func TestSubmitMoveEnforcesTurnOrder(t *testing.T) {
	f := newFixture(t, &stubOracle{})
	ctx := context.Background()

	_, err := f.s.SubmitMove(ctx, f.black.ID, mv(1))
	require.Error(t, err)
	assert.True(t, core.IsValidation(err))

	m, err := f.s.SubmitMove(ctx, f.white.ID, mv(1))
	require.NoError(t, err)
	assert.Equal(t, 1, m.TurnNumber)

	// White again: rejected, state unchanged.
	_, err = f.s.SubmitMove(ctx, f.white.ID, mv(2))
	require.Error(t, err)
	assert.True(t, core.IsValidation(err))
	assert.Equal(t, models.StatusActive, f.s.Status())
}

func TestResignCompletesForOpponent(t *testing.T) {
	f := newFixture(t, &stubOracle{})
	require.NoError(t, f.s.Resign(f.black.ID))

	rec := f.waitComplete(t)
	assert.Equal(t, models.ResultWhiteWin, rec.Result)
	assert.Equal(t, models.TerminationResignation, rec.Termination)

	over := f.room.lastOfType(EventGameOver)
	require.NotNil(t, over)
	require.NotNil(t, over.Winner)
	assert.Equal(t, f.white.ID, *over.Winner)
}

func TestSingleTerminalTransition(t *testing.T) {
	f := newFixture(t, &stubOracle{})
	require.NoError(t, f.s.Resign(f.black.ID))
	f.waitComplete(t)

	err := f.s.Resign(f.white.ID)
	require.Error(t, err)
	assert.True(t, core.IsState(err))

	_, err = f.s.SubmitMove(context.Background(), f.white.ID, mv(1))
	require.Error(t, err)
	assert.True(t, core.IsState(err))

	err = f.s.RespondDraw(f.white.ID, true)
	require.Error(t, err)
	assert.True(t, core.IsState(err))
}

func TestDrawOfferAcceptCompletesAsAgreedDraw(t *testing.T) {
	f := newFixture(t, &stubOracle{})
	require.NoError(t, f.s.OfferDraw(f.white.ID))
	require.NoError(t, f.s.RespondDraw(f.black.ID, true))

	rec := f.waitComplete(t)
	assert.Equal(t, models.ResultDraw, rec.Result)
	assert.Equal(t, models.TerminationAgreedDraw, rec.Termination)
}

func TestDrawOfferDeclineKeepsSessionActive(t *testing.T) {
	f := newFixture(t, &stubOracle{})
	require.NoError(t, f.s.OfferDraw(f.white.ID))
	require.NoError(t, f.s.RespondDraw(f.black.ID, false))
	assert.Equal(t, models.StatusActive, f.s.Status())

	// The declined offer is gone; accepting now is a validation error.
	err := f.s.RespondDraw(f.black.ID, true)
	require.Error(t, err)
	assert.True(t, core.IsValidation(err))
}

func TestDrawOfferWithdrawnByMove(t *testing.T) {
	f := newFixture(t, &stubOracle{})
	require.NoError(t, f.s.OfferDraw(f.black.ID))

	_, err := f.s.SubmitMove(context.Background(), f.white.ID, mv(1))
	require.NoError(t, err)

	err = f.s.RespondDraw(f.white.ID, true)
	require.Error(t, err, "offer should be withdrawn once a move occurs")
	assert.True(t, core.IsValidation(err))
}

func TestRespondDrawWithoutOffer(t *testing.T) {
	f := newFixture(t, &stubOracle{})
	err := f.s.RespondDraw(f.black.ID, true)
	require.Error(t, err)
	assert.True(t, core.IsValidation(err))
}

func TestClockExpiryCompletesSession(t *testing.T) {
	f := newFixture(t, &stubOracle{}, func(p *SessionParams) {
		p.TimeControl = models.TimeControl{InitialSec: 1, IncrementSec: 0}
	})
	// Override the armed timer with a much shorter clock by just waiting:
	// white never moves, so white's flag falls after one second.
	rec := f.waitComplete(t)
	assert.Equal(t, models.ResultBlackWin, rec.Result)
	assert.Equal(t, models.TerminationTime, rec.Termination)
}

func TestDisconnectGraceForfeitsByAbandonment(t *testing.T) {
	f := newFixture(t, &stubOracle{})
	require.NoError(t, f.s.AttachConn(f.black.ID, nil))
	f.s.HandleDisconnect(f.black.ID)

	rec := f.waitComplete(t)
	assert.Equal(t, models.ResultWhiteWin, rec.Result)
	assert.Equal(t, models.TerminationAbandonment, rec.Termination)
}

func TestReconnectWithinGracePreservesSession(t *testing.T) {
	oracle := &stubOracle{}
	f := newFixture(t, oracle, func(p *SessionParams) {
		p.ReconnectGrace = 200 * time.Millisecond
	})
	_, err := f.s.SubmitMove(context.Background(), f.white.ID, mv(1))
	require.NoError(t, err)

	require.NoError(t, f.s.AttachConn(f.black.ID, nil))
	f.s.HandleDisconnect(f.black.ID)
	require.NoError(t, f.s.HandleReconnect(f.black.ID, nil))

	// Past the original grace deadline the session must still be live with
	// its history intact.
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, models.StatusActive, f.s.Status())
	snap := f.s.Snapshot()
	assert.Equal(t, 1, snap.TurnNumber)
	assert.Equal(t, models.Black, snap.ToMove)
}

func TestAbortOnlyBeforeFirstMove(t *testing.T) {
	f := newFixture(t, &stubOracle{})
	_, err := f.s.SubmitMove(context.Background(), f.white.ID, mv(1))
	require.NoError(t, err)

	err = f.s.Abort()
	require.Error(t, err)
	assert.True(t, core.IsState(err))
}

func TestAbortProducesNoRatingAndNoPersist(t *testing.T) {
	f := newFixture(t, &stubOracle{})
	require.NoError(t, f.s.Abort())

	rec := f.waitComplete(t)
	assert.Equal(t, models.StatusAborted, rec.Status)
	assert.Equal(t, models.TerminationAborted, rec.Termination)
	assert.Empty(t, rec.RatingChanges)
	assert.Equal(t, 1200, f.white.Rating)

	select {
	case <-f.persisted:
		t.Fatal("aborted sessions must not be persisted as scored games")
	case <-time.After(100 * time.Millisecond):
	}
}

// Two 1200 provisional players, decisive result: deltas are exactly ±16 and
// game counters advance while provisional holds.
func TestTerminalRatingSideEffects(t *testing.T) {
	o := &stubOracle{conditions: []BoardConditions{{VertexControl: true}}}
	f := newFixture(t, o)

	_, err := f.s.SubmitMove(context.Background(), f.white.ID, mv(1))
	require.NoError(t, err)

	rec := f.waitComplete(t)
	require.Len(t, rec.RatingChanges, 2)
	assert.Equal(t, 16, rec.RatingChanges[0].Delta())
	assert.Equal(t, -16, rec.RatingChanges[1].Delta())
	assert.Equal(t, 32, rec.RatingChanges[0].KFactor)

	assert.Equal(t, 1216, f.white.Rating)
	assert.Equal(t, 1184, f.black.Rating)
	assert.Equal(t, 1, f.white.GamesPlayed)
	assert.Equal(t, 1, f.black.GamesPlayed)
	assert.True(t, f.white.Provisional)
	assert.True(t, f.black.Provisional)

	select {
	case p := <-f.persisted:
		assert.Equal(t, rec.SessionID, p.SessionID)
		require.Len(t, p.Moves, 1)
		assert.Equal(t, models.TerminationVertexControl, p.Termination)
	case <-time.After(time.Second):
		t.Fatal("completed game was never handed to persistence")
	}
}

func TestUnratedGameSkipsRating(t *testing.T) {
	f := newFixture(t, &stubOracle{}, func(p *SessionParams) { p.Rated = false })
	require.NoError(t, f.s.Resign(f.white.ID))
	rec := f.waitComplete(t)
	assert.Empty(t, rec.RatingChanges)
	assert.Equal(t, 1200, f.black.Rating)
}

func TestRegistryRoutesAndArchives(t *testing.T) {
	reg := NewRegistry(nil)
	white := &models.Player{ID: uuid.New(), Rating: 1200}
	black := &models.Player{ID: uuid.New(), Rating: 1200}

	s, err := reg.Create(SessionParams{
		White: white, Black: black,
		TimeControl:    models.TimeControl{InitialSec: 60},
		Oracle:         &stubOracle{},
		ReconnectGrace: time.Second,
		RatingCfg:      config.Default().Rating,
	})
	require.NoError(t, err)
	require.Equal(t, 1, reg.Len())

	got, err := reg.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.Len(t, reg.ForPlayer(white.ID), 1)

	require.NoError(t, s.Resign(black.ID))
	require.Eventually(t, func() bool { return reg.Len() == 0 }, time.Second, 10*time.Millisecond,
		"terminal sessions are archived out of the live map")

	_, err = reg.Get(s.ID)
	assert.True(t, core.IsNotFound(err))
}
