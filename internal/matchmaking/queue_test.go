package matchmaking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stratum/internal/config"
	"stratum/internal/core"
	"stratum/internal/models"
)

var testTC = models.TimeControl{InitialSec: 300, IncrementSec: 3}

type createdPair struct {
	white, black uuid.UUID
}

// recordingCreator collects matched pairs in place of the session registry.
type recordingCreator struct {
	mu    sync.Mutex
	pairs []createdPair
}

func (rc *recordingCreator) create(white, black *models.Player, _ models.TimeControl) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.pairs = append(rc.pairs, createdPair{white: white.ID, black: black.ID})
	return nil
}

func (rc *recordingCreator) all() []createdPair {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make([]createdPair, len(rc.pairs))
	copy(out, rc.pairs)
	return out
}

func newTestQueue(t *testing.T) (*Queue, *recordingCreator) {
	t.Helper()
	rc := &recordingCreator{}
	cfg := config.Default().Matchmaking
	q := NewQueue(cfg, NewWaitStats(nil, cfg.WaitSampleSize), rc.create, nil)
	return q, rc
}

func player(rating int) *models.Player {
	return &models.Player{ID: uuid.New(), Rating: rating, Active: true}
}

func TestEnqueueDuplicateConflicts(t *testing.T) {
	q, _ := newTestQueue(t)
	p := player(1200)

	_, err := q.Enqueue(p, testTC, ColorHistory{})
	require.NoError(t, err)

	_, err = q.Enqueue(p, testTC, ColorHistory{})
	require.Error(t, err)
	assert.True(t, core.IsConflict(err))

	// A different time control is a separate bucket.
	_, err = q.Enqueue(p, models.TimeControl{InitialSec: 180, IncrementSec: 2}, ColorHistory{})
	assert.NoError(t, err)
}

func TestCancelUnknownTicket(t *testing.T) {
	q, _ := newTestQueue(t)
	err := q.Cancel(uuid.New())
	require.Error(t, err)
	assert.True(t, core.IsNotFound(err))
}

func TestCancelIsTerminal(t *testing.T) {
	q, _ := newTestQueue(t)
	id, err := q.Enqueue(player(1200), testTC, ColorHistory{})
	require.NoError(t, err)

	require.NoError(t, q.Cancel(id))
	err = q.Cancel(id)
	assert.True(t, core.IsNotFound(err), "a ticket is cancelled at most once")
}

func TestPassPairsCloseRatings(t *testing.T) {
	q, rc := newTestQueue(t)
	a := player(1200)
	b := player(1250)
	_, err := q.Enqueue(a, testTC, ColorHistory{})
	require.NoError(t, err)
	_, err = q.Enqueue(b, testTC, ColorHistory{})
	require.NoError(t, err)

	q.Pass(context.Background())

	pairs := rc.all()
	require.Len(t, pairs, 1)
	assert.Equal(t, 0, q.Len(), "both tickets leave the queue on match")
}

func TestPassRequeuesWhenCreateFails(t *testing.T) {
	cfg := config.Default().Matchmaking
	rc := &recordingCreator{}
	calls := 0
	create := func(white, black *models.Player, tc models.TimeControl) error {
		calls++
		if calls == 1 {
			return errors.New("registry unavailable")
		}
		return rc.create(white, black, tc)
	}
	q := NewQueue(cfg, NewWaitStats(nil, cfg.WaitSampleSize), create, nil)

	ida, err := q.Enqueue(player(1200), testTC, ColorHistory{})
	require.NoError(t, err)
	idb, err := q.Enqueue(player(1210), testTC, ColorHistory{})
	require.NoError(t, err)

	q.Pass(context.Background())
	assert.Empty(t, rc.all())

	// Both tickets survived the failed launch with their ids intact.
	st, err := q.Status(context.Background(), ida)
	require.NoError(t, err)
	assert.Equal(t, 2, st.BucketSize)
	_, err = q.Status(context.Background(), idb)
	require.NoError(t, err)

	q.Pass(context.Background())
	require.Len(t, rc.all(), 1)
	assert.Equal(t, 0, q.Len())
}

// Ratings 1000 and 1400 are outside the base band; the pair becomes
// matchable only once wait time widens the bands enough.
func TestBandWidensWithWaitTime(t *testing.T) {
	rc := &recordingCreator{}
	cfg := config.Default().Matchmaking
	cfg.BandBase = 100
	cfg.BandGrowthPerSec = 50
	cfg.BandMax = 600
	q := NewQueue(cfg, NewWaitStats(nil, cfg.WaitSampleSize), rc.create, nil)

	low := player(1000)
	high := player(1400)
	lowID, err := q.Enqueue(low, testTC, ColorHistory{})
	require.NoError(t, err)
	_, err = q.Enqueue(high, testTC, ColorHistory{})
	require.NoError(t, err)

	q.Pass(context.Background())
	assert.Empty(t, rc.all(), "400 point gap must not match inside the base band")
	assert.Equal(t, 2, q.Len())

	// Backdate both tickets far enough that base + growth*wait covers the
	// gap for both parties.
	q.mu.Lock()
	for _, tk := range q.byID {
		tk.EnqueuedAt = time.Now().Add(-10 * time.Second)
	}
	q.mu.Unlock()

	q.Pass(context.Background())
	require.Len(t, rc.all(), 1)
	assert.Equal(t, 0, q.Len())

	_ = lowID
}

func TestConcurrentPassesNeverDoublePair(t *testing.T) {
	q, rc := newTestQueue(t)
	for i := 0; i < 40; i++ {
		_, err := q.Enqueue(player(1200+i), testTC, ColorHistory{})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Pass(context.Background())
		}()
	}
	wg.Wait()

	pairs := rc.all()
	assert.Len(t, pairs, 20)

	seen := make(map[uuid.UUID]bool)
	for _, p := range pairs {
		assert.False(t, seen[p.white], "player paired twice")
		assert.False(t, seen[p.black], "player paired twice")
		seen[p.white] = true
		seen[p.black] = true
	}
	assert.Equal(t, 0, q.Len())
}

func TestColorAssignmentBalancesHistory(t *testing.T) {
	q, rc := newTestQueue(t)
	a := player(1200)
	b := player(1210)

	// a has a heavy white surplus, so a must get black.
	_, err := q.Enqueue(a, testTC, ColorHistory{White: 5, Black: 1})
	require.NoError(t, err)
	_, err = q.Enqueue(b, testTC, ColorHistory{White: 2, Black: 3})
	require.NoError(t, err)

	q.Pass(context.Background())
	pairs := rc.all()
	require.Len(t, pairs, 1)
	assert.Equal(t, b.ID, pairs[0].white)
	assert.Equal(t, a.ID, pairs[0].black)
}

func TestStatusReportsRankAndEstimate(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	stats := NewWaitStats(rdb, 50)
	rc := &recordingCreator{}
	q := NewQueue(config.Default().Matchmaking, stats, rc.create, nil)

	ctx := context.Background()
	require.NoError(t, stats.Record(ctx, testTC.Key(), 1200, 8*time.Second))
	require.NoError(t, stats.Record(ctx, testTC.Key(), 1200, 12*time.Second))

	// Two far-apart entries so nothing matches while we inspect status.
	first, err := q.Enqueue(player(1200), testTC, ColorHistory{})
	require.NoError(t, err)
	second, err := q.Enqueue(player(1210), testTC, ColorHistory{})
	require.NoError(t, err)

	st, err := q.Status(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Position)
	assert.Equal(t, 2, st.BucketSize)
	assert.Equal(t, 10*time.Second, st.EstimatedWait, "estimate is the mean of recorded samples")

	st, err = q.Status(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Position)
}

func TestWaitStatsTrimsHistory(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	stats := NewWaitStats(rdb, 3)
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		require.NoError(t, stats.Record(ctx, "300+3", 1200, time.Duration(i)*time.Second))
	}
	// Only the three newest samples (8s, 9s, 10s) remain.
	assert.Equal(t, 9*time.Second, stats.Estimate(ctx, "300+3", 1200))
}
