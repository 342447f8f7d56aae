// internal/cache/redis_test.go
package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stratum/internal/models"
)

func setupRedis(t *testing.T) {
	t.Helper()
	mr := miniredis.RunT(t)
	Rdb = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = Rdb.Close() })
}

func sampleRecord() models.CompletedGame {
	sid, _ := uuid.NewRandom()
	wid, _ := uuid.NewRandom()
	bid, _ := uuid.NewRandom()
	return models.CompletedGame{
		SessionID:   sid,
		WhiteID:     wid,
		BlackID:     bid,
		TimeControl: models.TimeControl{InitialSec: 300, IncrementSec: 3},
		Status:      models.StatusCompleted,
		Result:      models.ResultWhiteWin,
		Termination: models.TerminationResignation,
		StartedAt:   time.Now().Add(-time.Minute),
		CompletedAt: time.Now(),
	}
}

func TestDrainReplaysParkedRecords(t *testing.T) {
	setupRedis(t)
	ctx := context.Background()

	first := sampleRecord()
	second := sampleRecord()
	require.NoError(t, EnqueueFailedPersist(ctx, first))
	require.NoError(t, EnqueueFailedPersist(ctx, second))

	n, err := RetryQueueLen(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	var written []uuid.UUID
	drained, err := DrainFailedPersists(ctx, func(_ context.Context, rec models.CompletedGame) error {
		written = append(written, rec.SessionID)
		return nil
	}, logrus.New())
	require.NoError(t, err)
	assert.Equal(t, 2, drained)
	assert.Equal(t, []uuid.UUID{first.SessionID, second.SessionID}, written)

	n, _ = RetryQueueLen(ctx)
	assert.Zero(t, n)
}

func TestDrainRequeuesOnWriteFailure(t *testing.T) {
	setupRedis(t)
	ctx := context.Background()

	rec := sampleRecord()
	require.NoError(t, EnqueueFailedPersist(ctx, rec))

	_, err := DrainFailedPersists(ctx, func(_ context.Context, _ models.CompletedGame) error {
		return errors.New("database still down")
	}, logrus.New())
	require.Error(t, err)

	// The record went back on the list for the next attempt.
	n, _ := RetryQueueLen(ctx)
	assert.EqualValues(t, 1, n)

	drained, err := DrainFailedPersists(ctx, func(_ context.Context, got models.CompletedGame) error {
		assert.Equal(t, rec.SessionID, got.SessionID)
		return nil
	}, logrus.New())
	require.NoError(t, err)
	assert.Equal(t, 1, drained)
}

func TestDrainDiscardsMalformedEntries(t *testing.T) {
	setupRedis(t)
	ctx := context.Background()

	require.NoError(t, Rdb.RPush(ctx, DefaultRetryQueueName, "not json").Err())
	rec := sampleRecord()
	require.NoError(t, EnqueueFailedPersist(ctx, rec))

	drained, err := DrainFailedPersists(ctx, func(_ context.Context, _ models.CompletedGame) error {
		return nil
	}, logrus.New())
	require.NoError(t, err)
	assert.Equal(t, 1, drained)
}
