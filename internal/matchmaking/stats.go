// internal/matchmaking/stats.go
package matchmaking

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// bandWidth groups ratings into 200-point bands for wait statistics.
const bandWidth = 200

// defaultEstimate is reported before any sample exists for a band.
const defaultEstimate = 30 * time.Second

// WaitStats keeps a bounded history of realized queue waits per time control
// and rating band in redis, and serves the smoothed estimate clients see as
// "estimated wait". Estimates come from real samples, never simulated.
type WaitStats struct {
	rdb        *redis.Client
	sampleSize int
}

func NewWaitStats(rdb *redis.Client, sampleSize int) *WaitStats {
	return &WaitStats{rdb: rdb, sampleSize: sampleSize}
}

func waitKey(tcKey string, rating int) string {
	return fmt.Sprintf("stratum:waits:%s:%d", tcKey, rating/bandWidth)
}

// Record pushes one realized wait for the band and trims the history.
func (w *WaitStats) Record(ctx context.Context, tcKey string, rating int, wait time.Duration) error {
	if w == nil || w.rdb == nil {
		return nil
	}
	key := waitKey(tcKey, rating)
	pipe := w.rdb.Pipeline()
	pipe.LPush(ctx, key, wait.Milliseconds())
	pipe.LTrim(ctx, key, 0, int64(w.sampleSize-1))
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("record wait sample: %w", err)
	}
	return nil
}

// Estimate returns the mean of the recorded waits for the band, or a
// conservative default when no history exists yet.
func (w *WaitStats) Estimate(ctx context.Context, tcKey string, rating int) time.Duration {
	if w == nil || w.rdb == nil {
		return defaultEstimate
	}
	vals, err := w.rdb.LRange(ctx, waitKey(tcKey, rating), 0, int64(w.sampleSize-1)).Result()
	if err != nil || len(vals) == 0 {
		return defaultEstimate
	}
	var totalMs int64
	var n int64
	for _, v := range vals {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		totalMs += ms
		n++
	}
	if n == 0 {
		return defaultEstimate
	}
	return time.Duration(totalMs/n) * time.Millisecond
}
