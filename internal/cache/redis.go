// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"stratum/internal/models"
)

// Rdb is the global Redis client. Connect it once at application startup.
var Rdb *redis.Client

// DefaultRetryQueueName is the Redis list holding completed-game records
// whose database write failed and needs replaying.
var DefaultRetryQueueName = "stratum_persist_retry"

// ConnectRedis initializes the global Redis client with environment variables:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
func ConnectRedis() error {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	Rdb = redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return nil
}

// EnqueueFailedPersist parks a completed-game record on the retry list after
// a failed database write. The database writes are idempotent, so replaying
// a record more than once is harmless.
func EnqueueFailedPersist(ctx context.Context, rec models.CompletedGame) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal completed game: %w", err)
	}
	queueName := getEnv("PERSIST_RETRY_QUEUE", DefaultRetryQueueName)
	if err := Rdb.RPush(ctx, queueName, data).Err(); err != nil {
		return fmt.Errorf("rpush to %q: %w", queueName, err)
	}
	return nil
}

// DrainFailedPersists replays parked records through the writer until the
// list is empty. A record that fails again goes back on the list and the
// drain stops, leaving the rest for the next attempt.
func DrainFailedPersists(ctx context.Context, write func(context.Context, models.CompletedGame) error, logger *logrus.Logger) (int, error) {
	queueName := getEnv("PERSIST_RETRY_QUEUE", DefaultRetryQueueName)
	drained := 0
	for {
		data, err := Rdb.LPop(ctx, queueName).Bytes()
		if err == redis.Nil {
			return drained, nil
		}
		if err != nil {
			return drained, fmt.Errorf("lpop from %q: %w", queueName, err)
		}

		var rec models.CompletedGame
		if err := json.Unmarshal(data, &rec); err != nil {
			// Unparseable entry: drop it rather than wedge the queue.
			logger.WithField("error", err).Error("discarding malformed retry record")
			continue
		}
		if err := write(ctx, rec); err != nil {
			if pushErr := Rdb.RPush(ctx, queueName, data).Err(); pushErr != nil {
				logger.WithField("error", pushErr).Error("failed to requeue retry record")
			}
			return drained, fmt.Errorf("replay game %s: %w", rec.SessionID, err)
		}
		drained++
	}
}

// RetryQueueLen reports how many records are waiting for replay.
func RetryQueueLen(ctx context.Context) (int64, error) {
	queueName := getEnv("PERSIST_RETRY_QUEUE", DefaultRetryQueueName)
	return Rdb.LLen(ctx, queueName).Result()
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
