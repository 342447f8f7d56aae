// internal/matchmaking/queue.go
package matchmaking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"stratum/internal/config"
	"stratum/internal/core"
	"stratum/internal/models"
)

// ColorHistory is a player's recent color tally, used to balance color
// assignment when a match is made.
type ColorHistory struct {
	White int
	Black int
}

// SessionCreator instantiates a session for a matched pair, white first.
// The queue issues the creation request and never waits on session locks.
type SessionCreator func(white, black *models.Player, tc models.TimeControl) error

type ticket struct {
	models.QueueTicket
	player  *models.Player
	history ColorHistory
}

// Queue pairs waiting players per time control bucket. Matching and ticket
// removal happen as one atomic step under the queue mutex, so concurrent
// passes can never pair the same ticket twice.
type Queue struct {
	mu sync.Mutex

	cfg   config.MatchmakingConfig
	stats *WaitStats

	// buckets hold tickets per time control key, ordered by enqueue time.
	buckets   map[string][]*ticket
	byID      map[uuid.UUID]*ticket
	perPlayer map[string]uuid.UUID // playerID|tcKey -> ticket id

	create SessionCreator
	logger *logrus.Logger

	scheduler gocron.Scheduler
}

func NewQueue(cfg config.MatchmakingConfig, stats *WaitStats, create SessionCreator, logger *logrus.Logger) *Queue {
	return &Queue{
		cfg:       cfg,
		stats:     stats,
		buckets:   make(map[string][]*ticket),
		byID:      make(map[uuid.UUID]*ticket),
		perPlayer: make(map[string]uuid.UUID),
		create:    create,
		logger:    logger,
	}
}

func playerKey(playerID uuid.UUID, tcKey string) string {
	return playerID.String() + "|" + tcKey
}

// Enqueue adds a player to the bucket for tc. A player may hold at most one
// active ticket per time control; a duplicate returns ErrConflict.
func (q *Queue) Enqueue(player *models.Player, tc models.TimeControl, history ColorHistory) (uuid.UUID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := playerKey(player.ID, tc.Key())
	if _, dup := q.perPlayer[key]; dup {
		return uuid.Nil, core.Conflictf("player %s already queued for %s", player.ID, tc.Key())
	}

	id, _ := uuid.NewRandom()
	t := &ticket{
		QueueTicket: models.QueueTicket{
			ID:          id,
			PlayerID:    player.ID,
			Username:    player.Username,
			Rating:      player.Rating,
			TimeControl: tc,
			EnqueuedAt:  time.Now(),
			RecentWhite: history.White,
			RecentBlack: history.Black,
		},
		player:  player,
		history: history,
	}
	q.buckets[tc.Key()] = append(q.buckets[tc.Key()], t)
	q.byID[id] = t
	q.perPlayer[key] = id

	if q.logger != nil {
		q.logger.WithFields(logrus.Fields{
			"ticket": id, "player": player.ID, "tc": tc.Key(), "rating": player.Rating,
		}).Debug("player enqueued")
	}
	return id, nil
}

// Cancel removes a pending ticket. A ticket already matched or cancelled
// returns ErrNotFound: the outcome is terminal, not retryable.
func (q *Queue) Cancel(ticketID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.byID[ticketID]
	if !ok {
		return core.NotFoundf("ticket %s", ticketID)
	}
	q.removeLocked(t)
	return nil
}

// Status reports the live bucket rank and the historical wait estimate for
// the ticket's rating band.
func (q *Queue) Status(ctx context.Context, ticketID uuid.UUID) (models.QueueStatus, error) {
	q.mu.Lock()
	t, ok := q.byID[ticketID]
	if !ok {
		q.mu.Unlock()
		return models.QueueStatus{}, core.NotFoundf("ticket %s", ticketID)
	}
	bucket := q.buckets[t.TimeControl.Key()]
	position := 0
	for i, other := range bucket {
		if other.ID == ticketID {
			position = i + 1
			break
		}
	}
	size := len(bucket)
	waited := time.Since(t.EnqueuedAt)
	tcKey := t.TimeControl.Key()
	rtg := t.Rating
	q.mu.Unlock()

	return models.QueueStatus{
		TicketID:      ticketID,
		Position:      position,
		BucketSize:    size,
		Waited:        waited,
		EstimatedWait: q.stats.Estimate(ctx, tcKey, rtg),
	}, nil
}

// Start schedules the periodic matching pass.
func (q *Queue) Start() error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create matchmaking scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(q.cfg.PassInterval()),
		gocron.NewTask(func() { q.Pass(context.Background()) }),
	)
	if err != nil {
		return fmt.Errorf("schedule matchmaking pass: %w", err)
	}
	q.scheduler = sched
	sched.Start()
	return nil
}

// Stop shuts the matching scheduler down.
func (q *Queue) Stop() {
	if q.scheduler != nil {
		_ = q.scheduler.Shutdown()
	}
}

type matchedPair struct {
	white, black *ticket
	tc           models.TimeControl
}

// Pass runs one matching sweep over every bucket. Pairs are removed from
// the queue atomically under the lock; session creation happens after the
// lock is released so the pass never blocks on downstream work.
func (q *Queue) Pass(ctx context.Context) {
	now := time.Now()

	q.mu.Lock()
	var pairs []matchedPair
	for key := range q.buckets {
		pairs = append(pairs, q.matchBucketLocked(key, now)...)
	}
	q.mu.Unlock()

	for _, p := range pairs {
		q.recordWaits(ctx, p, now)
		if err := q.create(p.white.player, p.black.player, p.tc); err != nil {
			if q.logger != nil {
				q.logger.WithError(err).WithFields(logrus.Fields{
					"white": p.white.PlayerID, "black": p.black.PlayerID,
				}).Error("session creation failed for matched pair")
			}
			q.requeue(p.white, p.black)
		}
	}
}

// requeue restores tickets whose session could not be created. They keep
// their ids and enqueue times, so their bands keep widening and a later
// pass matches them again.
func (q *Queue) requeue(tickets ...*ticket) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range tickets {
		key := t.TimeControl.Key()
		pk := playerKey(t.PlayerID, key)
		if _, taken := q.perPlayer[pk]; taken {
			continue // the player queued again in the meantime
		}
		bucket := q.buckets[key]
		at := len(bucket)
		for i, other := range bucket {
			if t.EnqueuedAt.Before(other.EnqueuedAt) {
				at = i
				break
			}
		}
		bucket = append(bucket, nil)
		copy(bucket[at+1:], bucket[at:])
		bucket[at] = t
		q.buckets[key] = bucket
		q.byID[t.ID] = t
		q.perPlayer[pk] = t.ID
	}
}

// matchBucketLocked pairs as many tickets as the band policy allows in one
// sweep. For the oldest unmatched entry it scans the rest in wait order and
// takes the first ticket whose rating snapshot falls inside both parties'
// current bands.
func (q *Queue) matchBucketLocked(key string, now time.Time) []matchedPair {
	var pairs []matchedPair
	for {
		bucket := q.buckets[key]
		if len(bucket) < 2 {
			return pairs
		}
		oldest := bucket[0]
		oldestBand := q.band(oldest, now)

		var partner *ticket
		for _, cand := range bucket[1:] {
			diff := oldest.Rating - cand.Rating
			if diff < 0 {
				diff = -diff
			}
			if diff <= oldestBand && diff <= q.band(cand, now) {
				partner = cand
				break
			}
		}
		if partner == nil {
			return pairs
		}

		// Atomic with the match decision: both tickets leave the queue
		// before the lock is released.
		q.removeLocked(oldest)
		q.removeLocked(partner)

		white, black := assignColors(oldest, partner)
		pairs = append(pairs, matchedPair{white: white, black: black, tc: oldest.TimeControl})
	}
}

// band is the acceptance half-width for a ticket: it starts at the base and
// widens with wait time, capped at the maximum.
func (q *Queue) band(t *ticket, now time.Time) int {
	waited := int(now.Sub(t.EnqueuedAt).Seconds())
	band := q.cfg.BandBase + q.cfg.BandGrowthPerSec*waited
	if band > q.cfg.BandMax {
		band = q.cfg.BandMax
	}
	return band
}

// assignColors balances recent color history: the side with the larger
// white surplus takes black. Ties fall to the longer-waiting ticket taking
// white.
func assignColors(older, newer *ticket) (white, black *ticket) {
	olderSurplus := older.history.White - older.history.Black
	newerSurplus := newer.history.White - newer.history.Black
	if olderSurplus > newerSurplus {
		return newer, older
	}
	return older, newer
}

func (q *Queue) recordWaits(ctx context.Context, p matchedPair, now time.Time) {
	for _, t := range []*ticket{p.white, p.black} {
		if err := q.stats.Record(ctx, p.tc.Key(), t.Rating, now.Sub(t.EnqueuedAt)); err != nil && q.logger != nil {
			q.logger.WithError(err).Debug("wait sample not recorded")
		}
	}
}

// removeLocked destroys a ticket: the matched-or-cancelled transition is
// exclusive and happens exactly once.
func (q *Queue) removeLocked(t *ticket) {
	key := t.TimeControl.Key()
	bucket := q.buckets[key]
	for i, other := range bucket {
		if other.ID == t.ID {
			q.buckets[key] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	delete(q.byID, t.ID)
	delete(q.perPlayer, playerKey(t.PlayerID, key))
}

// Len reports the number of waiting tickets across all buckets.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byID)
}
