// internal/game/clock.go
package game

import (
	"time"

	"stratum/internal/models"
)

// Clock tracks both sides' remaining time. It has no timers of its own; the
// session schedules the expiry callback and asks the clock for deadlines.
// All methods assume the session lock is held.
type Clock struct {
	remaining map[models.Color]time.Duration
	increment time.Duration

	active    models.Color
	turnStart time.Time
	running   bool
}

func NewClock(tc models.TimeControl) *Clock {
	return &Clock{
		remaining: map[models.Color]time.Duration{
			models.White: tc.Initial(),
			models.Black: tc.Initial(),
		},
		increment: tc.Increment(),
		active:    models.White,
	}
}

// Start begins white's clock.
func (c *Clock) Start(now time.Time) {
	if c.running {
		return
	}
	c.running = true
	c.active = models.White
	c.turnStart = now
}

// Press records the active side's move: elapsed time is deducted, the
// increment credited, and the clock switches to the other side. Returns the
// think time spent on the move.
func (c *Clock) Press(now time.Time) time.Duration {
	if !c.running {
		return 0
	}
	elapsed := now.Sub(c.turnStart)
	if elapsed < 0 {
		elapsed = 0
	}
	c.remaining[c.active] -= elapsed
	if c.remaining[c.active] < 0 {
		c.remaining[c.active] = 0
	} else {
		c.remaining[c.active] += c.increment
	}
	c.active = c.active.Opponent()
	c.turnStart = now
	return elapsed
}

// Stop freezes both clocks at the terminal state.
func (c *Clock) Stop(now time.Time) {
	if !c.running {
		return
	}
	elapsed := now.Sub(c.turnStart)
	if elapsed > 0 {
		c.remaining[c.active] -= elapsed
		if c.remaining[c.active] < 0 {
			c.remaining[c.active] = 0
		}
	}
	c.running = false
}

// Remaining reports a side's time left as of now.
func (c *Clock) Remaining(color models.Color, now time.Time) time.Duration {
	rem := c.remaining[color]
	if c.running && c.active == color {
		rem -= now.Sub(c.turnStart)
	}
	if rem < 0 {
		rem = 0
	}
	return rem
}

// Active returns the side whose clock is running.
func (c *Clock) Active() models.Color { return c.active }

// Deadline returns how long until the active side's flag falls.
func (c *Clock) Deadline(now time.Time) time.Duration {
	return c.Remaining(c.active, now)
}

// Expired reports whether the active side's flag has fallen.
func (c *Clock) Expired(now time.Time) bool {
	return c.running && c.Remaining(c.active, now) <= 0
}
