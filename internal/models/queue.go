package models

import (
	"time"

	"github.com/google/uuid"
)

// QueueTicket is a player's pending matchmaking entry. Created on enqueue and
// destroyed exactly once, on match or explicit cancel. A player holds at most
// one active ticket per time control.
type QueueTicket struct {
	ID       uuid.UUID `json:"id"`
	PlayerID uuid.UUID `json:"player_id"`

	Username string `json:"username"`

	// Rating is a snapshot taken at enqueue time; the band check uses it
	// rather than a live lookup.
	Rating int `json:"rating"`

	TimeControl TimeControl `json:"time_control"`
	EnqueuedAt  time.Time   `json:"enqueued_at"`

	// Recent color tallies, used to balance color assignment on match.
	RecentWhite int `json:"recent_white"`
	RecentBlack int `json:"recent_black"`
}

// QueueStatus is what a waiting client polls for: live bucket rank and an
// estimated wait derived from historical samples for the rating band.
type QueueStatus struct {
	TicketID      uuid.UUID     `json:"ticket_id"`
	Position      int           `json:"position"`
	BucketSize    int           `json:"bucket_size"`
	Waited        time.Duration `json:"waited"`
	EstimatedWait time.Duration `json:"estimated_wait"`
}
