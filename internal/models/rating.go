package models

import (
	"time"

	"github.com/google/uuid"
)

// RatingChange is one append-only rating history record: exactly one per
// player per completed rated game, strictly ordered by completion time.
// Each record is reproducible from Before, KFactor, Expected and Actual.
type RatingChange struct {
	PlayerID  uuid.UUID `json:"player_id"`
	SessionID uuid.UUID `json:"session_id"`

	Before int `json:"before"`
	After  int `json:"after"`

	KFactor  int     `json:"k_factor"`
	Expected float64 `json:"expected"`
	Actual   float64 `json:"actual"`

	// Provisional is the flag resulting after this game counts.
	Provisional bool `json:"provisional"`

	CompletedAt time.Time `json:"completed_at"`
}

// Delta is the signed rating movement.
func (rc RatingChange) Delta() int {
	return rc.After - rc.Before
}
