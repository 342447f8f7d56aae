package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a game session. Sessions start
// directly in Active; pairing already happened.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusAborted   SessionStatus = "aborted"
)

// Terminal reports whether no further transitions are accepted.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusAborted
}

// Result is the outcome of a session.
type Result string

const (
	ResultWhiteWin     Result = "white_win"
	ResultBlackWin     Result = "black_win"
	ResultDraw         Result = "draw"
	ResultUnterminated Result = "unterminated"
)

// WinFor maps a winning color to its result.
func WinFor(c Color) Result {
	if c == White {
		return ResultWhiteWin
	}
	return ResultBlackWin
}

// Winner returns the winning color, or false for draws and unterminated games.
func (r Result) Winner() (Color, bool) {
	switch r {
	case ResultWhiteWin:
		return White, true
	case ResultBlackWin:
		return Black, true
	}
	return "", false
}

// Termination records why a session ended. The board-driven reasons mirror
// the fixed evaluation priority in the move ledger.
type Termination string

const (
	TerminationVertexControl Termination = "vertex_control"
	TerminationSaturation    Termination = "saturation"
	TerminationExhaustion    Termination = "exhaustion"
	TerminationReverser      Termination = "reverser"
	TerminationResignation   Termination = "resignation"
	TerminationTime          Termination = "time"
	TerminationAbandonment   Termination = "abandonment"
	TerminationAgreedDraw    Termination = "agreed_draw"
	TerminationAborted       Termination = "aborted"
)

// TimeControl is the per-side clock policy for a session, in seconds.
type TimeControl struct {
	InitialSec   int `json:"initial_sec" yaml:"initial_sec" validate:"gt=0"`
	IncrementSec int `json:"increment_sec" yaml:"increment_sec" validate:"gte=0"`
}

// Key is the bucket identifier, e.g. "300+3".
func (tc TimeControl) Key() string {
	return fmt.Sprintf("%d+%d", tc.InitialSec, tc.IncrementSec)
}

func (tc TimeControl) Initial() time.Duration {
	return time.Duration(tc.InitialSec) * time.Second
}

func (tc TimeControl) Increment() time.Duration {
	return time.Duration(tc.IncrementSec) * time.Second
}

// CompletedGame is the persistence record a terminal session produces. All
// writes derived from it are idempotent upserts keyed by SessionID, so a
// retry after a storage hiccup cannot duplicate rows.
type CompletedGame struct {
	SessionID   uuid.UUID   `json:"session_id"`
	WhiteID     uuid.UUID   `json:"white_id"`
	BlackID     uuid.UUID   `json:"black_id"`
	TimeControl TimeControl `json:"time_control"`
	Rated       bool        `json:"rated"`

	Status      SessionStatus `json:"status"`
	Result      Result        `json:"result"`
	Termination Termination   `json:"termination"`

	Moves []Move `json:"moves"`

	// RatingChanges holds 0-2 entries; empty for unrated or aborted games.
	RatingChanges []RatingChange `json:"rating_changes"`

	TournamentID *uuid.UUID `json:"tournament_id,omitempty"`
	RoundNumber  int        `json:"round_number,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}
