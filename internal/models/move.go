package models

import "time"

// MoveFlags carries the informational markers the rules oracle reports for a
// move. Check does not terminate the game by itself.
type MoveFlags struct {
	VertexControl bool `json:"vertex_control"`
	LoopTrigger   bool `json:"loop_trigger"`
	Reverser      bool `json:"reverser"`
	Check         bool `json:"check"`
}

// MoveRequest is what a client submits: which card moves where. Everything
// else (capture, flags, notation, resulting board) comes from the oracle.
type MoveRequest struct {
	Card string `json:"card" validate:"required"`
	From string `json:"from" validate:"required"`
	To   string `json:"to" validate:"required"`
}

// Move is one immutable ledger entry. Turn numbers are monotonic per session
// and alternate color strictly, white first.
type Move struct {
	TurnNumber int   `json:"turn_number"`
	Color      Color `json:"color"`

	Card string `json:"card"`
	From string `json:"from"`
	To   string `json:"to"`

	// Captured is the card removed from the board by this move, empty if none.
	Captured string    `json:"captured,omitempty"`
	Flags    MoveFlags `json:"flags"`

	// Notation is the canonical PSN encoding of the move.
	Notation string `json:"notation"`

	ThinkTime time.Duration `json:"think_time"`

	// Board is the position snapshot after the move, as encoded by the oracle.
	Board string `json:"board"`

	PlayedAt time.Time `json:"played_at"`
}
