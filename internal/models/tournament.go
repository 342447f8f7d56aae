package models

import (
	"time"

	"github.com/google/uuid"
)

// TournamentFormat selects the pairing policy for a tournament.
type TournamentFormat string

const (
	FormatSwiss             TournamentFormat = "swiss"
	FormatRoundRobin        TournamentFormat = "round_robin"
	FormatSingleElimination TournamentFormat = "single_elimination"
	FormatDoubleElimination TournamentFormat = "double_elimination"
	FormatArena             TournamentFormat = "arena"
)

func (f TournamentFormat) Valid() bool {
	switch f {
	case FormatSwiss, FormatRoundRobin, FormatSingleElimination, FormatDoubleElimination, FormatArena:
		return true
	}
	return false
}

// TournamentStatus is the tournament lifecycle state.
type TournamentStatus string

const (
	TournamentUpcoming           TournamentStatus = "upcoming"
	TournamentRegistrationOpen   TournamentStatus = "registration_open"
	TournamentRegistrationClosed TournamentStatus = "registration_closed"
	TournamentInProgress         TournamentStatus = "in_progress"
	TournamentCompleted          TournamentStatus = "completed"
	TournamentCancelled          TournamentStatus = "cancelled"
)

// Tournament is the top-level record.
type Tournament struct {
	ID     uuid.UUID        `json:"id"`
	Name   string           `json:"name"`
	Format TournamentFormat `json:"format"`
	Status TournamentStatus `json:"status"`

	TimeControl TimeControl `json:"time_control"`
	Rated       bool        `json:"rated"`

	RoundCount   int `json:"round_count"`
	CurrentRound int `json:"current_round"`

	CreatedAt time.Time `json:"created_at"`
}

// TournamentPlayer is a registered participant with running score and the
// tie-break fields computed once all rounds complete.
type TournamentPlayer struct {
	PlayerID uuid.UUID `json:"player_id"`
	Username string    `json:"username"`
	Rating   int       `json:"rating"`

	Score float64 `json:"score"`

	Buchholz        float64 `json:"buchholz"`
	SonnebornBerger float64 `json:"sonneborn_berger"`

	// Colors played so far, for swiss color balancing.
	WhiteGames int `json:"white_games"`
	BlackGames int `json:"black_games"`

	Withdrawn  bool `json:"withdrawn"`
	Eliminated bool `json:"eliminated"`

	// InLosersBracket marks a double-elimination participant who has lost
	// once and dropped to the losers bracket.
	InLosersBracket bool `json:"in_losers_bracket"`
}

// Pairing is one board of a round. A nil Black marks a bye.
type Pairing struct {
	White uuid.UUID  `json:"white"`
	Black *uuid.UUID `json:"black,omitempty"`

	SessionID   uuid.UUID   `json:"session_id,omitempty"`
	Result      Result      `json:"result"`
	Termination Termination `json:"termination,omitempty"`
}

// Bye reports whether this pairing is a bye for White.
func (p Pairing) Bye() bool { return p.Black == nil }

// Settled reports whether the board reached a terminal state. Aborted
// boards settle without a result, so Result alone cannot tell a finished
// board from a pending one.
func (p Pairing) Settled() bool { return p.Termination != "" }

// TournamentRound is a generated round and its boards.
type TournamentRound struct {
	Number   int       `json:"number"`
	Pairings []Pairing `json:"pairings"`
	Complete bool      `json:"complete"`
}
