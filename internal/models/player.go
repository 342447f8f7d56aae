package models

import "github.com/google/uuid"

// Player holds the rating-bearing identity for a participant. Rating fields
// are mutated only by the rating engine at game completion; players are never
// deleted, only deactivated.
type Player struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`

	Rating     int `json:"rating"`
	PeakRating int `json:"peak_rating"`

	GamesPlayed int `json:"games_played"`
	Wins        int `json:"wins"`
	Draws       int `json:"draws"`
	Losses      int `json:"losses"`

	// Provisional is true until the player has completed the configured
	// number of rated games (default 20).
	Provisional bool `json:"provisional"`

	Active bool `json:"active"`
}

// Color identifies a side in a session.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opponent returns the other side.
func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

func (c Color) Valid() bool {
	return c == White || c == Black
}
