// internal/game/events.go
package game

import (
	"time"

	"github.com/google/uuid"

	"stratum/internal/models"
)

// EventType enumerates the outbound realtime events. Each event is a tagged
// variant of the single Event struct; unused fields are omitted on the wire.
type EventType string

const (
	EventGameJoined         EventType = "game:joined"
	EventPlayerJoined       EventType = "player:joined"
	EventMoveMade           EventType = "move:made"
	EventGameState          EventType = "game:state"
	EventGameOver           EventType = "game:over"
	EventDrawOffered        EventType = "draw:offered"
	EventDrawDeclined       EventType = "draw:declined"
	EventPlayerDisconnected EventType = "player:disconnected"
	EventPlayerReconnected  EventType = "player:reconnected"
	EventError              EventType = "error"
)

// Event is the broadcast envelope for a session room.
type Event struct {
	Type   EventType `json:"type"`
	RoomID uuid.UUID `json:"roomId"`

	PlayerID *uuid.UUID `json:"playerId,omitempty"`

	Move     *models.Move `json:"move,omitempty"`
	Snapshot *Snapshot    `json:"state,omitempty"`

	Result      models.Result      `json:"result,omitempty"`
	Termination models.Termination `json:"reason,omitempty"`
	Winner      *uuid.UUID         `json:"winner,omitempty"`

	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is the session view sent on game:state requests and reconnects.
type Snapshot struct {
	RoomID      uuid.UUID            `json:"roomId"`
	Status      models.SessionStatus `json:"status"`
	Result      models.Result        `json:"result"`
	Termination models.Termination   `json:"reason,omitempty"`

	White models.Player `json:"white"`
	Black models.Player `json:"black"`

	TimeControl models.TimeControl `json:"timeControl"`
	Rated       bool               `json:"rated"`

	TurnNumber int           `json:"turnNumber"`
	ToMove     models.Color  `json:"toMove"`
	Board      string        `json:"board"`
	Moves      []models.Move `json:"moves"`

	WhiteClockMs int64 `json:"whiteClockMs"`
	BlackClockMs int64 `json:"blackClockMs"`

	DrawOfferBy *models.Color `json:"drawOfferBy,omitempty"`
}
