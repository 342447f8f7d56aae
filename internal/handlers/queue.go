// internal/handlers/queue.go
package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"stratum/internal/auth"
	"stratum/internal/core"
	"stratum/internal/database"
	"stratum/internal/matchmaking"
	"stratum/internal/models"
)

var validate = validator.New()

// QueueHandlers serves the matchmaking HTTP surface.
type QueueHandlers struct {
	Queue  *matchmaking.Queue
	logger *logrus.Logger
}

func NewQueueHandlers(queue *matchmaking.Queue, logger *logrus.Logger) *QueueHandlers {
	return &QueueHandlers{Queue: queue, logger: logger}
}

type enqueueRequest struct {
	InitialSec   int `json:"initial_sec" validate:"gt=0"`
	IncrementSec int `json:"increment_sec" validate:"gte=0"`
}

type enqueueResponse struct {
	TicketID uuid.UUID `json:"ticket_id"`
}

// Enqueue puts the authenticated player into the queue for one time control.
func (h *QueueHandlers) Enqueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	playerID, err := auth.PlayerIDFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req enqueueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, core.Validationf("invalid enqueue request: %v", err))
		return
	}

	player, err := database.GetPlayerByID(r.Context(), playerID)
	if err != nil {
		writeError(w, err)
		return
	}

	tc := models.TimeControl{InitialSec: req.InitialSec, IncrementSec: req.IncrementSec}
	ticketID, err := h.Queue.Enqueue(player, tc, h.recentColors(r, playerID))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, enqueueResponse{TicketID: ticketID})
}

// recentColors tallies the player's colors over their latest games so the
// queue can balance assignment. Failures degrade to an even history.
func (h *QueueHandlers) recentColors(r *http.Request, playerID uuid.UUID) matchmaking.ColorHistory {
	games, err := database.ListGamesForPlayer(r.Context(), playerID, 10)
	if err != nil {
		h.logger.WithField("error", err).Warn("color history lookup failed")
		return matchmaking.ColorHistory{}
	}
	var hist matchmaking.ColorHistory
	for _, g := range games {
		if g.WhiteID == playerID {
			hist.White++
		} else {
			hist.Black++
		}
	}
	return hist
}

type cancelRequest struct {
	TicketID uuid.UUID `json:"ticket_id" validate:"required"`
}

// Cancel withdraws a pending ticket.
func (h *QueueHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, err := auth.PlayerIDFromRequest(r); err != nil {
		writeError(w, err)
		return
	}
	var req cancelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, core.Validationf("invalid cancel request: %v", err))
		return
	}
	if err := h.Queue.Cancel(req.TicketID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// Status reports the live rank and wait estimate for a ticket, passed as the
// ticket_id query parameter.
func (h *QueueHandlers) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, err := auth.PlayerIDFromRequest(r); err != nil {
		writeError(w, err)
		return
	}
	ticketID, err := uuid.Parse(r.URL.Query().Get("ticket_id"))
	if err != nil {
		writeError(w, core.Validationf("invalid ticket_id"))
		return
	}
	status, err := h.Queue.Status(r.Context(), ticketID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
