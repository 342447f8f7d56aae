// internal/handlers/tournament.go
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"stratum/internal/auth"
	"stratum/internal/core"
	"stratum/internal/database"
	"stratum/internal/models"
	"stratum/internal/tournament"
)

// TournamentHandlers serves the tournament HTTP surface on top of the
// pairing engine.
type TournamentHandlers struct {
	Engine *tournament.Engine
	logger *logrus.Logger
}

func NewTournamentHandlers(engine *tournament.Engine, logger *logrus.Logger) *TournamentHandlers {
	return &TournamentHandlers{Engine: engine, logger: logger}
}

type createTournamentRequest struct {
	Name         string                  `json:"name" validate:"required,min=2,max=64"`
	Format       models.TournamentFormat `json:"format" validate:"required"`
	InitialSec   int                     `json:"initial_sec" validate:"gt=0"`
	IncrementSec int                     `json:"increment_sec" validate:"gte=0"`
	Rated        bool                    `json:"rated"`
	RoundCount   int                     `json:"round_count" validate:"gte=0"`
}

// Create serves POST /tournament/create.
func (h *TournamentHandlers) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req createTournamentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, core.Validationf("invalid tournament request: %v", err))
		return
	}
	tc := models.TimeControl{InitialSec: req.InitialSec, IncrementSec: req.IncrementSec}
	tmt, err := h.Engine.Create(req.Name, req.Format, tc, req.Rated, req.RoundCount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tmt)
}

// List serves GET /tournament/list.
func (h *TournamentHandlers) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.Engine.List())
}

// pathID extracts the trailing tournament id from a route like
// /tournament/{action}/{id}.
func pathID(r *http.Request, prefix string) (uuid.UUID, error) {
	idStr := strings.TrimPrefix(r.URL.Path, prefix)
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, core.Validationf("invalid tournament id")
	}
	return id, nil
}

// lifecycleAction builds a POST handler for one id-keyed engine transition.
func (h *TournamentHandlers) lifecycleAction(prefix string, action func(uuid.UUID) error, done string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id, err := pathID(r, prefix)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := action(id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": done})
	}
}

func (h *TournamentHandlers) OpenRegistration() http.HandlerFunc {
	return h.lifecycleAction("/tournament/open/", h.Engine.OpenRegistration, "registration_open")
}

func (h *TournamentHandlers) CloseRegistration() http.HandlerFunc {
	return h.lifecycleAction("/tournament/close/", h.Engine.CloseRegistration, "registration_closed")
}

func (h *TournamentHandlers) Start() http.HandlerFunc {
	return h.lifecycleAction("/tournament/start/", func(id uuid.UUID) error {
		if err := h.Engine.StartTournament(id); err != nil {
			return err
		}
		h.snapshotTournament(id)
		return nil
	}, "in_progress")
}

func (h *TournamentHandlers) FinishArena() http.HandlerFunc {
	return h.lifecycleAction("/tournament/finish/", func(id uuid.UUID) error {
		if err := h.Engine.FinishArena(id); err != nil {
			return err
		}
		h.snapshotTournament(id)
		return nil
	}, "completed")
}

func (h *TournamentHandlers) Cancel() http.HandlerFunc {
	return h.lifecycleAction("/tournament/cancel/", h.Engine.Cancel, "cancelled")
}

// Info serves GET /tournament/info/{id}. Live tournaments come from the
// engine; anything the engine no longer holds falls back to the snapshot in
// postgres.
func (h *TournamentHandlers) Info(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, err := pathID(r, "/tournament/info/")
	if err != nil {
		writeError(w, err)
		return
	}
	tmt, err := h.Engine.Get(id)
	if err == nil {
		writeJSON(w, http.StatusOK, tmt)
		return
	}
	if !core.IsNotFound(err) {
		writeError(w, err)
		return
	}
	archived, err := database.GetTournament(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, archived)
}

// Register serves POST /tournament/register/{id} for the authenticated
// player.
func (h *TournamentHandlers) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	playerID, err := auth.PlayerIDFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := pathID(r, "/tournament/register/")
	if err != nil {
		writeError(w, err)
		return
	}
	player, err := database.GetPlayerByID(r.Context(), playerID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.Engine.Register(id, player); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "registered"})
}

// Withdraw serves POST /tournament/withdraw/{id} for the authenticated
// player.
func (h *TournamentHandlers) Withdraw(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	playerID, err := auth.PlayerIDFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := pathID(r, "/tournament/withdraw/")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.Engine.Withdraw(id, playerID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "withdrawn"})
}

// NextRound serves POST /tournament/round/{id}: generates and launches the
// next round.
func (h *TournamentHandlers) NextRound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, err := pathID(r, "/tournament/round/")
	if err != nil {
		writeError(w, err)
		return
	}
	round, err := h.Engine.StartNextRound(id)
	if err != nil {
		writeError(w, err)
		return
	}
	h.snapshotTournament(id)
	writeJSON(w, http.StatusOK, round)
}

// Standings serves GET /tournament/standings/{id}.
func (h *TournamentHandlers) Standings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, err := pathID(r, "/tournament/standings/")
	if err != nil {
		writeError(w, err)
		return
	}
	standings, err := h.Engine.Standings(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, standings)
}

// Rounds serves GET /tournament/rounds/{id}.
func (h *TournamentHandlers) Rounds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, err := pathID(r, "/tournament/rounds/")
	if err != nil {
		writeError(w, err)
		return
	}
	rounds, err := h.Engine.Rounds(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rounds)
}

// snapshotTournament persists the header and standings after a state change.
// Failures are logged only; the in-memory engine remains authoritative.
func (h *TournamentHandlers) snapshotTournament(id uuid.UUID) {
	tmt, err := h.Engine.Get(id)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := database.UpsertTournament(ctx, tmt); err != nil {
		h.logger.WithField("error", err).Warn("tournament snapshot failed")
		return
	}
	standings, err := h.Engine.Standings(id)
	if err != nil {
		return
	}
	if err := database.UpsertStandings(ctx, id, standings); err != nil {
		h.logger.WithField("error", err).Warn("standings snapshot failed")
	}
}
