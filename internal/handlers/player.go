// internal/handlers/player.go
package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"stratum/internal/core"
	"stratum/internal/database"
	"stratum/internal/models"
)

type createPlayerRequest struct {
	Username string `json:"username" validate:"required,min=2,max=32"`
	Rating   int    `json:"rating" validate:"gte=0"`
}

// CreatePlayerHandler registers a new player profile. The rating defaults to
// the configured initial rating when omitted.
func CreatePlayerHandler(initialRating int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req createPlayerRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, core.Validationf("invalid player request: %v", err))
			return
		}

		if _, err := database.GetPlayerByUsername(r.Context(), req.Username); err == nil {
			writeError(w, core.Conflictf("username %q is taken", req.Username))
			return
		} else if !core.IsNotFound(err) {
			writeError(w, err)
			return
		}

		rating := req.Rating
		if rating == 0 {
			rating = initialRating
		}
		player := &models.Player{
			Username:    req.Username,
			Rating:      rating,
			PeakRating:  rating,
			Provisional: true,
			Active:      true,
		}
		if err := database.CreatePlayer(r.Context(), player); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, player)
	}
}

// GetPlayerHandler serves GET /player/{id}.
func GetPlayerHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	idStr := strings.TrimPrefix(r.URL.Path, "/player/")
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, core.Validationf("invalid player id"))
		return
	}
	player, err := database.GetPlayerByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, player)
}

// PlayerRatingsHandler serves GET /player/ratings/{id}: the player's rating
// history in completion order.
func PlayerRatingsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	idStr := strings.TrimPrefix(r.URL.Path, "/player/ratings/")
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, core.Validationf("invalid player id"))
		return
	}
	changes, err := database.ListRatingChangesForPlayer(r.Context(), id, 50)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, changes)
}

// PlayerGamesHandler serves GET /player/games/{id}: the player's most recent
// archived games.
func PlayerGamesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	idStr := strings.TrimPrefix(r.URL.Path, "/player/games/")
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, core.Validationf("invalid player id"))
		return
	}
	games, err := database.ListGamesForPlayer(r.Context(), id, 20)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, games)
}
