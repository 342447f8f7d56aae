// internal/handlers/session.go
package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"stratum/internal/auth"
	"stratum/internal/core"
	"stratum/internal/database"
)

// SessionStateHandler serves GET /session/{id}: a live snapshot when the
// session is active, or the archived record once it has been persisted.
func SessionStateHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		idStr := strings.TrimPrefix(r.URL.Path, "/session/")
		id, err := uuid.Parse(idStr)
		if err != nil {
			writeError(w, core.Validationf("invalid session id"))
			return
		}

		if sess, err := gs.Registry.Get(id); err == nil {
			writeJSON(w, http.StatusOK, sess.Snapshot())
			return
		}

		rec, err := database.GetCompletedGame(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// SessionAbortHandler serves POST /session/abort/{id}: a seated player may
// abort before the first move.
func SessionAbortHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		playerID, err := auth.PlayerIDFromRequest(r)
		if err != nil {
			writeError(w, err)
			return
		}
		idStr := strings.TrimPrefix(r.URL.Path, "/session/abort/")
		id, err := uuid.Parse(idStr)
		if err != nil {
			writeError(w, core.Validationf("invalid session id"))
			return
		}
		sess, err := gs.Registry.Get(id)
		if err != nil {
			writeError(w, err)
			return
		}
		if _, seated := sess.ColorOf(playerID); !seated {
			writeError(w, core.Validationf("player %s is not seated in session %s", playerID, id))
			return
		}
		if err := sess.Abort(); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "aborted"})
	}
}

// SessionsForPlayerHandler serves GET /session/active: the caller's live
// sessions, for reconnection after a client restart.
func SessionsForPlayerHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		playerID, err := auth.PlayerIDFromRequest(r)
		if err != nil {
			writeError(w, err)
			return
		}
		sessions := gs.Registry.ForPlayer(playerID)
		ids := make([]uuid.UUID, 0, len(sessions))
		for _, s := range sessions {
			ids = append(ids, s.ID)
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"session_ids": ids})
	}
}
