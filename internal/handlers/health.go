// internal/handlers/health.go
package handlers

import (
	"context"
	"net/http"
	"time"

	"stratum/internal/cache"
	"stratum/internal/database"
)

// HealthzHandler reports readiness: both postgres and redis must answer a
// ping within two seconds.
func HealthzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"postgres": "ok", "redis": "ok"}
	healthy := true

	if database.DB == nil {
		status["postgres"] = "not connected"
		healthy = false
	} else if err := database.DB.Ping(ctx); err != nil {
		status["postgres"] = err.Error()
		healthy = false
	}

	if cache.Rdb == nil {
		status["redis"] = "not connected"
		healthy = false
	} else if err := cache.Rdb.Ping(ctx).Err(); err != nil {
		status["redis"] = err.Error()
		healthy = false
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}
