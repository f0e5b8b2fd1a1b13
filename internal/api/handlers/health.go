package handlers

import (
	"net/http"

	"github.com/wonny/quantlab/internal/strategy"
	"github.com/wonny/quantlab/pkg/database"
	"github.com/wonny/quantlab/pkg/redis"
)

// HealthHandler reports dependency status
type HealthHandler struct {
	db     *database.DB // nil when no database is configured
	redis  *redis.Client
	source string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *database.DB, rc *redis.Client, source string) *HealthHandler {
	return &HealthHandler{db: db, redis: rc, source: source}
}

// Health returns server health status
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":      "ok",
		"service":     "quantlab-api",
		"data_source": h.source,
		"strategies":  strategy.Variants(),
		"redis":       h.redis != nil && h.redis.Enabled(),
	}

	status := http.StatusOK
	if h.db != nil {
		dbHealth := h.db.HealthCheck(r.Context())
		resp["database"] = dbHealth
		if !dbHealth.Healthy {
			resp["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	respondJSON(w, status, resp)
}
