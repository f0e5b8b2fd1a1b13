package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/wonny/quantlab/internal/history"
	"github.com/wonny/quantlab/pkg/logger"
)

// RunsHandler serves stored run history
type RunsHandler struct {
	store  history.Store
	logger *logger.Logger
}

// NewRunsHandler creates a new runs handler
func NewRunsHandler(store history.Store, log *logger.Logger) *RunsHandler {
	return &RunsHandler{store: store, logger: log}
}

// ListRuns returns recent runs without payloads
// GET /api/runs?kind=backtest&strategy=threshold&limit=20
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := history.Filter{
		Kind:     q.Get("kind"),
		Strategy: q.Get("strategy"),
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			filter.Limit = n
		}
	}

	runs, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list runs")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve runs")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    runs,
	})
}

// GetRun returns one run with its full payload
// GET /api/runs/{id}
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	rec, err := h.store.Get(r.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		respondError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("id", id).Error("Failed to get run")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve run")
		return
	}

	respondJSON(w, http.StatusOK, rec)
}
