package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/quantlab/internal/api/handlers"
	"github.com/wonny/quantlab/pkg/logger"
)

// Handlers groups everything the router mounts
type Handlers struct {
	Health   *handlers.HealthHandler
	Backtest *handlers.BacktestHandler
	Optimize *handlers.OptimizeHandler
	Runs     *handlers.RunsHandler
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(h Handlers, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", h.Health.Health).Methods("GET")

	// API v1
	api := r.PathPrefix("/api").Subrouter()

	// Backtest / validation (synchronous)
	api.HandleFunc("/backtests", h.Backtest.RunBacktest).Methods("POST")
	api.HandleFunc("/walkforward", h.Backtest.RunWalkForward).Methods("POST")

	// Parameter sweeps (asynchronous)
	api.HandleFunc("/optimize", h.Optimize.Submit).Methods("POST")
	api.HandleFunc("/optimize/{id}", h.Optimize.Status).Methods("GET")
	api.HandleFunc("/optimize/{id}", h.Optimize.Cancel).Methods("DELETE")
	api.HandleFunc("/optimize/{id}/stream", h.Optimize.Stream).Methods("GET")

	// Run history
	api.HandleFunc("/runs", h.Runs.ListRuns).Methods("GET")
	api.HandleFunc("/runs/{id}", h.Runs.GetRun).Methods("GET")

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
