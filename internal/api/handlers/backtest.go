package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/wonny/quantlab/internal/backtest"
	"github.com/wonny/quantlab/internal/history"
	"github.com/wonny/quantlab/internal/walkforward"
	"github.com/wonny/quantlab/pkg/logger"
)

// BacktestHandler runs single backtests and walk-forward validations synchronously
// ⭐ SSOT: 백테스트/검증 API 핸들러는 이 구조체에서만
type BacktestHandler struct {
	engine    *backtest.Engine
	validator *walkforward.Validator
	store     history.Store
	logger    *logger.Logger
}

// NewBacktestHandler creates a new backtest handler
func NewBacktestHandler(engine *backtest.Engine, validator *walkforward.Validator, store history.Store, log *logger.Logger) *BacktestHandler {
	return &BacktestHandler{
		engine:    engine,
		validator: validator,
		store:     store,
		logger:    log,
	}
}

// RunBacktest runs one backtest and returns its report.
// A failed run still returns the report with status=failed.
// POST /api/backtests
func (h *BacktestHandler) RunBacktest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := decodeRunRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := body.resolve()
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	report, runErr := h.engine.Run(ctx, res.req)
	if report != nil {
		h.save(ctx, func() (*history.Record, error) { return history.FromReport(report, res.configHash) })
	}
	if runErr != nil {
		h.logger.WithError(runErr).WithField("strategy", res.req.Strategy).Warn("Backtest request failed")
		if report == nil {
			respondError(w, statusFor(runErr), runErr.Error())
			return
		}
		respondJSON(w, statusFor(runErr), report)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// RunWalkForward validates a configuration across train/test folds
// POST /api/walkforward
func (h *BacktestHandler) RunWalkForward(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := decodeRunRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := body.resolve()
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	result, err := h.validator.Validate(ctx, res.req, res.config.WalkForward, walkforward.Options{})
	if err != nil {
		h.logger.WithError(err).WithField("strategy", res.req.Strategy).Warn("Walk-forward request failed")
		respondError(w, statusFor(err), err.Error())
		return
	}

	id := uuid.New().String()
	h.save(ctx, func() (*history.Record, error) {
		return history.FromWalkForward(id, result, res.req.Params, res.configHash)
	})

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":     id,
		"result": result,
	})
}

// save persists a run; history failures never fail the request
func (h *BacktestHandler) save(ctx context.Context, build func() (*history.Record, error)) {
	if h.store == nil {
		return
	}
	rec, err := build()
	if err == nil {
		err = h.store.Save(ctx, rec)
	}
	if err != nil {
		h.logger.WithError(err).Warn("Failed to save run history")
	}
}
