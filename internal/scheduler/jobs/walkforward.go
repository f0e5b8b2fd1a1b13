package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/quantlab/internal/backtest"
	"github.com/wonny/quantlab/internal/history"
	"github.com/wonny/quantlab/internal/metrics"
	"github.com/wonny/quantlab/internal/strategyconfig"
	"github.com/wonny/quantlab/internal/walkforward"
	"github.com/wonny/quantlab/pkg/logger"
)

// DefaultWalkForwardSchedule is weekdays at 18:30, after the daily close is loaded
const DefaultWalkForwardSchedule = "0 30 18 * * 1-5"

// WalkForwardJob re-validates a strategy file over all available history
// and stores the result in run history
type WalkForwardJob struct {
	validator    *walkforward.Validator
	store        history.Store
	strategyFile string
	symbols      []string
	schedule     string
	logger       *logger.Logger
}

// NewWalkForwardJob creates a new scheduled walk-forward validation.
// The strategy file is re-read on every run so edits apply without a restart.
func NewWalkForwardJob(validator *walkforward.Validator, store history.Store, strategyFile string, symbols []string, schedule string, log *logger.Logger) *WalkForwardJob {
	if schedule == "" {
		schedule = DefaultWalkForwardSchedule
	}
	return &WalkForwardJob{
		validator:    validator,
		store:        store,
		strategyFile: strategyFile,
		symbols:      symbols,
		schedule:     schedule,
		logger:       log.WithComponent("jobs.walkforward"),
	}
}

// Name returns the job name
func (j *WalkForwardJob) Name() string {
	return "walkforward_validation"
}

// Schedule returns the cron schedule
func (j *WalkForwardJob) Schedule() string {
	return j.schedule
}

// Timeout bounds one attempt
func (j *WalkForwardJob) Timeout() time.Duration {
	return 30 * time.Minute
}

// Run executes the validation
func (j *WalkForwardJob) Run(ctx context.Context) error {
	cfg, raw, err := strategyconfig.Load(j.strategyFile)
	if err != nil {
		return err
	}
	snapshot, err := strategyconfig.NewRunSnapshot(cfg, raw)
	if err != nil {
		return fmt.Errorf("snapshot strategy config: %w", err)
	}
	if len(j.symbols) == 0 {
		return fmt.Errorf("no symbols configured for %s", j.Name())
	}

	req := backtest.Request{
		Strategy:  cfg.Strategy.Variant,
		Symbols:   j.symbols,
		Params:    cfg.Params,
		Benchmark: cfg.Benchmark,
	}

	j.logger.WithFields(map[string]interface{}{
		"strategy_id": snapshot.StrategyID,
		"variant":     snapshot.Variant,
		"config_hash": snapshot.ConfigHash[:12],
		"symbols":     len(j.symbols),
	}).Info("Starting scheduled walk-forward validation")

	result, err := j.validator.Validate(ctx, req, cfg.WalkForward, walkforward.Options{})
	if err != nil {
		return fmt.Errorf("walk-forward %s: %w", snapshot.StrategyID, err)
	}

	id := uuid.New().String()
	rec, err := history.FromWalkForward(id, result, cfg.Params, snapshot.ConfigHash)
	if err != nil {
		return err
	}
	if j.store != nil {
		if err := j.store.Save(ctx, rec); err != nil {
			return fmt.Errorf("save walk-forward history: %w", err)
		}
	}

	fields := map[string]interface{}{
		"id":       id,
		"folds":    len(result.Folds),
		"failures": len(result.Failures),
		"risk":     rec.Summary.Risk,
	}
	if risk, ok := result.OverfittingRisk.Get(); ok && risk.Level == metrics.RiskHigh {
		j.logger.WithFields(fields).Warn("Walk-forward flagged high overfitting risk")
		return nil
	}
	j.logger.WithFields(fields).Info("Walk-forward validation completed")
	return nil
}
