package walkforward

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/quantlab/internal/backtest"
	"github.com/wonny/quantlab/internal/contracts"
	"github.com/wonny/quantlab/internal/metrics"
	"github.com/wonny/quantlab/internal/strategyconfig"
	"github.com/wonny/quantlab/pkg/logger"
)

// FoldResult is one evaluated fold
type FoldResult struct {
	Fold
	TrainRunID   string              `json:"train_run_id"`
	TestRunID    string              `json:"test_run_id"`
	TrainMetrics metrics.Performance `json:"train_metrics"`
	TestMetrics  metrics.Performance `json:"test_metrics"`
	Degradation  metrics.Degradation `json:"degradation"`
	Notes        []string            `json:"notes"`
}

// FoldFailure is a fold excluded from aggregation
type FoldFailure struct {
	Index int    `json:"index"`
	Phase string `json:"phase"` // train | test
	Error string `json:"error"`
}

// Result is the walk-forward outcome across all folds
type Result struct {
	Mode            string                                  `json:"mode"`
	Strategy        string                                  `json:"strategy"`
	WarmupDays      int                                     `json:"warmup_days"`
	Folds           []FoldResult                            `json:"folds"`
	Failures        []FoldFailure                           `json:"failures"`
	MeanDegradation contracts.Optional[float64]             `json:"mean_degradation"`
	Consistency     contracts.Optional[float64]             `json:"consistency"`
	OverfittingRisk contracts.Optional[metrics.OverfitRisk] `json:"overfitting_risk"`
	Notes           []string                                `json:"notes"`
	Duration        time.Duration                           `json:"duration_ns"`
}

// Validator runs walk-forward folds sequentially through the backtest engine
type Validator struct {
	engine     *backtest.Engine
	thresholds metrics.OverfitThresholds
	logger     *logger.Logger
}

// NewValidator creates a validator with the default overfitting thresholds
func NewValidator(engine *backtest.Engine, log *logger.Logger) *Validator {
	return &Validator{
		engine:     engine,
		thresholds: metrics.DefaultOverfitThresholds(),
		logger:     log.WithComponent("walkforward"),
	}
}

// WithThresholds overrides the overfitting thresholds
func (v *Validator) WithThresholds(th metrics.OverfitThresholds) *Validator {
	v.thresholds = th
	return v
}

// Options are optional aggregation inputs
type Options struct {
	// Sensitivity of the objective across neighbouring parameters
	// (optimizer output). nil leaves it out of the risk score.
	Sensitivity *float64
}

// Validate loads the dataset once for req's range and runs the folds
func (v *Validator) Validate(ctx context.Context, req backtest.Request, cfg strategyconfig.WalkForward, opts Options) (*Result, error) {
	symbols := append([]string(nil), req.Symbols...)
	if req.Benchmark != "" {
		symbols = append(symbols, req.Benchmark)
	}
	ds, err := v.engine.Load(ctx, symbols, req.Start, req.End)
	if err != nil {
		return nil, err
	}
	return v.ValidateOnDataset(ctx, ds, req, cfg, opts)
}

// ValidateOnDataset plans folds over the dataset's trading calendar and
// runs each fold's train and test windows with identical params.
// A failing fold is recorded and excluded; planning errors are fatal.
func (v *Validator) ValidateOnDataset(ctx context.Context, ds *contracts.Dataset, req backtest.Request, cfg strategyconfig.WalkForward, opts Options) (*Result, error) {
	started := time.Now()

	dates := calendar(ds, req)
	folds, err := PlanFolds(dates, cfg, req.Params.WarmupDays)
	if err != nil {
		return nil, err
	}

	v.logger.WithFields(map[string]interface{}{
		"strategy": req.Strategy,
		"mode":     cfg.Mode,
		"folds":    len(folds),
		"warmup":   req.Params.WarmupDays,
	}).Info("Walk-forward started")

	result := &Result{
		Mode:       cfg.Mode,
		Strategy:   req.Strategy,
		WarmupDays: req.Params.WarmupDays,
		Notes:      []string{},
	}

	for _, fold := range folds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fr, failure := v.runFold(ctx, ds, req, fold)
		if failure != nil {
			result.Failures = append(result.Failures, *failure)
			result.Notes = append(result.Notes,
				fmt.Sprintf("fold %d excluded (%s): %s", failure.Index, failure.Phase, failure.Error))
			continue
		}
		result.Folds = append(result.Folds, *fr)
	}

	v.aggregate(result, opts)
	result.Duration = time.Since(started)

	v.logger.WithFields(map[string]interface{}{
		"strategy": req.Strategy,
		"folds":    len(result.Folds),
		"failed":   len(result.Failures),
		"duration": result.Duration.Seconds(),
	}).Info("Walk-forward completed")
	return result, nil
}

func (v *Validator) runFold(ctx context.Context, ds *contracts.Dataset, req backtest.Request, fold Fold) (*FoldResult, *FoldFailure) {
	trainReq := req
	trainReq.Start = fold.EffectiveTrainStart
	trainReq.End = fold.Train.End
	trainReq.HistoryStart = fold.Train.Start

	train, err := v.engine.RunOnDataset(ctx, ds, trainReq)
	if err != nil {
		return nil, &FoldFailure{Index: fold.Index, Phase: "train", Error: err.Error()}
	}

	testReq := req
	testReq.Start = fold.Test.Start
	testReq.End = fold.Test.End
	testReq.HistoryStart = time.Time{}

	test, err := v.engine.RunOnDataset(ctx, ds, testReq)
	if err != nil {
		return nil, &FoldFailure{Index: fold.Index, Phase: "test", Error: err.Error()}
	}

	deg := metrics.FoldDegradation(train.Performance, test.Performance, v.thresholds.NearZero)

	v.logger.WithFields(map[string]interface{}{
		"fold":         fold.Index,
		"train_sharpe": fmt.Sprintf("%.2f", train.Performance.Sharpe),
		"test_sharpe":  fmt.Sprintf("%.2f", test.Performance.Sharpe),
		"degradation":  fmt.Sprintf("%.2f", deg.Value),
	}).Debug("Fold completed")

	notes := append(append([]string(nil), train.Notes...), test.Notes...)
	return &FoldResult{
		Fold:         fold,
		TrainRunID:   train.RunID,
		TestRunID:    test.RunID,
		TrainMetrics: train.Performance,
		TestMetrics:  test.Performance,
		Degradation:  deg,
		Notes:        notes,
	}, nil
}

func (v *Validator) aggregate(result *Result, opts Options) {
	inputs := make([]metrics.FoldInput, len(result.Folds))
	for i, f := range result.Folds {
		inputs[i] = metrics.FoldInput{Index: f.Index, Train: f.TrainMetrics, Test: f.TestMetrics}
	}

	result.OverfittingRisk = metrics.AssessOverfitting(inputs, opts.Sensitivity, v.thresholds)
	risk, ok := result.OverfittingRisk.Get()
	if !ok {
		reason := result.OverfittingRisk.Reason()
		result.MeanDegradation = contracts.NotComputed[float64](reason)
		result.Consistency = contracts.NotComputed[float64](reason)
		return
	}
	result.MeanDegradation = contracts.Computed(risk.MeanDegradation)
	result.Consistency = risk.Consistency
}

// calendar is the union of traded-symbol dates within the requested range
func calendar(ds *contracts.Dataset, req backtest.Request) []time.Time {
	symbols := req.Symbols
	if len(symbols) == 0 {
		for _, s := range ds.Symbols() {
			if s != req.Benchmark {
				symbols = append(symbols, s)
			}
		}
	}

	var out []time.Time
	for _, d := range ds.TradingDates(symbols) {
		if !req.Start.IsZero() && d.Before(req.Start) {
			continue
		}
		if !req.End.IsZero() && d.After(req.End) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
