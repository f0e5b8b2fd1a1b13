package walkforward

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/quantlab/internal/backtest"
	"github.com/wonny/quantlab/internal/contracts"
	"github.com/wonny/quantlab/internal/strategy"
	"github.com/wonny/quantlab/internal/strategyconfig"
	"github.com/wonny/quantlab/pkg/logger"
)

var jan1 = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

func dailyDates(n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = jan1.AddDate(0, 0, i)
	}
	return out
}

// cyclingSeries alternates 10 bullish and 10 bearish days so the
// threshold strategy trades throughout the year
func cyclingSeries(t *testing.T, symbol string, n int) *contracts.Series {
	t.Helper()
	bars := make([]contracts.Bar, n)
	maShort := make([]float64, n)
	maLong := make([]float64, n)
	rsi := make([]float64, n)
	for i := 0; i < n; i++ {
		c := 100 + 5*math.Sin(float64(i)/7) + 0.05*float64(i)
		bars[i] = contracts.Bar{Date: jan1.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 1000}
		maLong[i] = c
		if (i/10)%2 == 0 {
			maShort[i] = c * 1.05
			rsi[i] = 80
		} else {
			maShort[i] = c
			rsi[i] = 20
		}
	}
	s, err := contracts.NewSeries(symbol, bars, map[string][]float64{
		strategy.ColumnMAShort: maShort,
		strategy.ColumnMALong:  maLong,
		strategy.ColumnRSI:     rsi,
	})
	require.NoError(t, err)
	return s
}

func yearDataset(t *testing.T) *contracts.Dataset {
	t.Helper()
	ds, err := contracts.NewDataset(cyclingSeries(t, "005930", 365))
	require.NoError(t, err)
	return ds
}

func baseRequest() backtest.Request {
	p := strategyconfig.Defaults()
	p.MinBars = 20
	return backtest.Request{Strategy: "threshold", Symbols: []string{"005930"}, Params: p}
}

func TestPlanFolds_Split(t *testing.T) {
	dates := dailyDates(10)
	cfg := strategyconfig.WalkForward{Mode: ModeSplit, SplitRatio: 0.7}

	folds, err := PlanFolds(dates, cfg, 0)
	require.NoError(t, err)
	require.Len(t, folds, 1)

	f := folds[0]
	assert.Equal(t, Window{Start: dates[0], End: dates[6]}, f.Train)
	assert.Equal(t, Window{Start: dates[7], End: dates[9]}, f.Test)
	assert.True(t, f.EffectiveTrainStart.Equal(f.Train.Start))
}

func TestPlanFolds_Rolling(t *testing.T) {
	dates := dailyDates(365)
	cfg := strategyconfig.WalkForward{Mode: ModeRolling, TrainMonths: 6, TestMonths: 3, StepMonths: 3}

	folds, err := PlanFolds(dates, cfg, 0)
	require.NoError(t, err)
	require.Len(t, folds, 2)

	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), folds[0].Train.Start)
	assert.Equal(t, time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC), folds[0].Train.End)
	assert.Equal(t, time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC), folds[0].Test.Start)
	assert.Equal(t, time.Date(2023, 9, 30, 0, 0, 0, 0, time.UTC), folds[0].Test.End)

	assert.Equal(t, time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC), folds[1].Train.Start)
	assert.Equal(t, time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), folds[1].Test.End)
	assert.Equal(t, 1, folds[1].Index)
}

func TestPlanFolds_WarmupShiftsTrainOnly(t *testing.T) {
	dates := dailyDates(365)
	cfg := strategyconfig.WalkForward{Mode: ModeRolling, TrainMonths: 6, TestMonths: 3, StepMonths: 3}

	plain, err := PlanFolds(dates, cfg, 0)
	require.NoError(t, err)
	warm, err := PlanFolds(dates, cfg, 20)
	require.NoError(t, err)
	require.Len(t, warm, len(plain))

	for i := range plain {
		assert.Equal(t, plain[i].Train, warm[i].Train, "nominal window unchanged")
		assert.Equal(t, plain[i].Test, warm[i].Test, "test window never shifts")
		assert.Equal(t, plain[i].Train.Start.AddDate(0, 0, 20), warm[i].EffectiveTrainStart)
		assert.Equal(t, 20, warm[i].WarmupDays)
	}
}

func TestPlanFolds_WarmupCountsTradingDays(t *testing.T) {
	// weekdays only: 5 trading days of warm-up span a weekend
	var dates []time.Time
	for d := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC); len(dates) < 30; d = d.AddDate(0, 0, 1) {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			dates = append(dates, d)
		}
	}

	folds, err := PlanFolds(dates, strategyconfig.WalkForward{Mode: ModeSplit, SplitRatio: 0.5}, 5)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), folds[0].EffectiveTrainStart)
}

func TestPlanFolds_WarmupBeyondHistory(t *testing.T) {
	dates := dailyDates(100)

	tests := []struct {
		name string
		cfg  strategyconfig.WalkForward
	}{
		{"split", strategyconfig.WalkForward{Mode: ModeSplit, SplitRatio: 0.7}},
		{"rolling", strategyconfig.WalkForward{Mode: ModeRolling, TrainMonths: 1, TestMonths: 1, StepMonths: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PlanFolds(dates, tt.cfg, 250)
			var insufficient *backtest.DataInsufficientError
			require.True(t, errors.As(err, &insufficient), "got %v", err)
			assert.Contains(t, insufficient.Detail, "warmup_days 250")
		})
	}
}

func TestPlanFolds_Invalid(t *testing.T) {
	dates := dailyDates(30)

	_, err := PlanFolds(dates, strategyconfig.WalkForward{Mode: "expanding"}, 0)
	assert.Error(t, err)

	_, err = PlanFolds(dates, strategyconfig.WalkForward{Mode: ModeSplit, SplitRatio: 1.2}, 0)
	assert.Error(t, err)

	_, err = PlanFolds(dates, strategyconfig.WalkForward{Mode: ModeRolling, TrainMonths: 12, TestMonths: 3, StepMonths: 3}, 0)
	var insufficient *backtest.DataInsufficientError
	assert.True(t, errors.As(err, &insufficient))

	_, err = PlanFolds(dates[:1], strategyconfig.WalkForward{Mode: ModeSplit, SplitRatio: 0.5}, 0)
	assert.True(t, errors.As(err, &insufficient))
}

func TestValidator_Rolling(t *testing.T) {
	v := NewValidator(backtest.NewEngine(nil, logger.Nop()), logger.Nop())
	cfg := strategyconfig.WalkForward{Mode: ModeRolling, TrainMonths: 6, TestMonths: 3, StepMonths: 3}

	result, err := v.ValidateOnDataset(context.Background(), yearDataset(t), baseRequest(), cfg, Options{})
	require.NoError(t, err)

	require.Len(t, result.Folds, 2)
	assert.Empty(t, result.Failures)
	for _, f := range result.Folds {
		assert.GreaterOrEqual(t, f.Degradation.Value, 0.0)
		assert.LessOrEqual(t, f.Degradation.Value, 1.0)
		assert.NotEqual(t, f.TrainRunID, f.TestRunID)
	}

	risk, ok := result.OverfittingRisk.Get()
	require.True(t, ok)
	assert.Equal(t, 2, risk.FoldCount)
	assert.Contains(t, risk.MissingInputs, "sensitivity")

	c, ok := result.Consistency.Get()
	require.True(t, ok)
	assert.GreaterOrEqual(t, c, 0.0)

	mean, ok := result.MeanDegradation.Get()
	require.True(t, ok)
	assert.InDelta(t, (result.Folds[0].Degradation.Value+result.Folds[1].Degradation.Value)/2, mean, 1e-12)
}

func TestValidator_SplitHasNoConsistency(t *testing.T) {
	v := NewValidator(backtest.NewEngine(nil, logger.Nop()), logger.Nop())
	cfg := strategyconfig.WalkForward{Mode: ModeSplit, SplitRatio: 0.7}
	sensitivity := 0.1

	result, err := v.ValidateOnDataset(context.Background(), yearDataset(t), baseRequest(), cfg, Options{Sensitivity: &sensitivity})
	require.NoError(t, err)

	require.Len(t, result.Folds, 1)
	assert.False(t, result.Consistency.IsComputed())

	risk, ok := result.OverfittingRisk.Get()
	require.True(t, ok)
	s, ok := risk.Sensitivity.Get()
	require.True(t, ok)
	assert.Equal(t, 0.1, s)
}

func TestValidator_ZeroWarmupMatchesPlainRuns(t *testing.T) {
	ds := yearDataset(t)
	engine := backtest.NewEngine(nil, logger.Nop())
	v := NewValidator(engine, logger.Nop())
	cfg := strategyconfig.WalkForward{Mode: ModeSplit, SplitRatio: 0.7}

	result, err := v.ValidateOnDataset(context.Background(), ds, baseRequest(), cfg, Options{})
	require.NoError(t, err)
	require.Len(t, result.Folds, 1)
	fold := result.Folds[0]

	plain := baseRequest()
	plain.Start = fold.Train.Start
	plain.End = fold.Train.End
	report, err := engine.RunOnDataset(context.Background(), ds, plain)
	require.NoError(t, err)

	assert.Equal(t, report.Performance, fold.TrainMetrics)
}

func TestValidator_WarmupExcludesLeadingDays(t *testing.T) {
	ds := yearDataset(t)
	req := baseRequest()
	req.Params.WarmupDays = 15
	v := NewValidator(backtest.NewEngine(nil, logger.Nop()), logger.Nop())

	result, err := v.ValidateOnDataset(context.Background(), ds, req, strategyconfig.WalkForward{Mode: ModeSplit, SplitRatio: 0.7}, Options{})
	require.NoError(t, err)
	require.Len(t, result.Folds, 1)

	fold := result.Folds[0]
	assert.Equal(t, jan1.AddDate(0, 0, 15), fold.EffectiveTrainStart)
	assert.Equal(t, fold.EffectiveTrainStart, fold.TrainMetrics.StartDate)
}

func TestValidator_WarmupTooLong(t *testing.T) {
	req := baseRequest()
	req.Params.WarmupDays = 400
	v := NewValidator(backtest.NewEngine(nil, logger.Nop()), logger.Nop())

	_, err := v.ValidateOnDataset(context.Background(), yearDataset(t), req, strategyconfig.WalkForward{Mode: ModeSplit, SplitRatio: 0.7}, Options{})
	var insufficient *backtest.DataInsufficientError
	assert.True(t, errors.As(err, &insufficient))
}

func TestValidator_FailedFoldsAreIsolated(t *testing.T) {
	req := baseRequest()
	req.Params.MinBars = 100 // train windows (~181 days) pass, test windows (~92 days) fail
	v := NewValidator(backtest.NewEngine(nil, logger.Nop()), logger.Nop())
	cfg := strategyconfig.WalkForward{Mode: ModeRolling, TrainMonths: 6, TestMonths: 3, StepMonths: 3}

	result, err := v.ValidateOnDataset(context.Background(), yearDataset(t), req, cfg, Options{})
	require.NoError(t, err)

	assert.Empty(t, result.Folds)
	require.Len(t, result.Failures, 2)
	assert.Equal(t, "test", result.Failures[0].Phase)
	assert.Len(t, result.Notes, 2)
	assert.False(t, result.OverfittingRisk.IsComputed(), "no folds, no risk score")
	assert.False(t, result.MeanDegradation.IsComputed())
}
