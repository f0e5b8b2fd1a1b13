package optimizer

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/quantlab/internal/backtest"
	"github.com/wonny/quantlab/internal/contracts"
	"github.com/wonny/quantlab/internal/metrics"
	"github.com/wonny/quantlab/internal/strategy"
	"github.com/wonny/quantlab/internal/strategyconfig"
	"github.com/wonny/quantlab/pkg/logger"
)

var jan1 = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

func fixed(v float64) strategyconfig.GridSpec {
	return strategyconfig.GridSpec{Value: &v}
}

func span(start, stop, step float64) strategyconfig.GridSpec {
	return strategyconfig.GridSpec{Start: start, Stop: stop, Step: step}
}

func testDataset(t *testing.T) *contracts.Dataset {
	t.Helper()
	n := 200
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
	s, err := contracts.NewSeries("005930", bars, map[string][]float64{
		strategy.ColumnMAShort: maShort,
		strategy.ColumnMALong:  maLong,
		strategy.ColumnRSI:     rsi,
	})
	require.NoError(t, err)
	ds, err := contracts.NewDataset(s)
	require.NoError(t, err)
	return ds
}

func baseRequest() backtest.Request {
	return backtest.Request{
		Strategy: "threshold",
		Symbols:  []string{"005930"},
		Params:   strategyconfig.Defaults(),
	}
}

func newOptimizer(workers int) *Optimizer {
	engine := backtest.NewEngine(nil, logger.Nop())
	return New(engine, workers, logger.Nop())
}

func TestNewGrid(t *testing.T) {
	g, err := NewGrid(map[string]strategyconfig.GridSpec{
		"stop_loss_pct": span(0.05, 0.15, 0.05),
		"max_positions": fixed(5),
		"fee_bps":       span(0, 10, 10),
	})
	require.NoError(t, err)

	require.Len(t, g.Axes, 3)
	assert.Equal(t, "fee_bps", g.Axes[0].Name)
	assert.Equal(t, "max_positions", g.Axes[1].Name)
	assert.Equal(t, "stop_loss_pct", g.Axes[2].Name)
	assert.Equal(t, []float64{0.05, 0.1, 0.15}, g.Axes[2].Values)
	assert.Equal(t, 6, g.Size())

	// last axis fastest
	assert.Equal(t, map[string]float64{"fee_bps": 0, "max_positions": 5, "stop_loss_pct": 0.05}, g.Combination(0))
	assert.Equal(t, map[string]float64{"fee_bps": 0, "max_positions": 5, "stop_loss_pct": 0.15}, g.Combination(2))
	assert.Equal(t, map[string]float64{"fee_bps": 10, "max_positions": 5, "stop_loss_pct": 0.05}, g.Combination(3))
}

func TestNewGrid_Invalid(t *testing.T) {
	tests := []struct {
		name string
		spec strategyconfig.GridSpec
	}{
		{"zero step", span(1, 2, 0)},
		{"negative step", span(1, 2, -1)},
		{"stop before start", span(2, 1, 0.5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGrid(map[string]strategyconfig.GridSpec{"x": tt.spec})
			assert.Error(t, err)
		})
	}

	_, err := NewGrid(map[string]strategyconfig.GridSpec{
		"a": span(0, 999, 1),
		"b": span(0, 999, 1),
	})
	assert.ErrorContains(t, err, "exceeds")
}

func TestObjective(t *testing.T) {
	p := metrics.Performance{Sharpe: 1.5, AnnualizedReturn: 0.2, MaxDrawdown: 0.1}

	tests := []struct {
		name string
		obj  string
		perf metrics.Performance
		want float64
	}{
		{"default is sharpe", "", p, 1.5},
		{"annualized return", "annualized_return", p, 0.2},
		{"return over drawdown", "return_drawdown", p, 2.0},
		{"drawdown floor", "return_drawdown", metrics.Performance{AnnualizedReturn: 0.05}, 5.0},
		{"nan ranks last", "sharpe", metrics.Performance{Sharpe: math.NaN()}, -math.MaxFloat64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := ParseObjective(tt.obj)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, o.Score(tt.perf), 1e-9)
		})
	}

	_, err := ParseObjective("sortino")
	assert.Error(t, err)
}

func TestRunOnDataset_Deterministic(t *testing.T) {
	ds := testDataset(t)
	req := Request{
		Base: baseRequest(),
		Grid: map[string]strategyconfig.GridSpec{
			"stop_loss_pct":   span(0.03, 0.09, 0.03),
			"take_profit_pct": span(0.05, 0.15, 0.05),
		},
		TopN: 5,
	}

	first, err := newOptimizer(4).RunOnDataset(context.Background(), ds, req, nil)
	require.NoError(t, err)
	second, err := newOptimizer(1).RunOnDataset(context.Background(), ds, req, nil)
	require.NoError(t, err)

	assert.Equal(t, 9, first.Total)
	assert.Equal(t, 9, first.Completed)
	assert.Zero(t, first.Failed)
	require.Len(t, first.Top, 5)
	require.Len(t, second.Top, 5)

	for i := range first.Top {
		assert.Equal(t, i+1, first.Top[i].Rank)
		assert.Equal(t, first.Top[i].Index, second.Top[i].Index)
		assert.Equal(t, first.Top[i].Params, second.Top[i].Params)
		assert.Equal(t, first.Top[i].Objective, second.Top[i].Objective)
		if i > 0 {
			assert.GreaterOrEqual(t, first.Top[i-1].Objective, first.Top[i].Objective)
		}
	}
}

func TestRunOnDataset_FailedCombination(t *testing.T) {
	ds := testDataset(t)
	req := Request{
		Base: baseRequest(),
		Grid: map[string]strategyconfig.GridSpec{
			"max_positions": span(0, 10, 10),
		},
	}

	sweep, err := newOptimizer(2).RunOnDataset(context.Background(), ds, req, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, sweep.Total)
	assert.Equal(t, 1, sweep.Completed)
	assert.Equal(t, 1, sweep.Failed)
	require.Len(t, sweep.Failures, 1)
	assert.Equal(t, 0, sweep.Failures[0].Index)
	assert.Contains(t, sweep.Failures[0].Error, "invalid params")

	require.Len(t, sweep.Top, 1)
	assert.Equal(t, 10.0, sweep.Top[0].Params["max_positions"])
	assert.False(t, sweep.Sensitivity.IsComputed())
}

func TestRunOnDataset_Progress(t *testing.T) {
	ds := testDataset(t)
	req := Request{
		Base: baseRequest(),
		Grid: map[string]strategyconfig.GridSpec{"stop_loss_pct": span(0.02, 0.1, 0.02)},
	}

	var mu sync.Mutex
	var seen []int
	sweep, err := newOptimizer(3).RunOnDataset(context.Background(), ds, req, func(completed, total int) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 5, total)
		seen = append(seen, completed)
	})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3, 4, 5}, seen)
	assert.Len(t, sweep.Top, 5)
}

func TestRunOnDataset_Cancelled(t *testing.T) {
	ds := testDataset(t)
	req := Request{
		Base: baseRequest(),
		Grid: map[string]strategyconfig.GridSpec{"stop_loss_pct": span(0.02, 0.1, 0.02)},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sweep, err := newOptimizer(2).RunOnDataset(ctx, ds, req, nil)
	require.NoError(t, err)
	assert.True(t, sweep.Cancelled)
	assert.Equal(t, 5, sweep.Skipped)
	assert.Zero(t, sweep.Completed)
	assert.Empty(t, sweep.Top)
}

func TestRunOnDataset_BadInput(t *testing.T) {
	ds := testDataset(t)
	opt := newOptimizer(2)

	_, err := opt.RunOnDataset(context.Background(), ds, Request{Base: baseRequest(), Objective: "calmar"}, nil)
	assert.Error(t, err)

	_, err = opt.RunOnDataset(context.Background(), ds, Request{
		Base: baseRequest(),
		Grid: map[string]strategyconfig.GridSpec{"x": span(1, 0, 1)},
	}, nil)
	assert.Error(t, err)
}

func TestRunOnDataset_UnknownGridName(t *testing.T) {
	ds := testDataset(t)
	opt := newOptimizer(2)

	tests := []struct {
		name    string
		grid    map[string]strategyconfig.GridSpec
		wantErr string
	}{
		{name: "misspelled run param", grid: map[string]strategyconfig.GridSpec{"stop_los_pct": span(0.02, 0.1, 0.02)}, wantErr: "stop_los_pct"},
		{name: "knob of another variant", grid: map[string]strategyconfig.GridSpec{"rsi_overbought": span(70, 80, 10)}, wantErr: "rsi_overbought"},
		{name: "run param", grid: map[string]strategyconfig.GridSpec{"stop_loss_pct": span(0.05, 0.1, 0.05)}},
		{name: "variant knob", grid: map[string]strategyconfig.GridSpec{"entry_score": span(60, 70, 10)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sweep, err := opt.RunOnDataset(context.Background(), ds, Request{Base: baseRequest(), Grid: tt.grid}, nil)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 2, sweep.Total)
		})
	}
}

func TestRank_TieBreakByIndex(t *testing.T) {
	ranked := rank([]Result{
		{Index: 3, Objective: 1},
		{Index: 1, Objective: 2},
		{Index: 0, Objective: 1},
	}, 0)

	require.Len(t, ranked, 3)
	assert.Equal(t, []int{1, 0, 3}, []int{ranked[0].Index, ranked[1].Index, ranked[2].Index})
	assert.Equal(t, 3, ranked[2].Rank)
}

func TestSensitivity(t *testing.T) {
	s := sensitivity([]Result{{Objective: 1}, {Objective: 3}})
	v, ok := s.Get()
	require.True(t, ok)
	// mean 2, sample std √2
	assert.InDelta(t, math.Sqrt2/2, v, 1e-9)

	assert.False(t, sensitivity([]Result{{Objective: 1}}).IsComputed())
	assert.False(t, sensitivity([]Result{{Objective: -1}, {Objective: 1}}).IsComputed())
}
