package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/quantlab/internal/contracts"
)

func benchmarkSeries(t *testing.T, closes map[int]float64, extra map[string][]float64) *contracts.Series {
	t.Helper()
	var bars []contracts.Bar
	for d := 1; d <= 31; d++ {
		if c, ok := closes[d]; ok {
			bars = append(bars, contracts.Bar{Date: date(2024, 1, d), Close: c})
		}
	}
	s, err := contracts.NewSeries("069500", bars, extra)
	require.NoError(t, err)
	return s
}

func TestCompareBaseline_ExcessIdentity(t *testing.T) {
	curve := curveOf(date(2024, 1, 2), 100, 103, 101, 108)
	strat := Compute(curve, nil, 0)

	bench := benchmarkSeries(t, map[int]float64{1: 50, 2: 50, 3: 51, 4: 52, 5: 52.5, 6: 53}, nil)

	opt := CompareBaseline(strat, curve, bench, 0)
	cmp, ok := opt.Get()
	require.True(t, ok, opt.Reason())

	assert.InDelta(t, strat.TotalReturn-cmp.BaselineReturn, cmp.ExcessReturn, 1e-12)
	assert.InDelta(t, 52.5/50-1, cmp.BaselineReturn, 1e-12)
	assert.Equal(t, "close", cmp.PriceColumn)
	assert.Equal(t, cmp.ExcessReturn > 0, cmp.Outperforms)
	assert.InDelta(t, strat.Sharpe-cmp.BaselineSharpe, cmp.RelativeSharpe, 1e-12)
	assert.InDelta(t, strat.MaxDrawdown-cmp.BaselineMaxDrawdown, cmp.RelativeDrawdown, 1e-12)
}

func TestCompareBaseline_NearestDatesAndForwardFill(t *testing.T) {
	// curve: 1/10 ~ 1/14, benchmark missing 1/10 (start), 1/12 (gap), 1/14 (end)
	curve := curveOf(date(2024, 1, 10), 100, 100, 100, 100, 100)
	strat := Compute(curve, nil, 0)

	bench := benchmarkSeries(t, map[int]float64{8: 40, 9: 40, 11: 44, 13: 42, 15: 48}, nil)

	cmp, ok := CompareBaseline(strat, curve, bench, 0).Get()
	require.True(t, ok)

	assert.Equal(t, date(2024, 1, 9), cmp.StartDate, "start searches backward")
	assert.Equal(t, date(2024, 1, 15), cmp.EndDate, "end searches forward")
	assert.InDelta(t, 48.0/40-1, cmp.BaselineReturn, 1e-12)
	// 44 → 44 (forward-filled 1/12) → 42: drawdown 2/44
	assert.InDelta(t, 2.0/44.0, cmp.BaselineMaxDrawdown, 1e-12)
	assert.InDelta(t, -cmp.BaselineReturn, cmp.ExcessReturn, 1e-12)
	assert.False(t, cmp.Outperforms)
}

func TestCompareBaseline_PrefersAdjustedClose(t *testing.T) {
	curve := curveOf(date(2024, 1, 2), 100, 101, 102)
	bench := benchmarkSeries(t,
		map[int]float64{2: 10, 3: 10, 4: 10},
		map[string][]float64{contracts.ColumnAdjClose: {20, 21, 22}},
	)

	cmp, ok := CompareBaseline(Compute(curve, nil, 0), curve, bench, 0).Get()
	require.True(t, ok)
	assert.Equal(t, contracts.ColumnAdjClose, cmp.PriceColumn)
	assert.InDelta(t, 0.1, cmp.BaselineReturn, 1e-12)
}

func TestCompareBaseline_NotComputed(t *testing.T) {
	curve := curveOf(date(2024, 1, 2), 100, 101, 102)
	strat := Compute(curve, nil, 0)

	tests := []struct {
		name  string
		bench *contracts.Series
		curve contracts.EquityCurve
	}{
		{"no benchmark", nil, curve},
		{"single point curve", benchmarkSeries(t, map[int]float64{2: 1, 3: 1}, nil), curve[:1]},
		{"one usable price", benchmarkSeries(t, map[int]float64{2: 10}, nil), curve},
		{"benchmark entirely before run", benchmarkSeries(t, map[int]float64{1: 10}, nil), curve},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt := CompareBaseline(strat, tt.curve, tt.bench, 0)
			assert.False(t, opt.IsComputed())
			assert.NotEmpty(t, opt.Reason())
		})
	}
}
