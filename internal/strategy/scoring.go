package strategy

import (
	"fmt"
	"math"

	"github.com/wonny/quantlab/internal/contracts"
)

// trendSpreadFull is the ma_short/ma_long spread that maps to a trend score of 100
const trendSpreadFull = 0.05

// row holds the indicator values of one bar
type row struct {
	close   float64
	maShort float64
	maLong  float64
	rsi     float64
}

// readRow returns false while any indicator is still warming up (NaN)
func readRow(series *contracts.Series, i int) (row, bool) {
	maShort, ok1 := series.Value(ColumnMAShort, i)
	maLong, ok2 := series.Value(ColumnMALong, i)
	rsi, ok3 := series.Value(ColumnRSI, i)
	if !ok1 || !ok2 || !ok3 || maLong <= 0 {
		return row{}, false
	}
	return row{close: series.Bars[i].Close, maShort: maShort, maLong: maLong, rsi: rsi}, true
}

// trendScore maps the moving-average spread onto 0~100 (50 = flat)
func (r row) trendScore() float64 {
	spread := r.maShort/r.maLong - 1
	return clamp(50+50*spread/trendSpreadFull, 0, 100)
}

func (r row) momentumScore() float64 {
	return clamp(r.rsi, 0, 100)
}

func (r row) regime() contracts.Regime {
	switch {
	case r.close > r.maLong && r.maShort > r.maLong:
		return contracts.RegimeBull
	case r.close < r.maLong && r.maShort < r.maLong:
		return contracts.RegimeBear
	default:
		return contracts.RegimeSideways
	}
}

// scored builds a hold signal with sub-scores and a weighted composite.
// generate fills in symbol and date.
func (r row) scored(trendWeight float64) contracts.Signal {
	trend := r.trendScore()
	momentum := r.momentumScore()
	return contracts.Signal{
		Action: contracts.ActionHold,
		Score:  clamp(trendWeight*trend+(1-trendWeight)*momentum, 0, 100),
		SubScores: map[string]float64{
			"trend":    trend,
			"momentum": momentum,
		},
		Regime: r.regime(),
	}
}

func warmupSignal(symbol string, bar contracts.Bar) contracts.Signal {
	return contracts.Signal{
		Symbol:  symbol,
		Date:    bar.Date,
		Action:  contracts.ActionHold,
		Reasons: []string{"warmup"},
		Regime:  contracts.RegimeUnknown,
	}
}

// generate runs decide over every bar, emitting warm-up holds where needed
func generate(series *contracts.Series, decide func(r row, sig *contracts.Signal)) []contracts.Signal {
	out := make([]contracts.Signal, 0, series.Len())
	for i, bar := range series.Bars {
		r, ok := readRow(series, i)
		if !ok {
			out = append(out, warmupSignal(series.Symbol, bar))
			continue
		}
		sig := contracts.Signal{}
		decide(r, &sig)
		sig.Symbol = series.Symbol
		sig.Date = bar.Date
		out = append(out, sig)
	}
	return out
}

func scoreTag(prefix string, v float64) string {
	return fmt.Sprintf("%s=%.0f", prefix, v)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
