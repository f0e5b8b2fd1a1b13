package metrics

import (
	"fmt"
	"math"
	"time"

	"github.com/wonny/quantlab/internal/contracts"
)

// BaselineComparison compares a run against buy-and-hold of a benchmark
type BaselineComparison struct {
	Symbol      string    `json:"symbol"`
	PriceColumn string    `json:"price_column"`
	StartDate   time.Time `json:"start_date"` // resolved benchmark dates
	EndDate     time.Time `json:"end_date"`

	BaselineReturn      float64 `json:"baseline_return"`
	BaselineSharpe      float64 `json:"baseline_sharpe"`
	BaselineMaxDrawdown float64 `json:"baseline_max_drawdown"`

	StrategyReturn      float64 `json:"strategy_return"`
	StrategySharpe      float64 `json:"strategy_sharpe"`
	StrategyMaxDrawdown float64 `json:"strategy_max_drawdown"`

	ExcessReturn     float64 `json:"excess_return"`     // strategy - baseline
	RelativeSharpe   float64 `json:"relative_sharpe"`   // strategy - baseline
	RelativeDrawdown float64 `json:"relative_drawdown"` // strategy - baseline (양수 = 전략이 더 깊음)
	Outperforms      bool    `json:"outperforms"`
}

// CompareBaseline is best-effort: any data gap that prevents a fair
// comparison returns NotComputed with the reason.
func CompareBaseline(strategy Performance, curve contracts.EquityCurve, benchmark *contracts.Series, riskFreeRate float64) contracts.Optional[BaselineComparison] {
	if benchmark == nil {
		return contracts.NotComputed[BaselineComparison]("no benchmark series supplied")
	}
	if len(curve) < 2 {
		return contracts.NotComputed[BaselineComparison]("equity curve has fewer than 2 points")
	}

	column := "close"
	if benchmark.HasColumn(contracts.ColumnAdjClose) {
		column = contracts.ColumnAdjClose
	}
	price := func(i int) (float64, bool) {
		if column == "close" {
			c := benchmark.Bars[i].Close
			return c, c > 0
		}
		v, ok := benchmark.Value(column, i)
		return v, ok && v > 0
	}

	start, end := curve[0].Date, curve[len(curve)-1].Date

	// start는 이전 날짜로, end는 이후 날짜로 탐색 (없으면 반대 방향)
	startIdx := benchmark.IndexOnOrBefore(start)
	if startIdx < 0 {
		startIdx = benchmark.IndexOnOrAfter(start)
	}
	endIdx := benchmark.IndexOnOrAfter(end)
	if endIdx >= benchmark.Len() {
		endIdx = benchmark.IndexOnOrBefore(end)
	}
	for startIdx >= 0 && startIdx < benchmark.Len() {
		if _, ok := price(startIdx); ok {
			break
		}
		startIdx++
	}
	for endIdx >= 0 && endIdx < benchmark.Len() {
		if _, ok := price(endIdx); ok {
			break
		}
		endIdx--
	}
	if startIdx < 0 || endIdx >= benchmark.Len() || endIdx <= startIdx {
		return contracts.NotComputed[BaselineComparison](
			fmt.Sprintf("benchmark %s has fewer than 2 usable prices between %s and %s",
				benchmark.Symbol, start.Format("2006-01-02"), end.Format("2006-01-02")))
	}

	startPrice, _ := price(startIdx)
	endPrice, _ := price(endIdx)

	// 전략 달력에 맞춰 forward-fill
	values := make([]float64, len(curve))
	cursor := startIdx
	last := startPrice
	for i, pt := range curve {
		for cursor <= endIdx && !benchmark.Bars[cursor].Date.After(pt.Date) {
			if v, ok := price(cursor); ok {
				last = v
			}
			cursor++
		}
		values[i] = last
	}
	values[len(values)-1] = endPrice

	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		returns = append(returns, values[i]/values[i-1]-1)
	}

	cmp := BaselineComparison{
		Symbol:              benchmark.Symbol,
		PriceColumn:         column,
		StartDate:           benchmark.Bars[startIdx].Date,
		EndDate:             benchmark.Bars[endIdx].Date,
		BaselineReturn:      endPrice/startPrice - 1,
		BaselineSharpe:      sharpe(returns, riskFreeRate),
		BaselineMaxDrawdown: maxDrawdown(values),
		StrategyReturn:      strategy.TotalReturn,
		StrategySharpe:      strategy.Sharpe,
		StrategyMaxDrawdown: strategy.MaxDrawdown,
	}
	cmp.ExcessReturn = cmp.StrategyReturn - cmp.BaselineReturn
	cmp.RelativeSharpe = cmp.StrategySharpe - cmp.BaselineSharpe
	cmp.RelativeDrawdown = cmp.StrategyMaxDrawdown - cmp.BaselineMaxDrawdown
	cmp.Outperforms = cmp.ExcessReturn > 0

	if math.IsNaN(cmp.BaselineReturn) || math.IsInf(cmp.BaselineReturn, 0) {
		return contracts.NotComputed[BaselineComparison]("benchmark return is not finite")
	}
	return contracts.Computed(cmp)
}
