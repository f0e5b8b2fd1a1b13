package backtest

import (
	"math"

	"github.com/wonny/quantlab/internal/strategyconfig"
)

// entryNotional returns the capital to commit to a new lot.
// An empty reason means the size is usable.
func entryNotional(p strategyconfig.Params, equity float64, pe *pendingEntry) (float64, string) {
	base := equity * p.PositionFraction

	switch p.PositionSizing {
	case strategyconfig.SizingScoreWeighted:
		return base * math.Max(0, math.Min(1, pe.signal.Score/100)), ""

	case strategyconfig.SizingVolatilityAdjusted:
		if !pe.hasATR || pe.signalClose <= 0 {
			return 0, "atr unavailable for volatility sizing"
		}
		volPct := pe.atr / pe.signalClose
		if volPct <= 0 {
			return base, ""
		}
		return base * math.Min(1, p.VolTargetPct/volPct), ""

	default:
		return base, ""
	}
}

// sharesFor converts a notional into whole shares at price
func sharesFor(notional, price float64) int64 {
	if price <= 0 || notional <= 0 {
		return 0
	}
	return int64(math.Floor(notional / price))
}

// buyPrice / sellPrice apply slippage against the trader
func buyPrice(p strategyconfig.Params, base float64) float64 {
	return base * (1 + p.SlippageBps/10_000)
}

func sellPrice(p strategyconfig.Params, base float64) float64 {
	return base * (1 - p.SlippageBps/10_000)
}

func feeFor(p strategyconfig.Params, notional float64) float64 {
	return notional * p.FeeBps / 10_000
}
