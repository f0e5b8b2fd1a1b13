package backtest

import (
	"math"

	"github.com/wonny/quantlab/internal/contracts"
	"github.com/wonny/quantlab/internal/strategyconfig"
)

// exitLevels fixes stop/target at entry. Zero means the level is disabled.
// distance is what a trailing stop keeps below the highest close.
func exitLevels(p strategyconfig.Params, entry, atr float64) (stop, target, distance float64) {
	switch p.StopMode {
	case strategyconfig.StopATRMultiple:
		if p.StopATRMultiple > 0 {
			distance = p.StopATRMultiple * atr
			stop = entry - distance
		}
		if p.TakeProfitATRMultiple > 0 {
			target = entry + p.TakeProfitATRMultiple*atr
		}
	default:
		if p.StopLossPct > 0 {
			distance = entry * p.StopLossPct
			stop = entry - distance
		}
		if p.TakeProfitPct > 0 {
			target = entry * (1 + p.TakeProfitPct)
		}
	}
	return math.Max(stop, 0), target, distance
}

// ratchet raises the trailing stop after a new high close; it never loosens
func ratchet(pos *contracts.Position, close float64, trailing bool) {
	if close <= pos.HighestClose {
		return
	}
	pos.HighestClose = close
	if !trailing || pos.StopDistance <= 0 {
		return
	}
	if next := close - pos.StopDistance; next > pos.StopPrice {
		pos.StopPrice = next
	}
}

// exitTrigger applies the fixed check order: stop, target, signal
func exitTrigger(pos *contracts.Position, close float64, sig contracts.Signal, hasSig bool) (contracts.ExitReason, bool) {
	switch {
	case pos.StopPrice > 0 && close <= pos.StopPrice:
		return contracts.ExitStopLoss, true
	case pos.TargetPrice > 0 && close >= pos.TargetPrice:
		return contracts.ExitTakeProfit, true
	case hasSig && sig.IsExit():
		return contracts.ExitSignal, true
	}
	return "", false
}
