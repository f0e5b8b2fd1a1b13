package strategy

import (
	"github.com/wonny/quantlab/internal/contracts"
	"github.com/wonny/quantlab/internal/strategyconfig"
)

// Momentum is the aggressive variant: momentum-weighted score, enters on
// strength unless RSI is overheated, exits as soon as the short average
// crosses below the long one.
type Momentum struct{}

func (m *Momentum) Name() string { return "momentum" }

func (m *Momentum) RequiredColumns() []string {
	return []string{ColumnMAShort, ColumnMALong, ColumnRSI}
}

func (m *Momentum) Knobs() []string {
	return []string{"entry_score", "rsi_overbought"}
}

// GenerateSignals implements Strategy
func (m *Momentum) GenerateSignals(series *contracts.Series, params strategyconfig.Params) ([]contracts.Signal, error) {
	entry := params.Knob("entry_score", 60)
	overbought := params.Knob("rsi_overbought", 80)

	return generate(series, func(r row, sig *contracts.Signal) {
		*sig = r.scored(0.4)
		switch {
		case r.maShort < r.maLong:
			sig.Action = contracts.ActionExit
			sig.Reasons = []string{"ma_cross_down"}
		case r.rsi >= overbought:
			sig.Reasons = []string{scoreTag("rsi", r.rsi), "overheated"}
		case sig.Score >= entry && r.close > r.maShort:
			sig.Action = contracts.ActionEnter
			sig.Reasons = []string{scoreTag("score", sig.Score), "price_above_ma_short"}
		}
	}), nil
}
