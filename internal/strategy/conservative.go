package strategy

import (
	"github.com/wonny/quantlab/internal/contracts"
	"github.com/wonny/quantlab/internal/strategyconfig"
)

// Conservative only buys in a bull regime with a high trend-weighted score
// and leaves on a bear regime or a weak score.
type Conservative struct{}

func (c *Conservative) Name() string { return "conservative" }

func (c *Conservative) RequiredColumns() []string {
	return []string{ColumnMAShort, ColumnMALong, ColumnRSI}
}

func (c *Conservative) Knobs() []string {
	return []string{"entry_score", "exit_score", "rsi_max"}
}

// GenerateSignals implements Strategy
func (c *Conservative) GenerateSignals(series *contracts.Series, params strategyconfig.Params) ([]contracts.Signal, error) {
	entry := params.Knob("entry_score", 70)
	exit := params.Knob("exit_score", 45)
	rsiMax := params.Knob("rsi_max", 70)

	return generate(series, func(r row, sig *contracts.Signal) {
		*sig = r.scored(0.6)
		regime := sig.Regime
		switch {
		case regime == contracts.RegimeBear:
			sig.Action = contracts.ActionExit
			sig.Reasons = []string{"regime_bear"}
		case sig.Score <= exit:
			sig.Action = contracts.ActionExit
			sig.Reasons = []string{scoreTag("score", sig.Score), "below_exit"}
		case regime == contracts.RegimeBull && sig.Score >= entry && r.rsi <= rsiMax:
			sig.Action = contracts.ActionEnter
			sig.Reasons = []string{scoreTag("score", sig.Score), "regime_bull"}
		}
	}), nil
}
