package strategy

import (
	"github.com/wonny/quantlab/internal/contracts"
	"github.com/wonny/quantlab/internal/strategyconfig"
)

// Threshold enters when the composite score clears entry_score and exits
// when it falls to exit_score.
type Threshold struct{}

func (t *Threshold) Name() string { return "threshold" }

func (t *Threshold) RequiredColumns() []string {
	return []string{ColumnMAShort, ColumnMALong, ColumnRSI}
}

func (t *Threshold) Knobs() []string {
	return []string{"entry_score", "exit_score"}
}

// GenerateSignals implements Strategy
func (t *Threshold) GenerateSignals(series *contracts.Series, params strategyconfig.Params) ([]contracts.Signal, error) {
	entry := params.Knob("entry_score", 65)
	exit := params.Knob("exit_score", 40)

	return generate(series, func(r row, sig *contracts.Signal) {
		*sig = r.scored(0.5)
		switch {
		case sig.Score >= entry:
			sig.Action = contracts.ActionEnter
			sig.Reasons = []string{scoreTag("score", sig.Score), "above_entry"}
		case sig.Score <= exit:
			sig.Action = contracts.ActionExit
			sig.Reasons = []string{scoreTag("score", sig.Score), "below_exit"}
		}
	}), nil
}
