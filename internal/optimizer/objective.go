package optimizer

import (
	"fmt"
	"math"

	"github.com/wonny/quantlab/internal/metrics"
)

// Objective ranks completed combinations (higher is better)
type Objective string

const (
	ObjectiveSharpe           Objective = "sharpe"
	ObjectiveAnnualizedReturn Objective = "annualized_return"
	ObjectiveReturnDrawdown   Objective = "return_drawdown"
)

// drawdownFloor keeps return_drawdown finite for curves that never dipped
const drawdownFloor = 0.01

// ParseObjective validates an objective name; empty means sharpe
func ParseObjective(name string) (Objective, error) {
	switch o := Objective(name); o {
	case "":
		return ObjectiveSharpe, nil
	case ObjectiveSharpe, ObjectiveAnnualizedReturn, ObjectiveReturnDrawdown:
		return o, nil
	default:
		return "", fmt.Errorf("unknown objective %q (sharpe, annualized_return, return_drawdown)", name)
	}
}

// Score evaluates p. NaN maps to the lowest possible score.
func (o Objective) Score(p metrics.Performance) float64 {
	var v float64
	switch o {
	case ObjectiveAnnualizedReturn:
		v = p.AnnualizedReturn
	case ObjectiveReturnDrawdown:
		v = p.AnnualizedReturn / math.Max(p.MaxDrawdown, drawdownFloor)
	default:
		v = p.Sharpe
	}
	if math.IsNaN(v) {
		return -math.MaxFloat64
	}
	return v
}
