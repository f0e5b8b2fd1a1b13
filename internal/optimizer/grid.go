package optimizer

import (
	"fmt"
	"math"
	"sort"

	"github.com/wonny/quantlab/internal/strategy"
	"github.com/wonny/quantlab/internal/strategyconfig"
)

// maxGridSize guards against accidentally huge sweeps
const maxGridSize = 100_000

// Axis is one swept parameter and its candidate values
type Axis struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// Grid is the cross-product of all axes. Axes are sorted by name; the
// last axis varies fastest, so combination index = tuple order.
type Grid struct {
	Axes []Axis `json:"axes"`
	size int
}

// NewGrid expands fixed values and inclusive ranges into a grid
func NewGrid(specs map[string]strategyconfig.GridSpec) (*Grid, error) {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)

	g := &Grid{size: 1}
	for _, name := range names {
		values, err := expand(name, specs[name])
		if err != nil {
			return nil, err
		}
		g.Axes = append(g.Axes, Axis{Name: name, Values: values})
		g.size *= len(values)
		if g.size > maxGridSize {
			return nil, fmt.Errorf("grid exceeds %d combinations", maxGridSize)
		}
	}
	return g, nil
}

// NewGridFor builds the grid and rejects axis names the variant never reads
func NewGridFor(variant string, specs map[string]strategyconfig.GridSpec) (*Grid, error) {
	grid, err := NewGrid(specs)
	if err != nil {
		return nil, err
	}
	strat, err := strategy.New(variant)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(grid.Axes))
	for _, axis := range grid.Axes {
		names = append(names, axis.Name)
	}
	if err := strategy.CheckParamNames(strat, names); err != nil {
		return nil, fmt.Errorf("grid: %w", err)
	}
	return grid, nil
}

func expand(name string, spec strategyconfig.GridSpec) ([]float64, error) {
	if spec.IsFixed() {
		return []float64{*spec.Value}, nil
	}
	if spec.Step <= 0 {
		return nil, fmt.Errorf("grid %s: step must be > 0", name)
	}
	if spec.Stop < spec.Start {
		return nil, fmt.Errorf("grid %s: stop %.4g < start %.4g", name, spec.Stop, spec.Start)
	}

	// start + i×step 로 생성해 누적 오차 방지
	n := int(math.Floor((spec.Stop-spec.Start)/spec.Step+1e-9)) + 1
	values := make([]float64, n)
	for i := range values {
		values[i] = round10(spec.Start + float64(i)*spec.Step)
	}
	return values, nil
}

// round10 snaps to 10 decimals so 0.05+2×0.05 == 0.15
func round10(v float64) float64 {
	return math.Round(v*1e10) / 1e10
}

// Size returns the number of combinations
func (g *Grid) Size() int {
	return g.size
}

// Combination decodes index into parameter values (mixed radix)
func (g *Grid) Combination(index int) map[string]float64 {
	out := make(map[string]float64, len(g.Axes))
	for i := len(g.Axes) - 1; i >= 0; i-- {
		axis := g.Axes[i]
		out[axis.Name] = axis.Values[index%len(axis.Values)]
		index /= len(axis.Values)
	}
	return out
}
