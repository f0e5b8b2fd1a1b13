package strategy

import (
	"fmt"
	"sort"

	"github.com/wonny/quantlab/internal/contracts"
	"github.com/wonny/quantlab/internal/strategyconfig"
)

// Indicator columns consumed by the built-in variants
const (
	ColumnMAShort = "ma_short"
	ColumnMALong  = "ma_long"
	ColumnRSI     = "rsi"
)

// Strategy turns one symbol's priced history into a signal per bar
// ⭐ SSOT: 전략 플러그인 인터페이스
type Strategy interface {
	Name() string
	RequiredColumns() []string
	// Knobs lists the params.strategy names the variant reads
	Knobs() []string
	GenerateSignals(series *contracts.Series, params strategyconfig.Params) ([]contracts.Signal, error)
}

var registry = map[string]func() Strategy{
	"threshold":    func() Strategy { return &Threshold{} },
	"momentum":     func() Strategy { return &Momentum{} },
	"conservative": func() Strategy { return &Conservative{} },
}

// New creates a strategy by variant id
func New(variant string) (Strategy, error) {
	factory, ok := registry[variant]
	if !ok {
		return nil, fmt.Errorf("unknown strategy variant %q (available: %v)", variant, Variants())
	}
	return factory(), nil
}

// Variants returns the registered variant ids, sorted
func Variants() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// MissingColumns lists required columns absent from the series
func MissingColumns(s Strategy, series *contracts.Series) []string {
	var missing []string
	for _, col := range s.RequiredColumns() {
		if !series.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	return missing
}

// CheckParamNames rejects names that are neither run parameters nor knobs
// of s. A misspelled grid axis would otherwise sweep nothing.
func CheckParamNames(s Strategy, names []string) error {
	known := make(map[string]bool)
	for _, k := range s.Knobs() {
		known[k] = true
	}

	var unknown []string
	for _, name := range names {
		if !strategyconfig.IsRunParam(name) && !known[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown parameter(s) %v for %s (knobs: %v)", unknown, s.Name(), s.Knobs())
	}
	return nil
}
