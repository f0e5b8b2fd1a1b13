package strategyconfig

import (
	"fmt"
	"sort"
)

// ExecutionPrice selects which price an order fills at
type ExecutionPrice string

const (
	ExecNextOpen ExecutionPrice = "next_open"
	ExecClose    ExecutionPrice = "close"
)

// StopMode selects how stop-loss / take-profit levels are derived
type StopMode string

const (
	StopPercent     StopMode = "percent"
	StopATRMultiple StopMode = "atr_multiple"
)

// Sizing selects the position sizing rule
type Sizing string

const (
	SizingEqualWeight        Sizing = "equal_weight"
	SizingScoreWeighted      Sizing = "score_weighted"
	SizingVolatilityAdjusted Sizing = "volatility_adjusted"
)

// Params is the full run parameter set consumed by the simulator,
// the orchestrator and the walk-forward validator.
// ⭐ SSOT: 백테스트 파라미터 키는 여기서만 정의
type Params struct {
	ExecutionPrice ExecutionPrice `yaml:"execution_price" json:"execution_price"`

	// Exit levels
	StopMode              StopMode `yaml:"stop_mode" json:"stop_mode"`
	StopLossPct           float64  `yaml:"stop_loss_pct" json:"stop_loss_pct"`     // 0 = 미사용
	TakeProfitPct         float64  `yaml:"take_profit_pct" json:"take_profit_pct"` // 0 = 미사용
	StopATRMultiple       float64  `yaml:"stop_atr_multiple" json:"stop_atr_multiple"`
	TakeProfitATRMultiple float64  `yaml:"take_profit_atr_multiple" json:"take_profit_atr_multiple"`
	TrailingStop          bool     `yaml:"trailing_stop" json:"trailing_stop"`

	// Sizing
	PositionSizing   Sizing  `yaml:"position_sizing" json:"position_sizing"`
	PositionFraction float64 `yaml:"position_fraction" json:"position_fraction"`
	VolTargetPct     float64 `yaml:"vol_target_pct" json:"vol_target_pct"`

	// Portfolio constraints
	MaxPositions        int  `yaml:"max_positions" json:"max_positions"`
	AllowPyramid        bool `yaml:"allow_pyramid" json:"allow_pyramid"`
	MaxPyramidUnits     int  `yaml:"max_pyramid_units" json:"max_pyramid_units"`
	AllowReentry        bool `yaml:"allow_reentry" json:"allow_reentry"`
	ReentryCooldownDays int  `yaml:"reentry_cooldown_days" json:"reentry_cooldown_days"`

	WarmupDays int `yaml:"warmup_days" json:"warmup_days"`

	// Costs
	FeeBps      float64 `yaml:"fee_bps" json:"fee_bps"`
	SlippageBps float64 `yaml:"slippage_bps" json:"slippage_bps"`

	InitialCapital float64 `yaml:"initial_capital" json:"initial_capital"`
	MinBars        int     `yaml:"min_bars" json:"min_bars"`
	RiskFreeRate   float64 `yaml:"risk_free_rate" json:"risk_free_rate"` // 연율

	// Strategy variant knobs (e.g. entry_score, rsi_overbought)
	Strategy map[string]float64 `yaml:"strategy" json:"strategy"`
}

// Defaults returns the baseline parameter set
func Defaults() Params {
	return Params{
		ExecutionPrice:        ExecNextOpen,
		StopMode:              StopPercent,
		StopLossPct:           0.07,
		TakeProfitPct:         0.15,
		StopATRMultiple:       2.0,
		TakeProfitATRMultiple: 4.0,
		PositionSizing:        SizingEqualWeight,
		PositionFraction:      0.10,
		VolTargetPct:          0.02,
		MaxPositions:          10,
		MaxPyramidUnits:       3,
		ReentryCooldownDays:   5,
		FeeBps:                15,
		SlippageBps:           10,
		InitialCapital:        100_000_000,
		MinBars:               20,
		Strategy:              map[string]float64{},
	}
}

// Clone returns a deep copy (the Strategy map is not shared)
func (p Params) Clone() Params {
	out := p
	out.Strategy = make(map[string]float64, len(p.Strategy))
	for k, v := range p.Strategy {
		out.Strategy[k] = v
	}
	return out
}

// Knob returns a strategy knob or def when unset
func (p Params) Knob(name string, def float64) float64 {
	if v, ok := p.Strategy[name]; ok {
		return v
	}
	return def
}

// numericFields maps sweepable parameter names to setters.
// bool 파라미터는 0/1로 표현
var numericFields = map[string]func(p *Params, v float64){
	"stop_loss_pct":            func(p *Params, v float64) { p.StopLossPct = v },
	"take_profit_pct":          func(p *Params, v float64) { p.TakeProfitPct = v },
	"stop_atr_multiple":        func(p *Params, v float64) { p.StopATRMultiple = v },
	"take_profit_atr_multiple": func(p *Params, v float64) { p.TakeProfitATRMultiple = v },
	"trailing_stop":            func(p *Params, v float64) { p.TrailingStop = v != 0 },
	"position_fraction":        func(p *Params, v float64) { p.PositionFraction = v },
	"vol_target_pct":           func(p *Params, v float64) { p.VolTargetPct = v },
	"max_positions":            func(p *Params, v float64) { p.MaxPositions = int(v) },
	"allow_pyramid":            func(p *Params, v float64) { p.AllowPyramid = v != 0 },
	"max_pyramid_units":        func(p *Params, v float64) { p.MaxPyramidUnits = int(v) },
	"allow_reentry":            func(p *Params, v float64) { p.AllowReentry = v != 0 },
	"reentry_cooldown_days":    func(p *Params, v float64) { p.ReentryCooldownDays = int(v) },
	"warmup_days":              func(p *Params, v float64) { p.WarmupDays = int(v) },
	"fee_bps":                  func(p *Params, v float64) { p.FeeBps = v },
	"slippage_bps":             func(p *Params, v float64) { p.SlippageBps = v },
	"initial_capital":          func(p *Params, v float64) { p.InitialCapital = v },
	"min_bars":                 func(p *Params, v float64) { p.MinBars = int(v) },
	"risk_free_rate":           func(p *Params, v float64) { p.RiskFreeRate = v },
}

// With returns a copy with one named value applied. Names that are not
// run parameters are treated as strategy knobs.
func (p Params) With(name string, v float64) Params {
	out := p.Clone()
	if set, ok := numericFields[name]; ok {
		set(&out, v)
		return out
	}
	out.Strategy[name] = v
	return out
}

// ApplyAll applies values in sorted-name order
func (p Params) ApplyAll(values map[string]float64) Params {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	out := p.Clone()
	for _, name := range names {
		out = out.With(name, values[name])
	}
	return out
}

// IsRunParam reports whether name is a known run parameter rather than a knob
func IsRunParam(name string) bool {
	_, ok := numericFields[name]
	return ok
}

func (p Params) String() string {
	return fmt.Sprintf("exec=%s stop=%s sizing=%s max_pos=%d fee=%.1fbps slip=%.1fbps",
		p.ExecutionPrice, p.StopMode, p.PositionSizing, p.MaxPositions, p.FeeBps, p.SlippageBps)
}
