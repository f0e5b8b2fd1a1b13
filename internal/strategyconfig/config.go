package strategyconfig

import "time"

// Config is one strategy research file: which variant to run, with what
// parameters, and how to validate it.
type Config struct {
	Meta        Meta        `yaml:"meta" json:"meta"`
	Strategy    Strategy    `yaml:"strategy" json:"strategy"`
	Params      Params      `yaml:"params" json:"params"`
	Benchmark   string      `yaml:"benchmark" json:"benchmark"`
	WalkForward WalkForward `yaml:"walkforward" json:"walkforward"`
	Optimize    Optimize    `yaml:"optimize" json:"optimize"`
}

// Meta 메타 정보
type Meta struct {
	StrategyID string `yaml:"strategy_id" json:"strategy_id"`
	Version    string `yaml:"version" json:"version"`
}

// Strategy selects the plugin variant
type Strategy struct {
	Variant string `yaml:"variant" json:"variant"` // threshold | momentum | conservative
}

// WalkForward 검증 윈도우 설정
type WalkForward struct {
	Mode        string  `yaml:"mode" json:"mode"` // split | rolling
	SplitRatio  float64 `yaml:"split_ratio" json:"split_ratio"`
	TrainMonths int     `yaml:"train_months" json:"train_months"`
	TestMonths  int     `yaml:"test_months" json:"test_months"`
	StepMonths  int     `yaml:"step_months" json:"step_months"`
}

// Optimize 파라미터 탐색 설정
type Optimize struct {
	Objective string              `yaml:"objective" json:"objective"` // sharpe | annualized_return | return_drawdown
	TopN      int                 `yaml:"top_n" json:"top_n"`
	Grid      map[string]GridSpec `yaml:"grid" json:"grid"`
}

// GridSpec is either a fixed value or an inclusive range
type GridSpec struct {
	Value *float64 `yaml:"value,omitempty" json:"value,omitempty"`
	Start float64  `yaml:"start" json:"start"`
	Stop  float64  `yaml:"stop" json:"stop"`
	Step  float64  `yaml:"step" json:"step"`
}

// IsFixed checks if the grid entry pins a single value
func (g GridSpec) IsFixed() bool {
	return g.Value != nil
}

// RunSnapshot ties a run to the exact configuration that produced it
type RunSnapshot struct {
	ConfigHash string    `json:"config_hash"`
	ConfigYAML string    `json:"config_yaml"`
	StrategyID string    `json:"strategy_id"`
	Variant    string    `json:"variant"`
	CreatedAt  time.Time `json:"created_at"`
}
