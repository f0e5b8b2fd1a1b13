package strategyconfig

import (
	"fmt"
	"math"
)

// ValidationError 검증 실패 (실행 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

// Validate checks a whole strategy file
func Validate(cfg *Config) error {
	if cfg.Meta.StrategyID == "" {
		return ValidationError{"meta.strategy_id", "required"}
	}
	if cfg.Strategy.Variant == "" {
		return ValidationError{"strategy.variant", "required"}
	}

	if err := ValidateParams(cfg.Params); err != nil {
		return err
	}

	wf := cfg.WalkForward
	switch wf.Mode {
	case "split":
		if wf.SplitRatio <= 0 || wf.SplitRatio >= 1 {
			return ValidationError{"walkforward.split_ratio", "must be in (0, 1)"}
		}
	case "rolling":
		if wf.TrainMonths < 1 || wf.TestMonths < 1 || wf.StepMonths < 1 {
			return ValidationError{"walkforward", "train_months, test_months, step_months must be >= 1"}
		}
	default:
		return ValidationError{"walkforward.mode", "must be split or rolling"}
	}

	switch cfg.Optimize.Objective {
	case "sharpe", "annualized_return", "return_drawdown":
	default:
		return ValidationError{"optimize.objective", "must be sharpe, annualized_return or return_drawdown"}
	}
	if cfg.Optimize.TopN < 0 {
		return ValidationError{"optimize.top_n", "must be >= 0"}
	}
	for name, g := range cfg.Optimize.Grid {
		if g.IsFixed() {
			continue
		}
		if g.Step <= 0 {
			return ValidationError{"optimize.grid." + name, "step must be > 0"}
		}
		if g.Stop < g.Start {
			return ValidationError{"optimize.grid." + name, "stop must be >= start"}
		}
	}

	return nil
}

// ValidateParams checks a run parameter set
// 실패 시 error 반환 (해당 run 중단)
func ValidateParams(p Params) error {
	switch p.ExecutionPrice {
	case ExecNextOpen, ExecClose:
	default:
		return ValidationError{"execution_price", "must be next_open or close"}
	}

	switch p.StopMode {
	case StopPercent:
		if err := validatePctRange(p.StopLossPct, "stop_loss_pct"); err != nil {
			return err
		}
		if p.TakeProfitPct < 0 {
			return ValidationError{"take_profit_pct", "must be >= 0"}
		}
	case StopATRMultiple:
		if p.StopATRMultiple < 0 || p.TakeProfitATRMultiple < 0 {
			return ValidationError{"stop_atr_multiple", "multiples must be >= 0"}
		}
	default:
		return ValidationError{"stop_mode", "must be percent or atr_multiple"}
	}

	switch p.PositionSizing {
	case SizingEqualWeight, SizingScoreWeighted:
	case SizingVolatilityAdjusted:
		if p.VolTargetPct <= 0 {
			return ValidationError{"vol_target_pct", "must be > 0 for volatility_adjusted sizing"}
		}
	default:
		return ValidationError{"position_sizing", "must be equal_weight, score_weighted or volatility_adjusted"}
	}
	if p.PositionFraction <= 0 || p.PositionFraction > 1 {
		return ValidationError{"position_fraction", "must be in (0, 1]"}
	}

	if p.MaxPositions < 1 {
		return ValidationError{"max_positions", "must be >= 1"}
	}
	if p.AllowPyramid && p.MaxPyramidUnits < 1 {
		return ValidationError{"max_pyramid_units", "must be >= 1 when allow_pyramid"}
	}
	if p.ReentryCooldownDays < 0 {
		return ValidationError{"reentry_cooldown_days", "must be >= 0"}
	}
	if p.WarmupDays < 0 {
		return ValidationError{"warmup_days", "must be >= 0"}
	}
	if p.FeeBps < 0 || p.SlippageBps < 0 {
		return ValidationError{"fee_bps", "costs must be >= 0"}
	}
	if p.InitialCapital <= 0 || math.IsInf(p.InitialCapital, 0) {
		return ValidationError{"initial_capital", "must be > 0"}
	}
	if p.MinBars < 2 {
		return ValidationError{"min_bars", "must be >= 2"}
	}

	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(p Params) []Warning {
	var warnings []Warning

	// 비용 0 가정 경고
	if p.FeeBps == 0 && p.SlippageBps == 0 {
		warnings = append(warnings, Warning{
			Code:    "ZERO_COST",
			Message: "수수료/슬리피지 0: 성과가 과대평가될 수 있음",
		})
	}

	if p.ExecutionPrice == ExecClose {
		warnings = append(warnings, Warning{
			Code:    "CLOSE_EXECUTION",
			Message: "종가 체결 가정: 신호 산출 시점과 체결 시점이 같아 낙관적일 수 있음",
		})
	}

	if p.PositionFraction*float64(p.MaxPositions) > 1.0+1e-9 {
		warnings = append(warnings, Warning{
			Code:    "OVER_ALLOCATION",
			Message: "position_fraction × max_positions > 100%: 현금 부족으로 진입이 생략될 수 있음",
		})
	}

	return warnings
}

// validatePctRange는 퍼센트 값이 0~1 범위인지 검증
func validatePctRange(pct float64, field string) error {
	if pct < 0 || pct >= 1 {
		return ValidationError{field, "must be in range [0, 1)"}
	}
	return nil
}
