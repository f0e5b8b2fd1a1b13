package strategyconfig

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	for _, path := range []string{
		"../../config/strategy/threshold.yaml",
		"../../config/strategy/momentum_atr.yaml",
	} {
		t.Run(path, func(t *testing.T) {
			cfg, yamlData, err := Load(path)
			require.NoError(t, err)
			assert.NotEmpty(t, yamlData)
			assert.NotEmpty(t, cfg.Meta.StrategyID)

			hash, err := Hash(cfg)
			require.NoError(t, err)
			assert.Len(t, hash, 64)

			// 동일 설정 → 동일 해시
			hash2, _ := Hash(cfg)
			assert.Equal(t, hash, hash2)
		})
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`
meta:
  strategy_id: minimal
strategy:
  variant: threshold
params:
  max_positions: 3
  strategy:
    entry_score: 70
`))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Params.MaxPositions)
	assert.Equal(t, ExecNextOpen, cfg.Params.ExecutionPrice)
	assert.Equal(t, 0, cfg.Params.WarmupDays, "warm-up defaults to zero")
	assert.Equal(t, 70.0, cfg.Params.Strategy["entry_score"])
	assert.Equal(t, "rolling", cfg.WalkForward.Mode)
	assert.Equal(t, "sharpe", cfg.Optimize.Objective)
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte(`
meta:
  strategy_id: typo
strategy:
  variant: threshold
params:
  max_postions: 3
`))
	assert.Error(t, err)
}

func TestValidateParams(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(p *Params)
		wantField string
	}{
		{"defaults are valid", func(p *Params) {}, ""},
		{"bad execution price", func(p *Params) { p.ExecutionPrice = "vwap" }, "execution_price"},
		{"bad stop mode", func(p *Params) { p.StopMode = "chandelier" }, "stop_mode"},
		{"stop pct out of range", func(p *Params) { p.StopLossPct = 1.5 }, "stop_loss_pct"},
		{"zero max positions", func(p *Params) { p.MaxPositions = 0 }, "max_positions"},
		{"negative warmup", func(p *Params) { p.WarmupDays = -1 }, "warmup_days"},
		{"negative fee", func(p *Params) { p.FeeBps = -1 }, "fee_bps"},
		{"vol sizing needs target", func(p *Params) {
			p.PositionSizing = SizingVolatilityAdjusted
			p.VolTargetPct = 0
		}, "vol_target_pct"},
		{"pyramid needs units", func(p *Params) {
			p.AllowPyramid = true
			p.MaxPyramidUnits = 0
		}, "max_pyramid_units"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Defaults()
			tt.mutate(&p)
			err := ValidateParams(p)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var verr ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestParams_With(t *testing.T) {
	base := Defaults()

	p := base.With("max_positions", 4).With("allow_reentry", 1).With("entry_score", 72)
	assert.Equal(t, 4, p.MaxPositions)
	assert.True(t, p.AllowReentry)
	assert.Equal(t, 72.0, p.Knob("entry_score", 0))

	// 원본은 변경되지 않음
	assert.Equal(t, 10, base.MaxPositions)
	_, leaked := base.Strategy["entry_score"]
	assert.False(t, leaked)

	assert.True(t, IsRunParam("fee_bps"))
	assert.False(t, IsRunParam("entry_score"))
}

func TestParams_ApplyAll(t *testing.T) {
	p := Defaults().ApplyAll(map[string]float64{
		"stop_loss_pct": 0.05,
		"rsi_max":       75,
	})
	assert.Equal(t, 0.05, p.StopLossPct)
	assert.Equal(t, 75.0, p.Knob("rsi_max", 0))
	assert.Equal(t, 1.0, p.Knob("missing", 1.0))
}

func TestHashParams_KnobsChangeHash(t *testing.T) {
	a, err := HashParams(Defaults())
	require.NoError(t, err)
	b, err := HashParams(Defaults().With("entry_score", 60))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestWarn(t *testing.T) {
	p := Defaults()
	p.FeeBps, p.SlippageBps = 0, 0
	p.ExecutionPrice = ExecClose
	p.PositionFraction = 0.5

	codes := map[string]bool{}
	for _, w := range Warn(p) {
		codes[w.Code] = true
	}
	assert.True(t, codes["ZERO_COST"])
	assert.True(t, codes["CLOSE_EXECUTION"])
	assert.True(t, codes["OVER_ALLOCATION"])
	assert.Empty(t, Warn(Defaults()))
}
