package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wonny/quantlab/internal/contracts"
	"github.com/wonny/quantlab/internal/strategyconfig"
)

func TestEntryNotional(t *testing.T) {
	tests := []struct {
		name       string
		sizing     strategyconfig.Sizing
		pe         pendingEntry
		want       float64
		wantReason string
	}{
		{
			name:   "equal weight",
			sizing: strategyconfig.SizingEqualWeight,
			pe:     pendingEntry{signal: contracts.Signal{Score: 90}},
			want:   100_000,
		},
		{
			name:   "score weighted",
			sizing: strategyconfig.SizingScoreWeighted,
			pe:     pendingEntry{signal: contracts.Signal{Score: 70}},
			want:   70_000,
		},
		{
			name:   "volatility adjusted scales down noisy names",
			sizing: strategyconfig.SizingVolatilityAdjusted,
			pe:     pendingEntry{signalClose: 100, atr: 4, hasATR: true},
			want:   50_000,
		},
		{
			name:   "volatility adjusted never scales up",
			sizing: strategyconfig.SizingVolatilityAdjusted,
			pe:     pendingEntry{signalClose: 100, atr: 1, hasATR: true},
			want:   100_000,
		},
		{
			name:       "volatility adjusted without atr",
			sizing:     strategyconfig.SizingVolatilityAdjusted,
			pe:         pendingEntry{signalClose: 100},
			wantReason: "atr unavailable for volatility sizing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := strategyconfig.Defaults()
			p.PositionSizing = tt.sizing
			p.PositionFraction = 0.1
			p.VolTargetPct = 0.02

			got, reason := entryNotional(p, 1_000_000, &tt.pe)
			assert.Equal(t, tt.wantReason, reason)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCosts(t *testing.T) {
	p := strategyconfig.Defaults()
	p.SlippageBps = 10
	p.FeeBps = 15

	assert.InDelta(t, 100.1, buyPrice(p, 100), 1e-12)
	assert.InDelta(t, 99.9, sellPrice(p, 100), 1e-12)
	assert.InDelta(t, 15, feeFor(p, 10_000), 1e-12)

	assert.Equal(t, int64(99), sharesFor(10_000, 100.1))
	assert.Equal(t, int64(0), sharesFor(50, 100))
	assert.Equal(t, int64(0), sharesFor(1000, 0))
}

func TestExitLevels(t *testing.T) {
	tests := []struct {
		name                 string
		mutate               func(p *strategyconfig.Params)
		entry, atr           float64
		wantStop, wantTarget float64
	}{
		{
			name:       "percent",
			mutate:     func(p *strategyconfig.Params) { p.StopLossPct = 0.07; p.TakeProfitPct = 0.15 },
			entry:      100,
			wantStop:   93,
			wantTarget: 115,
		},
		{
			name: "atr multiple",
			mutate: func(p *strategyconfig.Params) {
				p.StopMode = strategyconfig.StopATRMultiple
				p.StopATRMultiple = 2
				p.TakeProfitATRMultiple = 4
			},
			entry:      100,
			atr:        5,
			wantStop:   90,
			wantTarget: 120,
		},
		{
			name:   "disabled levels",
			mutate: func(p *strategyconfig.Params) { p.StopLossPct = 0; p.TakeProfitPct = 0 },
			entry:  100,
		},
		{
			name: "stop floored at zero",
			mutate: func(p *strategyconfig.Params) {
				p.StopMode = strategyconfig.StopATRMultiple
				p.StopATRMultiple = 3
				p.TakeProfitATRMultiple = 0
			},
			entry: 10,
			atr:   5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := strategyconfig.Defaults()
			tt.mutate(&p)
			stop, target, _ := exitLevels(p, tt.entry, tt.atr)
			assert.InDelta(t, tt.wantStop, stop, 1e-9)
			assert.InDelta(t, tt.wantTarget, target, 1e-9)
		})
	}
}

func TestExitTrigger(t *testing.T) {
	pos := &contracts.Position{StopPrice: 90, TargetPrice: 120}
	exit := contracts.Signal{Action: contracts.ActionExit}

	tests := []struct {
		name   string
		close  float64
		sig    contracts.Signal
		hasSig bool
		want   contracts.ExitReason
		hit    bool
	}{
		{"stop on touch", 90, exit, true, contracts.ExitStopLoss, true},
		{"target on touch", 120, exit, true, contracts.ExitTakeProfit, true},
		{"signal between levels", 100, exit, true, contracts.ExitSignal, true},
		{"hold", 100, contracts.Signal{Action: contracts.ActionHold}, true, "", false},
		{"no signal", 100, contracts.Signal{}, false, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, hit := exitTrigger(pos, tt.close, tt.sig, tt.hasSig)
			assert.Equal(t, tt.hit, hit)
			assert.Equal(t, tt.want, got)
		})
	}
}
