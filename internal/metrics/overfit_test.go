package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func perf(sharpe, ret float64) Performance {
	return Performance{Sharpe: sharpe, TotalReturn: ret}
}

func TestFoldDegradation(t *testing.T) {
	tests := []struct {
		name       string
		train      Performance
		test       Performance
		want       float64
		wantMetric string
	}{
		{"half drop", perf(2, 0.2), perf(1, 0.1), 0.5, "sharpe"},
		{"test beats train", perf(1, 0.1), perf(1.5, 0.2), 0, "sharpe"},
		{"test equals train", perf(1, 0.1), perf(1, 0.1), 0, "sharpe"},
		{"clipped at one", perf(1, 0.1), perf(-5, -0.3), 1, "sharpe"},
		{"negative train", perf(-1, -0.1), perf(-1.5, -0.2), 0.5, "sharpe"},
		{"zero sharpe uses return", perf(0, 0.2), perf(0, 0.05), 0.75, "total_return"},
		{"both zero", perf(0, 0), perf(-1, -0.1), 0, "none"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := FoldDegradation(tt.train, tt.test, 1e-6)
			assert.InDelta(t, tt.want, d.Value, 1e-12)
			assert.Equal(t, tt.wantMetric, d.Metric)
		})
	}
}

func TestFoldDegradation_AlwaysBounded(t *testing.T) {
	values := []float64{-3, -1, -0.5, -1e-9, 0, 1e-9, 0.3, 1, 2.5, 10}
	for _, tr := range values {
		for _, te := range values {
			d := FoldDegradation(perf(tr, tr/10), perf(te, te/10), 1e-6)
			assert.GreaterOrEqual(t, d.Value, 0.0)
			assert.LessOrEqual(t, d.Value, 1.0)
			if te >= tr {
				assert.Equal(t, 0.0, d.Value, "train=%v test=%v", tr, te)
			}
		}
	}
}

func TestAssessOverfitting_NoFolds(t *testing.T) {
	opt := AssessOverfitting(nil, nil, DefaultOverfitThresholds())
	assert.False(t, opt.IsComputed())
	assert.NotEmpty(t, opt.Reason())
}

func TestAssessOverfitting_SingleFold(t *testing.T) {
	folds := []FoldInput{{Index: 0, Train: perf(2, 0.3), Test: perf(1.8, 0.25)}}

	risk, ok := AssessOverfitting(folds, nil, DefaultOverfitThresholds()).Get()
	require.True(t, ok)

	assert.False(t, risk.Consistency.IsComputed())
	assert.False(t, risk.Sensitivity.IsComputed())
	assert.ElementsMatch(t, []string{"consistency", "sensitivity"}, risk.MissingInputs)
	assert.InDelta(t, 0.1, risk.MeanDegradation, 1e-12)
	assert.Equal(t, 0.0, risk.Score)
	assert.Equal(t, RiskLow, risk.Level)
	assert.Empty(t, risk.Warnings)
}

func TestAssessOverfitting_Bands(t *testing.T) {
	th := DefaultOverfitThresholds()

	tests := []struct {
		name        string
		folds       []FoldInput
		sensitivity *float64
		wantScore   float64
		wantLevel   string
		wantMetrics []string
	}{
		{
			name: "stable folds",
			folds: []FoldInput{
				{Train: perf(1.5, 0.2), Test: perf(1.4, 0.18)},
				{Train: perf(1.6, 0.2), Test: perf(1.5, 0.18)},
			},
			wantScore: 0,
			wantLevel: RiskLow,
		},
		{
			name: "heavy degradation",
			folds: []FoldInput{
				{Train: perf(2, 0.3), Test: perf(0.8, 0.1)},
				{Train: perf(2, 0.3), Test: perf(0.9, 0.1)},
			},
			// mean degradation 0.575 → 2 bands × 2.0 weight
			wantScore:   4,
			wantLevel:   RiskHigh,
			wantMetrics: []string{"degradation"},
		},
		{
			name: "inconsistent folds with sensitivity",
			folds: []FoldInput{
				{Train: perf(1, 0.1), Test: perf(1.2, 0.1)},
				{Train: perf(1, 0.1), Test: perf(2.2, 0.1)},
			},
			sensitivity: floatPtr(0.3),
			// std(1.2, 2.2) = 0.707 → 1 band × 1.5, sensitivity 1 band × 1.5
			wantScore:   3,
			wantLevel:   RiskMedium,
			wantMetrics: []string{"consistency", "sensitivity"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			risk, ok := AssessOverfitting(tt.folds, tt.sensitivity, th).Get()
			require.True(t, ok)

			assert.InDelta(t, tt.wantScore, risk.Score, 1e-12)
			assert.Equal(t, tt.wantLevel, risk.Level)
			assert.GreaterOrEqual(t, risk.Score, 0.0)
			assert.LessOrEqual(t, risk.Score, 10.0)

			var metrics []string
			for _, w := range risk.Warnings {
				metrics = append(metrics, w.Metric)
			}
			assert.Equal(t, tt.wantMetrics, metrics)
			assert.Len(t, risk.Suggestions, len(risk.Warnings))

			c, computed := risk.Consistency.Get()
			assert.True(t, computed)
			assert.GreaterOrEqual(t, c, 0.0)
		})
	}
}

func TestAssessOverfitting_MaxScore(t *testing.T) {
	folds := []FoldInput{
		{Train: perf(3, 0.5), Test: perf(-1, -0.1)},
		{Train: perf(3, 0.5), Test: perf(1.5, 0.1)},
	}
	risk, ok := AssessOverfitting(folds, floatPtr(0.9), DefaultOverfitThresholds()).Get()
	require.True(t, ok)
	assert.InDelta(t, 10, risk.Score, 1e-12)
	assert.Equal(t, RiskHigh, risk.Level)
	assert.Empty(t, risk.MissingInputs)
}

func floatPtr(v float64) *float64 { return &v }
