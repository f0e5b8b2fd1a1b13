package metrics

import (
	"fmt"
	"math"

	"github.com/wonny/quantlab/internal/contracts"
)

// Risk levels
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// OverfitThresholds are tunable defaults, not statistically derived law
type OverfitThresholds struct {
	DegradationHigh   float64 `json:"degradation_high"`
	DegradationMedium float64 `json:"degradation_medium"`
	ConsistencyHigh   float64 `json:"consistency_high"`
	ConsistencyMedium float64 `json:"consistency_medium"`
	SensitivityHigh   float64 `json:"sensitivity_high"`
	SensitivityMedium float64 `json:"sensitivity_medium"`

	DegradationWeight float64 `json:"degradation_weight"`
	ConsistencyWeight float64 `json:"consistency_weight"`
	SensitivityWeight float64 `json:"sensitivity_weight"`

	HighScore   float64 `json:"high_score"`
	MediumScore float64 `json:"medium_score"`

	// train 지표가 이 값보다 작으면 0으로 간주
	NearZero float64 `json:"near_zero"`
}

// DefaultOverfitThresholds: weights 2.0/1.5/1.5 × max band 2 → score 0~10
func DefaultOverfitThresholds() OverfitThresholds {
	return OverfitThresholds{
		DegradationHigh:   0.4,
		DegradationMedium: 0.2,
		ConsistencyHigh:   1.0,
		ConsistencyMedium: 0.5,
		SensitivityHigh:   0.5,
		SensitivityMedium: 0.25,
		DegradationWeight: 2.0,
		ConsistencyWeight: 1.5,
		SensitivityWeight: 1.5,
		HighScore:         4,
		MediumScore:       2,
		NearZero:          1e-6,
	}
}

// FoldInput is the train/test performance pair of one walk-forward fold
type FoldInput struct {
	Index int
	Train Performance
	Test  Performance
}

// Degradation is the relative train→test drop of one fold
type Degradation struct {
	Value  float64 `json:"value"`  // [0, 1]
	Metric string  `json:"metric"` // sharpe | total_return | none
}

// FoldDegradation = (train - test) / |train| clipped to [0, 1].
// Sharpe first; total return when train Sharpe is ~0; 0 when both are ~0.
func FoldDegradation(train, test Performance, nearZero float64) Degradation {
	switch {
	case math.Abs(train.Sharpe) >= nearZero:
		return Degradation{Value: relativeDrop(train.Sharpe, test.Sharpe), Metric: "sharpe"}
	case math.Abs(train.TotalReturn) >= nearZero:
		return Degradation{Value: relativeDrop(train.TotalReturn, test.TotalReturn), Metric: "total_return"}
	default:
		return Degradation{Value: 0, Metric: "none"}
	}
}

func relativeDrop(train, test float64) float64 {
	if test >= train {
		return 0
	}
	raw := (train - test) / math.Abs(train)
	if math.IsNaN(raw) {
		return 0
	}
	return math.Max(0, math.Min(1, raw))
}

// RiskWarning is one human-readable warning keyed to the metric that raised it
type RiskWarning struct {
	Metric  string `json:"metric"`
	Message string `json:"message"`
}

// OverfitRisk is the composite overfitting assessment
type OverfitRisk struct {
	Score           float64                     `json:"score"` // 0 ~ 10
	Level           string                      `json:"level"`
	FoldCount       int                         `json:"fold_count"`
	Degradations    []Degradation               `json:"degradations"`
	MeanDegradation float64                     `json:"mean_degradation"`
	Consistency     contracts.Optional[float64] `json:"consistency"`
	Sensitivity     contracts.Optional[float64] `json:"sensitivity"`
	MissingInputs   []string                    `json:"missing_inputs"`
	Warnings        []RiskWarning               `json:"warnings"`
	Suggestions     []string                    `json:"suggestions"`
	ThresholdsUsed  OverfitThresholds           `json:"thresholds_used"`
}

// AssessOverfitting scores the folds. Missing optional inputs (a second
// fold, parameter sensitivity) only shrink the indicator set; the only
// NotComputed case is having no folds at all.
func AssessOverfitting(folds []FoldInput, sensitivity *float64, th OverfitThresholds) contracts.Optional[OverfitRisk] {
	if len(folds) == 0 {
		return contracts.NotComputed[OverfitRisk]("no walk-forward folds supplied")
	}

	risk := OverfitRisk{
		FoldCount:      len(folds),
		Degradations:   make([]Degradation, len(folds)),
		ThresholdsUsed: th,
	}

	var sum float64
	testSharpes := make([]float64, len(folds))
	for i, f := range folds {
		d := FoldDegradation(f.Train, f.Test, th.NearZero)
		risk.Degradations[i] = d
		sum += d.Value
		testSharpes[i] = f.Test.Sharpe
	}
	risk.MeanDegradation = sum / float64(len(folds))

	if band := banded(risk.MeanDegradation, th.DegradationHigh, th.DegradationMedium); band > 0 {
		risk.Score += th.DegradationWeight * band
		risk.warn("degradation",
			fmt.Sprintf("mean train→test degradation %.0f%% exceeds %.0f%%", risk.MeanDegradation*100, th.DegradationMedium*100),
			"reduce the number of tuned parameters or lengthen the training window")
	}

	if len(folds) < 2 {
		risk.Consistency = contracts.NotComputed[float64]("consistency needs at least 2 folds")
		risk.MissingInputs = append(risk.MissingInputs, "consistency")
	} else {
		c := stdDev(testSharpes)
		risk.Consistency = contracts.Computed(c)
		if band := banded(c, th.ConsistencyHigh, th.ConsistencyMedium); band > 0 {
			risk.Score += th.ConsistencyWeight * band
			risk.warn("consistency",
				fmt.Sprintf("test Sharpe varies by %.2f across folds", c),
				"check whether performance depends on one market regime")
		}
	}

	if sensitivity == nil {
		risk.Sensitivity = contracts.NotComputed[float64]("parameter sensitivity not supplied")
		risk.MissingInputs = append(risk.MissingInputs, "sensitivity")
	} else {
		s := *sensitivity
		risk.Sensitivity = contracts.Computed(s)
		if band := banded(s, th.SensitivityHigh, th.SensitivityMedium); band > 0 {
			risk.Score += th.SensitivityWeight * band
			risk.warn("sensitivity",
				fmt.Sprintf("objective moves %.0f%% across neighbouring parameters", s*100),
				"prefer a parameter plateau over a single peak")
		}
	}

	switch {
	case risk.Score >= th.HighScore:
		risk.Level = RiskHigh
	case risk.Score >= th.MediumScore:
		risk.Level = RiskMedium
	default:
		risk.Level = RiskLow
	}

	return contracts.Computed(risk)
}

func (r *OverfitRisk) warn(metric, message, suggestion string) {
	r.Warnings = append(r.Warnings, RiskWarning{Metric: metric, Message: message})
	r.Suggestions = append(r.Suggestions, suggestion)
}

// banded maps a value onto 0/1/2 points
func banded(v, high, medium float64) float64 {
	switch {
	case v > high:
		return 2
	case v > medium:
		return 1
	default:
		return 0
	}
}
