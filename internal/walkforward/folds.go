package walkforward

import (
	"fmt"
	"sort"
	"time"

	"github.com/wonny/quantlab/internal/backtest"
	"github.com/wonny/quantlab/internal/strategyconfig"
)

// Modes
const (
	ModeSplit   = "split"
	ModeRolling = "rolling"
)

// Window is an inclusive date range
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Fold is one planned train/test pair
type Fold struct {
	Index int    `json:"index"`
	Train Window `json:"train"` // nominal

	// EffectiveTrainStart = Train.Start shifted forward by WarmupDays trading days
	EffectiveTrainStart time.Time `json:"effective_train_start"`
	WarmupDays          int       `json:"warmup_days"`

	Test Window `json:"test"`
}

// PlanFolds lays out folds over the ascending trading calendar dates.
// warmupDays only moves the effective train start; test windows never shift.
func PlanFolds(dates []time.Time, cfg strategyconfig.WalkForward, warmupDays int) ([]Fold, error) {
	if len(dates) < 2 {
		return nil, &backtest.DataInsufficientError{Have: len(dates), Need: 2, Detail: "walk-forward needs at least 2 trading dates"}
	}
	if warmupDays < 0 {
		return nil, fmt.Errorf("warmup_days must be >= 0, got %d", warmupDays)
	}

	var folds []Fold
	switch cfg.Mode {
	case ModeSplit:
		f, err := splitFold(dates, cfg.SplitRatio)
		if err != nil {
			return nil, err
		}
		folds = []Fold{f}
	case ModeRolling:
		var err error
		if folds, err = rollingFolds(dates, cfg); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown walk-forward mode %q (split, rolling)", cfg.Mode)
	}

	for i := range folds {
		if err := applyWarmup(&folds[i], dates, warmupDays); err != nil {
			return nil, err
		}
	}
	return folds, nil
}

func splitFold(dates []time.Time, ratio float64) (Fold, error) {
	if ratio <= 0 || ratio >= 1 {
		return Fold{}, fmt.Errorf("split_ratio must be in (0, 1), got %.3f", ratio)
	}
	cut := int(float64(len(dates)) * ratio)
	if cut < 1 || cut >= len(dates) {
		return Fold{}, &backtest.DataInsufficientError{
			Have: len(dates), Need: 2,
			Detail: fmt.Sprintf("split ratio %.2f leaves an empty window", ratio),
		}
	}
	return Fold{
		Index: 0,
		Train: Window{Start: dates[0], End: dates[cut-1]},
		Test:  Window{Start: dates[cut], End: dates[len(dates)-1]},
	}, nil
}

// rollingFolds steps calendar-month windows until a test window would
// start after the last available date. The final test window may be
// shorter than test_months.
func rollingFolds(dates []time.Time, cfg strategyconfig.WalkForward) ([]Fold, error) {
	if cfg.TrainMonths < 1 || cfg.TestMonths < 1 || cfg.StepMonths < 1 {
		return nil, fmt.Errorf("rolling mode needs train_months, test_months, step_months >= 1")
	}

	first, last := dates[0], dates[len(dates)-1]
	var folds []Fold
	for k := 0; ; k++ {
		trainStart := first.AddDate(0, k*cfg.StepMonths, 0)
		testStart := trainStart.AddDate(0, cfg.TrainMonths, 0)
		if testStart.After(last) {
			break
		}
		testEnd := testStart.AddDate(0, cfg.TestMonths, 0).AddDate(0, 0, -1)
		if testEnd.After(last) {
			testEnd = last
		}
		folds = append(folds, Fold{
			Index: k,
			Train: Window{Start: trainStart, End: testStart.AddDate(0, 0, -1)},
			Test:  Window{Start: testStart, End: testEnd},
		})
	}

	if len(folds) == 0 {
		return nil, &backtest.DataInsufficientError{
			Have:   len(dates),
			Need:   2,
			Detail: fmt.Sprintf("%s ~ %s is shorter than one %d-month train window", first.Format("2006-01-02"), last.Format("2006-01-02"), cfg.TrainMonths),
		}
	}
	return folds, nil
}

// applyWarmup sets the effective train start. Zero warm-up keeps the
// nominal start value untouched.
func applyWarmup(f *Fold, dates []time.Time, warmupDays int) error {
	f.WarmupDays = warmupDays
	if warmupDays == 0 {
		f.EffectiveTrainStart = f.Train.Start
		return nil
	}

	startIdx := sort.Search(len(dates), func(i int) bool { return !dates[i].Before(f.Train.Start) })
	endIdx := sort.Search(len(dates), func(i int) bool { return dates[i].After(f.Train.End) }) - 1
	available := endIdx - startIdx + 1

	effective := startIdx + warmupDays
	if effective > endIdx {
		return &backtest.DataInsufficientError{
			Have: available,
			Need: warmupDays + 1,
			Detail: fmt.Sprintf("fold %d: warmup_days %d exceeds the train window %s ~ %s",
				f.Index, warmupDays, f.Train.Start.Format("2006-01-02"), f.Train.End.Format("2006-01-02")),
		}
	}
	f.EffectiveTrainStart = dates[effective]
	return nil
}
