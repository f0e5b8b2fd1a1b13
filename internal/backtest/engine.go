package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/quantlab/internal/contracts"
	"github.com/wonny/quantlab/internal/metrics"
	"github.com/wonny/quantlab/internal/strategy"
	"github.com/wonny/quantlab/internal/strategyconfig"
	"github.com/wonny/quantlab/pkg/logger"
)

// Engine orchestrates one backtest: strategy → simulator → metrics
// ⭐ SSOT: 백테스팅 실행은 여기서만
type Engine struct {
	loader contracts.DatasetLoader
	logger *logger.Logger
}

// Request describes one run
type Request struct {
	Strategy string    `json:"strategy"`
	Symbols  []string  `json:"symbols"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`

	// HistoryStart gives the strategy lookback rows before Start.
	// Zero means Start. Trading never begins before Start.
	HistoryStart time.Time `json:"history_start,omitempty"`

	Params    strategyconfig.Params `json:"params"`
	Benchmark string                `json:"benchmark,omitempty"`
}

// NewEngine creates a new backtest engine. loader may be nil when only
// RunOnDataset is used (optimizer, walk-forward with a preloaded dataset).
func NewEngine(loader contracts.DatasetLoader, log *logger.Logger) *Engine {
	return &Engine{
		loader: loader,
		logger: log.WithComponent("backtest.engine"),
	}
}

// Load fetches symbols (and nothing else) over [from, to]
func (e *Engine) Load(ctx context.Context, symbols []string, from, to time.Time) (*contracts.Dataset, error) {
	if e.loader == nil {
		return nil, errors.New("backtest engine has no dataset loader")
	}
	ds, err := e.loader.Load(ctx, symbols, from, to)
	if err != nil {
		return nil, fmt.Errorf("load dataset from %s: %w", e.loader.Name(), err)
	}
	return ds, nil
}

// Run loads the dataset for req (benchmark included) and runs it
func (e *Engine) Run(ctx context.Context, req Request) (*Report, error) {
	symbols := append([]string(nil), req.Symbols...)
	if req.Benchmark != "" && !contains(symbols, req.Benchmark) {
		symbols = append(symbols, req.Benchmark)
	}

	ds, err := e.Load(ctx, symbols, req.historyStart(), req.End)
	if err != nil {
		report := newReport(req)
		return report, report.fail(err)
	}
	return e.RunOnDataset(ctx, ds, req)
}

// RunOnDataset runs req against an already loaded dataset. The dataset is
// only read, so one instance may back many concurrent calls.
// A failed run still returns its Report alongside the error.
func (e *Engine) RunOnDataset(ctx context.Context, ds *contracts.Dataset, req Request) (*Report, error) {
	started := time.Now()
	report := newReport(req)

	if err := ctx.Err(); err != nil {
		return report, report.fail(err)
	}

	if err := e.run(ds, req, report); err != nil {
		report.Duration = time.Since(started)
		e.logger.WithFields(map[string]interface{}{
			"run_id":   report.RunID,
			"strategy": req.Strategy,
			"error":    err.Error(),
		}).Warn("Backtest failed")
		return report, report.fail(err)
	}

	report.Duration = time.Since(started)
	e.logger.WithFields(map[string]interface{}{
		"run_id":       report.RunID,
		"strategy":     req.Strategy,
		"symbols":      len(report.Symbols),
		"start":        report.ActualStart.Format("2006-01-02"),
		"end":          report.ActualEnd.Format("2006-01-02"),
		"trades":       report.Performance.TradeCount,
		"total_return": fmt.Sprintf("%.2f%%", report.Performance.TotalReturn*100),
		"sharpe_ratio": fmt.Sprintf("%.2f", report.Performance.Sharpe),
		"max_drawdown": fmt.Sprintf("%.2f%%", report.Performance.MaxDrawdown*100),
	}).Debug("Backtest completed")
	return report, nil
}

func (e *Engine) run(ds *contracts.Dataset, req Request, report *Report) error {
	if ds == nil {
		return &DataInsufficientError{Need: 1, Detail: "no dataset"}
	}

	strat, err := strategy.New(req.Strategy)
	if err != nil {
		return err
	}
	if err := strategyconfig.ValidateParams(req.Params); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	for _, w := range strategyconfig.Warn(req.Params) {
		report.note(fmt.Sprintf("%s: %s", w.Code, w.Message))
	}

	symbols := tradedSymbols(ds, req, report)
	if len(symbols) == 0 {
		return &DataInsufficientError{Need: 1, Detail: "no symbols to trade"}
	}
	report.Symbols = symbols

	start, end, err := clampRange(ds, symbols, req, report)
	if err != nil {
		return err
	}

	signals := contracts.NewSignalSet()
	for _, sym := range symbols {
		series, _ := ds.Series(sym)
		if missing := missingColumns(strat, series, req.Params); len(missing) > 0 {
			return &DataContractError{Symbol: sym, Missing: missing}
		}

		trading := series.Window(start, end)
		if trading.Len() < req.Params.MinBars {
			return &DataInsufficientError{Symbol: sym, Have: trading.Len(), Need: req.Params.MinBars}
		}

		history := series.Window(req.historyStart(), end)
		sigs, err := strat.GenerateSignals(history, req.Params)
		if err != nil {
			return fmt.Errorf("generate signals for %s: %w", sym, err)
		}
		if err := signals.Put(sym, sigs); err != nil {
			return fmt.Errorf("strategy %s: %w", strat.Name(), err)
		}
	}

	sim := NewSimulator(req.Params, e.logger)
	result, err := sim.Run(SimInput{
		Dataset: ds,
		Symbols: symbols,
		Signals: signals,
		Start:   start,
		End:     end,
	})
	if err != nil {
		return err
	}

	report.EquityCurve = result.EquityCurve
	report.Trades = result.Trades
	report.Trace = result.Trace
	report.Rejections = result.Rejections
	report.Notes = append(report.Notes, result.Notes...)
	report.Performance = metrics.Compute(result.EquityCurve, result.Trades, req.Params.RiskFreeRate)

	report.Baseline = baseline(ds, req, report)
	return nil
}

func baseline(ds *contracts.Dataset, req Request, report *Report) contracts.Optional[metrics.BaselineComparison] {
	if req.Benchmark == "" {
		return contracts.NotComputed[metrics.BaselineComparison]("no benchmark configured")
	}
	bench, ok := ds.Series(req.Benchmark)
	if !ok {
		reason := fmt.Sprintf("benchmark %s not in dataset", req.Benchmark)
		report.note("baseline not computed: " + reason)
		return contracts.NotComputed[metrics.BaselineComparison](reason)
	}

	cmp := metrics.CompareBaseline(report.Performance, report.EquityCurve, bench, req.Params.RiskFreeRate)
	if !cmp.IsComputed() {
		report.note("baseline not computed: " + cmp.Reason())
	}
	return cmp
}

// clampRange narrows [Start, End] to the data actually available for symbols
func clampRange(ds *contracts.Dataset, symbols []string, req Request, report *Report) (time.Time, time.Time, error) {
	var first, last time.Time
	for _, sym := range symbols {
		series, ok := ds.Series(sym)
		if !ok || series.Len() == 0 {
			continue
		}
		if first.IsZero() || series.FirstDate().Before(first) {
			first = series.FirstDate()
		}
		if series.LastDate().After(last) {
			last = series.LastDate()
		}
	}
	if first.IsZero() {
		return time.Time{}, time.Time{}, &DataInsufficientError{Need: req.Params.MinBars, Detail: "no priced dates for requested symbols"}
	}

	start, end := req.Start, req.End
	if start.IsZero() || start.Before(first) {
		start = first
	}
	if end.IsZero() || end.After(last) {
		end = last
	}

	report.ActualStart, report.ActualEnd = start, end
	if !start.Equal(req.Start) || !end.Equal(req.End) {
		report.note(fmt.Sprintf("range clamped to available data: requested %s ~ %s, actual %s ~ %s",
			formatDate(req.Start), formatDate(req.End), formatDate(start), formatDate(end)))
	}

	if start.After(end) {
		return start, end, &DataInsufficientError{Need: req.Params.MinBars, Detail: "requested range has no priced dates"}
	}
	return start, end, nil
}

// tradedSymbols: requested symbols present in the dataset, or every dataset
// symbol except the benchmark. Sorted so that symbol id is the constraint tie-break.
func tradedSymbols(ds *contracts.Dataset, req Request, report *Report) []string {
	var out []string
	if len(req.Symbols) > 0 {
		seen := make(map[string]bool, len(req.Symbols))
		for _, s := range req.Symbols {
			if seen[s] {
				continue
			}
			seen[s] = true
			if _, ok := ds.Series(s); !ok {
				report.note(fmt.Sprintf("symbol %s not in dataset, skipped", s))
				continue
			}
			out = append(out, s)
		}
	} else {
		for _, s := range ds.Symbols() {
			if s != req.Benchmark {
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return out
}

// missingColumns: strategy columns, plus atr when exit levels or sizing depend on it
func missingColumns(s strategy.Strategy, series *contracts.Series, p strategyconfig.Params) []string {
	missing := strategy.MissingColumns(s, series)
	needsATR := p.StopMode == strategyconfig.StopATRMultiple || p.PositionSizing == strategyconfig.SizingVolatilityAdjusted
	if needsATR && !series.HasColumn(contracts.ColumnATR) && !contains(missing, contracts.ColumnATR) {
		missing = append(missing, contracts.ColumnATR)
	}
	return missing
}

func (r Request) historyStart() time.Time {
	if r.HistoryStart.IsZero() || r.HistoryStart.After(r.Start) {
		return r.Start
	}
	return r.HistoryStart
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "open"
	}
	return t.Format("2006-01-02")
}
