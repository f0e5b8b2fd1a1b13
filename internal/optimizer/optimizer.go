package optimizer

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/quantlab/internal/backtest"
	"github.com/wonny/quantlab/internal/contracts"
	"github.com/wonny/quantlab/internal/metrics"
	"github.com/wonny/quantlab/internal/strategyconfig"
	"github.com/wonny/quantlab/pkg/logger"
)

// DefaultMaxWorkers caps concurrent simulations regardless of grid size
const DefaultMaxWorkers = 8

// Request describes one parameter sweep
type Request struct {
	ID        string                             `json:"id,omitempty"` // empty = new uuid
	Base      backtest.Request                   `json:"base"`
	Grid      map[string]strategyconfig.GridSpec `json:"grid"`
	Objective Objective                          `json:"objective"`
	TopN      int                                `json:"top_n"` // 0 = all
}

// Result is one ranked combination
type Result struct {
	Rank        int                 `json:"rank"`
	Index       int                 `json:"index"`
	Params      map[string]float64  `json:"params"`
	Objective   float64             `json:"objective"`
	RunID       string              `json:"run_id"`
	Performance metrics.Performance `json:"performance"`
}

// Failure is a combination excluded from ranking
type Failure struct {
	Index  int                `json:"index"`
	Params map[string]float64 `json:"params"`
	Error  string             `json:"error"`
}

// Sweep is the outcome of a whole parameter search
type Sweep struct {
	ID        string    `json:"id"`
	Strategy  string    `json:"strategy"`
	Objective Objective `json:"objective"`
	Axes      []Axis    `json:"axes"`

	Total     int  `json:"total"`
	Completed int  `json:"completed"`
	Failed    int  `json:"failed"`
	Skipped   int  `json:"skipped"` // 취소로 실행되지 않은 조합
	Cancelled bool `json:"cancelled"`

	Top      []Result  `json:"top"`
	Failures []Failure `json:"failures"`

	// Sensitivity = std / |mean| of the objective over completed combinations
	Sensitivity contracts.Optional[float64] `json:"sensitivity"`

	Duration time.Duration `json:"duration_ns"`
}

// ProgressFunc is called after each finished combination (success or failure)
type ProgressFunc func(completed, total int)

// Optimizer runs parameter sweeps on a bounded worker pool
// ⭐ SSOT: 파라미터 탐색은 여기서만
type Optimizer struct {
	engine     *backtest.Engine
	maxWorkers int
	logger     *logger.Logger
}

// New creates an optimizer; maxWorkers < 1 uses DefaultMaxWorkers
func New(engine *backtest.Engine, maxWorkers int, log *logger.Logger) *Optimizer {
	if maxWorkers < 1 {
		maxWorkers = DefaultMaxWorkers
	}
	return &Optimizer{
		engine:     engine,
		maxWorkers: maxWorkers,
		logger:     log.WithComponent("optimizer"),
	}
}

type job struct {
	index  int
	params map[string]float64
}

type outcome struct {
	job
	report  *backtest.Report
	err     error
	skipped bool
}

// Run loads the dataset once and sweeps it
func (o *Optimizer) Run(ctx context.Context, req Request, progress ProgressFunc) (*Sweep, error) {
	symbols := append([]string(nil), req.Base.Symbols...)
	if req.Base.Benchmark != "" {
		symbols = append(symbols, req.Base.Benchmark)
	}
	from := req.Base.HistoryStart
	if from.IsZero() {
		from = req.Base.Start
	}
	ds, err := o.engine.Load(ctx, symbols, from, req.Base.End)
	if err != nil {
		return nil, err
	}
	return o.RunOnDataset(ctx, ds, req, progress)
}

// RunOnDataset sweeps the grid against one shared read-only dataset.
// A failing or panicking combination is recorded and excluded; the sweep
// continues. Cancellation is checked between combinations.
func (o *Optimizer) RunOnDataset(ctx context.Context, ds *contracts.Dataset, req Request, progress ProgressFunc) (*Sweep, error) {
	started := time.Now()

	objective, err := ParseObjective(string(req.Objective))
	if err != nil {
		return nil, err
	}
	grid, err := NewGridFor(req.Base.Strategy, req.Grid)
	if err != nil {
		return nil, err
	}

	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	total := grid.Size()
	workers := o.maxWorkers
	if total < workers {
		workers = total
	}

	sweep := &Sweep{
		ID:        req.ID,
		Strategy:  req.Base.Strategy,
		Objective: objective,
		Axes:      grid.Axes,
		Total:     total,
		Top:       []Result{},
		Failures:  []Failure{},
	}

	o.logger.WithFields(map[string]interface{}{
		"sweep_id":     sweep.ID,
		"strategy":     req.Base.Strategy,
		"combinations": total,
		"workers":      workers,
		"objective":    string(objective),
	}).Info("Starting parameter sweep")

	jobCh := make(chan job, total)
	resultCh := make(chan outcome, total)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			o.worker(ctx, workerID, ds, req.Base, jobCh, resultCh)
		}(i)
	}

	for i := 0; i < total; i++ {
		jobCh <- job{index: i, params: grid.Combination(i)}
	}
	close(jobCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	// 단일 collector: 결과 슬라이스는 여기서만 수정
	var results []Result
	processed := 0
	for out := range resultCh {
		if out.skipped {
			sweep.Skipped++
			continue
		}
		processed++
		if out.err != nil {
			sweep.Failed++
			sweep.Failures = append(sweep.Failures, Failure{Index: out.index, Params: out.params, Error: out.err.Error()})
		} else {
			sweep.Completed++
			results = append(results, Result{
				Index:       out.index,
				Params:      out.params,
				Objective:   objective.Score(out.report.Performance),
				RunID:       out.report.RunID,
				Performance: out.report.Performance,
			})
		}
		if progress != nil {
			progress(processed, total)
		}
	}

	sweep.Cancelled = ctx.Err() != nil
	sweep.Sensitivity = sensitivity(results)
	sweep.Top = rank(results, req.TopN)
	sort.Slice(sweep.Failures, func(i, j int) bool { return sweep.Failures[i].Index < sweep.Failures[j].Index })
	sweep.Duration = time.Since(started)

	o.logger.WithFields(map[string]interface{}{
		"sweep_id":  sweep.ID,
		"completed": sweep.Completed,
		"failed":    sweep.Failed,
		"skipped":   sweep.Skipped,
		"cancelled": sweep.Cancelled,
		"duration":  sweep.Duration.Seconds(),
	}).Info("Parameter sweep completed")

	return sweep, nil
}

// worker owns nothing shared except the read-only dataset
func (o *Optimizer) worker(ctx context.Context, workerID int, ds *contracts.Dataset, base backtest.Request, jobCh <-chan job, resultCh chan<- outcome) {
	for j := range jobCh {
		if ctx.Err() != nil {
			resultCh <- outcome{job: j, skipped: true}
			continue
		}

		report, err := o.runOne(ctx, ds, base, j)
		if err != nil {
			o.logger.WithError(err).WithFields(map[string]interface{}{
				"worker": workerID,
				"index":  j.index,
				"params": j.params,
			}).Warn("Combination failed")
		}
		resultCh <- outcome{job: j, report: report, err: err}
	}
}

// runOne isolates one combination, converting a panic into an error
func (o *Optimizer) runOne(ctx context.Context, ds *contracts.Dataset, base backtest.Request, j job) (report *backtest.Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.WithFields(map[string]interface{}{
				"index": j.index,
				"stack": string(debug.Stack()),
			}).Error("Combination panicked")
			report, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	req := base
	req.Params = base.Params.ApplyAll(j.params)
	// 취소는 조합 사이에서만 확인하므로 실행 중인 조합은 끝까지 진행
	return o.engine.RunOnDataset(context.WithoutCancel(ctx), ds, req)
}

// rank sorts by objective descending, ties by combination index
func rank(results []Result, topN int) []Result {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Objective != results[j].Objective {
			return results[i].Objective > results[j].Objective
		}
		return results[i].Index < results[j].Index
	})
	if topN > 0 && len(results) > topN {
		results = results[:topN]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	if results == nil {
		return []Result{}
	}
	return results
}

func sensitivity(results []Result) contracts.Optional[float64] {
	if len(results) < 2 {
		return contracts.NotComputed[float64]("sensitivity needs at least 2 completed combinations")
	}
	var sum float64
	for _, r := range results {
		sum += r.Objective
	}
	mean := sum / float64(len(results))
	if math.Abs(mean) < 1e-9 {
		return contracts.NotComputed[float64]("objective mean is ~0")
	}
	var ss float64
	for _, r := range results {
		d := r.Objective - mean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(len(results)-1))
	return contracts.Computed(std / math.Abs(mean))
}
