// Package history persists finished runs (backtests, walk-forward
// validations, parameter sweeps) together with their config hash.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/quantlab/internal/backtest"
	"github.com/wonny/quantlab/internal/optimizer"
	"github.com/wonny/quantlab/internal/strategyconfig"
	"github.com/wonny/quantlab/internal/walkforward"
)

// Run kinds
const (
	KindBacktest    = "backtest"
	KindWalkForward = "walkforward"
	KindOptimize    = "optimize"
)

// ErrNotFound is returned by Get for unknown ids
var ErrNotFound = errors.New("run not found")

// Record is one stored run. Payload holds the full JSON result.
type Record struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Strategy   string          `json:"strategy"`
	ConfigHash string          `json:"config_hash"`
	Status     string          `json:"status"`
	Summary    Summary         `json:"summary"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Summary holds the headline numbers shown in run listings
type Summary struct {
	TotalReturn float64 `json:"total_return"`
	Sharpe      float64 `json:"sharpe"`
	MaxDrawdown float64 `json:"max_drawdown"`
	Trades      int     `json:"trades"`
	Risk        string  `json:"risk,omitempty"` // walk-forward overfitting risk level
}

// Filter narrows List results
type Filter struct {
	Kind     string
	Strategy string
	Limit    int // 0 = 50
}

// Store persists run records
// ⭐ SSOT: 실행 이력 저장 인터페이스
type Store interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, f Filter) ([]Record, error)
}

// FromReport builds a record for a single backtest run.
// Empty configHash falls back to the hash of the run params.
func FromReport(r *backtest.Report, configHash string) (*Record, error) {
	hash, err := hashOrParams(configHash, r.Params)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return &Record{
		ID:         r.RunID,
		Kind:       KindBacktest,
		Strategy:   r.Strategy,
		ConfigHash: hash,
		Status:     r.Status,
		Summary: Summary{
			TotalReturn: r.Performance.TotalReturn,
			Sharpe:      r.Performance.Sharpe,
			MaxDrawdown: r.Performance.MaxDrawdown,
			Trades:      r.Performance.TradeCount,
		},
		Payload:   payload,
		CreatedAt: time.Now(),
	}, nil
}

// FromWalkForward builds a record for a walk-forward validation
func FromWalkForward(id string, res *walkforward.Result, params strategyconfig.Params, configHash string) (*Record, error) {
	hash, err := hashOrParams(configHash, params)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal walk-forward result: %w", err)
	}

	var sum Summary
	for _, f := range res.Folds {
		sum.TotalReturn += f.TestMetrics.TotalReturn
		sum.Trades += f.TestMetrics.TradeCount
	}
	if n := len(res.Folds); n > 0 {
		sum.TotalReturn /= float64(n)
	}
	if risk, ok := res.OverfittingRisk.Get(); ok {
		sum.Risk = risk.Level
	}

	status := backtest.StatusSuccess
	if len(res.Folds) == 0 {
		status = backtest.StatusFailed
	}
	return &Record{
		ID:         id,
		Kind:       KindWalkForward,
		Strategy:   res.Strategy,
		ConfigHash: hash,
		Status:     status,
		Summary:    sum,
		Payload:    payload,
		CreatedAt:  time.Now(),
	}, nil
}

// FromSweep builds a record for a parameter sweep; the summary is the best combination
func FromSweep(s *optimizer.Sweep, params strategyconfig.Params, configHash string) (*Record, error) {
	hash, err := hashOrParams(configHash, params)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal sweep: %w", err)
	}

	var sum Summary
	status := backtest.StatusFailed
	if len(s.Top) > 0 {
		best := s.Top[0].Performance
		sum = Summary{TotalReturn: best.TotalReturn, Sharpe: best.Sharpe, MaxDrawdown: best.MaxDrawdown, Trades: best.TradeCount}
		status = backtest.StatusSuccess
	}
	return &Record{
		ID:         s.ID,
		Kind:       KindOptimize,
		Strategy:   s.Strategy,
		ConfigHash: hash,
		Status:     status,
		Summary:    sum,
		Payload:    payload,
		CreatedAt:  time.Now(),
	}, nil
}

func hashOrParams(configHash string, p strategyconfig.Params) (string, error) {
	if configHash != "" {
		return configHash, nil
	}
	return strategyconfig.HashParams(p)
}
