package backtest

import (
	"time"

	"github.com/google/uuid"

	"github.com/wonny/quantlab/internal/contracts"
	"github.com/wonny/quantlab/internal/metrics"
	"github.com/wonny/quantlab/internal/strategyconfig"
)

// Run status
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Report is the flat, serializable outcome of one backtest run.
// Optional sections are always present in JSON as computed / not_computed.
type Report struct {
	RunID    string                `json:"run_id"`
	Strategy string                `json:"strategy"`
	Symbols  []string              `json:"symbols"`
	Params   strategyconfig.Params `json:"params"`

	RequestedStart time.Time `json:"requested_start"`
	RequestedEnd   time.Time `json:"requested_end"`
	ActualStart    time.Time `json:"actual_start"`
	ActualEnd      time.Time `json:"actual_end"`

	Status string   `json:"status"`
	Error  string   `json:"error,omitempty"`
	Notes  []string `json:"notes"`

	Performance metrics.Performance          `json:"performance"`
	EquityCurve contracts.EquityCurve        `json:"equity_curve"`
	Trades      []contracts.Trade            `json:"trades"`
	Trace       []contracts.PositionSnapshot `json:"trace"`
	Rejections  []Rejection                  `json:"rejections"`

	Baseline        contracts.Optional[metrics.BaselineComparison] `json:"baseline"`
	OverfittingRisk contracts.Optional[metrics.OverfitRisk]        `json:"overfitting_risk"`

	Duration time.Duration `json:"duration_ns"`
}

func newReport(req Request) *Report {
	return &Report{
		RunID:           uuid.New().String(),
		Strategy:        req.Strategy,
		Symbols:         append([]string(nil), req.Symbols...),
		Params:          req.Params,
		RequestedStart:  req.Start,
		RequestedEnd:    req.End,
		Status:          StatusSuccess,
		Notes:           []string{},
		Baseline:        contracts.NotComputed[metrics.BaselineComparison]("run did not complete"),
		OverfittingRisk: contracts.NotComputed[metrics.OverfitRisk]("single run; overfitting risk needs walk-forward folds"),
	}
}

// fail marks the report failed and returns err unchanged
func (r *Report) fail(err error) error {
	r.Status = StatusFailed
	r.Error = err.Error()
	return err
}

// Succeeded checks the run status
func (r *Report) Succeeded() bool {
	return r.Status == StatusSuccess
}

func (r *Report) note(msg string) {
	r.Notes = append(r.Notes, msg)
}
