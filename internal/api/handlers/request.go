package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wonny/quantlab/internal/backtest"
	"github.com/wonny/quantlab/internal/strategy"
	"github.com/wonny/quantlab/internal/strategyconfig"
)

const dateLayout = "2006-01-02"

// RunRequest is the shared body of backtest, walk-forward and optimize calls.
// config_yaml (a full strategy file) is applied first, then the explicit fields.
type RunRequest struct {
	ConfigYAML string   `json:"config_yaml"`
	Strategy   string   `json:"strategy"` // variant
	Symbols    []string `json:"symbols"`
	Start      string   `json:"start"` // YYYY-MM-DD, optional
	End        string   `json:"end"`   // YYYY-MM-DD, optional
	Benchmark  string   `json:"benchmark"`

	// Params overlays individual keys on the config params
	Params json.RawMessage `json:"params"`

	WalkForward *strategyconfig.WalkForward         `json:"walk_forward"`
	Grid        map[string]strategyconfig.GridSpec `json:"grid"`
	Objective   string                             `json:"objective"`
	TopN        *int                               `json:"top_n"`
}

// resolved is a validated request ready for the engine
type resolved struct {
	req        backtest.Request
	config     *strategyconfig.Config
	configHash string
}

func decodeRunRequest(r *http.Request) (*RunRequest, error) {
	var body RunRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	return &body, nil
}

func (b *RunRequest) resolve() (*resolved, error) {
	var cfg *strategyconfig.Config
	if b.ConfigYAML != "" {
		parsed, err := strategyconfig.Parse([]byte(b.ConfigYAML))
		var ve strategyconfig.ValidationError
		if err != nil && !errors.As(err, &ve) {
			return nil, strategyconfig.ValidationError{Field: "config_yaml", Message: err.Error()}
		}
		if err != nil {
			return nil, err
		}
		cfg = parsed
	} else {
		cfg = strategyconfig.DefaultConfig(b.Strategy)
	}

	if b.Strategy != "" {
		cfg.Strategy.Variant = b.Strategy
	}
	if b.Benchmark != "" {
		cfg.Benchmark = b.Benchmark
	}
	if len(b.Params) > 0 {
		dec := json.NewDecoder(bytes.NewReader(b.Params))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg.Params); err != nil {
			return nil, strategyconfig.ValidationError{Field: "params", Message: err.Error()}
		}
	}
	if b.WalkForward != nil {
		cfg.WalkForward = *b.WalkForward
	}
	if b.Grid != nil {
		cfg.Optimize.Grid = b.Grid
	}
	if b.Objective != "" {
		cfg.Optimize.Objective = b.Objective
	}
	if b.TopN != nil {
		cfg.Optimize.TopN = *b.TopN
	}
	if err := strategyconfig.Validate(cfg); err != nil {
		return nil, err
	}
	if _, err := strategy.New(cfg.Strategy.Variant); err != nil {
		return nil, strategyconfig.ValidationError{Field: "strategy", Message: err.Error()}
	}

	start, err := parseDate("start", b.Start)
	if err != nil {
		return nil, err
	}
	end, err := parseDate("end", b.End)
	if err != nil {
		return nil, err
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return nil, strategyconfig.ValidationError{Field: "end", Message: "must not be before start"}
	}

	hash, err := strategyconfig.Hash(cfg)
	if err != nil {
		return nil, err
	}

	return &resolved{
		req: backtest.Request{
			Strategy:  cfg.Strategy.Variant,
			Symbols:   b.Symbols,
			Start:     start,
			End:       end,
			Params:    cfg.Params,
			Benchmark: cfg.Benchmark,
		},
		config:     cfg,
		configHash: hash,
	}, nil
}

func parseDate(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, strategyconfig.ValidationError{Field: field, Message: "expected YYYY-MM-DD"}
	}
	return t, nil
}

// statusFor maps engine errors to HTTP status codes
func statusFor(err error) int {
	var ve strategyconfig.ValidationError
	var insufficient *backtest.DataInsufficientError
	var contract *backtest.DataContractError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &insufficient), errors.As(err, &contract):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
