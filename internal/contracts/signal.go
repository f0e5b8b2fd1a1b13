package contracts

import (
	"fmt"
	"time"
)

// Action is the discrete trading decision carried by a Signal
type Action string

const (
	ActionEnter Action = "enter"
	ActionHold  Action = "hold"
	ActionExit  Action = "exit"
)

// Valid reports whether a is one of the three known actions
func (a Action) Valid() bool {
	switch a {
	case ActionEnter, ActionHold, ActionExit:
		return true
	}
	return false
}

// Regime labels the market state a signal was produced under (diagnostics only)
type Regime string

const (
	RegimeBull     Regime = "bull"
	RegimeBear     Regime = "bear"
	RegimeSideways Regime = "sideways"
	RegimeUnknown  Regime = "unknown"
)

// Signal is one strategy decision for one symbol on one date
// ⭐ SSOT: Strategy → Simulator 시그널 전달
type Signal struct {
	Symbol    string             `json:"symbol"`
	Date      time.Time          `json:"date"`
	Action    Action             `json:"action"`
	Score     float64            `json:"score"`      // 0 ~ 100
	SubScores map[string]float64 `json:"sub_scores"` // 0 ~ 100 each
	Reasons   []string           `json:"reasons"`
	Regime    Regime             `json:"regime"`
}

// Validate checks the signal is well formed
func (s Signal) Validate() error {
	if !s.Action.Valid() {
		return fmt.Errorf("signal %s %s: unknown action %q", s.Symbol, s.Date.Format("2006-01-02"), s.Action)
	}
	if s.Score < 0 || s.Score > 100 {
		return fmt.Errorf("signal %s %s: score %.2f out of [0,100]", s.Symbol, s.Date.Format("2006-01-02"), s.Score)
	}
	for name, v := range s.SubScores {
		if v < 0 || v > 100 {
			return fmt.Errorf("signal %s %s: sub-score %s=%.2f out of [0,100]", s.Symbol, s.Date.Format("2006-01-02"), name, v)
		}
	}
	return nil
}

// IsEntry checks if the signal requests an entry
func (s Signal) IsEntry() bool {
	return s.Action == ActionEnter
}

// IsExit checks if the signal requests an exit
func (s Signal) IsExit() bool {
	return s.Action == ActionExit
}

// SignalSet holds every symbol's signal stream for one run, ascending by date
type SignalSet struct {
	BySymbol map[string][]Signal `json:"by_symbol"`
}

// NewSignalSet creates an empty set
func NewSignalSet() *SignalSet {
	return &SignalSet{BySymbol: make(map[string][]Signal)}
}

// Put stores the stream for a symbol after checking order and shape
func (s *SignalSet) Put(symbol string, signals []Signal) error {
	for i, sig := range signals {
		if sig.Symbol != symbol {
			return fmt.Errorf("signal %d for %s carries symbol %q", i, symbol, sig.Symbol)
		}
		if err := sig.Validate(); err != nil {
			return err
		}
		if i > 0 && !sig.Date.After(signals[i-1].Date) {
			return fmt.Errorf("signals for %s not strictly ascending at %s", symbol, sig.Date.Format("2006-01-02"))
		}
	}
	s.BySymbol[symbol] = signals
	return nil
}

// Get returns signals for a symbol
func (s *SignalSet) Get(symbol string) ([]Signal, bool) {
	signals, ok := s.BySymbol[symbol]
	return signals, ok
}

// Count returns the number of symbols with signals
func (s *SignalSet) Count() int {
	return len(s.BySymbol)
}
