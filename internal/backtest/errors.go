package backtest

import (
	"fmt"
	"strings"
	"time"
)

// DataInsufficientError: not enough priced history to run
type DataInsufficientError struct {
	Symbol string
	Have   int
	Need   int
	Detail string
}

func (e *DataInsufficientError) Error() string {
	msg := fmt.Sprintf("insufficient data: have %d bars, need %d", e.Have, e.Need)
	if e.Symbol != "" {
		msg = fmt.Sprintf("insufficient data for %s: have %d bars, need %d", e.Symbol, e.Have, e.Need)
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// DataContractError: a required indicator column is absent
type DataContractError struct {
	Symbol  string
	Missing []string
}

func (e *DataContractError) Error() string {
	return fmt.Sprintf("data contract violated for %s: missing columns [%s]",
		e.Symbol, strings.Join(e.Missing, ", "))
}

// InvariantError: the simulator reached an impossible state.
// 시장 상황이 아니라 로직 결함이므로 해당 run 중단
type InvariantError struct {
	Date   time.Time
	Symbol string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("simulator invariant violated on %s for %s: %s",
		e.Date.Format("2006-01-02"), e.Symbol, e.Detail)
}
