package contracts

import "time"

// ExitReason names the rule that closed a position
type ExitReason string

const (
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
	ExitSignal     ExitReason = "signal"
	ExitEndOfData  ExitReason = "end_of_data"
)

// Side is the direction of a fill
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Fill is one executed order in the simulator ledger
type Fill struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Side   Side      `json:"side"`
	Price  float64   `json:"price"` // slippage 반영 후 체결가
	Shares int64     `json:"shares"`
	Fee    float64   `json:"fee"`
}

// Notional returns price × shares
func (f Fill) Notional() float64 {
	return f.Price * float64(f.Shares)
}

// Trade is an immutable closed-position record
type Trade struct {
	Symbol      string     `json:"symbol"`
	SignalDate  time.Time  `json:"signal_date"`
	EntryDate   time.Time  `json:"entry_date"`
	EntryPrice  float64    `json:"entry_price"`
	ExitDate    time.Time  `json:"exit_date"`
	ExitPrice   float64    `json:"exit_price"`
	Shares      int64      `json:"shares"`
	Fees        float64    `json:"fees"`
	PnL         float64    `json:"pnl"` // 수수료 포함 실현 손익
	ReturnPct   float64    `json:"return_pct"`
	HoldingDays int        `json:"holding_days"` // trading days
	ExitReason  ExitReason `json:"exit_reason"`
	Reasons     []string   `json:"reasons"`
}

// IsWin checks if the trade made money after costs
func (t Trade) IsWin() bool {
	return t.PnL > 0
}

// EquityPoint is one date of the equity curve
type EquityPoint struct {
	Date          time.Time `json:"date"`
	Cash          float64   `json:"cash"`
	PositionValue float64   `json:"position_value"`
	Equity        float64   `json:"equity"`
}

// EquityCurve is strictly ascending by date
type EquityCurve []EquityPoint

// Returns computes simple daily returns (len-1 values)
func (c EquityCurve) Returns() []float64 {
	if len(c) < 2 {
		return nil
	}
	out := make([]float64, 0, len(c)-1)
	for i := 1; i < len(c); i++ {
		prev := c[i-1].Equity
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, c[i].Equity/prev-1)
	}
	return out
}

// Dates returns the curve's dates
func (c EquityCurve) Dates() []time.Time {
	out := make([]time.Time, len(c))
	for i, p := range c {
		out[i] = p.Date
	}
	return out
}
