package contracts

import "time"

// PositionState is the per-symbol simulator state
type PositionState string

const (
	StateFlat         PositionState = "FLAT"
	StatePendingEntry PositionState = "PENDING_ENTRY"
	StateLong         PositionState = "LONG"
	StatePendingExit  PositionState = "PENDING_EXIT"
)

// Lot is one fill that opened or added to a position
type Lot struct {
	Date   time.Time `json:"date"`
	Price  float64   `json:"price"`
	Shares int64     `json:"shares"`
	Fee    float64   `json:"fee"`
}

// Position is an open holding owned by a single simulator run
type Position struct {
	Symbol       string    `json:"symbol"`
	SignalDate   time.Time `json:"signal_date"`
	EntryDate    time.Time `json:"entry_date"`
	EntryPrice   float64   `json:"entry_price"` // share-weighted over lots
	Shares       int64     `json:"shares"`
	StopPrice    float64   `json:"stop_price"`
	TargetPrice  float64   `json:"target_price"`
	StopDistance float64   `json:"stop_distance"` // trailing 기준 거리
	HighestClose float64   `json:"highest_close"`
	EntryFees    float64   `json:"entry_fees"`
	Lots         []Lot     `json:"lots"`
	Reasons      []string  `json:"reasons"`
}

// AddLot appends a fill and recomputes the average entry price
func (p *Position) AddLot(l Lot) {
	cost := p.EntryPrice*float64(p.Shares) + l.Price*float64(l.Shares)
	p.Shares += l.Shares
	if p.Shares > 0 {
		p.EntryPrice = cost / float64(p.Shares)
	}
	p.EntryFees += l.Fee
	p.Lots = append(p.Lots, l)
}

// MarketValue returns shares marked at price
func (p *Position) MarketValue(price float64) float64 {
	return float64(p.Shares) * price
}

// PositionSnapshot is one row of the per-date position trace
type PositionSnapshot struct {
	Date        time.Time     `json:"date"`
	Symbol      string        `json:"symbol"`
	State       PositionState `json:"state"`
	Shares      int64         `json:"shares"`
	Close       float64       `json:"close"`
	StopPrice   float64       `json:"stop_price,omitempty"`
	TargetPrice float64       `json:"target_price,omitempty"`
	Value       float64       `json:"value"`
}
