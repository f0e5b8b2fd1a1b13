package backtest

import (
	"fmt"
	"sort"
	"time"

	"github.com/wonny/quantlab/internal/contracts"
	"github.com/wonny/quantlab/internal/strategyconfig"
	"github.com/wonny/quantlab/pkg/logger"
)

// Simulator turns a signal stream into fills, trades and an equity curve.
// One Simulator per run; it owns all of its mutable state.
// ⭐ SSOT: 주문 체결 시뮬레이션은 여기서만
type Simulator struct {
	params strategyconfig.Params
	logger *logger.Logger

	// Current state
	cash    float64
	day     int
	date    time.Time
	symbols []string
	states  map[string]*symbolState
	result  *SimResult
}

// SimInput is everything one simulation reads. Dataset is never mutated.
type SimInput struct {
	Dataset *contracts.Dataset
	Symbols []string
	Signals *contracts.SignalSet
	Start   time.Time
	End     time.Time
}

// Rejection records an entry that was not taken
type Rejection struct {
	Date   time.Time `json:"date"`
	Symbol string    `json:"symbol"`
	Reason string    `json:"reason"`
}

// SimResult holds simulation output
type SimResult struct {
	EquityCurve contracts.EquityCurve        `json:"equity_curve"`
	Trades      []contracts.Trade            `json:"trades"`
	Fills       []contracts.Fill             `json:"fills"`
	Trace       []contracts.PositionSnapshot `json:"trace"`
	Rejections  []Rejection                  `json:"rejections"`
	Notes       []string                     `json:"notes"`
}

type pendingEntry struct {
	signal      contracts.Signal
	signalClose float64
	atr         float64
	hasATR      bool
	pyramid     bool
}

type symbolState struct {
	series  *contracts.Series
	signals []contracts.Signal
	barCur  int
	sigCur  int

	lastClose float64

	state         contracts.PositionState
	position      *contracts.Position
	entryDay      int
	pendingEntry  *pendingEntry
	pendingExit   contracts.ExitReason
	exitReasons   []string
	cooldownUntil int
	lastFill      time.Time
}

// barOn advances the bar cursor to date and reports whether the symbol trades that day
func (st *symbolState) barOn(date time.Time) (contracts.Bar, int, bool) {
	bars := st.series.Bars
	for st.barCur < len(bars) && bars[st.barCur].Date.Before(date) {
		st.lastClose = bars[st.barCur].Close
		st.barCur++
	}
	if st.barCur < len(bars) && bars[st.barCur].Date.Equal(date) {
		return bars[st.barCur], st.barCur, true
	}
	return contracts.Bar{}, -1, false
}

// signalOn returns the signal dated exactly date. Signals after date are never read.
func (st *symbolState) signalOn(date time.Time) (contracts.Signal, bool) {
	for st.sigCur < len(st.signals) && st.signals[st.sigCur].Date.Before(date) {
		st.sigCur++
	}
	if st.sigCur < len(st.signals) && st.signals[st.sigCur].Date.Equal(date) {
		return st.signals[st.sigCur], true
	}
	return contracts.Signal{}, false
}

// NewSimulator creates a new trading simulator
func NewSimulator(params strategyconfig.Params, log *logger.Logger) *Simulator {
	return &Simulator{
		params: params,
		logger: log.WithComponent("backtest.simulator"),
	}
}

type today struct {
	st     *symbolState
	symbol string
	bar    contracts.Bar
	idx    int
}

// Run simulates [Start, End] one trading date at a time in ascending order
func (s *Simulator) Run(in SimInput) (*SimResult, error) {
	if err := s.reset(in); err != nil {
		return nil, err
	}

	dates := tradingDates(in.Dataset, s.symbols, in.Start, in.End)
	if len(dates) == 0 {
		return nil, &DataInsufficientError{Need: 1, Detail: "no trading dates in range"}
	}

	for k, date := range dates {
		s.day = k
		s.date = date

		var active []today
		for _, sym := range s.symbols {
			st := s.states[sym]
			if bar, idx, ok := st.barOn(date); ok {
				active = append(active, today{st: st, symbol: sym, bar: bar, idx: idx})
			}
		}

		if s.params.ExecutionPrice == strategyconfig.ExecNextOpen {
			if err := s.fillAtOpen(active); err != nil {
				return nil, err
			}
		}

		var candidates []today
		for _, t := range active {
			t.st.lastClose = t.bar.Close
			sig, hasSig := t.st.signalOn(date)

			switch t.st.state {
			case contracts.StateLong:
				wantsAdd, err := s.evaluateOpen(t, sig, hasSig)
				if err != nil {
					return nil, err
				}
				if wantsAdd {
					candidates = append(candidates, t)
				}
			case contracts.StateFlat:
				if hasSig && sig.IsEntry() {
					candidates = append(candidates, t)
				}
			}
		}

		if err := s.processEntries(candidates); err != nil {
			return nil, err
		}
		if err := s.mark(); err != nil {
			return nil, err
		}
	}

	if err := s.liquidate(); err != nil {
		return nil, err
	}
	return s.result, nil
}

func (s *Simulator) reset(in SimInput) error {
	s.cash = s.params.InitialCapital
	s.symbols = append([]string(nil), in.Symbols...)
	sort.Strings(s.symbols) // constraint tie-break: symbol id 오름차순
	s.states = make(map[string]*symbolState, len(in.Symbols))
	s.result = &SimResult{}

	for _, sym := range s.symbols {
		series, ok := in.Dataset.Series(sym)
		if !ok {
			return &DataInsufficientError{Symbol: sym, Need: 1, Detail: "symbol not in dataset"}
		}
		var signals []contracts.Signal
		if in.Signals != nil {
			signals, _ = in.Signals.Get(sym)
		}
		s.states[sym] = &symbolState{
			series:  series,
			signals: signals,
			state:   contracts.StateFlat,
		}
	}
	return nil
}

// fillAtOpen executes yesterday's pending orders at today's open. Exits
// go first so their cash is available to entries.
func (s *Simulator) fillAtOpen(active []today) error {
	for _, t := range active {
		if t.st.state != contracts.StatePendingExit {
			continue
		}
		if err := s.closePosition(t.st, t.symbol, t.bar.Open, t.st.pendingExit, false); err != nil {
			return err
		}
	}

	for _, t := range active {
		pe := t.st.pendingEntry
		if pe == nil {
			continue
		}
		t.st.pendingEntry = nil
		filled, err := s.openOrAdd(t.st, t.symbol, pe, t.bar.Open)
		if err != nil {
			return err
		}
		if !filled && !pe.pyramid {
			t.st.state = contracts.StateFlat
		}
	}
	return nil
}

// evaluateOpen runs the exit checks for a held symbol and reports whether
// an entry signal asks to add to it.
func (s *Simulator) evaluateOpen(t today, sig contracts.Signal, hasSig bool) (bool, error) {
	st := t.st
	pos := st.position

	// 종가 체결 모드에서 오늘 진입한 포지션은 다음 날부터 점검
	if s.params.ExecutionPrice == strategyconfig.ExecClose && st.lastFill.Equal(s.date) {
		return false, nil
	}

	if reason, hit := exitTrigger(pos, t.bar.Close, sig, hasSig); hit {
		st.exitReasons = nil
		if reason == contracts.ExitSignal {
			st.exitReasons = sig.Reasons
		}
		if s.params.ExecutionPrice == strategyconfig.ExecClose {
			return false, s.closePosition(st, t.symbol, t.bar.Close, reason, false)
		}
		st.state = contracts.StatePendingExit
		st.pendingExit = reason
		return false, nil
	}

	ratchet(pos, t.bar.Close, s.params.TrailingStop)

	if !hasSig || !sig.IsEntry() || st.pendingEntry != nil {
		return false, nil
	}
	if !s.params.AllowPyramid {
		s.reject(t.symbol, "pyramiding not allowed")
		return false, nil
	}
	if len(pos.Lots) >= s.params.MaxPyramidUnits {
		s.reject(t.symbol, fmt.Sprintf("pyramid limit %d reached", s.params.MaxPyramidUnits))
		return false, nil
	}
	return true, nil
}

// processEntries applies portfolio constraints to today's entry requests.
// Candidates arrive in symbol order, which is the tie-break.
func (s *Simulator) processEntries(candidates []today) error {
	occupied := 0
	for _, st := range s.states {
		if st.state != contracts.StateFlat {
			occupied++
		}
	}

	for _, t := range candidates {
		st := t.st
		sig, _ := st.signalOn(s.date)
		pyramid := st.state == contracts.StateLong

		if st.lastFill.Equal(s.date) {
			s.reject(t.symbol, "already filled today")
			continue
		}
		if !pyramid {
			if s.day < st.cooldownUntil {
				s.reject(t.symbol, "re-entry cooldown")
				continue
			}
			if occupied >= s.params.MaxPositions {
				s.reject(t.symbol, fmt.Sprintf("max_positions %d reached", s.params.MaxPositions))
				continue
			}
		}

		atr, hasATR := st.series.Value(contracts.ColumnATR, t.idx)
		pe := &pendingEntry{
			signal:      sig,
			signalClose: t.bar.Close,
			atr:         atr,
			hasATR:      hasATR,
			pyramid:     pyramid,
		}

		if s.params.ExecutionPrice == strategyconfig.ExecClose {
			filled, err := s.openOrAdd(st, t.symbol, pe, t.bar.Close)
			if err != nil {
				return err
			}
			if filled && !pyramid {
				occupied++
			}
			continue
		}

		st.pendingEntry = pe
		if !pyramid {
			st.state = contracts.StatePendingEntry
			occupied++
		}
	}
	return nil
}

// openOrAdd sizes and fills a buy. Returns false when the entry was skipped.
func (s *Simulator) openOrAdd(st *symbolState, symbol string, pe *pendingEntry, base float64) (bool, error) {
	if s.params.StopMode == strategyconfig.StopATRMultiple && !pe.pyramid && !pe.hasATR {
		s.reject(symbol, "atr unavailable for stop levels")
		return false, nil
	}

	price := buyPrice(s.params, base)
	notional, why := entryNotional(s.params, s.equity(), pe)
	if why != "" {
		s.reject(symbol, why)
		return false, nil
	}
	shares := sharesFor(notional, price)
	if shares < 1 {
		s.reject(symbol, "position size rounds to zero shares")
		return false, nil
	}

	fee := feeFor(s.params, price*float64(shares))
	cost := price*float64(shares) + fee
	if cost > s.cash {
		s.logger.WithFields(map[string]interface{}{
			"date":   s.date.Format("2006-01-02"),
			"symbol": symbol,
			"cost":   cost,
			"cash":   s.cash,
		}).Warn("Insufficient cash, entry skipped")
		s.reject(symbol, "insufficient cash")
		return false, nil
	}

	if err := s.recordFill(st, contracts.Fill{
		Symbol: symbol, Date: s.date, Side: contracts.SideBuy, Price: price, Shares: shares, Fee: fee,
	}, false); err != nil {
		return false, err
	}
	s.cash -= cost

	lot := contracts.Lot{Date: s.date, Price: price, Shares: shares, Fee: fee}
	if pe.pyramid {
		if st.position == nil {
			return false, &InvariantError{Date: s.date, Symbol: symbol, Detail: "pyramid add without open position"}
		}
		st.position.AddLot(lot)
		return true, nil
	}

	stop, target, distance := exitLevels(s.params, price, pe.atr)
	pos := &contracts.Position{
		Symbol:       symbol,
		SignalDate:   pe.signal.Date,
		EntryDate:    s.date,
		StopPrice:    stop,
		TargetPrice:  target,
		StopDistance: distance,
		HighestClose: price,
		Reasons:      pe.signal.Reasons,
	}
	pos.AddLot(lot)

	st.position = pos
	st.state = contracts.StateLong
	st.entryDay = s.day

	s.logger.WithFields(map[string]interface{}{
		"date":   s.date.Format("2006-01-02"),
		"symbol": symbol,
		"price":  price,
		"shares": shares,
		"stop":   stop,
		"target": target,
	}).Debug("Entry filled")
	return true, nil
}

// closePosition sells the whole position. settle marks the end-of-data
// close-out, which is a valuation rather than a trading decision and so
// may share a date with the entry fill.
func (s *Simulator) closePosition(st *symbolState, symbol string, base float64, reason contracts.ExitReason, settle bool) error {
	pos := st.position
	if pos == nil {
		return &InvariantError{Date: s.date, Symbol: symbol, Detail: "exit without open position"}
	}

	price := sellPrice(s.params, base)
	proceeds := price * float64(pos.Shares)
	fee := feeFor(s.params, proceeds)

	if err := s.recordFill(st, contracts.Fill{
		Symbol: symbol, Date: s.date, Side: contracts.SideSell, Price: price, Shares: pos.Shares, Fee: fee,
	}, settle); err != nil {
		return err
	}
	s.cash += proceeds - fee

	costBasis := pos.EntryPrice*float64(pos.Shares) + pos.EntryFees
	pnl := proceeds - fee - costBasis

	reasons := append([]string(nil), pos.Reasons...)
	reasons = append(reasons, st.exitReasons...)
	reasons = append(reasons, string(reason))

	trade := contracts.Trade{
		Symbol:      symbol,
		SignalDate:  pos.SignalDate,
		EntryDate:   pos.EntryDate,
		EntryPrice:  pos.EntryPrice,
		ExitDate:    s.date,
		ExitPrice:   price,
		Shares:      pos.Shares,
		Fees:        pos.EntryFees + fee,
		PnL:         pnl,
		HoldingDays: s.day - st.entryDay,
		ExitReason:  reason,
		Reasons:     reasons,
	}
	if costBasis > 0 {
		trade.ReturnPct = pnl / costBasis
	}
	s.result.Trades = append(s.result.Trades, trade)

	st.position = nil
	st.state = contracts.StateFlat
	st.pendingExit = ""
	st.exitReasons = nil

	// cooldown: 청산일 포함 N 거래일 동안 재진입 차단
	st.cooldownUntil = s.day + 1
	if !s.params.AllowReentry {
		st.cooldownUntil += s.params.ReentryCooldownDays
	}

	s.logger.WithFields(map[string]interface{}{
		"date":   s.date.Format("2006-01-02"),
		"symbol": symbol,
		"reason": string(reason),
		"pnl":    pnl,
	}).Debug("Position closed")
	return nil
}

// recordFill appends to the fill ledger and enforces one fill per symbol per date
func (s *Simulator) recordFill(st *symbolState, f contracts.Fill, settle bool) error {
	if !settle && st.lastFill.Equal(f.Date) {
		return &InvariantError{Date: f.Date, Symbol: f.Symbol, Detail: "second fill on the same date"}
	}
	st.lastFill = f.Date
	s.result.Fills = append(s.result.Fills, f)
	return nil
}

// equity marks open positions at their latest close
func (s *Simulator) equity() float64 {
	return s.cash + s.positionValue()
}

func (s *Simulator) positionValue() float64 {
	total := 0.0
	for _, st := range s.states {
		if st.position != nil {
			total += st.position.MarketValue(st.lastClose)
		}
	}
	return total
}

// mark appends today's equity point and position trace
func (s *Simulator) mark() error {
	posValue := s.positionValue()
	equity := s.cash + posValue
	if equity < 0 {
		return &InvariantError{Date: s.date, Detail: fmt.Sprintf("negative equity %.2f", equity)}
	}

	s.result.EquityCurve = append(s.result.EquityCurve, contracts.EquityPoint{
		Date:          s.date,
		Cash:          s.cash,
		PositionValue: posValue,
		Equity:        equity,
	})

	for _, sym := range s.symbols {
		st := s.states[sym]
		if st.state == contracts.StateFlat {
			continue
		}
		snap := contracts.PositionSnapshot{
			Date:   s.date,
			Symbol: sym,
			State:  st.state,
			Close:  st.lastClose,
		}
		if st.position != nil {
			snap.Shares = st.position.Shares
			snap.StopPrice = st.position.StopPrice
			snap.TargetPrice = st.position.TargetPrice
			snap.Value = st.position.MarketValue(st.lastClose)
		}
		s.result.Trace = append(s.result.Trace, snap)
	}
	return nil
}

// liquidate closes everything still open at the last close and restates
// the final equity point net of exit costs.
func (s *Simulator) liquidate() error {
	for _, sym := range s.symbols {
		st := s.states[sym]
		if st.pendingEntry != nil && !st.pendingEntry.pyramid {
			s.result.Notes = append(s.result.Notes,
				fmt.Sprintf("pending entry for %s dropped at end of data", sym))
			st.pendingEntry = nil
			st.state = contracts.StateFlat
		}
		if st.position == nil {
			continue
		}
		// 마지막 날 발생한 청산 신호는 사유를 유지하고 종가로 정산
		reason := contracts.ExitEndOfData
		if st.state == contracts.StatePendingExit && st.pendingExit != "" {
			reason = st.pendingExit
		} else {
			st.exitReasons = nil
		}
		if err := s.closePosition(st, sym, st.lastClose, reason, true); err != nil {
			return err
		}
	}

	if n := len(s.result.EquityCurve); n > 0 {
		last := &s.result.EquityCurve[n-1]
		last.Cash = s.cash
		last.PositionValue = 0
		last.Equity = s.cash
		if last.Equity < 0 {
			return &InvariantError{Date: s.date, Detail: fmt.Sprintf("negative equity %.2f after liquidation", last.Equity)}
		}
	}
	return nil
}

func (s *Simulator) reject(symbol, reason string) {
	s.result.Rejections = append(s.result.Rejections, Rejection{Date: s.date, Symbol: symbol, Reason: reason})
	s.logger.WithFields(map[string]interface{}{
		"date":   s.date.Format("2006-01-02"),
		"symbol": symbol,
		"reason": reason,
	}).Debug("Entry rejected")
}

// tradingDates is the union of bar dates for symbols within [from, to]
func tradingDates(ds *contracts.Dataset, symbols []string, from, to time.Time) []time.Time {
	var out []time.Time
	for _, d := range ds.TradingDates(symbols) {
		if d.Before(from) || d.After(to) {
			continue
		}
		out = append(out, d)
	}
	return out
}
