package contracts

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"
)

// Well-known indicator column names
const (
	ColumnATR      = "atr"
	ColumnAdjClose = "adj_close"
)

// Bar is one daily OHLCV record
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Series is the priced history of one symbol with precomputed indicator
// columns aligned index-for-index with Bars. Missing values are NaN.
type Series struct {
	Symbol  string
	Bars    []Bar
	Columns map[string][]float64
}

// NewSeries validates ordering and column alignment
func NewSeries(symbol string, bars []Bar, columns map[string][]float64) (*Series, error) {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Date.After(bars[i-1].Date) {
			return nil, fmt.Errorf("series %s: dates not strictly ascending at %s",
				symbol, bars[i].Date.Format("2006-01-02"))
		}
	}
	if columns == nil {
		columns = make(map[string][]float64)
	}
	for name, values := range columns {
		if len(values) != len(bars) {
			return nil, fmt.Errorf("series %s: column %s has %d values for %d bars",
				symbol, name, len(values), len(bars))
		}
	}
	return &Series{Symbol: symbol, Bars: bars, Columns: columns}, nil
}

// Len returns the number of bars
func (s *Series) Len() int {
	return len(s.Bars)
}

// HasColumn checks if an indicator column exists
func (s *Series) HasColumn(name string) bool {
	_, ok := s.Columns[name]
	return ok
}

// Value returns column[i]; false when the column is absent or the value is NaN
func (s *Series) Value(name string, i int) (float64, bool) {
	col, ok := s.Columns[name]
	if !ok || i < 0 || i >= len(col) || math.IsNaN(col[i]) {
		return 0, false
	}
	return col[i], true
}

// IndexOnOrAfter returns the first index with date >= t, or Len() if none
func (s *Series) IndexOnOrAfter(t time.Time) int {
	return sort.Search(len(s.Bars), func(i int) bool {
		return !s.Bars[i].Date.Before(t)
	})
}

// IndexOnOrBefore returns the last index with date <= t, or -1 if none
func (s *Series) IndexOnOrBefore(t time.Time) int {
	return sort.Search(len(s.Bars), func(i int) bool {
		return s.Bars[i].Date.After(t)
	}) - 1
}

// IndexOf returns the index of an exact date
func (s *Series) IndexOf(t time.Time) (int, bool) {
	i := s.IndexOnOrAfter(t)
	if i < len(s.Bars) && s.Bars[i].Date.Equal(t) {
		return i, true
	}
	return -1, false
}

// Window returns a view over [from, to]. Slices share the backing arrays
// with capacity capped, so the view can't write past its bounds on append.
func (s *Series) Window(from, to time.Time) *Series {
	lo := s.IndexOnOrAfter(from)
	hi := s.IndexOnOrBefore(to) + 1
	if hi < lo {
		hi = lo
	}

	cols := make(map[string][]float64, len(s.Columns))
	for name, values := range s.Columns {
		cols[name] = values[lo:hi:hi]
	}
	return &Series{Symbol: s.Symbol, Bars: s.Bars[lo:hi:hi], Columns: cols}
}

// FirstDate returns the earliest bar date (zero when empty)
func (s *Series) FirstDate() time.Time {
	if len(s.Bars) == 0 {
		return time.Time{}
	}
	return s.Bars[0].Date
}

// LastDate returns the latest bar date (zero when empty)
func (s *Series) LastDate() time.Time {
	if len(s.Bars) == 0 {
		return time.Time{}
	}
	return s.Bars[len(s.Bars)-1].Date
}

// Dataset is the read-only collection of series a run operates on.
// Built once and shared by reference across optimizer workers; nothing
// mutates it after NewDataset returns.
// ⭐ SSOT: 여러 시뮬레이션이 공유하는 읽기 전용 입력
type Dataset struct {
	series  map[string]*Series
	symbols []string
}

// NewDataset indexes series by symbol
func NewDataset(series ...*Series) (*Dataset, error) {
	d := &Dataset{series: make(map[string]*Series, len(series))}
	for _, s := range series {
		if s == nil {
			continue
		}
		if _, dup := d.series[s.Symbol]; dup {
			return nil, fmt.Errorf("dataset: duplicate symbol %s", s.Symbol)
		}
		d.series[s.Symbol] = s
		d.symbols = append(d.symbols, s.Symbol)
	}
	sort.Strings(d.symbols)
	return d, nil
}

// Series returns the series for a symbol
func (d *Dataset) Series(symbol string) (*Series, bool) {
	s, ok := d.series[symbol]
	return s, ok
}

// Symbols returns a sorted copy of the symbol list
func (d *Dataset) Symbols() []string {
	return append([]string(nil), d.symbols...)
}

// Span returns the earliest first date and latest last date across symbols
func (d *Dataset) Span() (time.Time, time.Time) {
	var from, to time.Time
	for _, s := range d.series {
		if s.Len() == 0 {
			continue
		}
		if from.IsZero() || s.FirstDate().Before(from) {
			from = s.FirstDate()
		}
		if s.LastDate().After(to) {
			to = s.LastDate()
		}
	}
	return from, to
}

// TradingDates returns the sorted union of bar dates across the given symbols
func (d *Dataset) TradingDates(symbols []string) []time.Time {
	seen := make(map[time.Time]struct{})
	var dates []time.Time
	for _, sym := range symbols {
		s, ok := d.series[sym]
		if !ok {
			continue
		}
		for _, b := range s.Bars {
			if _, dup := seen[b.Date]; dup {
				continue
			}
			seen[b.Date] = struct{}{}
			dates = append(dates, b.Date)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

type seriesJSON struct {
	Symbol  string                `json:"symbol"`
	Bars    []Bar                 `json:"bars"`
	Columns map[string][]*float64 `json:"columns"`
}

// MarshalJSON encodes NaN as null so the dataset can be cached
func (d *Dataset) MarshalJSON() ([]byte, error) {
	out := make([]seriesJSON, 0, len(d.symbols))
	for _, sym := range d.symbols {
		s := d.series[sym]
		cols := make(map[string][]*float64, len(s.Columns))
		for name, values := range s.Columns {
			enc := make([]*float64, len(values))
			for i, v := range values {
				if !math.IsNaN(v) {
					v := v
					enc[i] = &v
				}
			}
			cols[name] = enc
		}
		out = append(out, seriesJSON{Symbol: sym, Bars: s.Bars, Columns: cols})
	}
	return json.Marshal(out)
}

// UnmarshalJSON rebuilds a dataset written by MarshalJSON
func (d *Dataset) UnmarshalJSON(data []byte) error {
	var raw []seriesJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	series := make([]*Series, 0, len(raw))
	for _, r := range raw {
		cols := make(map[string][]float64, len(r.Columns))
		for name, enc := range r.Columns {
			values := make([]float64, len(enc))
			for i, p := range enc {
				if p == nil {
					values[i] = math.NaN()
				} else {
					values[i] = *p
				}
			}
			cols[name] = values
		}
		s, err := NewSeries(r.Symbol, r.Bars, cols)
		if err != nil {
			return err
		}
		series = append(series, s)
	}

	built, err := NewDataset(series...)
	if err != nil {
		return err
	}
	*d = *built
	return nil
}
