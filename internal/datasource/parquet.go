package datasource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/wonny/quantlab/internal/contracts"
	"github.com/wonny/quantlab/pkg/logger"
)

// ParquetSource reads one bar file and one indicator file per symbol:
//
//	<Dir>/daily/<SYMBOL>.parquet
//	<Dir>/indicators/<SYMBOL>.parquet
type ParquetSource struct {
	Dir    string
	logger *logger.Logger
}

// BarRecord is the on-disk schema for daily bars
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
}

// IndicatorRecord is one long-format indicator cell (NaN cells are not written)
type IndicatorRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"`
	Name      string  `parquet:"name"`
	Value     float64 `parquet:"value"`
}

// NewParquetSource creates a source rooted at dir
func NewParquetSource(dir string, log *logger.Logger) *ParquetSource {
	return &ParquetSource{
		Dir:    dir,
		logger: log.WithComponent("datasource.parquet"),
	}
}

// Name identifies the source in cache keys and errors
func (s *ParquetSource) Name() string {
	return SourceParquet
}

func (s *ParquetSource) barPath(symbol string) string {
	return filepath.Join(s.Dir, "daily", symbol+".parquet")
}

func (s *ParquetSource) indicatorPath(symbol string) string {
	return filepath.Join(s.Dir, "indicators", symbol+".parquet")
}

// Load reads symbols over [from, to]; zero bounds are open.
// A symbol without a bar file is skipped with a warning.
func (s *ParquetSource) Load(ctx context.Context, symbols []string, from, to time.Time) (*contracts.Dataset, error) {
	var series []*contracts.Series
	for _, sym := range dedupe(symbols) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		barRecs, err := readParquetFile[BarRecord](s.barPath(sym))
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.WithField("symbol", sym).Warn("No bar file for symbol")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read bars %s: %w", sym, err)
		}

		indRecs, err := readParquetFile[IndicatorRecord](s.indicatorPath(sym))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read indicators %s: %w", sym, err)
		}

		bars := make([]contracts.Bar, 0, len(barRecs))
		for _, r := range barRecs {
			d := time.UnixMilli(r.Timestamp).UTC()
			if !inRange(d, from, to) {
				continue
			}
			bars = append(bars, contracts.Bar{Date: d, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume})
		}
		if len(bars) == 0 {
			continue
		}

		cells := make([]indicatorValue, 0, len(indRecs))
		for _, r := range indRecs {
			cells = append(cells, indicatorValue{Date: time.UnixMilli(r.Timestamp).UTC(), Name: r.Name, Value: r.Value})
		}

		ser, err := assemble(sym, bars, cells)
		if err != nil {
			return nil, err
		}
		series = append(series, ser)
	}
	return contracts.NewDataset(series...)
}

// WriteSeries replaces the bar and indicator files of one symbol
func (s *ParquetSource) WriteSeries(series *contracts.Series) error {
	bars := make([]BarRecord, len(series.Bars))
	for i, b := range series.Bars {
		bars[i] = BarRecord{
			Symbol:    series.Symbol,
			Timestamp: b.Date.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}

	names := make([]string, 0, len(series.Columns))
	for name := range series.Columns {
		names = append(names, name)
	}
	sort.Strings(names)

	var cells []IndicatorRecord
	for _, name := range names {
		for i, b := range series.Bars {
			v, ok := series.Value(name, i)
			if !ok {
				continue
			}
			cells = append(cells, IndicatorRecord{
				Symbol:    series.Symbol,
				Timestamp: b.Date.UnixMilli(),
				Name:      name,
				Value:     v,
			})
		}
	}

	if err := writeParquetFile(s.barPath(series.Symbol), bars); err != nil {
		return fmt.Errorf("write bars %s: %w", series.Symbol, err)
	}
	if err := writeParquetFile(s.indicatorPath(series.Symbol), cells); err != nil {
		return fmt.Errorf("write indicators %s: %w", series.Symbol, err)
	}
	return nil
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return parquet.ReadFile[T](path)
}
