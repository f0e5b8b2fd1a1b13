package datasource

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/quantlab/internal/contracts"
	"github.com/wonny/quantlab/pkg/logger"
)

// Required leading CSV columns; any further column is an indicator
var csvPriceColumns = []string{"date", "open", "high", "low", "close", "volume"}

// CSVSource reads <Dir>/<SYMBOL>.csv. Empty or "NaN" indicator cells are missing.
type CSVSource struct {
	Dir    string
	logger *logger.Logger
}

// NewCSVSource creates a source rooted at dir
func NewCSVSource(dir string, log *logger.Logger) *CSVSource {
	return &CSVSource{
		Dir:    dir,
		logger: log.WithComponent("datasource.csv"),
	}
}

// Name identifies the source in cache keys and errors
func (s *CSVSource) Name() string {
	return SourceCSV
}

// Symbols lists every <SYMBOL>.csv under Dir, sorted
func (s *CSVSource) Symbols() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		out = append(out, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
	}
	return dedupe(out), nil
}

// Load reads symbols over [from, to]; zero bounds are open
func (s *CSVSource) Load(ctx context.Context, symbols []string, from, to time.Time) (*contracts.Dataset, error) {
	var series []*contracts.Series
	for _, sym := range dedupe(symbols) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		f, err := os.Open(filepath.Join(s.Dir, sym+".csv"))
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.WithField("symbol", sym).Warn("No csv file for symbol")
			continue
		}
		if err != nil {
			return nil, err
		}

		ser, err := ReadCSV(sym, f, from, to)
		f.Close()
		if err != nil {
			return nil, err
		}
		if ser.Len() > 0 {
			series = append(series, ser)
		}
	}
	return contracts.NewDataset(series...)
}

// ReadCSV parses one symbol's history, keeping rows within [from, to]
func ReadCSV(symbol string, r io.Reader, from, to time.Time) (*contracts.Series, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("csv %s: read header: %w", symbol, err)
	}
	for i, want := range csvPriceColumns {
		if i >= len(header) || strings.ToLower(strings.TrimSpace(header[i])) != want {
			return nil, fmt.Errorf("csv %s: column %d must be %q", symbol, i+1, want)
		}
	}
	indicators := header[len(csvPriceColumns):]

	var bars []contracts.Bar
	var cells []indicatorValue
	line := 1
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("csv %s line %d: %w", symbol, line, err)
		}

		bar, err := parseBar(rec)
		if err != nil {
			return nil, fmt.Errorf("csv %s line %d: %w", symbol, line, err)
		}
		if !inRange(bar.Date, from, to) {
			continue
		}
		bars = append(bars, bar)

		for j, name := range indicators {
			v, err := parseCell(rec[len(csvPriceColumns)+j])
			if err != nil {
				return nil, fmt.Errorf("csv %s line %d column %s: %w", symbol, line, name, err)
			}
			if !math.IsNaN(v) {
				cells = append(cells, indicatorValue{Date: bar.Date, Name: strings.TrimSpace(name), Value: v})
			}
		}
	}

	ser, err := assemble(symbol, bars, cells)
	if err != nil {
		return nil, err
	}
	// 값이 하나도 없는 지표도 컬럼은 존재해야 함 (data contract)
	for _, name := range indicators {
		name = strings.TrimSpace(name)
		if !ser.HasColumn(name) {
			ser.Columns[name] = nanColumn(ser.Len())
		}
	}
	return ser, nil
}

func parseBar(rec []string) (contracts.Bar, error) {
	var b contracts.Bar
	date, err := time.Parse("2006-01-02", strings.TrimSpace(rec[0]))
	if err != nil {
		return b, fmt.Errorf("invalid date %q", rec[0])
	}
	b.Date = date

	prices := []*float64{&b.Open, &b.High, &b.Low, &b.Close}
	for i, p := range prices {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
		if err != nil {
			return b, fmt.Errorf("invalid %s %q", csvPriceColumns[i+1], rec[i+1])
		}
		*p = v
	}

	vol, err := strconv.ParseFloat(strings.TrimSpace(rec[5]), 64)
	if err != nil {
		return b, fmt.Errorf("invalid volume %q", rec[5])
	}
	b.Volume = int64(vol)
	return b, nil
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
