// Package datasource loads priced history plus precomputed indicator
// columns into a contracts.Dataset. Indicators are never computed here.
package datasource

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/quantlab/internal/contracts"
	"github.com/wonny/quantlab/pkg/config"
	"github.com/wonny/quantlab/pkg/logger"
	"github.com/wonny/quantlab/pkg/redis"
)

// Source names (DATA_SOURCE)
const (
	SourcePostgres = "postgres"
	SourceParquet  = "parquet"
	SourceCSV      = "csv"
)

// Compile-time interface checks
var (
	_ contracts.DatasetLoader = (*PostgresSource)(nil)
	_ contracts.DatasetLoader = (*ParquetSource)(nil)
	_ contracts.DatasetLoader = (*CSVSource)(nil)
	_ contracts.DatasetLoader = (*CachedSource)(nil)
)

// New builds the configured source. pool is required for postgres; cache
// may be nil or disabled, in which case loads are not cached.
func New(cfg *config.Config, pool *pgxpool.Pool, cache *redis.Cache, log *logger.Logger) (contracts.DatasetLoader, error) {
	var src contracts.DatasetLoader
	switch cfg.Data.Source {
	case SourcePostgres:
		if pool == nil {
			return nil, fmt.Errorf("data source postgres requires DATABASE_URL")
		}
		src = NewPostgresSource(pool, log)
	case SourceParquet:
		src = NewParquetSource(cfg.Data.Dir, log)
	case SourceCSV:
		src = NewCSVSource(cfg.Data.Dir, log)
	default:
		return nil, fmt.Errorf("unknown data source %q (postgres, parquet, csv)", cfg.Data.Source)
	}

	if cache == nil {
		return src, nil
	}
	return NewCachedSource(src, cache, redis.TTLDaily, log), nil
}

// indicatorValue is one long-format indicator cell
type indicatorValue struct {
	Date  time.Time
	Name  string
	Value float64
}

// inRange treats a zero bound as open
func inRange(d, from, to time.Time) bool {
	if !from.IsZero() && d.Before(from) {
		return false
	}
	if !to.IsZero() && d.After(to) {
		return false
	}
	return true
}

// assemble sorts bars, drops duplicate dates (last wins) and pivots
// indicator cells into columns aligned with the bars. Cells on dates
// without a bar are ignored; gaps become NaN.
func assemble(symbol string, bars []contracts.Bar, cells []indicatorValue) (*contracts.Series, error) {
	byDate := make(map[time.Time]contracts.Bar, len(bars))
	for _, b := range bars {
		b.Date = normalizeDate(b.Date)
		byDate[b.Date] = b
	}
	ordered := make([]contracts.Bar, 0, len(byDate))
	for _, b := range byDate {
		ordered = append(ordered, b)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Date.Before(ordered[j].Date) })

	index := make(map[time.Time]int, len(ordered))
	for i, b := range ordered {
		index[b.Date] = i
	}

	columns := make(map[string][]float64)
	for _, c := range cells {
		i, ok := index[normalizeDate(c.Date)]
		if !ok {
			continue
		}
		col, ok := columns[c.Name]
		if !ok {
			col = nanColumn(len(ordered))
			columns[c.Name] = col
		}
		col[i] = c.Value
	}

	return contracts.NewSeries(symbol, ordered, columns)
}

func nanColumn(n int) []float64 {
	col := make([]float64, n)
	for i := range col {
		col[i] = math.NaN()
	}
	return col
}

// normalizeDate drops the time of day; bars are daily
func normalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// dedupe returns symbols sorted without duplicates
func dedupe(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
