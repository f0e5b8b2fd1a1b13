package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/quantlab/internal/contracts"
	"github.com/wonny/quantlab/pkg/config"
	"github.com/wonny/quantlab/pkg/logger"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func sampleSeries(t *testing.T, symbol string) *contracts.Series {
	t.Helper()
	bars := []contracts.Bar{
		{Date: day(2), Open: 100, High: 102, Low: 99, Close: 101, Volume: 1000},
		{Date: day(3), Open: 101, High: 104, Low: 100, Close: 103, Volume: 1200},
		{Date: day(4), Open: 103, High: 105, Low: 102, Close: 104, Volume: 900},
	}
	s, err := contracts.NewSeries(symbol, bars, map[string][]float64{
		"ma_short": {math.NaN(), 102, 103.5},
		"rsi":      {55, 60, 62},
	})
	require.NoError(t, err)
	return s
}

func TestAssemble(t *testing.T) {
	bars := []contracts.Bar{
		{Date: day(3), Close: 2},
		{Date: day(2), Close: 1},
		{Date: day(3).Add(15 * time.Hour), Close: 3}, // 같은 날짜: 마지막 값 우선
	}
	cells := []indicatorValue{
		{Date: day(2), Name: "rsi", Value: 40},
		{Date: day(9), Name: "rsi", Value: 99}, // bar 없는 날짜는 무시
		{Date: day(3), Name: "atr", Value: 1.5},
	}

	s, err := assemble("005930", bars, cells)
	require.NoError(t, err)

	require.Equal(t, 2, s.Len())
	assert.Equal(t, day(2), s.Bars[0].Date)
	assert.Equal(t, 3.0, s.Bars[1].Close)

	v, ok := s.Value("rsi", 0)
	assert.True(t, ok)
	assert.Equal(t, 40.0, v)
	_, ok = s.Value("rsi", 1)
	assert.False(t, ok, "gap must be NaN")
	_, ok = s.Value("atr", 0)
	assert.False(t, ok)
}

func TestInRange(t *testing.T) {
	tests := []struct {
		name     string
		from, to time.Time
		want     bool
	}{
		{"open bounds", time.Time{}, time.Time{}, true},
		{"inside", day(1), day(5), true},
		{"on bounds", day(3), day(3), true},
		{"before", day(4), time.Time{}, false},
		{"after", time.Time{}, day(2), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inRange(day(3), tt.from, tt.to))
		})
	}
}

func TestNew(t *testing.T) {
	log := logger.Nop()

	tests := []struct {
		source  string
		want    string
		wantErr bool
	}{
		{SourceParquet, SourceParquet, false},
		{SourceCSV, SourceCSV, false},
		{SourcePostgres, "", true}, // pool 없음
		{"excel", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			cfg := &config.Config{Data: config.DataConfig{Source: tt.source, Dir: t.TempDir()}}
			src, err := New(cfg, nil, nil, log)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, src.Name())
		})
	}
}

const sampleCSV = `date,open,high,low,close,volume,ma_short,rsi
2024-01-02,100,102,99,101,1000,,55
2024-01-03,101,104,100,103,1200,102,60
2024-01-04,103,105,102,104,900,103.5,NaN
`

func TestReadCSV(t *testing.T) {
	s, err := ReadCSV("005930", strings.NewReader(sampleCSV), time.Time{}, time.Time{})
	require.NoError(t, err)

	require.Equal(t, 3, s.Len())
	assert.Equal(t, int64(1200), s.Bars[1].Volume)
	assert.True(t, s.HasColumn("ma_short"))
	_, ok := s.Value("ma_short", 0)
	assert.False(t, ok)
	_, ok = s.Value("rsi", 2)
	assert.False(t, ok)
	v, _ := s.Value("rsi", 1)
	assert.Equal(t, 60.0, v)

	ranged, err := ReadCSV("005930", strings.NewReader(sampleCSV), day(3), day(3))
	require.NoError(t, err)
	require.Equal(t, 1, ranged.Len())
	assert.Equal(t, day(3), ranged.Bars[0].Date)
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad header", "day,open,high,low,close,volume\n", "column 1"},
		{"bad date", "date,open,high,low,close,volume\n02/01/2024,1,1,1,1,1\n", "invalid date"},
		{"bad price", "date,open,high,low,close,volume\n2024-01-02,x,1,1,1,1\n", "invalid open"},
		{"bad indicator", "date,open,high,low,close,volume,rsi\n2024-01-02,1,1,1,1,1,abc\n", "column rsi"},
		{"unsorted rows", "date,open,high,low,close,volume\n2024-01-03,1,1,1,1,1\n2024-01-02,1,1,1,1,1\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV("X", strings.NewReader(tt.body), time.Time{}, time.Time{})
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestCSVSource_Load(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "005930.csv"), []byte(sampleCSV), 0o644))

	src := NewCSVSource(dir, logger.Nop())
	ds, err := src.Load(context.Background(), []string{"005930", "000660", "005930"}, time.Time{}, day(3))
	require.NoError(t, err)

	assert.Equal(t, []string{"005930"}, ds.Symbols(), "missing symbol skipped")
	s, _ := ds.Series("005930")
	assert.Equal(t, 2, s.Len())
}

func TestCSVSource_Symbols(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"005930.csv", "000660.CSV", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(sampleCSV), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive.csv"), 0o755))

	symbols, err := NewCSVSource(dir, logger.Nop()).Symbols()
	require.NoError(t, err)
	assert.Equal(t, []string{"000660", "005930"}, symbols)

	_, err = NewCSVSource(filepath.Join(dir, "missing"), logger.Nop()).Symbols()
	assert.Error(t, err)
}

func TestParquetSource_RoundTrip(t *testing.T) {
	src := NewParquetSource(t.TempDir(), logger.Nop())
	require.NoError(t, src.WriteSeries(sampleSeries(t, "005930")))
	require.NoError(t, src.WriteSeries(sampleSeries(t, "000660")))

	ds, err := src.Load(context.Background(), []string{"005930", "000660", "035720"}, day(3), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []string{"000660", "005930"}, ds.Symbols())

	s, ok := ds.Series("005930")
	require.True(t, ok)
	require.Equal(t, 2, s.Len())
	assert.Equal(t, day(3), s.Bars[0].Date)
	assert.Equal(t, 104.0, s.Bars[1].Close)

	v, ok := s.Value("ma_short", 0)
	require.True(t, ok)
	assert.Equal(t, 102.0, v)
	v, _ = s.Value("rsi", 1)
	assert.Equal(t, 62.0, v)
}

func TestParquetSource_CancelledContext(t *testing.T) {
	src := NewParquetSource(t.TempDir(), logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.Load(ctx, []string{"005930"}, time.Time{}, time.Time{})
	assert.ErrorIs(t, err, context.Canceled)
}

// memCache stores JSON like redis.Cache does
type memCache struct {
	data    map[string][]byte
	gets    int
	failGet bool
}

func (c *memCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	c.gets++
	if c.failGet {
		return false, errors.New("connection refused")
	}
	b, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dest)
}

func (c *memCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = b
	return nil
}

type countingSource struct {
	inner contracts.DatasetLoader
	loads int
}

func (s *countingSource) Name() string { return s.inner.Name() }

func (s *countingSource) Load(ctx context.Context, symbols []string, from, to time.Time) (*contracts.Dataset, error) {
	s.loads++
	return s.inner.Load(ctx, symbols, from, to)
}

func TestCachedSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "005930.csv"), []byte(sampleCSV), 0o644))

	inner := &countingSource{inner: NewCSVSource(dir, logger.Nop())}
	cache := &memCache{data: map[string][]byte{}}
	src := NewCachedSource(inner, cache, time.Hour, logger.Nop())
	ctx := context.Background()

	first, err := src.Load(ctx, []string{"005930"}, time.Time{}, time.Time{})
	require.NoError(t, err)
	second, err := src.Load(ctx, []string{"005930"}, time.Time{}, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, 1, inner.loads, "second load served from cache")
	assert.Equal(t, SourceCSV, src.Name())

	a, _ := first.Series("005930")
	b, _ := second.Series("005930")
	assert.Equal(t, a.Bars, b.Bars)
	_, ok := b.Value("ma_short", 0)
	assert.False(t, ok, "NaN survives the cache")

	cache.failGet = true
	_, err = src.Load(ctx, []string{"005930"}, time.Time{}, time.Time{})
	require.NoError(t, err, "cache failure falls through")
	assert.Equal(t, 2, inner.loads)
}

func TestPostgresSource_Integration(t *testing.T) {
	if os.Getenv("TEST_DATABASE_URL") == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}
	pool := testPool(t)

	src := NewPostgresSource(pool, logger.Nop())
	ctx := context.Background()
	require.NoError(t, src.EnsureSchema(ctx))
	require.NoError(t, src.SaveSeries(ctx, sampleSeries(t, "TEST01")))

	ds, err := src.Load(ctx, []string{"TEST01"}, day(3), time.Time{})
	require.NoError(t, err)

	s, ok := ds.Series("TEST01")
	require.True(t, ok)
	assert.Equal(t, 2, s.Len())
	v, _ := s.Value("ma_short", 0)
	assert.Equal(t, 102.0, v)

	_, err = pool.Exec(ctx, `DELETE FROM data.daily_prices WHERE stock_code = 'TEST01'`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `DELETE FROM data.indicators WHERE stock_code = 'TEST01'`)
	require.NoError(t, err)
}

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	pool, err := pgxpool.New(context.Background(), os.Getenv("TEST_DATABASE_URL"))
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}
