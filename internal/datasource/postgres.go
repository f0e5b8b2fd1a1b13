package datasource

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/quantlab/internal/contracts"
	"github.com/wonny/quantlab/pkg/logger"
)

// PostgresSource reads data.daily_prices and data.indicators
// ⭐ SSOT: DB 가격/지표 조회는 여기서만
type PostgresSource struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// NewPostgresSource creates a new postgres-backed source
func NewPostgresSource(pool *pgxpool.Pool, log *logger.Logger) *PostgresSource {
	return &PostgresSource{
		pool:   pool,
		logger: log.WithComponent("datasource.postgres"),
	}
}

// Name identifies the source in cache keys and errors
func (s *PostgresSource) Name() string {
	return SourcePostgres
}

// EnsureSchema creates the price and indicator tables if missing
func (s *PostgresSource) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE SCHEMA IF NOT EXISTS data;

		CREATE TABLE IF NOT EXISTS data.daily_prices (
			stock_code  VARCHAR(20) NOT NULL,
			trade_date  DATE NOT NULL,
			open_price  DOUBLE PRECISION NOT NULL,
			high_price  DOUBLE PRECISION NOT NULL,
			low_price   DOUBLE PRECISION NOT NULL,
			close_price DOUBLE PRECISION NOT NULL,
			volume      BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (stock_code, trade_date)
		);

		CREATE TABLE IF NOT EXISTS data.indicators (
			stock_code VARCHAR(20) NOT NULL,
			trade_date DATE NOT NULL,
			name       VARCHAR(50) NOT NULL,
			value      DOUBLE PRECISION,
			PRIMARY KEY (stock_code, trade_date, name)
		);
	`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure price schema: %w", err)
	}
	return nil
}

// Load reads bars and indicator cells for symbols over [from, to].
// Zero bounds are open. Symbols without rows are absent from the dataset.
func (s *PostgresSource) Load(ctx context.Context, symbols []string, from, to time.Time) (*contracts.Dataset, error) {
	symbols = dedupe(symbols)
	if len(symbols) == 0 {
		return contracts.NewDataset()
	}

	bars, err := s.loadBars(ctx, symbols, from, to)
	if err != nil {
		return nil, err
	}
	cells, err := s.loadIndicators(ctx, symbols, from, to)
	if err != nil {
		return nil, err
	}

	series := make([]*contracts.Series, 0, len(symbols))
	for _, sym := range symbols {
		if len(bars[sym]) == 0 {
			s.logger.WithField("symbol", sym).Warn("No price rows for symbol")
			continue
		}
		ser, err := assemble(sym, bars[sym], cells[sym])
		if err != nil {
			return nil, err
		}
		series = append(series, ser)
	}

	s.logger.WithFields(map[string]interface{}{
		"symbols": len(symbols),
		"loaded":  len(series),
	}).Debug("Dataset loaded from postgres")

	return contracts.NewDataset(series...)
}

func (s *PostgresSource) loadBars(ctx context.Context, symbols []string, from, to time.Time) (map[string][]contracts.Bar, error) {
	query := `
		SELECT stock_code, trade_date, open_price, high_price, low_price, close_price, volume
		FROM data.daily_prices
		WHERE stock_code = ANY($1)
		  AND ($2::date IS NULL OR trade_date >= $2)
		  AND ($3::date IS NULL OR trade_date <= $3)
		ORDER BY stock_code, trade_date ASC
	`

	rows, err := s.pool.Query(ctx, query, symbols, nullableDate(from), nullableDate(to))
	if err != nil {
		return nil, fmt.Errorf("query daily prices: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]contracts.Bar)
	for rows.Next() {
		var code string
		var b contracts.Bar
		if err := rows.Scan(&code, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan daily price: %w", err)
		}
		out[code] = append(out[code], b)
	}
	return out, rows.Err()
}

func (s *PostgresSource) loadIndicators(ctx context.Context, symbols []string, from, to time.Time) (map[string][]indicatorValue, error) {
	query := `
		SELECT stock_code, trade_date, name, value
		FROM data.indicators
		WHERE stock_code = ANY($1)
		  AND value IS NOT NULL
		  AND ($2::date IS NULL OR trade_date >= $2)
		  AND ($3::date IS NULL OR trade_date <= $3)
	`

	rows, err := s.pool.Query(ctx, query, symbols, nullableDate(from), nullableDate(to))
	if err != nil {
		return nil, fmt.Errorf("query indicators: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]indicatorValue)
	for rows.Next() {
		var code string
		var c indicatorValue
		if err := rows.Scan(&code, &c.Date, &c.Name, &c.Value); err != nil {
			return nil, fmt.Errorf("scan indicator: %w", err)
		}
		out[code] = append(out[code], c)
	}
	return out, rows.Err()
}

// SaveSeries upserts bars and non-NaN indicator cells in one transaction
func (s *PostgresSource) SaveSeries(ctx context.Context, series *contracts.Series) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	batch := &pgx.Batch{}
	for i, b := range series.Bars {
		batch.Queue(`
			INSERT INTO data.daily_prices (stock_code, trade_date, open_price, high_price, low_price, close_price, volume)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (stock_code, trade_date) DO UPDATE SET
				open_price = EXCLUDED.open_price,
				high_price = EXCLUDED.high_price,
				low_price = EXCLUDED.low_price,
				close_price = EXCLUDED.close_price,
				volume = EXCLUDED.volume
		`, series.Symbol, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume)

		for name := range series.Columns {
			v, ok := series.Value(name, i)
			if !ok {
				continue
			}
			batch.Queue(`
				INSERT INTO data.indicators (stock_code, trade_date, name, value)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (stock_code, trade_date, name) DO UPDATE SET value = EXCLUDED.value
			`, series.Symbol, b.Date, name, v)
		}
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save series %s: %w", series.Symbol, err)
	}
	return tx.Commit(ctx)
}

func nullableDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
