package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps run records in research.runs
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new run history repository
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the run history table if missing
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE SCHEMA IF NOT EXISTS research;

		CREATE TABLE IF NOT EXISTS research.runs (
			id          UUID PRIMARY KEY,
			kind        VARCHAR(20) NOT NULL,
			strategy    VARCHAR(50) NOT NULL,
			config_hash VARCHAR(64) NOT NULL,
			status      VARCHAR(20) NOT NULL,
			summary     JSONB NOT NULL,
			payload     JSONB NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_runs_strategy_created
			ON research.runs (strategy, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_runs_config_hash
			ON research.runs (config_hash);
	`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure run history schema: %w", err)
	}
	return nil
}

// Save upserts a record by id
func (s *PostgresStore) Save(ctx context.Context, rec *Record) error {
	summaryJSON, err := json.Marshal(rec.Summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	payload := rec.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	query := `
		INSERT INTO research.runs (id, kind, strategy, config_hash, status, summary, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			summary = EXCLUDED.summary,
			payload = EXCLUDED.payload
	`
	_, err = s.pool.Exec(ctx, query,
		rec.ID, rec.Kind, rec.Strategy, rec.ConfigHash, rec.Status,
		summaryJSON, []byte(payload), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", rec.ID, err)
	}
	return nil
}

// Get retrieves one record including its payload
func (s *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	query := `
		SELECT id::text, kind, strategy, config_hash, status, summary, payload, created_at
		FROM research.runs
		WHERE id = $1
	`

	var rec Record
	var summaryJSON, payload []byte
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID, &rec.Kind, &rec.Strategy, &rec.ConfigHash, &rec.Status,
		&summaryJSON, &payload, &rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}

	if err := json.Unmarshal(summaryJSON, &rec.Summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
	}
	rec.Payload = payload
	return &rec, nil
}

// List returns records newest first, without payloads
func (s *PostgresStore) List(ctx context.Context, f Filter) ([]Record, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id::text, kind, strategy, config_hash, status, summary, created_at
		FROM research.runs
		WHERE ($1 = '' OR kind = $1)
		  AND ($2 = '' OR strategy = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := s.pool.Query(ctx, query, f.Kind, f.Strategy, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var rec Record
		var summaryJSON []byte
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.Strategy, &rec.ConfigHash, &rec.Status, &summaryJSON, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if err := json.Unmarshal(summaryJSON, &rec.Summary); err != nil {
			return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
