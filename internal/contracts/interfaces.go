package contracts

import (
	"context"
	"time"
)

// DatasetLoader loads priced + indicator history for a set of symbols
// ⭐ SSOT: 데이터 소스 인터페이스 (postgres, parquet, csv, redis cache)
type DatasetLoader interface {
	Name() string
	Load(ctx context.Context, symbols []string, from, to time.Time) (*Dataset, error)
}
