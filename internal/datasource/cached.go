package datasource

import (
	"context"
	"time"

	"github.com/wonny/quantlab/internal/contracts"
	"github.com/wonny/quantlab/pkg/logger"
	"github.com/wonny/quantlab/pkg/redis"
)

// datasetCache is the subset of redis.Cache the source needs
type datasetCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// CachedSource memoizes loaded datasets in Redis. Cache failures are
// logged and fall through to the wrapped source.
type CachedSource struct {
	inner  contracts.DatasetLoader
	cache  datasetCache
	ttl    time.Duration
	logger *logger.Logger
}

// NewCachedSource wraps inner with a dataset cache
func NewCachedSource(inner contracts.DatasetLoader, cache datasetCache, ttl time.Duration, log *logger.Logger) *CachedSource {
	return &CachedSource{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: log.WithComponent("datasource.cache"),
	}
}

// Name reports the wrapped source
func (s *CachedSource) Name() string {
	return s.inner.Name()
}

// Load returns the cached dataset for (source, symbols, from, to) or loads and stores it
func (s *CachedSource) Load(ctx context.Context, symbols []string, from, to time.Time) (*contracts.Dataset, error) {
	key := redis.DatasetKey(s.inner.Name(), dedupe(symbols), from, to)

	var cached contracts.Dataset
	found, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Dataset cache read failed")
	}
	if found {
		s.logger.WithField("key", key).Debug("Dataset cache hit")
		return &cached, nil
	}

	ds, err := s.inner.Load(ctx, symbols, from, to)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, ds, s.ttl); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Dataset cache write failed")
	}
	return ds, nil
}
