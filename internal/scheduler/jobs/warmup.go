package jobs

import (
	"context"
	"time"

	"github.com/wonny/quantlab/internal/contracts"
	"github.com/wonny/quantlab/pkg/logger"
)

// DatasetWarmupJob loads the research universe once before market open so
// the first API run of the day is served from the dataset cache
type DatasetWarmupJob struct {
	loader  contracts.DatasetLoader
	symbols []string
	logger  *logger.Logger
}

// NewDatasetWarmupJob creates a new warmup job
func NewDatasetWarmupJob(loader contracts.DatasetLoader, symbols []string, log *logger.Logger) *DatasetWarmupJob {
	return &DatasetWarmupJob{
		loader:  loader,
		symbols: symbols,
		logger:  log.WithComponent("jobs.warmup"),
	}
}

// Name returns the job name
func (j *DatasetWarmupJob) Name() string {
	return "dataset_warmup"
}

// Schedule returns the cron schedule (weekdays 08:00)
func (j *DatasetWarmupJob) Schedule() string {
	return "0 0 8 * * 1-5"
}

// Run executes the warmup
func (j *DatasetWarmupJob) Run(ctx context.Context) error {
	if len(j.symbols) == 0 {
		j.logger.Debug("No symbols configured, skipping warmup")
		return nil
	}

	start := time.Now()
	ds, err := j.loader.Load(ctx, j.symbols, time.Time{}, time.Time{})
	if err != nil {
		return err
	}

	j.logger.WithFields(map[string]interface{}{
		"source":   j.loader.Name(),
		"symbols":  len(ds.Symbols()),
		"duration": time.Since(start),
	}).Info("Dataset warmup completed")
	return nil
}
