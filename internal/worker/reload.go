package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Reloader re-reads the catalog from its store.
type Reloader interface {
	Reload() (int, error)
}

// ReloadJobConfig holds configuration for creating a ReloadJob.
type ReloadJobConfig struct {
	// Interval between reloads. Zero or less disables Start.
	Interval time.Duration

	Catalog Reloader
	Logger  zerolog.Logger
}

// ReloadJob keeps the in-memory catalog in step with its file, so that a
// catalog written by the populate command shows up without a restart.
type ReloadJob struct {
	interval time.Duration
	catalog  Reloader
	logger   zerolog.Logger

	mu      sync.RWMutex
	metrics ReloadMetrics
}

// ReloadMetrics tracks reload job statistics.
type ReloadMetrics struct {
	TotalReloads  int64
	FailedReloads int64

	LastReloadAt       time.Time
	LastReloadDuration time.Duration
	LastCount          int
	LastError          string
}

// NewReloadJob creates a new reload job.
func NewReloadJob(cfg ReloadJobConfig) *ReloadJob {
	return &ReloadJob{
		interval: cfg.Interval,
		catalog:  cfg.Catalog,
		logger:   cfg.Logger,
	}
}

// Run reloads the catalog once and returns the number of records loaded.
func (j *ReloadJob) Run() (int, error) {
	start := time.Now()
	count, err := j.catalog.Reload()
	duration := time.Since(start)

	j.mu.Lock()
	j.metrics.TotalReloads++
	j.metrics.LastReloadAt = start
	j.metrics.LastReloadDuration = duration
	if err != nil {
		j.metrics.FailedReloads++
		j.metrics.LastError = err.Error()
	} else {
		j.metrics.LastCount = count
		j.metrics.LastError = ""
	}
	j.mu.Unlock()

	if err != nil {
		j.logger.Error().Err(err).Msg("catalog reload failed")
		return 0, err
	}

	j.logger.Debug().
		Int("cities", count).
		Dur("duration", duration).
		Msg("catalog reloaded")
	return count, nil
}

// Start reloads on every tick until ctx is done. It returns immediately when
// the interval is not positive.
func (j *ReloadJob) Start(ctx context.Context) {
	if j.interval <= 0 {
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info().Dur("interval", j.interval).Msg("catalog reload job started")
	for {
		select {
		case <-ctx.Done():
			j.logger.Info().Msg("catalog reload job stopped")
			return
		case <-ticker.C:
			_, _ = j.Run()
		}
	}
}

// GetMetrics returns a copy of the current metrics.
func (j *ReloadJob) GetMetrics() ReloadMetrics {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.metrics
}
