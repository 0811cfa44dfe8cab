package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/cityair/cityair/internal/airquality"
	"github.com/cityair/cityair/internal/catalog"
)

// ErrNoStates is returned when the provider never produced a state list.
var ErrNoStates = errors.New("no states retrieved")

// errSkipState marks a state the provider rejects outright.
var errSkipState = errors.New("state rejected by provider")

// Lister lists the provider's known locations.
type Lister interface {
	States(ctx context.Context, country string) ([]string, error)
	Cities(ctx context.Context, state, country string) ([]string, error)
}

// CatalogWriter is the part of the catalog the populate job writes to.
type CatalogWriter interface {
	Len() int
	Replace(records []catalog.CityRecord) error
}

// PopulateJobConfig holds configuration for creating a PopulateJob.
type PopulateJobConfig struct {
	Config  PopulateConfig
	Lister  Lister
	Catalog CatalogWriter
	Logger  zerolog.Logger
}

// PopulateJob fills the catalog from the provider's state and city listings.
type PopulateJob struct {
	config  PopulateConfig
	lister  Lister
	catalog CatalogWriter
	logger  zerolog.Logger
}

// PopulateResult contains the result of a populate run.
type PopulateResult struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	// Skipped is set when the catalog already had records.
	Skipped bool

	// Partial is set when the run stopped early and saved what it had.
	Partial bool

	StatesTotal     int
	StatesProcessed int
	StatesSkipped   int
	StatesFailed    int
	CitiesAdded     int
}

// NewPopulateJob creates a new populate job.
func NewPopulateJob(cfg PopulateJobConfig) *PopulateJob {
	return &PopulateJob{
		config:  cfg.Config.withDefaults(),
		lister:  cfg.Lister,
		catalog: cfg.Catalog,
		logger:  cfg.Logger,
	}
}

// Run lists every state of the configured country, then every city of each
// state, and replaces the catalog content with the result. States are
// visited one at a time with StateDelay between them.
func (j *PopulateJob) Run(ctx context.Context) (*PopulateResult, error) {
	result := &PopulateResult{StartTime: time.Now()}
	defer func() {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
	}()

	if !j.config.Force && j.catalog.Len() > 0 {
		j.logger.Info().
			Int("records", j.catalog.Len()).
			Msg("catalog already populated, skipping")
		result.Skipped = true
		return result, nil
	}

	country := j.config.Country
	log := j.logger.With().Str("country", country).Logger()
	log.Info().Msg("starting catalog populate job")

	var states []string
	err := j.retry(ctx, func() error {
		var err error
		states, err = j.lister.States(ctx, country)
		return err
	}, log.With().Str("call", "states").Logger())
	if err != nil {
		return result, fmt.Errorf("fetch states for %s: %w", country, err)
	}
	if len(states) == 0 {
		return result, fmt.Errorf("%w for %s", ErrNoStates, country)
	}

	result.StatesTotal = len(states)
	log.Info().Int("states", len(states)).Msg("states listed")

	var records []catalog.CityRecord
	for _, state := range states {
		if err := wait(ctx, j.config.StateDelay); err != nil {
			return result, j.savePartial(records, result, err)
		}

		stateLog := log.With().Str("state", state).Logger()

		var cities []string
		err := j.retry(ctx, func() error {
			var err error
			cities, err = j.lister.Cities(ctx, state, country)
			var httpErr *airquality.HTTPError
			if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusBadRequest {
				return backoff.Permanent(errSkipState)
			}
			return err
		}, stateLog)

		switch {
		case err == nil:
			for _, city := range cities {
				records = append(records, catalog.NewCityRecord(city, state, country))
			}
			result.StatesProcessed++
			result.CitiesAdded += len(cities)
			stateLog.Info().Int("cities", len(cities)).Msg("state processed")
		case errors.Is(err, errSkipState):
			result.StatesSkipped++
			stateLog.Warn().Msg("provider rejected state, skipping")
		case ctx.Err() != nil:
			return result, j.savePartial(records, result, ctx.Err())
		default:
			result.StatesFailed++
			stateLog.Error().Err(err).Msg("failed to list cities for state")
		}
	}

	if len(records) == 0 {
		log.Warn().Msg("populate collected no cities, catalog left unchanged")
		return result, nil
	}

	if err := j.catalog.Replace(records); err != nil {
		return result, fmt.Errorf("save catalog: %w", err)
	}

	log.Info().
		Int("cities", result.CitiesAdded).
		Int("states_processed", result.StatesProcessed).
		Int("states_skipped", result.StatesSkipped).
		Int("states_failed", result.StatesFailed).
		Msg("catalog populate job completed")

	return result, nil
}

// retry runs op with a constant backoff, up to MaxRetries attempts in total.
func (j *PopulateJob) retry(ctx context.Context, op backoff.Operation, log zerolog.Logger) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(j.config.RetryDelay), uint64(j.config.MaxRetries-1)), //nolint:gosec // MaxRetries is at least 1
		ctx,
	)
	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		return op()
	}, policy, func(err error, wait time.Duration) {
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", j.config.MaxRetries).
			Dur("wait", wait).
			Msg("listing failed, retrying")
	})
}

// savePartial keeps what was collected before the run stopped.
func (j *PopulateJob) savePartial(records []catalog.CityRecord, result *PopulateResult, cause error) error {
	if len(records) == 0 {
		return cause
	}
	if err := j.catalog.Replace(records); err != nil {
		return errors.Join(cause, fmt.Errorf("save partial catalog: %w", err))
	}
	result.Partial = true
	j.logger.Warn().
		Err(cause).
		Int("cities", len(records)).
		Msg("populate stopped early, partial catalog saved")
	return cause
}

// wait blocks for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
