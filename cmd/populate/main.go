// Package main provides a one-shot command that fills the city catalog from
// the IQAir state and city listings.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/cityair/cityair/internal/airquality/iqair"
	"github.com/cityair/cityair/internal/catalog"
	"github.com/cityair/cityair/internal/config"
	"github.com/cityair/cityair/internal/provider/resilience"
	"github.com/cityair/cityair/internal/worker"
)

// Version is set at compile time via ldflags.
var Version = "dev"

func main() {
	const serviceName = "cityair-populate"

	fs := pflag.NewFlagSet(serviceName, pflag.ExitOnError)
	force := fs.Bool("force", false, "repopulate even when the catalog already has cities")
	fs.String("country", "Brazil", "country whose cities are listed")
	fs.String("catalog", "cities_database.json", "path of the catalog file")
	fs.Duration("state-delay", 60*time.Second, "pause before each state's city listing")
	fs.Int("retries", 5, "attempts per listing call")
	fs.Duration("retry-delay", 60*time.Second, "pause between attempts")
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.LoadWithFlags(fs, map[string]string{
		"catalog.populate_country":     "country",
		"catalog.path":                 "catalog",
		"catalog.populate_state_delay": "state-delay",
		"catalog.populate_retries":     "retries",
		"catalog.populate_retry_delay": "retry-delay",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(2)
	}

	var log zerolog.Logger
	if cfg.Log.Pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log = zerolog.New(os.Stderr)
	}
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	log = log.Level(level).With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	if cfg.IQAir.APIKey == "" {
		log.Fatal().Msg("IQAIR_API_KEY is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *force, log); err != nil {
		stop()
		log.Error().Err(err).Msg("populate failed")
		os.Exit(1) //nolint:gocritic // stop already called
	}
}

func run(ctx context.Context, cfg *config.Config, force bool, log zerolog.Logger) error {
	cities, err := catalog.Open(catalog.Config{
		Store:  catalog.NewFileStore(cfg.Catalog.Path),
		Logger: log,
	})
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}

	httpConfig := resilience.DefaultClientConfig(iqair.ProviderName)
	httpConfig.Timeout = cfg.IQAir.Timeout
	httpConfig.MaxAttempts = 1
	httpConfig.Logger = log

	job := worker.NewPopulateJob(worker.PopulateJobConfig{
		Config: worker.PopulateConfig{
			Country:    cfg.Catalog.PopulateCountry,
			StateDelay: cfg.Catalog.PopulateStateDelay,
			MaxRetries: cfg.Catalog.PopulateRetries,
			RetryDelay: cfg.Catalog.PopulateRetryDelay,
			Force:      force,
		},
		Lister: iqair.NewClient(iqair.ClientConfig{
			BaseURL:    cfg.IQAir.BaseURL,
			APIKey:     cfg.IQAir.APIKey,
			HTTPClient: resilience.NewClient(httpConfig),
			Logger:     log,
		}),
		Catalog: cities,
		Logger:  log,
	})

	result, err := job.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) && result != nil && result.Partial {
			log.Warn().Int("cities", cities.Len()).Msg("interrupted, partial catalog saved")
		}
		return err
	}

	log.Info().
		Str("path", cfg.Catalog.Path).
		Bool("skipped", result.Skipped).
		Int("states", result.StatesTotal).
		Int("states_processed", result.StatesProcessed).
		Int("states_skipped", result.StatesSkipped).
		Int("states_failed", result.StatesFailed).
		Int("cities", cities.Len()).
		Dur("duration", result.Duration).
		Msg("populate finished")
	return nil
}
