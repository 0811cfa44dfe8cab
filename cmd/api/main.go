// Package main provides the entrypoint for the CityAir API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/cityair/cityair/internal/airquality"
	"github.com/cityair/cityair/internal/airquality/iqair"
	"github.com/cityair/cityair/internal/api"
	"github.com/cityair/cityair/internal/api/middleware"
	"github.com/cityair/cityair/internal/catalog"
	"github.com/cityair/cityair/internal/config"
	"github.com/cityair/cityair/internal/matcher"
	"github.com/cityair/cityair/internal/provider/resilience"
	"github.com/cityair/cityair/internal/telemetry"
	"github.com/cityair/cityair/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "cityair-api"

	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := newLogger(cfg, serviceName)

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.App.Env).
		Msg("starting CityAir API")

	// Initialize OpenTelemetry
	ctx := context.Background()
	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.App.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		Prometheus:     cfg.Telemetry.Prometheus,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Bool("prometheus", cfg.Telemetry.Prometheus).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	providerMetrics, err := telemetry.NewProviderMetrics(iqair.ProviderName)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize provider metrics")
		os.Exit(1)
	}

	// Upstream provider
	registry := resilience.NewRegistry()
	if cfg.IQAir.APIKey == "" {
		log.Warn().Msg("IQAIR_API_KEY not set - city lookups will fail")
	}

	httpConfig := resilience.DefaultClientConfig(iqair.ProviderName)
	httpConfig.Timeout = cfg.IQAir.Timeout
	httpConfig.MaxAttempts = cfg.IQAir.MaxAttempts
	httpConfig.InitialInterval = cfg.IQAir.InitialBackoff
	httpConfig.Registry = registry
	httpConfig.Logger = log

	iqairClient := iqair.NewClient(iqair.ClientConfig{
		BaseURL:    cfg.IQAir.BaseURL,
		APIKey:     cfg.IQAir.APIKey,
		HTTPClient: resilience.NewClient(httpConfig),
		Registry:   registry,
		Metrics:    providerMetrics,
		Logger:     log,
	})

	// City catalog and matcher
	cities, err := catalog.Open(catalog.Config{
		Store:  catalog.NewFileStore(cfg.Catalog.Path),
		Logger: log,
	})
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Catalog.Path).Msg("failed to open city catalog")
	}
	log.Info().
		Str("path", cfg.Catalog.Path).
		Int("cities", cities.Len()).
		Msg("city catalog loaded")

	cacheTTL := cfg.Cache.CityTTL
	if cacheTTL <= 0 {
		cacheTTL = -1
	}
	airQuality := airquality.NewService(airquality.ServiceConfig{
		Provider: iqairClient,
		Recorder: cities,
		Logger:   log,
		CacheTTL: cacheTTL,
		Metrics:  providerMetrics,
	})

	jobsCtx, stopJobs := context.WithCancel(ctx)
	defer stopJobs()
	if cfg.Catalog.PopulateOnStart {
		go runPopulate(jobsCtx, cfg, cities, log)
	}
	go worker.NewReloadJob(worker.ReloadJobConfig{
		Interval: cfg.Catalog.ReloadInterval,
		Catalog:  cities,
		Logger:   log.With().Str("job", "reload").Logger(),
	}).Start(jobsCtx)

	router := api.NewRouter(api.RouterConfig{
		Version:        Version,
		BuildTime:      BuildTime,
		Logger:         log,
		ServiceName:    serviceName,
		Metrics:        metrics,
		Cities:         airQuality,
		Suggester:      matcher.New(cities),
		Catalog:        cities,
		Registry:       registry,
		MetricsHandler: tp.MetricsHandler(),
		StaticDir:      cfg.App.StaticDir,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RequireTLS:     cfg.HTTP.RequireTLS,
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	stopJobs()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}

// runPopulate fills an empty catalog in the background. The populate client
// makes single attempts and stays out of the registry; the job does its own
// retrying.
func runPopulate(ctx context.Context, cfg *config.Config, cities *catalog.Catalog, log zerolog.Logger) {
	httpConfig := resilience.DefaultClientConfig(iqair.ProviderName + "-populate")
	httpConfig.Timeout = cfg.IQAir.Timeout
	httpConfig.MaxAttempts = 1
	httpConfig.Logger = log

	job := worker.NewPopulateJob(worker.PopulateJobConfig{
		Config: worker.PopulateConfig{
			Country:    cfg.Catalog.PopulateCountry,
			StateDelay: cfg.Catalog.PopulateStateDelay,
			MaxRetries: cfg.Catalog.PopulateRetries,
			RetryDelay: cfg.Catalog.PopulateRetryDelay,
		},
		Lister: iqair.NewClient(iqair.ClientConfig{
			BaseURL:    cfg.IQAir.BaseURL,
			APIKey:     cfg.IQAir.APIKey,
			HTTPClient: resilience.NewClient(httpConfig),
			Logger:     log,
		}),
		Catalog: cities,
		Logger:  log.With().Str("job", "populate").Logger(),
	})

	result, err := job.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("catalog populate failed")
		return
	}
	if !result.Skipped {
		log.Info().
			Int("cities", result.CitiesAdded).
			Dur("duration", result.Duration).
			Msg("catalog populated")
	}
}

func newLogger(cfg *config.Config, serviceName string) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if cfg.Log.Pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		log = zerolog.New(os.Stdout)
	}

	return log.Level(level).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()
}
