// Package api provides the HTTP API for cityair.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/cityair/cityair/internal/api/handler"
	"github.com/cityair/cityair/internal/api/middleware"
	"github.com/cityair/cityair/internal/api/response"
	"github.com/cityair/cityair/internal/provider/resilience"
)

// CatalogService is the part of the city catalog the API touches directly.
type CatalogService interface {
	handler.Reloader
	handler.CatalogSizer
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	Cities    handler.CityReporter
	Suggester handler.Suggester
	Catalog   CatalogService
	Registry  *resilience.Registry

	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler

	// StaticDir is served at / when set.
	StaticDir string

	// AllowedOrigins for CORS. Empty allows any origin.
	AllowedOrigins []string

	RequireTLS bool
}

// NewRouter creates a new chi router with all routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "cityair-api"
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id", "Retry-After"},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		response.Error(w, req, http.StatusNotFound, "Not found.")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		response.Error(w, req, http.StatusMethodNotAllowed, "Method not allowed.")
	})

	opsHandler := handler.NewOpsHandler(handler.OpsHandlerConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Catalog:   cfg.Catalog,
		Registry:  cfg.Registry,
	})
	cityHandler := handler.NewCityHandler(cfg.Cities, cfg.Suggester)
	catalogHandler := handler.NewCatalogHandler(cfg.Catalog, cfg.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)

		r.With(middleware.RateLimitByIP(middleware.StandardRateLimit)).Get("/autocomplete", cityHandler.Autocomplete)

		// Lookups call IQAir and share its rate limit budget.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(middleware.LookupRateLimit))
			r.Get("/city_resume", cityHandler.CityResume)
			r.Get("/compare_cities", cityHandler.CompareCities)
		})

		r.With(middleware.RateLimitByIP(middleware.AdminRateLimit)).Post("/catalog/reload", catalogHandler.Reload)
	})

	r.Route("/ops", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Get("/health", opsHandler.HealthCheck)
		r.Get("/ready", opsHandler.ReadinessCheck)
		r.Get("/status", opsHandler.SystemStatus)
	})

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	return r
}
