package airquality

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/cityair/cityair/internal/telemetry"
)

// missingAqi stands in for an absent current reading when comparing.
const missingAqi = 9999

// Provider fetches the current conditions of one city.
type Provider interface {
	FetchCity(ctx context.Context, city, state, country string) (*CityData, error)
}

// CityRecorder remembers cities that were looked up successfully.
type CityRecorder interface {
	AddIfAbsent(city, state, country string) (bool, error)
}

// ServiceConfig holds configuration for the air quality service.
type ServiceConfig struct {
	// Provider is the upstream air quality provider.
	Provider Provider

	// Recorder receives every successfully reported city. Optional.
	Recorder CityRecorder

	// Logger for service operations.
	Logger zerolog.Logger

	// CacheTTL is how long a successful report is reused (default: 5 minutes).
	// A negative value disables the cache.
	CacheTTL time.Duration

	// Metrics records cache hits and misses. Optional.
	Metrics *telemetry.ProviderMetrics

	// Now is the service clock (default: time.Now).
	Now func() time.Time
}

// Service turns provider lookups into uniform city results.
type Service struct {
	provider Provider
	recorder CityRecorder
	logger   zerolog.Logger
	metrics  *telemetry.ProviderMetrics
	now      func() time.Time

	cache *cache.Cache
}

// NewService creates a new air quality service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 5 * time.Minute
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &Service{
		provider: cfg.Provider,
		recorder: cfg.Recorder,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		now:      now,
	}
	if cacheTTL > 0 {
		s.cache = cache.New(cacheTTL, 2*cacheTTL)
	}
	return s
}

// CityReport looks up one city and never fails: every outcome is a Result.
func (s *Service) CityReport(ctx context.Context, city, state, country string) (result Result) {
	key := cacheKey(city, state, country)
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			s.metrics.RecordCacheHit("city")
			return cached.(Result)
		}
		s.metrics.RecordCacheMiss("city")
	}

	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error().
				Interface("panic", rec).
				Str("city", city).
				Msg("air quality lookup panicked")
			result = failure(fmt.Sprintf("An unexpected error occurred: %v", rec))
		}
	}()

	data, err := s.provider.FetchCity(ctx, city, state, country)
	if err != nil {
		return s.failureFor(city, err)
	}

	report := s.buildReport(data, city, state, country)
	s.record(data.Location, city, state, country)

	result = success(report)
	if s.cache != nil {
		s.cache.SetDefault(key, result)
	}
	return result
}

// Compare reports both cities in order and, when both succeed, concludes
// which has the lower current AQI.
func (s *Service) Compare(ctx context.Context, a, b Location) Comparison {
	c := Comparison{
		City1: s.CityReport(ctx, a.City, a.State, a.Country),
		City2: s.CityReport(ctx, b.City, b.State, b.Country),
	}
	if c.City1.Success && c.City2.Success {
		c.Conclusion = Conclusion(c.City1.Report, c.City2.Report)
	}
	return c
}

// Conclusion compares two reports by current AQI. A missing value counts as 9999.
func Conclusion(a, b *Report) string {
	aqiA, aqiB := aqiOrMissing(a.AqiUS), aqiOrMissing(b.AqiUS)
	switch {
	case aqiA < aqiB:
		return fmt.Sprintf("%s has better air quality (lower Current AQI) than %s.", a.City, b.City)
	case aqiB < aqiA:
		return fmt.Sprintf("%s has better air quality (lower Current AQI) than %s.", b.City, a.City)
	default:
		return fmt.Sprintf("Both cities have the same Current AQI (%d).", aqiA)
	}
}

func (s *Service) buildReport(data *CityData, city, state, country string) *Report {
	r := &Report{
		City:          city,
		State:         state,
		Country:       country,
		AqiUS:         data.Pollution.AqiUS,
		MainPollutant: data.Pollution.MainPollutant,
		Weather:       data.Weather,
	}
	today := s.now().UTC().Format(DateLayout)
	r.DailyAqiSummary = Reconcile(data.History, data.Forecast, data.Pollution.AqiUS, today)
	return r
}

// record stores the provider's spelling of the city, falling back to the
// requested names for any field the provider left empty.
func (s *Service) record(loc Location, city, state, country string) {
	if s.recorder == nil {
		return
	}
	city = firstNonEmpty(loc.City, city)
	state = firstNonEmpty(loc.State, state)
	country = firstNonEmpty(loc.Country, country)
	if _, err := s.recorder.AddIfAbsent(city, state, country); err != nil {
		s.logger.Warn().
			Err(err).
			Str("city", city).
			Str("state", state).
			Str("country", country).
			Msg("failed to record city in catalog")
	}
}

func (s *Service) failureFor(city string, err error) Result {
	var (
		rateErr    *RateLimitError
		httpErr    *HTTPError
		statusErr  *StatusError
		requestErr *RequestError
	)

	switch {
	case errors.As(err, &rateErr):
		s.logger.Warn().Err(err).Str("city", city).Int("attempts", rateErr.Attempts).Msg("air quality lookup rate limited")
		return failure(fmt.Sprintf("Failed to retrieve data for %s after %d attempts due to rate limiting.", city, rateErr.Attempts))
	case errors.As(err, &httpErr):
		s.logger.Warn().Err(err).Str("city", city).Int("status", httpErr.StatusCode).Msg("air quality provider returned an HTTP error")
		return failure("API HTTP Error: " + httpErr.Error())
	case errors.As(err, &statusErr):
		s.logger.Warn().Err(err).Str("city", city).Str("status", statusErr.Status).Msg("air quality provider returned a non-success payload")
		if statusErr.Message != "" {
			return failure(statusErr.Message)
		}
		return failure(fmt.Sprintf("City data not available. Status: %d", statusErr.StatusCode))
	case errors.As(err, &requestErr):
		s.logger.Warn().Err(err).Str("city", city).Msg("air quality request failed")
		return failure("API Request Error: " + requestErr.Error())
	default:
		s.logger.Error().Err(err).Str("city", city).Msg("unexpected air quality lookup error")
		return failure("An unexpected error occurred: " + err.Error())
	}
}

func aqiOrMissing(v *int) int {
	if v == nil {
		return missingAqi
	}
	return *v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func cacheKey(city, state, country string) string {
	return strings.ToLower(city + "\x00" + state + "\x00" + country)
}
