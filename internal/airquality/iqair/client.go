// Package iqair provides a client for the IQAir AirVisual v2 API.
package iqair

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cityair/cityair/internal/airquality"
	"github.com/cityair/cityair/internal/provider/resilience"
	"github.com/cityair/cityair/internal/telemetry"
)

const (
	// DefaultBaseURL is the base URL for the AirVisual v2 API.
	DefaultBaseURL = "http://api.airvisual.com/v2"

	// ProviderName identifies this provider.
	ProviderName = "iqair"

	// maxErrorBody caps how much of an error response is read.
	maxErrorBody = 64 << 10
)

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = fmt.Errorf("%w: iqair api key not configured", airquality.ErrProviderUnavailable)

// ClientConfig holds configuration for the IQAir client.
type ClientConfig struct {
	// BaseURL is the API base URL (defaults to DefaultBaseURL).
	BaseURL string

	// APIKey is sent as the "key" query parameter.
	APIKey string

	// HTTPClient is the HTTP client to use.
	// If nil, a default resilient client is created.
	HTTPClient HTTPDoer

	// Registry receives success and failure reports for /ops/status. Optional.
	Registry *resilience.Registry

	// Metrics records request counts and durations. Optional.
	Metrics *telemetry.ProviderMetrics

	// Logger for client operations.
	Logger zerolog.Logger
}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is an IQAir API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient HTTPDoer
	registry   *resilience.Registry
	metrics    *telemetry.ProviderMetrics
	tracer     trace.Tracer
	logger     zerolog.Logger
}

// NewClient creates a new IQAir client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := resilience.DefaultClientConfig(ProviderName)
		rc.Registry = cfg.Registry
		rc.Logger = cfg.Logger
		httpClient = resilience.NewClient(rc)
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		registry:   cfg.Registry,
		metrics:    cfg.Metrics,
		tracer:     telemetry.Tracer("github.com/cityair/cityair/internal/airquality/iqair"),
		logger:     cfg.Logger,
	}
}

// FetchCity retrieves current conditions, history and forecast for one city.
func (c *Client) FetchCity(ctx context.Context, city, state, country string) (*airquality.CityData, error) {
	params := url.Values{}
	params.Set("city", city)
	params.Set("state", state)
	params.Set("country", country)

	var resp cityResponse
	if err := c.get(ctx, "city", params, &resp); err != nil {
		return nil, err
	}
	return resp.toCityData(), nil
}

// States lists the states the provider knows for a country.
func (c *Client) States(ctx context.Context, country string) ([]string, error) {
	params := url.Values{}
	params.Set("country", country)

	var entries []stateEntry
	if err := c.get(ctx, "states", params, &entries); err != nil {
		return nil, err
	}

	states := make([]string, 0, len(entries))
	for _, e := range entries {
		states = append(states, e.State)
	}
	return states, nil
}

// Cities lists the cities the provider knows for a state.
func (c *Client) Cities(ctx context.Context, state, country string) ([]string, error) {
	params := url.Values{}
	params.Set("state", state)
	params.Set("country", country)

	var entries []cityEntry
	if err := c.get(ctx, "cities", params, &entries); err != nil {
		return nil, err
	}

	cities := make([]string, 0, len(entries))
	for _, e := range entries {
		cities = append(cities, e.City)
	}
	return cities, nil
}

// get calls one endpoint and decodes the data of a successful payload into out.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "iqair."+endpoint, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		c.metrics.RecordRequest(endpoint, elapsed, err)
		c.report(err)
		c.logger.Debug().
			Err(err).
			Str("endpoint", endpoint).
			Dur("duration", elapsed).
			Msg("iqair request completed")
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if c.apiKey == "" {
		return ErrMissingAPIKey
	}

	params.Set("key", c.apiKey)
	reqURL := c.baseURL + "/" + endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var exhausted *resilience.RetriesExhaustedError
		if errors.As(err, &exhausted) {
			return &airquality.RateLimitError{Attempts: exhausted.Attempts}
		}
		return &airquality.RequestError{Err: redact(err, c.apiKey)}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode == http.StatusTooManyRequests {
		return &airquality.RateLimitError{Attempts: 1}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var env envelope
		_ = json.Unmarshal(body, &env) //nolint:errcheck // message is best effort
		return &airquality.HTTPError{StatusCode: resp.StatusCode, Message: env.message()}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}

	if env.Status != statusSuccess {
		return &airquality.StatusError{
			Status:     env.Status,
			StatusCode: resp.StatusCode,
			Message:    env.message(),
		}
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s data: %w", endpoint, err)
	}
	return nil
}

// report feeds the outcome to the provider registry. Only failures of the
// provider itself count; a city it does not know is a successful exchange.
func (c *Client) report(err error) {
	if c.registry == nil {
		return
	}
	var statusErr *airquality.StatusError
	if err == nil || errors.As(err, &statusErr) {
		c.registry.RecordSuccess(ProviderName)
		return
	}
	c.registry.RecordFailure(ProviderName, err)
}

// redact removes the API key from transport errors, which quote the URL.
func redact(err error, key string) error {
	if key == "" || !strings.Contains(err.Error(), key) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), key, "REDACTED"), err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }

func (e *redactedError) Unwrap() error { return e.err }
