package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// Predefined errors for resilient operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrMaxRetriesExceeded is matched by RetriesExhaustedError.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// RetriesExhaustedError is returned when every attempt ended in a retryable status.
type RetriesExhaustedError struct {
	Attempts   int
	StatusCode int
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("%s: %d attempts, last status %d", ErrMaxRetriesExceeded, e.Attempts, e.StatusCode)
}

// Is makes errors.Is(err, ErrMaxRetriesExceeded) match.
func (e *RetriesExhaustedError) Is(target error) bool {
	return target == ErrMaxRetriesExceeded
}

// ClientConfig holds configuration for the resilient HTTP client.
type ClientConfig struct {
	// Name identifies this client for circuit breaker naming.
	Name string

	// Timeout is the request timeout for individual HTTP calls.
	// Default: 10 seconds
	Timeout time.Duration

	// MaxAttempts is the total number of attempts, including the first.
	// Default: 3. Set to 1 to disable retries.
	MaxAttempts int

	// InitialInterval is the wait before the first retry.
	// Default: 1 second
	InitialInterval time.Duration

	// Multiplier grows the wait between consecutive retries.
	// Default: 2
	Multiplier float64

	// MaxInterval caps the wait between retries.
	// Default: 30 seconds
	MaxInterval time.Duration

	// RetryStatuses are the response codes that trigger a retry.
	// Default: 429 only
	RetryStatuses []int

	// CircuitBreaker is the circuit breaker configuration.
	// If nil, uses DefaultCircuitBreakerConfig.
	CircuitBreaker *CircuitBreakerConfig

	// Registry, if set, gets this client registered under Name.
	Registry *Registry

	// Timer overrides the backoff timer. Nil uses a real timer.
	Timer backoff.Timer

	// Logger receives retry and breaker transition events.
	Logger zerolog.Logger
}

// DefaultClientConfig returns sensible defaults for the resilient client.
func DefaultClientConfig(name string) ClientConfig {
	cbConfig := DefaultCircuitBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         10 * time.Second,
		MaxAttempts:     3,
		InitialInterval: time.Second,
		Multiplier:      2,
		MaxInterval:     30 * time.Second,
		RetryStatuses:   []int{http.StatusTooManyRequests},
		CircuitBreaker:  &cbConfig,
		Logger:          zerolog.Nop(),
	}
}

// Client is a resilient HTTP client with circuit breaker and retry logic.
type Client struct {
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker[*http.Response]
	config         ClientConfig
}

// NewClient creates a new resilient HTTP client.
func NewClient(cfg ClientConfig) *Client {
	// Set defaults
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = time.Second
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = 2
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 30 * time.Second
	}
	if len(cfg.RetryStatuses) == 0 {
		cfg.RetryStatuses = []int{http.StatusTooManyRequests}
	}

	cbConfig := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.CircuitBreaker != nil {
		cbConfig = *cfg.CircuitBreaker
	}
	cb := NewCircuitBreaker[*http.Response](cbConfig, cfg.Logger) //nolint:bodyclose // type param, not response

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		circuitBreaker: cb,
		config:         cfg,
	}

	if cfg.Registry != nil {
		cfg.Registry.Register(cfg.Name, c)
	}

	return c
}

// Name returns the client name.
func (c *Client) Name() string {
	return c.config.Name
}

// MaxAttempts returns the configured attempt budget.
func (c *Client) MaxAttempts() int {
	return c.config.MaxAttempts
}

// Do executes an HTTP request with circuit breaker protection and retry logic.
// Only responses whose status is in RetryStatuses are retried, with
// exponential backoff. Transport errors and every other status are returned
// to the caller on the first attempt.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoWithContext(req.Context(), req)
}

// DoWithContext executes an HTTP request with the given context.
func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.config.InitialInterval
	bo.Multiplier = c.config.Multiplier
	bo.MaxInterval = c.config.MaxInterval
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0 // Unlimited, we control retries via WithMaxRetries

	retries := uint64(c.config.MaxAttempts - 1) //nolint:gosec // MaxAttempts is at least 1
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, retries), ctx)

	var (
		lastResp *http.Response
		attempts int
	)

	operation := func() error {
		attempts++

		// 5xx is reported to the breaker as a failure but still handed back to the caller.
		resp, err := c.circuitBreaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // caller is responsible for closing
			r, err := c.httpClient.Do(req.Clone(ctx))
			if err != nil {
				return nil, err
			}
			if r.StatusCode >= 500 {
				return r, &ServerError{StatusCode: r.StatusCode}
			}
			return r, nil
		})

		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(ErrCircuitOpen)
			}
			var serverErr *ServerError
			if errors.As(err, &serverErr) && resp != nil {
				lastResp = resp
				return nil
			}
			return backoff.Permanent(err)
		}

		if slices.Contains(c.config.RetryStatuses, resp.StatusCode) {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			return &retryableStatusError{statusCode: resp.StatusCode}
		}

		lastResp = resp
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.config.Logger.Warn().
			Err(err).
			Str("provider", c.config.Name).
			Int("attempt", attempts).
			Int("max_attempts", c.config.MaxAttempts).
			Dur("wait", wait).
			Msg("provider request will be retried")
	}

	err := backoff.RetryNotifyWithTimer(operation, policy, notify, c.config.Timer)
	if err != nil {
		var statusErr *retryableStatusError
		if errors.As(err, &statusErr) {
			return nil, &RetriesExhaustedError{Attempts: attempts, StatusCode: statusErr.statusCode}
		}
		return nil, err
	}

	return lastResp, nil
}

// retryableStatusError marks an attempt that ended in a retryable status.
type retryableStatusError struct {
	statusCode int
}

func (e *retryableStatusError) Error() string {
	return "retryable status: " + http.StatusText(e.statusCode)
}

// ServerError represents an HTTP 5xx server error.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}

// CircuitBreakerState returns the current state of the circuit breaker.
func (c *Client) CircuitBreakerState() gobreaker.State {
	return c.circuitBreaker.State()
}

// CircuitBreakerCounts returns the current counts of the circuit breaker.
func (c *Client) CircuitBreakerCounts() gobreaker.Counts {
	return c.circuitBreaker.Counts()
}
