package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cityair/cityair/internal/api/middleware"
)

func limited(cfg middleware.RateLimitConfig) http.Handler {
	return middleware.RequestID(
		middleware.RateLimitByIP(cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})),
	)
}

func hit(h http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/city_resume?city=Recife", http.NoBody)
	req.RemoteAddr = ip + ":40000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitByIP_BlocksOverLimit(t *testing.T) {
	h := limited(middleware.RateLimitConfig{RequestLimit: 3, WindowLength: time.Minute})

	for i := range 3 {
		assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1").Code, "request %d", i+1)
	}

	rec := hit(h, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.JSONEq(t, `{"success":false,"error":"Rate limit exceeded. Please try again later."}`, rec.Body.String())
}

func TestRateLimitByIP_SeparateBudgetPerIP(t *testing.T) {
	h := limited(middleware.RateLimitConfig{RequestLimit: 1, WindowLength: time.Minute})

	assert.Equal(t, http.StatusOK, hit(h, "172.16.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "172.16.0.1").Code)
	assert.Equal(t, http.StatusOK, hit(h, "172.16.0.2").Code)
}

func TestRateLimitByIP_RetryAfterFollowsWindow(t *testing.T) {
	h := limited(middleware.RateLimitConfig{RequestLimit: 1, WindowLength: 10 * time.Second})

	hit(h, "198.51.100.7")
	rec := hit(h, "198.51.100.7")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "10", rec.Header().Get("Retry-After"))
}

func TestDefaultRateLimitConfigs(t *testing.T) {
	tests := []struct {
		name  string
		cfg   middleware.RateLimitConfig
		limit int
	}{
		{"lookup", middleware.LookupRateLimit, 30},
		{"standard", middleware.StandardRateLimit, 100},
		{"admin", middleware.AdminRateLimit, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.limit, tt.cfg.RequestLimit)
			assert.Equal(t, time.Minute, tt.cfg.WindowLength)
		})
	}
}
