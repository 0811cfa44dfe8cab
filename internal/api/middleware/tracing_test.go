package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/cityair/cityair/internal/api/middleware"
)

func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return sr
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracing_StatusHandling(t *testing.T) {
	tests := []struct {
		status    int
		wantError bool
	}{
		{http.StatusOK, false},
		{http.StatusBadRequest, false},
		{http.StatusTooManyRequests, false},
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			sr := setupTestTracer(t)
			handler := middleware.Tracing("cityair-api")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.True(t, trace.SpanFromContext(r.Context()).SpanContext().IsValid())
				w.WriteHeader(tt.status)
			}))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ops/ready", http.NoBody))

			spans := sr.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, "GET /ops/ready", spans[0].Name(), "path is used outside chi")

			code, ok := spanAttr(spans[0], "http.status_code")
			require.True(t, ok)
			assert.Equal(t, int64(tt.status), code.AsInt64())

			if tt.wantError {
				assert.Equal(t, codes.Error, spans[0].Status().Code)
				assert.Equal(t, http.StatusText(tt.status), spans[0].Status().Description)
			} else {
				assert.Equal(t, codes.Unset, spans[0].Status().Code)
			}
		})
	}
}

func TestTracing_ContinuesIncomingTrace(t *testing.T) {
	sr := setupTestTracer(t)
	handler := middleware.Tracing("cityair-api")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/autocomplete?query=curi", http.NoBody)
	req.Header.Set("traceparent", "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", spans[0].SpanContext().TraceID().String())
	assert.Equal(t, "b7ad6b7169203331", spans[0].Parent().SpanID().String())
}

func TestTracing_IncludesRequestID(t *testing.T) {
	sr := setupTestTracer(t)
	handler := middleware.RequestID(
		middleware.Tracing("cityair-api")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})),
	)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ops/health", http.NoBody))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	id, ok := spanAttr(spans[0], "request.id")
	require.True(t, ok)
	assert.Contains(t, id.AsString(), "req_")
}

func TestTracing_NamesSpanAfterRoute(t *testing.T) {
	sr := setupTestTracer(t)

	r := chi.NewRouter()
	r.Use(middleware.Tracing("cityair-api"))
	r.Get("/api/city_resume", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/city_resume?city=Curitiba", http.NoBody))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/city_resume", spans[0].Name())
	assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind())

	route, ok := spanAttr(spans[0], "http.route")
	require.True(t, ok)
	assert.Equal(t, "/api/city_resume", route.AsString())
}
