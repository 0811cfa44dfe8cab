package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const providerMeterName = "github.com/cityair/cityair/internal/telemetry"

// ProviderMetrics holds metrics for upstream provider calls and the result cache.
type ProviderMetrics struct {
	provider        string
	requestDuration metric.Float64Histogram
	requestTotal    metric.Int64Counter
	cacheHit        metric.Int64Counter
	cacheMiss       metric.Int64Counter
}

// NewProviderMetrics creates metrics for monitoring calls to the named provider.
func NewProviderMetrics(provider string) (*ProviderMetrics, error) {
	meter := otel.Meter(providerMeterName)

	requestDuration, err := meter.Float64Histogram(
		"provider.request.duration",
		metric.WithDescription("Duration of provider requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	requestTotal, err := meter.Int64Counter(
		"provider.request.total",
		metric.WithDescription("Total number of provider requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	cacheHit, err := meter.Int64Counter(
		"provider.cache.hit",
		metric.WithDescription("Number of result cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, err
	}

	cacheMiss, err := meter.Int64Counter(
		"provider.cache.miss",
		metric.WithDescription("Number of result cache misses"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, err
	}

	return &ProviderMetrics{
		provider:        provider,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheHit:        cacheHit,
		cacheMiss:       cacheMiss,
	}, nil
}

// RecordRequest records one upstream call. A nil receiver is a no-op.
func (m *ProviderMetrics) RecordRequest(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := m.attrs(operation)
	if err != nil {
		attrs = append(attrs, attribute.Bool("error", true))
	}

	// Detached from the request so cancelled requests are still counted.
	ctx := context.Background()
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.requestTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCacheHit records a result cache hit.
func (m *ProviderMetrics) RecordCacheHit(operation string) {
	if m == nil {
		return
	}
	m.cacheHit.Add(context.Background(), 1, metric.WithAttributes(m.attrs(operation)...))
}

// RecordCacheMiss records a result cache miss.
func (m *ProviderMetrics) RecordCacheMiss(operation string) {
	if m == nil {
		return
	}
	m.cacheMiss.Add(context.Background(), 1, metric.WithAttributes(m.attrs(operation)...))
}

func (m *ProviderMetrics) attrs(operation string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("provider.name", m.provider),
		attribute.String("provider.operation", operation),
	}
}
