package observability

import (
	"context"
	"time"

	"trainer-match-workers/internal/common/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability records ranking and notification passes through an OpenTelemetry
// meter exported on the Prometheus registry.
type Observability struct {
	meterProvider   *metric.MeterProvider
	meter           otelmetric.Meter
	passCounter     otelmetric.Int64Counter
	passDuration    otelmetric.Float64Histogram
	shortlistLength otelmetric.Int64Histogram
}

func New(serviceName string, log logger.Logger) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Warn("failed to create prometheus exporter, pass metrics disabled", map[string]interface{}{
			"error": err.Error(),
		})
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	return newWithProvider(provider, serviceName)
}

func newWithProvider(provider *metric.MeterProvider, serviceName string) *Observability {
	meter := provider.Meter(serviceName)

	passCounter, _ := meter.Int64Counter(
		"matching.passes",
		otelmetric.WithDescription("Ranking and notification passes by operation and status"),
	)
	passDuration, _ := meter.Float64Histogram(
		"matching.pass.duration",
		otelmetric.WithDescription("Pass duration"),
		otelmetric.WithUnit("ms"),
	)
	shortlistLength, _ := meter.Int64Histogram(
		"matching.shortlist.length",
		otelmetric.WithDescription("Number of trainers returned by a ranking pass"),
	)

	return &Observability{
		meterProvider:   provider,
		meter:           meter,
		passCounter:     passCounter,
		passDuration:    passDuration,
		shortlistLength: shortlistLength,
	}
}

// RecordPass records one finished operation ("rank" or "notify") with its status.
func (o *Observability) RecordPass(ctx context.Context, operation, status string, duration time.Duration) {
	if o == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
	if o.passCounter != nil {
		o.passCounter.Add(ctx, 1, attrs)
	}
	if o.passDuration != nil {
		o.passDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

// RecordShortlist records how many trainers a ranking pass kept.
func (o *Observability) RecordShortlist(ctx context.Context, length int) {
	if o == nil || o.shortlistLength == nil {
		return
	}
	o.shortlistLength.Record(ctx, int64(length))
}

func (o *Observability) Shutdown() {
	if o == nil || o.meterProvider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = o.meterProvider.Shutdown(ctx)
}
