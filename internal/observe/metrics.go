// Package observe provides application-wide observability primitives for
// Health Compass: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Health Compass metrics.
const meterName = "github.com/MrWong99/healthcompass"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per turn stage ---

	// TurnDuration tracks a whole conversation turn, planning included.
	TurnDuration metric.Float64Histogram

	// PlanDuration tracks intent classification (prompt, model call, validation).
	PlanDuration metric.Float64Histogram

	// HandlerDuration tracks intent handler execution. Use with attribute:
	//   attribute.String("intent", ...)
	HandlerDuration metric.Float64Histogram

	// LLMDuration tracks model inference latency.
	LLMDuration metric.Float64Histogram

	// StorageDuration tracks metric store calls. Use with attribute:
	//   attribute.String("op", "insert"|"query")
	StorageDuration metric.Float64Histogram

	// ExtractionDuration tracks PDF text extraction.
	ExtractionDuration metric.Float64Histogram

	// --- Counters ---

	// Intents counts classified plans. Use with attribute:
	//   attribute.String("intent", ...)
	Intents metric.Int64Counter

	// HandlerOutcomes counts handler results. Use with attributes:
	//   attribute.String("intent", ...), attribute.String("outcome", ...)
	HandlerOutcomes metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveTurns tracks turns currently being processed.
	ActiveTurns metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Local
// model calls routinely take several seconds, hence the long tail.
var latencyBuckets = []float64{
	0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histogram := func(name, desc string) (metric.Float64Histogram, error) {
		return m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
	}

	// Histograms.
	if met.TurnDuration, err = histogram("healthcompass.turn.duration",
		"Latency of a complete conversation turn."); err != nil {
		return nil, err
	}
	if met.PlanDuration, err = histogram("healthcompass.plan.duration",
		"Latency of intent classification."); err != nil {
		return nil, err
	}
	if met.HandlerDuration, err = histogram("healthcompass.handler.duration",
		"Latency of intent handlers by intent."); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = histogram("healthcompass.llm.duration",
		"Latency of model inference."); err != nil {
		return nil, err
	}
	if met.StorageDuration, err = histogram("healthcompass.storage.duration",
		"Latency of metric store operations."); err != nil {
		return nil, err
	}
	if met.ExtractionDuration, err = histogram("healthcompass.extraction.duration",
		"Latency of PDF text extraction."); err != nil {
		return nil, err
	}

	// Counters.
	if met.Intents, err = m.Int64Counter("healthcompass.intents",
		metric.WithDescription("Total classified plans by intent."),
	); err != nil {
		return nil, err
	}
	if met.HandlerOutcomes, err = m.Int64Counter("healthcompass.handler.outcomes",
		metric.WithDescription("Total handler results by intent and outcome."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("healthcompass.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("healthcompass.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveTurns, err = m.Int64UpDownCounter("healthcompass.active_turns",
		metric.WithDescription("Number of turns currently in progress."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("healthcompass.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordIntent records one classified plan.
func (m *Metrics) RecordIntent(ctx context.Context, intent string) {
	m.Intents.Add(ctx, 1, metric.WithAttributes(attribute.String("intent", intent)))
}

// RecordHandlerOutcome records a handler result. outcome is one of "ok",
// "empty", "error" and "panic".
func (m *Metrics) RecordHandlerOutcome(ctx context.Context, intent, outcome string) {
	m.HandlerOutcomes.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("intent", intent),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
