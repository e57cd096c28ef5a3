// Package observe provides application-wide observability primitives for
// parley: OpenTelemetry metrics, tracing, trace-aware logging, and the HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported
// for Prometheus scraping via [Setup]. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with their own [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all parley metrics.
const meterName = "github.com/MrWong99/parley"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// StageDuration tracks the latency of each pipeline stage. Use with
	// attribute.String("stage", ...).
	StageDuration metric.Float64Histogram

	// SessionDuration tracks the time from Start to the terminal outcome.
	SessionDuration metric.Float64Histogram

	// --- Counters ---

	// Sessions counts finished sessions. Use with attribute.String("outcome", ...).
	Sessions metric.Int64Counter

	// Failures counts failed sessions. Use with attributes:
	//   attribute.String("stage", ...), attribute.String("kind", ...)
	Failures metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// Failovers counts calls a fallback answered after the preferred
	// provider failed or was skipped. Attributes: kind, provider.
	Failovers metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Use with
	// attributes attribute.String("provider", ...), attribute.String("state", ...)
	BreakerTransitions metric.Int64Counter

	// PlayedSamples counts samples handed to the playback sink.
	PlayedSamples metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions is 1 while a session is between Start and its outcome.
	ActiveSessions metric.Int64UpDownCounter

	// EventSubscribers tracks the number of attached event subscribers.
	EventSubscribers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time, labelled
	// with method, mux route and status by [Middleware].
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are the histogram boundaries, in seconds, for remote model
// calls and capture.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates every instrument on a meter from mp. Instrument errors
// are collected and returned together.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	var (
		met  Metrics
		errs []error
	)
	counter := func(dst *metric.Int64Counter, name, desc string) {
		var err error
		*dst, err = meter.Int64Counter(name, metric.WithDescription(desc))
		errs = append(errs, err)
	}
	gauge := func(dst *metric.Int64UpDownCounter, name, desc string) {
		var err error
		*dst, err = meter.Int64UpDownCounter(name, metric.WithDescription(desc))
		errs = append(errs, err)
	}
	seconds := func(dst *metric.Float64Histogram, name, desc string, buckets ...float64) {
		opts := []metric.Float64HistogramOption{metric.WithDescription(desc), metric.WithUnit("s")}
		if len(buckets) > 0 {
			opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
		}
		var err error
		*dst, err = meter.Float64Histogram(name, opts...)
		errs = append(errs, err)
	}

	seconds(&met.StageDuration, "parley.stage.duration", "Latency of a single pipeline stage.", latencyBuckets...)
	seconds(&met.SessionDuration, "parley.session.duration", "Time from session start to its outcome.", latencyBuckets...)
	seconds(&met.HTTPRequestDuration, "parley.http.request.duration", "HTTP request latency by method, route and status.")

	counter(&met.Sessions, "parley.sessions", "Finished sessions by outcome.")
	counter(&met.Failures, "parley.failures", "Failed sessions by stage and kind.")
	counter(&met.ProviderRequests, "parley.provider.requests", "Provider calls by provider, kind and status.")
	counter(&met.ProviderErrors, "parley.provider.errors", "Provider errors by provider and kind.")
	counter(&met.Failovers, "parley.provider.failovers", "Calls answered by a fallback provider, by kind and provider.")
	counter(&met.BreakerTransitions, "parley.breaker.transitions", "Circuit breaker state changes by provider and new state.")
	counter(&met.PlayedSamples, "parley.playback.samples", "Samples handed to the playback sink.")

	gauge(&met.ActiveSessions, "parley.active_sessions", "Sessions in flight.")
	gauge(&met.EventSubscribers, "parley.event_subscribers", "Attached event stream subscribers.")

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("observe: create instruments: %w", err)
	}
	return &met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// RecordStage records the latency of one pipeline stage.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration) {
	m.StageDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordSession records a finished session with its outcome ("played" or
// "failed") and total duration.
func (m *Metrics) RecordSession(ctx context.Context, outcome string, d time.Duration) {
	m.Sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.SessionDuration.Record(ctx, d.Seconds())
}

// RecordFailure records a failed session.
func (m *Metrics) RecordFailure(ctx context.Context, stage, kind string) {
	m.Failures.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("kind", kind),
		),
	)
}

// RecordProviderRequest counts one provider call with its status ("ok" or
// "error").
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError counts one failed provider call.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordFailover records that provider answered a kind call in place of an
// earlier member of its fallback chain.
func (m *Metrics) RecordFailover(ctx context.Context, kind, provider string) {
	m.Failovers.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("provider", provider),
		),
	)
}

// RecordBreakerTransition records a circuit breaker moving to state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, provider, state string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("state", state),
		),
	)
}
