package observe

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// TelemetryConfig selects how parley reports metrics and traces.
type TelemetryConfig struct {
	// ServiceName defaults to "parley".
	ServiceName string

	ServiceVersion string

	// TraceExporter receives finished spans. Nil keeps spans in-process only,
	// which still yields correlation IDs for logs and HTTP responses.
	TraceExporter sdktrace.SpanExporter

	// SampleRatio is the fraction of new traces that are sampled. Zero or
	// anything above one samples everything. Incoming sampled parents are
	// always honoured.
	SampleRatio float64
}

// Telemetry owns the SDK providers and the Prometheus registry that backs
// /metrics. Create it once per process with [Setup].
type Telemetry struct {
	// Metrics are the parley instruments bound to this Telemetry's meter.
	Metrics *Metrics

	registry *prometheus.Registry
	closers  []func(context.Context) error
}

// Setup builds the meter and tracer providers, installs them as the OTel
// globals and returns the handle used to serve and flush them.
//
// The Prometheus registry is private to the returned Telemetry and also
// carries the Go runtime and process collectors.
func Setup(ctx context.Context, cfg TelemetryConfig) (*Telemetry, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "parley"
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("observe: build resource: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	exporter, err := promexporter.New(promexporter.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}

	t := &Telemetry{registry: reg}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(exporter))
	t.closers = append(t.closers, mp.Shutdown)

	tp := sdktrace.NewTracerProvider(traceOptions(res, cfg)...)
	t.closers = append(t.closers, tp.Shutdown)

	t.Metrics, err = NewMetrics(mp)
	if err != nil {
		_ = t.Shutdown(ctx)
		return nil, err
	}

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)
	return t, nil
}

func traceOptions(res *resource.Resource, cfg TelemetryConfig) []sdktrace.TracerProviderOption {
	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		opts = append(opts, sdktrace.WithSampler(
			sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio)),
		))
	}
	if cfg.TraceExporter != nil {
		opts = append(opts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	return opts
}

// Handler serves the registry in the Prometheus text or OpenMetrics format.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{
		Registry:          t.registry,
		EnableOpenMetrics: true,
	})
}

// Shutdown flushes pending spans and stops the providers. Errors from the
// individual providers are joined.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range t.closers {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
