package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumWhere returns the value of the int64 sum data point of metric name
// whose attribute key equals value.
func sumWhere(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	t.Fatalf("metric %q has no data point with %s=%s", name, key, value)
	return 0
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordStage(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordStage(ctx, "transcribing", 120*time.Millisecond)
	m.RecordStage(ctx, "transcribing", 450*time.Millisecond)
	m.RecordStage(ctx, "generating", time.Second)

	rm := collect(t, reader)
	met := findMetric(rm, "parley.stage.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	for _, dp := range hist.DataPoints {
		if v, _ := dp.Attributes.Value("stage"); v.AsString() == "transcribing" {
			if dp.Count != 2 {
				t.Errorf("transcribing count = %d, want 2", dp.Count)
			}
			return
		}
	}
	t.Error("data point with stage=transcribing not found")
}

func TestRecordSessionAndFailure(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSession(ctx, "played", 3*time.Second)
	m.RecordSession(ctx, "failed", time.Second)
	m.RecordSession(ctx, "failed", time.Second)
	m.RecordFailure(ctx, "transcribing", "transport")

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "parley.sessions", "outcome", "failed"); got != 2 {
		t.Errorf("failed sessions = %d, want 2", got)
	}
	if got := sumWhere(t, rm, "parley.failures", "kind", "transport"); got != 1 {
		t.Errorf("transport failures = %d, want 1", got)
	}
	if findMetric(rm, "parley.session.duration") == nil {
		t.Error("session duration not recorded")
	}
}

func TestProviderCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "huggingface", "stt", "ok")
	m.RecordProviderRequest(ctx, "huggingface", "stt", "ok")
	m.RecordProviderRequest(ctx, "huggingface", "stt", "error")
	m.RecordProviderError(ctx, "openai", "tts")
	m.RecordBreakerTransition(ctx, "openai", "open")
	m.RecordFailover(ctx, "stt", "whisper#1")

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "parley.provider.requests", "status", "ok"); got != 2 {
		t.Errorf("ok requests = %d, want 2", got)
	}
	if got := sumWhere(t, rm, "parley.provider.errors", "provider", "openai"); got != 1 {
		t.Errorf("provider errors = %d, want 1", got)
	}
	if got := sumWhere(t, rm, "parley.breaker.transitions", "state", "open"); got != 1 {
		t.Errorf("breaker transitions = %d, want 1", got)
	}
	if got := sumWhere(t, rm, "parley.provider.failovers", "provider", "whisper#1"); got != 1 {
		t.Errorf("failovers = %d, want 1", got)
	}
}

func TestGauges(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)
	m.ActiveSessions.Add(ctx, 1)
	m.EventSubscribers.Add(ctx, 3)

	rm := collect(t, reader)

	gauges := []struct {
		name string
		want int64
	}{
		{"parley.active_sessions", 1},
		{"parley.event_subscribers", 3},
	}
	for _, tc := range gauges {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok || len(sum.DataPoints) == 0 {
				t.Fatalf("metric %q has no sum data", tc.name)
			}
			if got := sum.DataPoints[0].Value; got != tc.want {
				t.Errorf("gauge value = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.05,
		metric.WithAttributes(
			attribute.String("method", "GET"),
			attribute.String("route", "GET /healthz"),
		),
	)

	rm := collect(t, reader)
	met := findMetric(rm, "parley.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 || hist.DataPoints[0].Count != 1 {
		t.Errorf("data points = %+v, want one sample", hist.DataPoints)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
