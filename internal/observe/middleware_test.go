package observe

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// instrumented wires a fresh meter and an in-memory span exporter around a
// mux serving the routes used by the API. The global tracer provider is
// swapped for the duration of the test, so these tests do not run in
// parallel.
type instrumented struct {
	handler http.Handler
	reader  *sdkmetric.ManualReader
	spans   *tracetest.InMemoryExporter
}

func newInstrumented(t *testing.T) *instrumented {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "missing" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"id":"` + r.PathValue("id") + `"}`))
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /v1/sessions", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	return &instrumented{handler: Middleware(m)(mux), reader: reader, spans: exp}
}

func (in *instrumented) do(method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	in.handler.ServeHTTP(rec, req)
	return rec
}

func (in *instrumented) histogram(t *testing.T) metricdata.Histogram[float64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := in.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "parley.http.request.duration")
	if met == nil {
		t.Fatal("request duration metric not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric data is %T, want histogram", met.Data)
	}
	return hist
}

func captureLogs(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestMiddleware_CorrelationHeaderMatchesSpan(t *testing.T) {
	in := newInstrumented(t)

	rec := in.do("GET", "/v1/sessions/abc", nil)

	cid := rec.Header().Get(CorrelationHeader)
	if len(cid) != 32 {
		t.Fatalf("%s = %q, want a 32 digit trace ID", CorrelationHeader, cid)
	}
	spans := in.spans.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if got := spans[0].SpanContext.TraceID().String(); got != cid {
		t.Errorf("span trace ID = %s, header = %s", got, cid)
	}
	if rec.Header().Get("traceparent") == "" {
		t.Error("traceparent not injected into response")
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	in := newInstrumented(t)

	const traceID = "0af7651916cd43dd8448eb211c80319c"
	rec := in.do("GET", "/healthz", http.Header{
		"Traceparent": {"00-" + traceID + "-b7ad6b7169203331-01"},
	})

	if got := rec.Header().Get(CorrelationHeader); got != traceID {
		t.Errorf("%s = %q, want %q", CorrelationHeader, got, traceID)
	}
	spans := in.spans.GetSpans()
	if len(spans) != 1 || spans[0].Parent.SpanID().String() != "b7ad6b7169203331" {
		t.Errorf("span does not continue the remote parent: %+v", spans)
	}
}

func TestMiddleware_SpanNamedByRoute(t *testing.T) {
	in := newInstrumented(t)

	in.do("GET", "/v1/sessions/one", nil)
	in.do("GET", "/v1/sessions/missing", nil)
	in.do("GET", "/nowhere", nil)

	spans := in.spans.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("recorded %d spans, want 3", len(spans))
	}
	wantNames := []string{"HTTP GET /v1/sessions/{id}", "HTTP GET /v1/sessions/{id}", "HTTP unmatched"}
	wantStatus := []int64{200, 404, 404}
	for i, s := range spans {
		if s.Name != wantNames[i] {
			t.Errorf("span %d name = %q, want %q", i, s.Name, wantNames[i])
		}
		var status int64
		for _, a := range s.Attributes {
			if a.Key == "http.response.status_code" {
				status = a.Value.AsInt64()
			}
		}
		if status != wantStatus[i] {
			t.Errorf("span %d status = %d, want %d", i, status, wantStatus[i])
		}
	}
}

func TestMiddleware_DurationLabelledByRoute(t *testing.T) {
	in := newInstrumented(t)

	for _, id := range []string{"a", "b", "c"} {
		in.do("GET", "/v1/sessions/"+id, nil)
	}
	in.do("POST", "/v1/sessions", nil)

	hist := in.histogram(t)
	if len(hist.DataPoints) != 2 {
		t.Fatalf("data points = %d, want one per route and status", len(hist.DataPoints))
	}
	counts := make(map[string]uint64)
	for _, dp := range hist.DataPoints {
		route, _ := dp.Attributes.Value(attribute.Key("route"))
		status, _ := dp.Attributes.Value(attribute.Key("status"))
		counts[route.AsString()+" "+status.Emit()] = dp.Count
	}
	if counts["GET /v1/sessions/{id} 200"] != 3 {
		t.Errorf("session lookups = %d, want 3 (%v)", counts["GET /v1/sessions/{id} 200"], counts)
	}
	if counts["POST /v1/sessions 503"] != 1 {
		t.Errorf("start attempts = %d, want 1 (%v)", counts["POST /v1/sessions 503"], counts)
	}
}

func TestMiddleware_LogLevels(t *testing.T) {
	in := newInstrumented(t)
	logs := captureLogs(t, slog.LevelInfo)

	in.do("GET", "/healthz", nil)
	if logs.Len() != 0 {
		t.Errorf("health probe logged at info: %s", logs)
	}

	in.do("GET", "/v1/sessions/abc", nil)
	out := logs.String()
	for _, want := range []string{"level=INFO", `route="GET /v1/sessions/{id}"`, "path=/v1/sessions/abc", "bytes=12"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %s: %s", want, out)
		}
	}

	logs.Reset()
	in.do("POST", "/v1/sessions", nil)
	if !strings.Contains(logs.String(), "level=WARN") {
		t.Errorf("5xx not logged as warning: %s", logs)
	}
}

func TestResponseRecorder_HijackUnsupported(t *testing.T) {
	rec := &responseRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	if _, _, err := rec.Hijack(); err == nil {
		t.Fatal("expected error from non-hijackable writer")
	}
	if rec.status != http.StatusOK {
		t.Errorf("status = %d, want unchanged", rec.status)
	}
	if rec.Unwrap() == nil {
		t.Error("Unwrap returned nil")
	}
}

func TestMiddleware_AllowsWebsocketUpgrade(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	var hijacked atomic.Bool
	srv := httptest.NewServer(Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		conn, _, err := http.NewResponseController(w).Hijack()
		if err != nil {
			t.Errorf("Hijack: %v", err)
			return
		}
		hijacked.Store(true)
		_, _ = conn.Write([]byte("HTTP/1.1 101 Switching Protocols\r\nConnection: close\r\n\r\n"))
		_ = conn.Close()
	})))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/events")
	if err == nil {
		_ = resp.Body.Close()
	}
	if !hijacked.Load() {
		t.Error("handler could not hijack through the middleware")
	}
}
