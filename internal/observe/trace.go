package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/MrWong99/parley"

type sessionKey struct{}

// Tracer returns the parley tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(scopeName)
}

// StartSpan starts a span named name. The caller ends it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartSession opens the root span of a pipeline session and tags ctx with
// the session ID, which [Logger] then attaches to every record.
func StartSession(ctx context.Context, id string) (context.Context, trace.Span) {
	ctx = context.WithValue(ctx, sessionKey{}, id)
	return StartSpan(ctx, "pipeline.session",
		trace.WithAttributes(attribute.String("session.id", id)))
}

// StartStage opens the span of one pipeline stage under the session span.
func StartStage(ctx context.Context, stage string) (context.Context, trace.Span) {
	return StartSpan(ctx, "pipeline."+stage,
		trace.WithAttributes(attribute.String("pipeline.stage", stage)))
}

// Fail records err on span and marks it as errored with description.
// A nil err leaves the span untouched.
func Fail(span trace.Span, err error, description string) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, description)
}

// SessionID returns the session ID set by [StartSession], or "".
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// CorrelationID is the hex trace ID of the span in ctx, or "" without one.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// Logger returns slog.Default enriched with the trace, span and session
// found in ctx. Attributes that are absent are omitted.
func Logger(ctx context.Context) *slog.Logger {
	var attrs []any
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if id := SessionID(ctx); id != "" {
		attrs = append(attrs, slog.String("session", id))
	}
	if len(attrs) == 0 {
		return slog.Default()
	}
	return slog.Default().With(attrs...)
}
