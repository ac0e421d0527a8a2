package observe

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/newscast/pkg/types"
)

const tracerName = "github.com/MrWong99/newscast"

// StartSpan starts a span on the global tracer provider. End it with
// [EndSpan].
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// EndSpan ends span, tagging it with the error kind of err. Cancellation is
// recorded as an attribute only; every other error also sets the span status
// to Error.
func EndSpan(span trace.Span, err error) {
	defer span.End()
	if err == nil {
		return
	}
	kind := types.Classify(err)
	span.SetAttributes(attribute.String("error.kind", kind))
	if errors.Is(err, types.ErrCancelled) || errors.Is(err, context.Canceled) {
		span.SetAttributes(attribute.Bool("cancelled", true))
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TraceID returns the hex trace ID of the span in ctx, or "".
func TraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// WithTrace returns base annotated with the trace and span IDs from ctx.
// Without an active span base is returned as is.
func WithTrace(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return base
	}
	return base.With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
