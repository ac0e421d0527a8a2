package observe

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TraceHeader carries the request's trace ID back to the client.
const TraceHeader = "X-Trace-ID"

type middlewareConfig struct {
	log   *slog.Logger
	quiet map[string]bool
}

// MiddlewareOption configures [Middleware].
type MiddlewareOption func(*middlewareConfig)

// WithRequestLogger sets the logger for completed requests.
func WithRequestLogger(l *slog.Logger) MiddlewareOption {
	return func(c *middlewareConfig) {
		if l != nil {
			c.log = l
		}
	}
}

// WithQuietPaths lists paths whose successful requests are logged at debug
// level. Probes and scrapes would otherwise dominate the log.
func WithQuietPaths(paths ...string) MiddlewareOption {
	return func(c *middlewareConfig) {
		for _, p := range paths {
			c.quiet[p] = true
		}
	}
}

// Middleware traces each request, continuing any W3C trace context the caller
// sent, and records its latency under the chi route pattern so that job and
// podcast IDs do not explode metric cardinality.
func Middleware(m *Metrics, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := middlewareConfig{log: slog.Default(), quiet: map[string]bool{}}
	for _, o := range opts {
		o(&cfg)
	}
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			traceID := TraceID(ctx)
			if traceID != "" {
				w.Header().Set(TraceHeader, traceID)
			}

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			r = r.WithContext(ctx)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := routePattern(r)
			span.SetName(r.Method + " " + route)
			span.SetAttributes(
				semconv.HTTPRoute(route),
				semconv.HTTPResponseStatusCode(status),
			)

			elapsed := time.Since(start)
			m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(),
				metric.WithAttributes(
					attribute.String("method", r.Method),
					attribute.String("path", route),
					attribute.String("status", strconv.Itoa(status/100)+"xx"),
				),
			)

			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case cfg.quiet[r.URL.Path] && status < 400:
				level = slog.LevelDebug
			}
			cfg.log.LogAttrs(ctx, level, "http request",
				slog.String("trace_id", traceID),
				slog.String("method", r.Method),
				slog.String("route", route),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("elapsed", elapsed),
			)
		})
	}
}

// routePattern returns the chi pattern that matched r, or the raw path for
// requests chi did not route.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
