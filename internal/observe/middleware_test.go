package observe

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type middlewareEnv struct {
	metrics *Metrics
	reader  *sdkmetric.ManualReader
	spans   *tracetest.InMemoryExporter
	logs    *bytes.Buffer
	router  chi.Router
}

// newMiddlewareEnv returns a chi router wrapped in Middleware with in-memory
// metrics, spans and a debug-level text log.
func newMiddlewareEnv(t *testing.T, opts ...MiddlewareOption) *middlewareEnv {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	logs := &bytes.Buffer{}
	l := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r := chi.NewRouter()
	r.Use(Middleware(m, append([]MiddlewareOption{WithRequestLogger(l)}, opts...)...))
	return &middlewareEnv{metrics: m, reader: reader, spans: useTestTracer(t), logs: logs, router: r}
}

func (e *middlewareEnv) do(method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *middlewareEnv) durationPoint(t *testing.T) metricdata.HistogramDataPoint[float64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := e.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "newscast.http.request.duration")
	if met == nil {
		t.Fatal("http duration metric not recorded")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	if len(hist.DataPoints) != 1 {
		t.Fatalf("got %d data points, want 1", len(hist.DataPoints))
	}
	return hist.DataPoints[0]
}

func TestMiddleware_RouteLabelsAndTraceHeader(t *testing.T) {
	env := newMiddlewareEnv(t)
	var inHandler string
	env.router.Get("/api/v1/jobs/{jobID}", func(w http.ResponseWriter, r *http.Request) {
		inHandler = TraceID(r.Context())
		w.WriteHeader(http.StatusAccepted)
	})

	rec := env.do("GET", "/api/v1/jobs/4f1c", nil)

	if inHandler == "" || rec.Header().Get(TraceHeader) != inHandler {
		t.Errorf("trace header = %q, handler saw %q", rec.Header().Get(TraceHeader), inHandler)
	}

	spans := env.spans.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if want := "GET /api/v1/jobs/{jobID}"; spans[0].Name != want {
		t.Errorf("span name = %q, want %q", spans[0].Name, want)
	}
	if v, _ := attrValue(spans[0].Attributes, "http.response.status_code"); v.AsInt64() != http.StatusAccepted {
		t.Errorf("span status code = %d", v.AsInt64())
	}

	dp := env.durationPoint(t)
	want := map[string]string{"method": "GET", "path": "/api/v1/jobs/{jobID}", "status": "2xx"}
	for k, v := range want {
		if got, ok := dp.Attributes.Value(attribute.Key(k)); !ok || got.AsString() != v {
			t.Errorf("attribute %s = %q, want %q", k, got.AsString(), v)
		}
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	env := newMiddlewareEnv(t)
	env.router.Get("/api/v1/topics", func(w http.ResponseWriter, _ *http.Request) {})

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	rec := env.do("GET", "/api/v1/topics", http.Header{
		"Traceparent": {"00-" + traceID + "-00f067aa0ba902b7-01"},
	})

	if got := rec.Header().Get(TraceHeader); got != traceID {
		t.Errorf("trace header = %q, want %q", got, traceID)
	}
	if dp := env.durationPoint(t); dp.Count != 1 {
		t.Errorf("sample count = %d, want 1", dp.Count)
	}
}

func TestMiddleware_LogLevels(t *testing.T) {
	env := newMiddlewareEnv(t, WithQuietPaths("/healthz"))
	env.router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {})
	env.router.Get("/boom", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	env.do("GET", "/healthz", nil)
	if out := env.logs.String(); !strings.Contains(out, "level=DEBUG") || !strings.Contains(out, "route=/healthz") {
		t.Errorf("probe log = %q, want debug level", out)
	}
	env.logs.Reset()

	env.do("GET", "/boom", nil)
	if out := env.logs.String(); !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "status=502") {
		t.Errorf("5xx log = %q, want error level", out)
	}
}

func TestMiddleware_UnroutedPathAndFlush(t *testing.T) {
	env := newMiddlewareEnv(t)
	env.router.Get("/stream", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data: 1\n\n"))
		if err := http.NewResponseController(w).Flush(); err != nil {
			t.Errorf("Flush through middleware: %v", err)
		}
	})

	rec := env.do("GET", "/stream", nil)
	if !rec.Flushed {
		t.Error("response was not flushed")
	}

	env.do("GET", "/missing", nil)
	spans := env.spans.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if v, _ := attrValue(spans[1].Attributes, "http.response.status_code"); v.AsInt64() != http.StatusNotFound {
		t.Errorf("unrouted status = %d, want 404", v.AsInt64())
	}
}
