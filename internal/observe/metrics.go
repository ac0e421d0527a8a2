// Package observe provides application-wide observability primitives for
// newscast: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [Setup] bridges
// them to a Prometheus registry served on /metrics. [DefaultMetrics] uses the
// global meter provider; tests should call [NewMetrics] with their own
// provider to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all newscast metrics.
const meterName = "github.com/MrWong99/newscast"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// JobDuration tracks end-to-end generation time. Use with attributes:
	//   attribute.String("strategy", ...), attribute.String("outcome", ...)
	JobDuration metric.Float64Histogram

	// StageDuration tracks pipeline stage time. Use with attribute:
	//   attribute.String("stage", ...)
	StageDuration metric.Float64Histogram

	// LLMDuration tracks script generation latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks per-utterance synthesis latency.
	TTSDuration metric.Float64Histogram

	// PodcastDuration tracks integrated one-shot generation latency.
	PodcastDuration metric.Float64Histogram

	// --- Counters ---

	// JobsStarted counts accepted jobs. Use with attribute:
	//   attribute.String("strategy", ...)
	JobsStarted metric.Int64Counter

	// JobOutcomes counts terminal jobs. Use with attributes:
	//   attribute.String("outcome", ...), attribute.String("kind", ...)
	JobOutcomes metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// Utterances counts synthesised utterances. Use with attribute:
	//   attribute.String("speaker", ...)
	Utterances metric.Int64Counter

	// SkippedClips counts clips dropped by the stitcher.
	SkippedClips metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveJobs tracks the number of in-flight generation jobs.
	ActiveJobs metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for single
// provider calls.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// jobBuckets covers whole jobs and stages, which run for minutes.
var jobBuckets = []float64{
	1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.JobDuration, err = m.Float64Histogram("newscast.job.duration",
		metric.WithDescription("End-to-end podcast generation time by strategy and outcome."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(jobBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StageDuration, err = m.Float64Histogram("newscast.stage.duration",
		metric.WithDescription("Pipeline stage time by stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(jobBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("newscast.llm.duration",
		metric.WithDescription("Latency of script generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("newscast.tts.duration",
		metric.WithDescription("Latency of single-utterance synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PodcastDuration, err = m.Float64Histogram("newscast.podcast.duration",
		metric.WithDescription("Latency of integrated one-shot generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(jobBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.JobsStarted, err = m.Int64Counter("newscast.jobs.started",
		metric.WithDescription("Total accepted generation jobs by strategy."),
	); err != nil {
		return nil, err
	}
	if met.JobOutcomes, err = m.Int64Counter("newscast.jobs.outcomes",
		metric.WithDescription("Total terminal jobs by outcome and error kind."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("newscast.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("newscast.utterances",
		metric.WithDescription("Total synthesised utterances by speaker."),
	); err != nil {
		return nil, err
	}
	if met.SkippedClips, err = m.Int64Counter("newscast.clips.skipped",
		metric.WithDescription("Total clips dropped while stitching."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("newscast.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveJobs, err = m.Int64UpDownCounter("newscast.active_jobs",
		metric.WithDescription("Number of in-flight generation jobs."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("newscast.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
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

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordJobStarted counts an accepted job and increments ActiveJobs.
func (m *Metrics) RecordJobStarted(ctx context.Context, strategy string) {
	m.JobsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", strategy)))
	m.ActiveJobs.Add(ctx, 1)
}

// RecordJobFinished records the terminal outcome of a job, its total duration,
// and decrements ActiveJobs. kind is the error classification, empty on
// success.
func (m *Metrics) RecordJobFinished(ctx context.Context, strategy, outcome, kind string, seconds float64) {
	m.ActiveJobs.Add(ctx, -1)
	m.JobOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("kind", kind),
	))
	m.JobDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.String("outcome", outcome),
	))
}

// RecordStage records the duration of one pipeline stage.
func (m *Metrics) RecordStage(ctx context.Context, stage string, seconds float64) {
	m.StageDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordUtterance records one synthesised utterance and its latency.
func (m *Metrics) RecordUtterance(ctx context.Context, speaker string, seconds float64) {
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("speaker", speaker)))
	m.TTSDuration.Record(ctx, seconds)
}
