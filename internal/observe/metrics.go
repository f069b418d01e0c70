// Package observe provides application-wide observability primitives for
// Oratio: OpenTelemetry metrics, distributed tracing, structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all Oratio metrics.
const meterName = "github.com/oratioapp/oratio"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// GenerationDuration tracks end-to-end feedback generation latency,
	// retries included.
	GenerationDuration metric.Float64Histogram

	// FeedbackClaims counts claim attempts. Use with attribute:
	//   attribute.String("outcome", ...)
	FeedbackClaims metric.Int64Counter

	// GenerationRetries counts grading calls beyond the first attempt.
	GenerationRetries metric.Int64Counter

	// ScoreRequests counts grading provider calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	ScoreRequests metric.Int64Counter

	// FramesSent counts audio frames forwarded to the live session.
	FramesSent metric.Int64Counter

	// FramesDropped counts captured frames discarded before sending,
	// typically by the voice activity gate.
	FramesDropped metric.Int64Counter

	// ActiveLiveSessions tracks currently open realtime voice sessions.
	ActiveLiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// generationBuckets covers grading latencies, which run from sub-second to a
// full retry cycle (in seconds).
var generationBuckets = []float64{
	0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120,
}

// httpBuckets covers request handling latencies (in seconds).
var httpBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.GenerationDuration, err = m.Float64Histogram("oratio.feedback.generation.duration",
		metric.WithDescription("End-to-end feedback generation latency, retries included."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(generationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FeedbackClaims, err = m.Int64Counter("oratio.feedback.claims",
		metric.WithDescription("Total feedback claim attempts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.GenerationRetries, err = m.Int64Counter("oratio.feedback.generation.retries",
		metric.WithDescription("Grading calls beyond the first attempt."),
	); err != nil {
		return nil, err
	}
	if met.ScoreRequests, err = m.Int64Counter("oratio.score.requests",
		metric.WithDescription("Total grading provider calls by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.FramesSent, err = m.Int64Counter("oratio.live.frames.sent",
		metric.WithDescription("Audio frames forwarded to the live session."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("oratio.live.frames.dropped",
		metric.WithDescription("Captured audio frames discarded before sending."),
	); err != nil {
		return nil, err
	}
	if met.ActiveLiveSessions, err = m.Int64UpDownCounter("oratio.live.active_sessions",
		metric.WithDescription("Currently open realtime voice sessions."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("oratio.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(httpBuckets...),
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

// RecordClaim records one claim attempt with its outcome.
func (m *Metrics) RecordClaim(ctx context.Context, outcome string) {
	m.FeedbackClaims.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordScoreRequest records one grading provider call.
func (m *Metrics) RecordScoreRequest(ctx context.Context, provider, status string) {
	m.ScoreRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}
