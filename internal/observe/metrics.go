// Package observe provides application-wide observability primitives for
// voiceqa: OpenTelemetry metrics, tracing, trace-aware logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed to
// Prometheus via the exporter bridge installed by [InitProvider]. A
// package-level [Metrics] instance ([DefaultMetrics]) is provided for
// convenience; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voiceqa metrics.
const meterName = "github.com/MrWong99/voiceqa"

// Reload and upload status attribute values.
const (
	StatusOK        = "ok"
	StatusUnchanged = "unchanged"
	StatusError     = "error"
	StatusRejected  = "rejected"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
type Metrics struct {
	// Utterances counts transcripts handed to the assistant. Use with
	// attribute.String("source", ...) ("http", "listen", "console").
	Utterances metric.Int64Counter

	// Matches counts utterances that matched a question. Use with
	// attribute.String("category", ...).
	Matches metric.Int64Counter

	// Misses counts utterances that matched nothing.
	Misses metric.Int64Counter

	// Repeats counts matches classified as repeats.
	Repeats metric.Int64Counter

	// MatchScore observes the winning score of every match attempt that
	// produced a candidate.
	MatchScore metric.Float64Histogram

	// CorpusSize is the number of records currently loaded.
	CorpusSize metric.Int64Gauge

	// CorpusReloads counts reload attempts. Use with
	// attribute.String("status", ...).
	CorpusReloads metric.Int64Counter

	// Uploads counts submitted records. Use with
	// attribute.String("status", ...).
	Uploads metric.Int64Counter

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds).
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// scoreBuckets covers the 0..100 similarity range with extra resolution
// around the default threshold.
var scoreBuckets = []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.Utterances, err = m.Int64Counter("voiceqa.utterances",
		metric.WithDescription("Total transcripts handled by source."),
	); err != nil {
		return nil, err
	}
	if met.Matches, err = m.Int64Counter("voiceqa.matches",
		metric.WithDescription("Total utterances that matched a question, by category."),
	); err != nil {
		return nil, err
	}
	if met.Misses, err = m.Int64Counter("voiceqa.misses",
		metric.WithDescription("Total utterances without a match."),
	); err != nil {
		return nil, err
	}
	if met.Repeats, err = m.Int64Counter("voiceqa.repeats",
		metric.WithDescription("Total matches classified as repeats."),
	); err != nil {
		return nil, err
	}
	if met.CorpusReloads, err = m.Int64Counter("voiceqa.corpus.reloads",
		metric.WithDescription("Total corpus reload attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.Uploads, err = m.Int64Counter("voiceqa.uploads",
		metric.WithDescription("Total record submissions by status."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.MatchScore, err = m.Float64Histogram("voiceqa.match.score",
		metric.WithDescription("Best similarity score per match attempt."),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("voiceqa.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voiceqa.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.CorpusSize, err = m.Int64Gauge("voiceqa.corpus.size",
		metric.WithDescription("Number of question records currently loaded."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordUtterance increments the utterance counter for source.
func (m *Metrics) RecordUtterance(ctx context.Context, source string) {
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordMatch records a successful match, its score, and whether it was a
// repeat.
func (m *Metrics) RecordMatch(ctx context.Context, category string, score float64, repeat bool) {
	m.Matches.Add(ctx, 1, metric.WithAttributes(attribute.String("category", category)))
	m.MatchScore.Record(ctx, score)
	if repeat {
		m.Repeats.Add(ctx, 1)
	}
}

// RecordMiss records an utterance that matched nothing.
func (m *Metrics) RecordMiss(ctx context.Context) {
	m.Misses.Add(ctx, 1)
}

// RecordReload records a reload attempt and, unless it failed, the resulting
// corpus size.
func (m *Metrics) RecordReload(ctx context.Context, status string, size int) {
	m.CorpusReloads.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	if status != StatusError {
		m.CorpusSize.Record(ctx, int64(size))
	}
}

// RecordUpload records a record submission outcome.
func (m *Metrics) RecordUpload(ctx context.Context, status string) {
	m.Uploads.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
