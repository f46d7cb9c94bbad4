package observe

import (
	"context"
	"testing"

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

// sumByAttr returns the value of the counter data point carrying key=value.
func sumByAttr(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
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
	t.Fatalf("metric %q: no data point with %s=%s", name, key, value)
	return 0
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordMatchAndMiss(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordUtterance(ctx, "http")
	m.RecordUtterance(ctx, "http")
	m.RecordUtterance(ctx, "listen")
	m.RecordMatch(ctx, "Science", 66.7, false)
	m.RecordMatch(ctx, "Science", 80, true)
	m.RecordMiss(ctx)

	rm := collect(t, reader)

	if got := sumByAttr(t, rm, "voiceqa.utterances", "source", "http"); got != 2 {
		t.Errorf("utterances{source=http} = %d, want 2", got)
	}
	if got := sumByAttr(t, rm, "voiceqa.matches", "category", "Science"); got != 2 {
		t.Errorf("matches{category=Science} = %d, want 2", got)
	}

	for name, want := range map[string]int64{"voiceqa.misses": 1, "voiceqa.repeats": 1} {
		met := findMetric(rm, name)
		if met == nil {
			t.Fatalf("metric %q not found", name)
		}
		sum := met.Data.(metricdata.Sum[int64])
		if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != want {
			t.Errorf("%s = %+v, want %d", name, sum.DataPoints, want)
		}
	}

	met := findMetric(rm, "voiceqa.match.score")
	if met == nil {
		t.Fatal("voiceqa.match.score not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) == 0 {
		t.Fatal("voiceqa.match.score is not a populated histogram")
	}
	if got := hist.DataPoints[0].Count; got != 2 {
		t.Errorf("score sample count = %d, want 2", got)
	}
}

func TestRecordReload(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordReload(ctx, StatusOK, 12)
	m.RecordReload(ctx, StatusError, 0)
	m.RecordReload(ctx, StatusUnchanged, 12)

	rm := collect(t, reader)
	if got := sumByAttr(t, rm, "voiceqa.corpus.reloads", "status", StatusError); got != 1 {
		t.Errorf("reloads{status=error} = %d, want 1", got)
	}

	met := findMetric(rm, "voiceqa.corpus.size")
	if met == nil {
		t.Fatal("voiceqa.corpus.size not found")
	}
	gauge, ok := met.Data.(metricdata.Gauge[int64])
	if !ok || len(gauge.DataPoints) == 0 {
		t.Fatal("voiceqa.corpus.size is not a populated gauge")
	}
	if got := gauge.DataPoints[0].Value; got != 12 {
		t.Errorf("corpus size = %d, want 12 (a failed reload must not reset it)", got)
	}
}

func TestRecordUpload(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordUpload(ctx, StatusOK)
	m.RecordUpload(ctx, StatusRejected)
	m.RecordUpload(ctx, StatusRejected)

	rm := collect(t, reader)
	if got := sumByAttr(t, rm, "voiceqa.uploads", "status", StatusRejected); got != 2 {
		t.Errorf("uploads{status=rejected} = %d, want 2", got)
	}
}

func TestDurationHistograms(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.TTSDuration.Record(ctx, 0.3)
	m.HTTPRequestDuration.Record(ctx, 0.05,
		metric.WithAttributes(
			attribute.String("method", "GET"),
			attribute.String("path", "/healthz"),
		),
	)

	rm := collect(t, reader)
	for _, name := range []string{"voiceqa.tts.duration", "voiceqa.http.request.duration"} {
		t.Run(name, func(t *testing.T) {
			met := findMetric(rm, name)
			if met == nil {
				t.Fatalf("metric %q not found", name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok || len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no histogram data", name)
			}
			if got := hist.DataPoints[0].Count; got != 1 {
				t.Errorf("sample count = %d, want 1", got)
			}
		})
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
