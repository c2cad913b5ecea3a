// Package observe provides observability primitives for the pipeline:
// OpenTelemetry metrics, tracing helpers, and trace-aware logging.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so metrics can be scraped
// via /metrics. A package-level default [Metrics] instance is available via
// [DefaultMetrics]; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for all pipeline metrics.
const meterName = "github.com/ATAboukhadra/T30-Mazad"

// Metrics holds all OpenTelemetry metric instruments. All fields are safe
// for concurrent use.
type Metrics struct {
	// StageDuration tracks per-stage latency. Use with attribute
	// "stage" = transcribe | match | verify | llmcheck | extract.
	StageDuration metric.Float64Histogram

	// RecognitionPasses counts recognition passes by status (ok | dropped).
	RecognitionPasses metric.Int64Counter

	// Candidates tracks the number of candidates stage two produced per clip.
	Candidates metric.Int64Histogram

	// StageErrors counts stage failures by stage.
	StageErrors metric.Int64Counter

	// ClipsProcessed counts pipeline runs by status (ok | error).
	ClipsProcessed metric.Int64Counter
}

// stageBuckets defines histogram bucket boundaries in seconds. Recognition
// of a long clip on CPU can take minutes, so the tail is wide.
var stageBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

// NewMetrics creates a fully initialised [Metrics] using the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("mazad.stage.duration",
		metric.WithDescription("Latency per pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RecognitionPasses, err = m.Int64Counter("mazad.recognition.passes",
		metric.WithDescription("Recognition passes by status."),
	); err != nil {
		return nil, err
	}
	if met.Candidates, err = m.Int64Histogram("mazad.match.candidates",
		metric.WithDescription("Candidate mentions produced per clip."),
	); err != nil {
		return nil, err
	}
	if met.StageErrors, err = m.Int64Counter("mazad.stage.errors",
		metric.WithDescription("Stage failures by stage."),
	); err != nil {
		return nil, err
	}
	if met.ClipsProcessed, err = m.Int64Counter("mazad.clips.processed",
		metric.WithDescription("Pipeline runs by status."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics], created on first call
// from the global meter provider. Panics if instrument creation fails.
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

// RecordStage records one stage execution: its duration and, when failed is
// true, a stage error increment.
func (m *Metrics) RecordStage(ctx context.Context, stage string, seconds float64, failed bool) {
	attrs := metric.WithAttributes(attribute.String("stage", stage))
	m.StageDuration.Record(ctx, seconds, attrs)
	if failed {
		m.StageErrors.Add(ctx, 1, attrs)
	}
}

// RecordPass records one recognition pass outcome.
func (m *Metrics) RecordPass(ctx context.Context, dropped bool) {
	status := "ok"
	if dropped {
		status = "dropped"
	}
	m.RecognitionPasses.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordClip records one completed pipeline run.
func (m *Metrics) RecordClip(ctx context.Context, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ClipsProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
