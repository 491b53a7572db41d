package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/polisai/huntgen/pkg/engine/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	metricsOnce           sync.Once
	metricsInitErr        error
	stageExecutionCounter metric.Int64Counter
	stageFailureCounter   metric.Int64Counter
	stageRowsCounter      metric.Int64Counter
	stageQACounter        metric.Int64Counter
	stageLatencyHistogram metric.Float64Histogram
)

// StageMetrics captures the fields needed to record stage telemetry metrics.
type StageMetrics struct {
	Scenario string
	Stage    string
	Variant  string
	Outcome  runtime.StageOutcome
	Duration time.Duration
	Rows     int
	QA       int
}

// RecordStageMetrics emits counters and histograms that describe stage execution.
func RecordStageMetrics(ctx context.Context, metrics StageMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("scenario.name", metrics.Scenario),
		attribute.String("stage.name", metrics.Stage),
		attribute.String("stage.variant", metrics.Variant),
		attribute.String("stage.outcome", string(metrics.Outcome)),
	}

	stageExecutionCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if metrics.Duration > 0 {
		stageLatencyHistogram.Record(ctx, float64(metrics.Duration)/float64(time.Millisecond), metric.WithAttributes(attrs...))
	}
	if metrics.Rows > 0 {
		stageRowsCounter.Add(ctx, int64(metrics.Rows), metric.WithAttributes(attrs...))
	}
	if metrics.QA > 0 {
		stageQACounter.Add(ctx, int64(metrics.QA), metric.WithAttributes(attrs...))
	}
	if metrics.Outcome == runtime.OutcomeFailed {
		stageFailureCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("huntgen.pipeline")

		stageExecutionCounter, metricsInitErr = meter.Int64Counter(
			"huntgen.stage.executions_total",
			metric.WithDescription("Stage executions partitioned by outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		stageFailureCounter, metricsInitErr = meter.Int64Counter(
			"huntgen.stage.failures_total",
			metric.WithDescription("Stages that failed and forwarded their context unchanged"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		stageRowsCounter, metricsInitErr = meter.Int64Counter(
			"huntgen.stage.rows_total",
			metric.WithDescription("Event rows produced by stages"),
			metric.WithUnit("{row}"),
		)
		if metricsInitErr != nil {
			return
		}

		stageQACounter, metricsInitErr = meter.Int64Counter(
			"huntgen.stage.qa_records_total",
			metric.WithDescription("QA records emitted by stages before deduplication"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		stageLatencyHistogram, metricsInitErr = meter.Float64Histogram(
			"huntgen.stage.duration_ms",
			metric.WithDescription("Observed stage generation latency"),
			metric.WithUnit("ms"),
		)
	})

	return metricsInitErr
}

// RecordSkip attaches the skip reason to the stage span.
func RecordSkip(span trace.Span, reason string) {
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent("stage.skipped", trace.WithAttributes(attribute.String("stage.skip_reason", reason)))
}

// RecordDrift attaches a schema drift event to the current span without
// failing anything.
func RecordDrift(span trace.Span, table string, missing, dropped int) {
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent("schema.drift", trace.WithAttributes(
		attribute.String("table.name", table),
		attribute.Int("schema.missing.count", missing),
		attribute.Int("schema.dropped.count", dropped),
	))
}
