package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "tsprep.pipeline"

// Tracer provides OpenTelemetry instrumentation for pipeline runs. Spans are
// emitted per run and per stage; counters and histograms record run volume,
// aborts and durations.
type Tracer struct {
	tracer trace.Tracer

	runsTotal     metric.Int64Counter
	abortsTotal   metric.Int64Counter
	runDuration   metric.Float64Histogram
	stageDuration metric.Float64Histogram
}

// NewTracer creates a pipeline tracer backed by the global otel providers.
func NewTracer() (*Tracer, error) {
	meter := otel.Meter(tracerName)

	runsTotal, err := meter.Int64Counter("pipeline.runs.total",
		metric.WithDescription("Completed pipeline runs by terminal state"))
	if err != nil {
		return nil, fmt.Errorf("create runs counter: %w", err)
	}
	abortsTotal, err := meter.Int64Counter("pipeline.aborts.total",
		metric.WithDescription("Aborted pipeline runs by failing stage"))
	if err != nil {
		return nil, fmt.Errorf("create aborts counter: %w", err)
	}
	runDuration, err := meter.Float64Histogram("pipeline.run.duration",
		metric.WithDescription("End-to-end pipeline run duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create run duration histogram: %w", err)
	}
	stageDuration, err := meter.Float64Histogram("pipeline.stage.duration",
		metric.WithDescription("Per-stage execution duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create stage duration histogram: %w", err)
	}

	return &Tracer{
		tracer:        otel.Tracer(tracerName),
		runsTotal:     runsTotal,
		abortsTotal:   abortsTotal,
		runDuration:   runDuration,
		stageDuration: stageDuration,
	}, nil
}

// StartRun opens the root span for one pipeline run.
func (t *Tracer) StartRun(ctx context.Context, runID string, sourceKind string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "pipeline.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("run.source_kind", sourceKind),
		),
	)
}

// EndRun closes the run span and records the terminal state.
func (t *Tracer) EndRun(ctx context.Context, span trace.Span, state State, duration time.Duration, err error) {
	span.SetAttributes(
		attribute.String("run.state", string(state)),
		attribute.Float64("run.duration_seconds", duration.Seconds()),
	)

	t.runsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("state", string(state))))
	t.runDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String("state", string(state))))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "run completed")
	}
	span.End()
}

// StartStage opens a span for one stage of a run.
func (t *Tracer) StartStage(ctx context.Context, runID, stage string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, fmt.Sprintf("pipeline.stage.%s", stage),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("stage.name", stage),
		),
	)
}

// EndStage closes a stage span and records its duration.
func (t *Tracer) EndStage(ctx context.Context, span trace.Span, stage string, duration time.Duration, err error) {
	span.SetAttributes(attribute.Float64("stage.duration_seconds", duration.Seconds()))
	t.stageDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String("stage", stage)))

	if err != nil {
		t.abortsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "stage completed")
	}
	span.End()
}
