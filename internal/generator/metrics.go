package generator

import (
	"context"
	"time"

	"github.com/vk/taskgraph/internal/taskgraph"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names.
const (
	MetricStageDuration = "taskgraph.generator.stage.duration"
	MetricStageTasks    = "taskgraph.generator.stage.tasks"
	MetricStageFailures = "taskgraph.generator.stage.failures"
)

type instruments struct {
	duration metric.Float64Histogram
	tasks    metric.Int64Gauge
	failures metric.Int64Counter
}

// newInstruments falls back to no-op instruments when the meter rejects
// one; metrics never fail a run.
func newInstruments(m metric.Meter) instruments {
	var inst instruments
	var err error
	if inst.duration, err = m.Float64Histogram(MetricStageDuration,
		metric.WithDescription("Wall time of one generation stage."),
		metric.WithUnit("s")); err != nil {
		inst.duration = nil
	}
	if inst.tasks, err = m.Int64Gauge(MetricStageTasks,
		metric.WithDescription("Tasks in the artifact a stage produced."),
		metric.WithUnit("{task}")); err != nil {
		inst.tasks = nil
	}
	if inst.failures, err = m.Int64Counter(MetricStageFailures,
		metric.WithDescription("Generation stages that returned an error."),
		metric.WithUnit("{stage}")); err != nil {
		inst.failures = nil
	}
	return inst
}

func (i instruments) record(ctx context.Context, s stage, elapsed time.Duration, produced *taskgraph.TaskGraph, err error) {
	// Recording on a cancelled context would drop the measurement.
	ctx = context.WithoutCancel(ctx)
	attrs := metric.WithAttributes(attribute.String("stage", s.String()))
	if i.duration != nil {
		i.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
	if err != nil {
		if i.failures != nil {
			i.failures.Add(ctx, 1, attrs)
		}
		return
	}
	if i.tasks != nil && produced != nil {
		i.tasks.Record(ctx, int64(produced.Len()), attrs)
	}
}
