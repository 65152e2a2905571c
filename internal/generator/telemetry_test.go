package generator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/taskgraph/internal/generator"
	"github.com/vk/taskgraph/internal/testutil"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type recorded struct {
	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
}

func recordingSpec(t *testing.T, targets ...string) (testutil.GeneratorSpec, *recorded) {
	t.Helper()
	rec := &recorded{spans: tracetest.NewSpanRecorder(), reader: sdkmetric.NewManualReader()}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec.spans))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(rec.reader))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})
	return testutil.GeneratorSpec{
		Targets: targets,
		Tracer:  tp.Tracer("test"),
		Meter:   mp.Meter("test"),
	}, rec
}

func (r *recorded) spanNames() []string {
	var names []string
	for _, s := range r.spans.Ended() {
		names = append(names, s.Name())
	}
	return names
}

func (r *recorded) metric(t *testing.T, name string) metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, r.reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m.Data
			}
		}
	}
	return nil
}

func TestTelemetry_Spans(t *testing.T) {
	spec, rec := recordingSpec(t, "_fake-t-1")
	h := testutil.MakeGenerator(t, spec)

	_, err := h.Generator.OptimizedTaskGraph(h.Ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"generator.kind_graph",
		"kind.load",
		"generator.full_task_set",
		"generator.full_task_graph",
		"generator.target_task_set",
		"generator.target_task_graph",
		"generator.optimized_task_graph",
	}, rec.spanNames())

	for _, s := range rec.spans.Ended() {
		if s.Name() != "generator.target_task_graph" {
			continue
		}
		assert.Contains(t, s.Attributes(), attribute.Int("tasks", 2))
	}
}

func TestTelemetry_FailedStage(t *testing.T) {
	spec, rec := recordingSpec(t, "_fake-t-9")
	h := testutil.MakeGenerator(t, spec)

	_, err := h.Generator.TargetTaskSet(h.Ctx)
	require.ErrorIs(t, err, generator.ErrUnknownTarget)

	ended := rec.spans.Ended()
	require.NotEmpty(t, ended)
	last := ended[len(ended)-1]
	assert.Equal(t, "generator.target_task_set", last.Name())
	assert.Equal(t, codes.Error, last.Status().Code)

	failures, ok := rec.metric(t, generator.MetricStageFailures).(metricdata.Sum[int64])
	require.True(t, ok, "failure counter recorded")
	require.Len(t, failures.DataPoints, 1)
	assert.Equal(t, int64(1), failures.DataPoints[0].Value)
	stage, _ := failures.DataPoints[0].Attributes.Value("stage")
	assert.Equal(t, "target_task_set", stage.AsString())
}

func TestTelemetry_Metrics(t *testing.T) {
	spec, rec := recordingSpec(t, "_fake-t-2")
	h := testutil.MakeGenerator(t, spec)

	_, err := h.Generator.OptimizedTaskGraph(h.Ctx)
	require.NoError(t, err)

	tasks, ok := rec.metric(t, generator.MetricStageTasks).(metricdata.Gauge[int64])
	require.True(t, ok, "task gauge recorded")
	byStage := make(map[string]int64)
	for _, dp := range tasks.DataPoints {
		stage, _ := dp.Attributes.Value("stage")
		byStage[stage.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{
		"full_task_set":        3,
		"full_task_graph":      3,
		"target_task_set":      1,
		"target_task_graph":    3,
		"optimized_task_graph": 3,
	}, byStage)

	durations, ok := rec.metric(t, generator.MetricStageDuration).(metricdata.Histogram[float64])
	require.True(t, ok, "duration histogram recorded")
	assert.Len(t, durations.DataPoints, 6)
}
