// Package telemetry configures OpenTelemetry tracing and metrics for one
// command invocation. Exporters write to a caller-supplied writer, so the
// command's stdout stays reserved for artifacts.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// ErrUnknownExporter is returned for an exporter name other than "none"
// or "stdout".
var ErrUnknownExporter = errors.New("unknown exporter")

// Exporter names.
const (
	None   = "none"
	Stdout = "stdout"
)

// InstrumentationName scopes the tracer and meter.
const InstrumentationName = "github.com/vk/taskgraph"

// Config selects the exporters.
type Config struct {
	ServiceVersion string
	TraceExporter  string
	MetricExporter string
}

// Providers holds the configured providers. An empty or "none" exporter
// yields a no-op provider.
type Providers struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	shutdown       []func(context.Context) error
}

// Tracer returns the tracer for the taskgraph instrumentation scope.
func (p *Providers) Tracer() trace.Tracer {
	return p.TracerProvider.Tracer(InstrumentationName)
}

// Meter returns the meter for the taskgraph instrumentation scope.
func (p *Providers) Meter() metric.Meter {
	return p.MeterProvider.Meter(InstrumentationName)
}

// Shutdown flushes and stops every exporter.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Init builds providers writing to w. The global providers are not
// touched.
func Init(w io.Writer, cfg Config) (*Providers, error) {
	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", "taskgraph"),
		attribute.String("service.version", cfg.ServiceVersion),
	)
	p := &Providers{
		TracerProvider: tracenoop.NewTracerProvider(),
		MeterProvider:  metricnoop.NewMeterProvider(),
	}

	switch cfg.TraceExporter {
	case "", None:
	case Stdout:
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		p.TracerProvider = tp
		p.shutdown = append(p.shutdown, tp.Shutdown)
	default:
		return nil, fmt.Errorf("%w: trace exporter %q", ErrUnknownExporter, cfg.TraceExporter)
	}

	switch cfg.MetricExporter {
	case "", None:
	case Stdout:
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w), stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create metric exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
			sdkmetric.WithResource(res),
		)
		p.MeterProvider = mp
		p.shutdown = append(p.shutdown, mp.Shutdown)
	default:
		return nil, fmt.Errorf("%w: metric exporter %q", ErrUnknownExporter, cfg.MetricExporter)
	}
	return p, nil
}
