package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/taskgraph/internal/config"
	"github.com/vk/taskgraph/internal/ctxlog"
	"github.com/vk/taskgraph/internal/generator"
	"github.com/vk/taskgraph/internal/hcl"
	"github.com/vk/taskgraph/internal/optimize"
	"github.com/vk/taskgraph/internal/telemetry"
	"github.com/vk/taskgraph/internal/yaml"
)

// Version is reported as the telemetry service version. Release builds
// set it with -ldflags "-X".
var Version = "dev"

// App owns one generation run.
type App struct {
	outW      io.Writer
	logger    *slog.Logger
	cfg       *Config
	decoders  []config.Decoder
	params    *config.Parameters
	generator *generator.TaskGraphGenerator
	telemetry *telemetry.Providers
}

// Decoders returns the configuration readers, YAML first.
func Decoders() []config.Decoder {
	return []config.Decoder{yaml.NewDecoder(), hcl.NewDecoder()}
}

// NewApp loads the parameters and prepares a generator. Artifacts are
// written to outW and logs to logW.
func NewApp(ctx context.Context, outW, logW io.Writer, cfg *Config) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	decoders := Decoders()
	params, err := config.LoadParameters(ctx, cfg.ParametersFile, decoders...)
	if err != nil {
		return nil, err
	}
	if len(cfg.TargetKinds) > 0 {
		params.TargetKinds = append([]string(nil), cfg.TargetKinds...)
	}
	logger.Debug("Parameters loaded.", "file", cfg.ParametersFile, "method", params.TargetTasksMethod)

	providers, err := telemetry.Init(logW, telemetry.Config{
		ServiceVersion: Version,
		TraceExporter:  cfg.TraceExporter,
		MetricExporter: cfg.MetricExporter,
	})
	if err != nil {
		return nil, err
	}

	opts := generator.Options{
		Root:     cfg.Root,
		Decoders: decoders,
		Params:   params,
		Workers:  cfg.Workers,
		Tracer:   providers.Tracer(),
		Meter:    providers.Meter(),
	}
	if cfg.Seed != "" {
		opts.IDs = optimize.NewSeededIDs(cfg.Seed)
	}

	return &App{
		outW:      outW,
		logger:    logger,
		cfg:       cfg,
		decoders:  decoders,
		params:    params,
		generator: generator.New(opts),
		telemetry: providers,
	}, nil
}

// Close flushes telemetry. Call it once, after the last query.
func (a *App) Close(ctx context.Context) error {
	if err := a.telemetry.Shutdown(ctx); err != nil {
		return fmt.Errorf("flush telemetry: %w", err)
	}
	return nil
}

// Generator returns the underlying generator. This is primarily for testing.
func (a *App) Generator() *generator.TaskGraphGenerator {
	return a.generator
}

// Show generates artifact and writes it to the output.
func (a *App) Show(ctx context.Context, artifact Artifact) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("Generating artifact.", "artifact", artifact)

	if artifact == Kinds {
		kg, err := a.generator.KindGraph(ctx)
		if err != nil {
			return err
		}
		return a.render().kinds(kg)
	}

	get, ok := artifacts[artifact]
	if !ok {
		return fmt.Errorf("unknown artifact %q", artifact)
	}
	tg, err := get(a.generator, ctx)
	if err != nil {
		return err
	}
	a.logger.Info("Generated artifact.", "artifact", artifact, "tasks", tg.Len())
	return a.render().taskGraph(tg, artifact == Optimized)
}

// LoadKind loads one kind, and the kinds it depends on, and writes its
// tasks keyed by their name within the kind.
func (a *App) LoadKind(ctx context.Context, kindName string) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	tasks, err := generator.LoadTasksForKind(ctx, generator.Options{
		Root:     a.cfg.Root,
		Decoders: a.decoders,
		Params:   a.params,
		Workers:  a.cfg.Workers,
	}, kindName)
	if err != nil {
		return err
	}
	a.logger.Info("Loaded kind.", "kind", kindName, "tasks", len(tasks))
	return a.render().tasks(tasks)
}

func (a *App) render() *renderer {
	return newRenderer(a.outW, a.cfg.JSON)
}
