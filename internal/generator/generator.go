package generator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vk/taskgraph/internal/config"
	"github.com/vk/taskgraph/internal/ctxlog"
	"github.com/vk/taskgraph/internal/graph"
	"github.com/vk/taskgraph/internal/kind"
	"github.com/vk/taskgraph/internal/optimize"
	"github.com/vk/taskgraph/internal/registry"
	"github.com/vk/taskgraph/internal/target"
	"github.com/vk/taskgraph/internal/task"
	"github.com/vk/taskgraph/internal/taskgraph"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrDanglingDependency is returned when a task depends on a label that
	// is not in the full task set.
	ErrDanglingDependency = errors.New("dangling dependency")
	// ErrUnknownTarget is returned when the target selector picks a label
	// that is not in the full task set.
	ErrUnknownTarget = errors.New("unknown target task")
	// ErrNotReady is returned when an artifact is read before the stage
	// producing it has run.
	ErrNotReady = errors.New("artifact not ready")
)

// Options configures a TaskGraphGenerator. Only Root or Model is required.
type Options struct {
	// Root is the directory holding config.* and kinds/. It is read only
	// when Model is nil.
	Root string
	// Model is a preloaded configuration.
	Model *config.Model
	// Decoders read configuration files found under Root.
	Decoders []config.Decoder
	// Params defaults to config.DefaultParameters().
	Params *config.Parameters
	// Registries defaults to kind.DefaultRegistries(Decoders...).
	Registries kind.Registries
	// Strategies defaults to optimize.NewRegistry().
	Strategies *registry.Registry[optimize.Strategy]
	// Selectors defaults to target.NewRegistry().
	Selectors *registry.Registry[target.Selector]
	// IDs defaults to optimize.RandomIDs.
	IDs optimize.IDGenerator
	// Workers bounds concurrent kind loading.
	Workers int
	// Tracer defaults to the global OpenTelemetry tracer.
	Tracer trace.Tracer
	// Meter defaults to the global OpenTelemetry meter.
	Meter metric.Meter
}

type stage int

const (
	stageNone stage = iota
	stageKindGraph
	stageFullTaskSet
	stageFullTaskGraph
	stageTargetTaskSet
	stageTargetTaskGraph
	stageOptimizedTaskGraph
)

var stageNames = map[stage]string{
	stageKindGraph:          "kind_graph",
	stageFullTaskSet:        "full_task_set",
	stageFullTaskGraph:      "full_task_graph",
	stageTargetTaskSet:      "target_task_set",
	stageTargetTaskGraph:    "target_task_graph",
	stageOptimizedTaskGraph: "optimized_task_graph",
}

func (s stage) String() string { return stageNames[s] }

// TaskGraphGenerator runs the generation pipeline lazily. It is safe for
// concurrent use; stages run at most once.
type TaskGraphGenerator struct {
	opts   Options
	tracer trace.Tracer
	inst   instruments

	mu    sync.Mutex
	done  stage
	err   error
	model *config.Model
	kinds map[string]*kind.Kind

	kindGraph          *graph.Graph
	fullTaskSet        *taskgraph.TaskGraph
	fullTaskGraph      *taskgraph.TaskGraph
	targetTaskSet      *taskgraph.TaskGraph
	alwaysTarget       []string
	targetTaskGraph    *taskgraph.TaskGraph
	optimizedTaskGraph *taskgraph.TaskGraph
	labelToTaskID      map[string]string
}

// New returns a generator. Nothing is loaded until the first query.
func New(opts Options) *TaskGraphGenerator {
	if opts.Params == nil {
		opts.Params = config.DefaultParameters()
	}
	if opts.Registries.Loaders == nil || opts.Registries.Transforms == nil {
		def := kind.DefaultRegistries(opts.Decoders...)
		if opts.Registries.Loaders == nil {
			opts.Registries.Loaders = def.Loaders
		}
		if opts.Registries.Transforms == nil {
			opts.Registries.Transforms = def.Transforms
		}
	}
	if opts.Strategies == nil {
		opts.Strategies = optimize.NewRegistry()
	}
	if opts.Selectors == nil {
		opts.Selectors = target.NewRegistry()
	}
	if opts.IDs == nil {
		opts.IDs = optimize.RandomIDs{}
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/vk/taskgraph/internal/generator")
	}
	meter := opts.Meter
	if meter == nil {
		meter = otel.Meter("github.com/vk/taskgraph/internal/generator")
	}
	return &TaskGraphGenerator{opts: opts, tracer: tracer, inst: newInstruments(meter), model: opts.Model}
}

// Parameters returns the parameters of the run.
func (g *TaskGraphGenerator) Parameters() *config.Parameters {
	return g.opts.Params
}

// GraphConfig returns the graph configuration, loading it if needed.
func (g *TaskGraphGenerator) GraphConfig(ctx context.Context) (*config.GraphConfig, error) {
	if err := g.runUntil(ctx, stageKindGraph); err != nil {
		return nil, err
	}
	return g.model.GraphConfig, nil
}

// KindGraph returns the graph of kinds and their kind-dependencies.
func (g *TaskGraphGenerator) KindGraph(ctx context.Context) (*graph.Graph, error) {
	if err := g.runUntil(ctx, stageKindGraph); err != nil {
		return nil, err
	}
	return g.kindGraph, nil
}

// FullTaskSet returns every task of every loaded kind, without edges.
func (g *TaskGraphGenerator) FullTaskSet(ctx context.Context) (*taskgraph.TaskGraph, error) {
	if err := g.runUntil(ctx, stageFullTaskSet); err != nil {
		return nil, err
	}
	return g.fullTaskSet, nil
}

// FullTaskGraph returns every task linked by its declared dependencies.
func (g *TaskGraphGenerator) FullTaskGraph(ctx context.Context) (*taskgraph.TaskGraph, error) {
	if err := g.runUntil(ctx, stageFullTaskGraph); err != nil {
		return nil, err
	}
	return g.fullTaskGraph, nil
}

// TargetTaskSet returns the tasks chosen by the target selector, without
// edges.
func (g *TaskGraphGenerator) TargetTaskSet(ctx context.Context) (*taskgraph.TaskGraph, error) {
	if err := g.runUntil(ctx, stageTargetTaskSet); err != nil {
		return nil, err
	}
	return g.targetTaskSet, nil
}

// TargetTaskGraph returns the target tasks, the enabled always-target
// tasks and everything they depend on.
func (g *TaskGraphGenerator) TargetTaskGraph(ctx context.Context) (*taskgraph.TaskGraph, error) {
	if err := g.runUntil(ctx, stageTargetTaskGraph); err != nil {
		return nil, err
	}
	return g.targetTaskGraph, nil
}

// OptimizedTaskGraph returns the optimized graph, keyed by task id.
func (g *TaskGraphGenerator) OptimizedTaskGraph(ctx context.Context) (*taskgraph.TaskGraph, error) {
	if err := g.runUntil(ctx, stageOptimizedTaskGraph); err != nil {
		return nil, err
	}
	return g.optimizedTaskGraph, nil
}

// LabelToTaskID maps labels to task ids. It does not run the pipeline and
// returns ErrNotReady until OptimizedTaskGraph has completed.
func (g *TaskGraphGenerator) LabelToTaskID() (map[string]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	if g.done < stageOptimizedTaskGraph {
		return nil, fmt.Errorf("%w: label to task id mapping needs %s", ErrNotReady, stageOptimizedTaskGraph)
	}
	out := make(map[string]string, len(g.labelToTaskID))
	for k, v := range g.labelToTaskID {
		out[k] = v
	}
	return out, nil
}

// runUntil computes every stage up to and including want.
func (g *TaskGraphGenerator) runUntil(ctx context.Context, want stage) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for g.err == nil && g.done < want {
		next := g.done + 1
		if err := g.runStage(ctx, next); err != nil {
			g.err = fmt.Errorf("%s: %w", next, err)
			break
		}
		g.done = next
	}
	return g.err
}

func (g *TaskGraphGenerator) runStage(ctx context.Context, s stage) (err error) {
	logger := ctxlog.FromContext(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, span := g.tracer.Start(ctx, "generator."+s.String())
	start := time.Now()
	var produced *taskgraph.TaskGraph
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else if produced != nil {
			span.SetAttributes(attribute.Int("tasks", produced.Len()))
		}
		g.inst.record(ctx, s, time.Since(start), produced, err)
		span.End()
	}()

	logger.Debug("Generating.", "stage", s.String())
	switch s {
	case stageKindGraph:
		err = g.loadKindGraph(ctx)
	case stageFullTaskSet:
		err = g.loadFullTaskSet(ctx)
		produced = g.fullTaskSet
	case stageFullTaskGraph:
		err = g.buildFullTaskGraph()
		produced = g.fullTaskGraph
	case stageTargetTaskSet:
		err = g.selectTargetTasks(ctx)
		produced = g.targetTaskSet
	case stageTargetTaskGraph:
		err = g.buildTargetTaskGraph()
		produced = g.targetTaskGraph
	case stageOptimizedTaskGraph:
		err = g.optimize(ctx)
		produced = g.optimizedTaskGraph
	}
	if err == nil {
		// A run cancelled mid-stage must not expose what the stage produced.
		err = ctx.Err()
	}
	return err
}

func (g *TaskGraphGenerator) loadKindGraph(ctx context.Context) error {
	if g.model == nil {
		m, err := config.Load(ctx, g.opts.Root, g.opts.Decoders...)
		if err != nil {
			return err
		}
		g.model = m
	}
	if err := g.opts.Params.Validate(); err != nil {
		return err
	}
	g.kinds = kind.FromModel(g.model)
	kg, err := kind.Graph(g.kinds)
	if err != nil {
		return err
	}
	g.kindGraph = kg
	return nil
}

func (g *TaskGraphGenerator) loadFullTaskSet(ctx context.Context) error {
	l := &kind.Loader{
		Registries: g.opts.Registries,
		Params:     g.opts.Params,
		Workers:    g.opts.Workers,
		Tracer:     g.tracer,
	}
	var wanted []string
	if len(g.opts.Params.TargetKinds) > 0 {
		wanted = g.opts.Params.TargetKinds
	}
	res, err := l.Load(ctx, g.kinds, wanted)
	if err != nil {
		return err
	}
	set, err := taskgraph.FromTasks(res.All())
	if err != nil {
		return fmt.Errorf("%w: %w", kind.ErrDuplicateLabel, err)
	}
	g.fullTaskSet = set
	return nil
}

func (g *TaskGraphGenerator) buildFullTaskGraph() error {
	var edges []graph.Edge
	var dangling []string
	for _, label := range g.fullTaskSet.Keys() {
		t := g.fullTaskSet.Tasks[label]
		for _, name := range t.DependencyNames() {
			dep := t.Dependencies[name]
			if _, ok := g.fullTaskSet.Tasks[dep]; !ok {
				dangling = append(dangling, fmt.Sprintf("%q depends on %q as %q", label, dep, name))
				continue
			}
			edges = append(edges, graph.Edge{From: label, To: dep, Name: name})
		}
	}
	if len(dangling) > 0 {
		return fmt.Errorf("%w: %v", ErrDanglingDependency, dangling)
	}

	full, err := graph.New(g.fullTaskSet.Graph.Nodes(), edges)
	if err != nil {
		return err
	}
	if err := full.DetectCycles(); err != nil {
		return fmt.Errorf("task dependencies: %w", err)
	}
	tg, err := taskgraph.New(g.fullTaskSet.Tasks, full)
	if err != nil {
		return err
	}
	g.fullTaskGraph = tg
	return nil
}

func (g *TaskGraphGenerator) selectTargetTasks(ctx context.Context) error {
	params := g.opts.Params
	selector, err := target.Lookup(g.opts.Selectors, params.TargetTasksMethod)
	if err != nil {
		return err
	}
	labels, err := selector(ctx, g.fullTaskGraph, params, g.model.GraphConfig)
	if err != nil {
		return fmt.Errorf("target tasks method %q: %w", params.TargetTasksMethod, err)
	}

	seen := make(map[string]struct{}, len(labels))
	tasks := make([]*task.Task, 0, len(labels))
	for _, label := range labels {
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		t, ok := g.fullTaskGraph.Tasks[label]
		if !ok {
			return fmt.Errorf("%w: %q selected by %q", ErrUnknownTarget, label, params.TargetTasksMethod)
		}
		tasks = append(tasks, t)
	}
	set, err := taskgraph.FromTasks(tasks)
	if err != nil {
		return err
	}
	g.targetTaskSet = set
	ctxlog.FromContext(ctx).Info("Selected target tasks.", "method", params.TargetTasksMethod, "tasks", set.Len())
	return nil
}

func (g *TaskGraphGenerator) buildTargetTaskGraph() error {
	always := g.opts.Params.EnableAlwaysTarget
	var alwaysTarget []string
	for _, label := range g.fullTaskGraph.Keys() {
		t := g.fullTaskGraph.Tasks[label]
		if t.AlwaysTarget() && always.Allows(t.Kind) {
			alwaysTarget = append(alwaysTarget, label)
		}
	}

	seeds := append(g.targetTaskSet.Keys(), alwaysTarget...)
	closure, err := g.fullTaskGraph.Graph.TransitiveClosure(seeds, false)
	if err != nil {
		return err
	}
	g.alwaysTarget = alwaysTarget
	g.targetTaskGraph = g.fullTaskGraph.Subset(closure.Nodes())
	return nil
}

func (g *TaskGraphGenerator) optimize(ctx context.Context) error {
	params := g.opts.Params

	doNotOptimize := append([]string(nil), params.DoNotOptimize...)
	if !params.OptimizeTargetTasks {
		doNotOptimize = append(doNotOptimize, g.targetTaskSet.Keys()...)
	}
	requested := append(g.targetTaskSet.Keys(), g.alwaysTarget...)
	sort.Strings(requested)

	optimized, labelToTaskID, err := optimize.Optimize(ctx, g.targetTaskGraph, optimize.Options{
		Requested:      requested,
		DoNotOptimize:  doNotOptimize,
		ExistingTasks:  params.ExistingTasks,
		DecisionTaskID: params.DecisionTaskID,
		Params:         params,
		Strategies:     g.opts.Strategies,
		IDs:            g.opts.IDs,
	})
	if err != nil {
		return err
	}
	g.optimizedTaskGraph = optimized
	g.labelToTaskID = labelToTaskID
	return nil
}
