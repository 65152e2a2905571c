package kind

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/vk/taskgraph/internal/config"
	"github.com/vk/taskgraph/internal/ctxlog"
	"github.com/vk/taskgraph/internal/task"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Loader loads kinds concurrently. A kind starts only after every kind it
// depends on has finished; independent kinds run in parallel.
type Loader struct {
	Registries Registries
	Params     *config.Parameters
	// Workers bounds the number of kinds loading at once. Zero means
	// runtime.NumCPU().
	Workers int
	// Tracer defaults to the global OpenTelemetry tracer.
	Tracer trace.Tracer
}

// Result holds the tasks of every loaded kind.
type Result struct {
	// Kinds lists the loaded kinds in dependency order.
	Kinds []string
	// Tasks maps a kind name to the tasks it produced.
	Tasks map[string][]*task.Task
}

// All returns every task, kind by kind in dependency order.
func (r *Result) All() []*task.Task {
	var all []*task.Task
	for _, name := range r.Kinds {
		all = append(all, r.Tasks[name]...)
	}
	return all
}

// Load loads the kinds named in wanted together with everything they
// depend on. A nil wanted loads all kinds. Labels must be unique across
// all loaded kinds.
func (l *Loader) Load(ctx context.Context, kinds map[string]*Kind, wanted []string) (*Result, error) {
	logger := ctxlog.FromContext(ctx)

	kg, err := Graph(kinds)
	if err != nil {
		return nil, err
	}
	if wanted != nil {
		for _, name := range wanted {
			if _, ok := kinds[name]; !ok {
				return nil, fmt.Errorf("%w: %q was requested", ErrUnknownKind, name)
			}
		}
		if kg, err = kg.TransitiveClosure(wanted, false); err != nil {
			return nil, err
		}
	}
	order, err := kg.VisitPostorder().Drain()
	if err != nil {
		return nil, err
	}
	deps := kg.Links()

	workers := l.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	tracer := l.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/vk/taskgraph/internal/kind")
	}
	logger.Debug("Starting kind loading.", "kinds", len(order), "workers", workers)

	done := make(map[string]chan struct{}, len(order))
	for _, name := range order {
		done[name] = make(chan struct{})
	}
	var mu sync.Mutex
	results := make(map[string][]*task.Task, len(order))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, name := range order {
		k := kinds[name]
		g.Go(func() error {
			for _, dep := range deps[name] {
				select {
				case <-done[dep]:
				case <-gctx.Done():
					return gctx.Err()
				}
			}

			mu.Lock()
			var loaded []*task.Task
			for _, dep := range deps[name] {
				loaded = append(loaded, results[dep]...)
			}
			mu.Unlock()
			sort.Slice(loaded, func(i, j int) bool { return loaded[i].Label < loaded[j].Label })

			spanCtx, span := tracer.Start(ctxlog.With(gctx, "kind", name), "kind.load", trace.WithAttributes(attribute.String("kind", name)))
			defer span.End()

			start := time.Now()
			logger.Debug("Loading kind.", "kind", name, "loaded_tasks", len(loaded))
			tasks, err := k.LoadTasks(spanCtx, l.Params, loaded, l.Registries)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				logger.Debug("Kind failed to load.", "kind", name, "error", err)
				return err
			}
			span.SetAttributes(attribute.Int("tasks", len(tasks)))
			logger.Debug("Loaded kind.", "kind", name, "tasks", len(tasks), "duration", time.Since(start))

			mu.Lock()
			results[name] = tasks
			mu.Unlock()
			close(done[name])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{Kinds: order, Tasks: results}
	if err := checkUnique(res); err != nil {
		return nil, err
	}
	logger.Info("Loaded all kinds.", "kinds", len(order), "tasks", len(res.All()))
	return res, nil
}

func checkUnique(res *Result) error {
	owner := make(map[string]string)
	for _, name := range res.Kinds {
		for _, t := range res.Tasks[name] {
			if prev, dup := owner[t.Label]; dup {
				return fmt.Errorf("%w: %q is produced by kinds %q and %q", ErrDuplicateLabel, t.Label, prev, name)
			}
			owner[t.Label] = name
		}
	}
	return nil
}
