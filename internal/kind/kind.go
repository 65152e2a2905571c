// Package kind loads the tasks of every kind, respecting the order given by
// kind-dependencies.
package kind

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/vk/taskgraph/internal/config"
	"github.com/vk/taskgraph/internal/graph"
	"github.com/vk/taskgraph/internal/loader"
	"github.com/vk/taskgraph/internal/registry"
	"github.com/vk/taskgraph/internal/stream"
	"github.com/vk/taskgraph/internal/task"
	"github.com/vk/taskgraph/internal/transform"
)

var (
	// ErrUnknownKind is returned when a kind-dependency or a requested kind
	// does not exist.
	ErrUnknownKind = errors.New("unknown kind")
	// ErrLoaderNotFound is returned when a kind names an unregistered loader.
	ErrLoaderNotFound = errors.New("loader not found")
	// ErrDuplicateLabel is returned when two tasks share a label.
	ErrDuplicateLabel = errors.New("duplicate task label")
)

// Kind is a named group of tasks sharing a loader and a transform pipeline.
type Kind struct {
	Name        string
	Path        string
	Config      *config.KindConfig
	GraphConfig *config.GraphConfig
}

// FromModel creates a Kind for every kind definition in m.
func FromModel(m *config.Model) map[string]*Kind {
	kinds := make(map[string]*Kind, len(m.Kinds))
	for name, def := range m.Kinds {
		kinds[name] = &Kind{Name: name, Path: def.Path, Config: def.Config, GraphConfig: m.GraphConfig}
	}
	return kinds
}

// Registries resolves the loader and transform names kinds refer to.
type Registries struct {
	Loaders    *registry.Registry[loader.Loader]
	Transforms *registry.Registry[transform.Transform]
}

// DefaultRegistries returns registries holding the built-in loaders and
// transforms.
func DefaultRegistries(decoders ...config.Decoder) Registries {
	return Registries{
		Loaders:    loader.NewRegistry(decoders...),
		Transforms: transform.NewRegistry(),
	}
}

// Graph builds the kind dependency graph. Each edge points from a kind to a
// kind it depends on and is named after the latter.
func Graph(kinds map[string]*Kind) (*graph.Graph, error) {
	names := make([]string, 0, len(kinds))
	for name := range kinds {
		names = append(names, name)
	}
	sort.Strings(names)

	var edges []graph.Edge
	for _, name := range names {
		for _, dep := range kinds[name].Config.KindDependencies {
			if _, ok := kinds[dep]; !ok {
				return nil, fmt.Errorf("%w: kind %q depends on %q", ErrUnknownKind, name, dep)
			}
			edges = append(edges, graph.Edge{From: name, To: dep, Name: dep})
		}
	}

	g, err := graph.New(names, edges)
	if err != nil {
		return nil, err
	}
	if err := g.DetectCycles(); err != nil {
		return nil, fmt.Errorf("invalid kind-dependencies: %w", err)
	}
	return g, nil
}

// LoadTasks runs the kind's loader and transform pipeline. loaded holds the
// tasks of the kind's kind-dependencies.
func (k *Kind) LoadTasks(ctx context.Context, params *config.Parameters, loaded []*task.Task, reg Registries) ([]*task.Task, error) {
	cfg := k.Config.Clone()

	if err := reg.Loaders.Validate(ErrLoaderNotFound, cfg.LoaderName()); err != nil {
		return nil, fmt.Errorf("kind %q: %w", k.Name, err)
	}
	load, _ := reg.Loaders.Lookup(cfg.LoaderName())

	raws, err := load(ctx, k.Name, k.Path, cfg, k.GraphConfig, loaded)
	if err != nil {
		return nil, fmt.Errorf("kind %q: loader %q: %w", k.Name, cfg.LoaderName(), err)
	}

	pipeline, err := transform.Pipeline(reg.Transforms, cfg.Transforms)
	if err != nil {
		return nil, fmt.Errorf("kind %q: %w", k.Name, err)
	}
	tc := &transform.Config{
		Kind:                  k.Name,
		Path:                  k.Path,
		KindConfig:            cfg,
		GraphConfig:           k.GraphConfig,
		Params:                params,
		KindDependenciesTasks: loaded,
	}

	out, err := pipeline(tc, withContext(ctx, raws)).Collect()
	if err != nil {
		return nil, err
	}

	tasks := make([]*task.Task, 0, len(out))
	seen := make(map[string]struct{}, len(out))
	for _, raw := range out {
		t, err := raw.Freeze(k.Name)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[t.Label]; dup {
			return nil, fmt.Errorf("%w: kind %q produced %q more than once", ErrDuplicateLabel, k.Name, t.Label)
		}
		seen[t.Label] = struct{}{}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// withContext stops the stream once ctx is done.
func withContext(ctx context.Context, in *stream.Stream[*task.RawTask]) *stream.Stream[*task.RawTask] {
	return stream.New(func() (*task.RawTask, bool, error) {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		return in.Next()
	})
}
