package transform

import (
	"errors"
	"fmt"

	"github.com/vk/taskgraph/internal/config"
	"github.com/vk/taskgraph/internal/registry"
	"github.com/vk/taskgraph/internal/stream"
	"github.com/vk/taskgraph/internal/task"
)

// ErrTransformNotFound is returned when a kind names an unregistered transform.
var ErrTransformNotFound = errors.New("transform not found")

// Names of the built-in transforms.
const (
	Run      = "run"
	Task     = "task"
	FromDeps = "from-deps"
)

// Config is the context a transform runs in.
type Config struct {
	// Kind is the name of the kind being loaded.
	Kind string
	// Path is the kind's directory.
	Path        string
	KindConfig  *config.KindConfig
	GraphConfig *config.GraphConfig
	Params      *config.Parameters
	// KindDependenciesTasks are the tasks of the kinds listed in
	// kind-dependencies, in label order.
	KindDependenciesTasks []*task.Task
}

// Transform maps a stream of raw tasks to another.
type Transform func(tc *Config, in *stream.Stream[*task.RawTask]) *stream.Stream[*task.RawTask]

// NewRegistry returns a registry holding the built-in transforms.
func NewRegistry() *registry.Registry[Transform] {
	r := registry.New[Transform]("transform")
	r.Register(Run, RunTransform)
	r.Register(Task, TaskTransform)
	r.Register(FromDeps, FromDepsTransform)
	return r
}

// Pipeline resolves names in reg and composes them in order. An empty list
// yields the identity transform.
func Pipeline(reg *registry.Registry[Transform], names []string) (Transform, error) {
	if err := reg.Validate(ErrTransformNotFound, names...); err != nil {
		return nil, err
	}
	stages := make([]Transform, 0, len(names))
	for _, name := range names {
		t, _ := reg.Lookup(name)
		stages = append(stages, named(name, t))
	}
	return func(tc *Config, in *stream.Stream[*task.RawTask]) *stream.Stream[*task.RawTask] {
		out := in
		for _, stage := range stages {
			out = stage(tc, out)
		}
		return out
	}, nil
}

// named annotates errors raised while pulling through t with its name.
// Errors from upstream stages pass through untouched.
func named(name string, t Transform) Transform {
	return func(tc *Config, in *stream.Stream[*task.RawTask]) *stream.Stream[*task.RawTask] {
		var upstreamErr error
		guarded := stream.New(func() (*task.RawTask, bool, error) {
			v, ok, err := in.Next()
			if err != nil {
				upstreamErr = err
			}
			return v, ok, err
		})
		out := t(tc, guarded)
		return stream.New(func() (*task.RawTask, bool, error) {
			v, ok, err := out.Next()
			if err != nil && !errors.Is(err, upstreamErr) {
				return nil, false, fmt.Errorf("transform %q of kind %q: %w", name, tc.Kind, err)
			}
			return v, ok, err
		})
	}
}
