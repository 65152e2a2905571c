// Package loader implements kind loaders: functions that produce the raw
// tasks a kind's transform pipeline starts from.
package loader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/vk/taskgraph/internal/config"
	"github.com/vk/taskgraph/internal/ctxlog"
	"github.com/vk/taskgraph/internal/decode"
	"github.com/vk/taskgraph/internal/fsutil"
	"github.com/vk/taskgraph/internal/registry"
	"github.com/vk/taskgraph/internal/stream"
	"github.com/vk/taskgraph/internal/task"
	"github.com/vk/taskgraph/internal/transform"
)

// ErrDefaultTransformListed is returned by the default loader when a kind
// lists a transform the loader appends itself.
var ErrDefaultTransformListed = errors.New("default transform listed explicitly")

// Names of the built-in loaders.
const (
	Transform = "transform"
	Default   = config.DefaultLoader
)

// TasksFromKey names extra task files, relative to the kind directory,
// read by the transform loader. Entries may be doublestar patterns.
const TasksFromKey = "tasks-from"

// Loader produces the raw tasks of one kind. cfg is the caller's private
// copy; a loader may extend cfg.Transforms and the caller builds the
// pipeline from the result. loaded holds the tasks of the kind's
// kind-dependencies.
type Loader func(ctx context.Context, kind, path string, cfg *config.KindConfig, gc *config.GraphConfig, loaded []*task.Task) (*stream.Stream[*task.RawTask], error)

// NewRegistry returns a registry holding the built-in loaders. decoders
// read files named in tasks-from.
func NewRegistry(decoders ...config.Decoder) *registry.Registry[Loader] {
	r := registry.New[Loader]("loader")
	tl := NewTransformLoader(decoders...)
	r.Register(Transform, tl)
	r.Register(Default, NewDefaultLoader(tl))
	return r
}

// NewTransformLoader returns the loader that emits the kind's inline tasks,
// followed by the tasks of each tasks-from file, each merged over the
// kind's task-defaults.
func NewTransformLoader(decoders ...config.Decoder) Loader {
	return func(ctx context.Context, kind, path string, cfg *config.KindConfig, gc *config.GraphConfig, loaded []*task.Task) (*stream.Stream[*task.RawTask], error) {
		logger := ctxlog.FromContext(ctx)

		var tasks []*task.RawTask
		seen := make(map[string]string)
		add := func(source string, names []string, defs map[string]*task.RawTask) error {
			for _, name := range names {
				if prev, dup := seen[name]; dup {
					return fmt.Errorf("task %q of kind %q is defined in both %s and %s", name, kind, prev, source)
				}
				seen[name] = source
				t := task.Merge(cfg.TaskDefaults, defs[name])
				if t == nil {
					t = &task.RawTask{}
				}
				t.Name = name
				tasks = append(tasks, t)
			}
			return nil
		}

		if err := add("the kind file", cfg.TaskNames(), cfg.Tasks); err != nil {
			return nil, err
		}

		var files []string
		if err := decode.Into(cfg.Extra[TasksFromKey], &files); err != nil {
			return nil, fmt.Errorf("kind %q: %s: %w", kind, TasksFromKey, err)
		}
		var expanded []string
		for _, pattern := range files {
			matches, err := fsutil.Glob(path, pattern)
			if err != nil {
				return nil, fmt.Errorf("kind %q: %s: %w", kind, TasksFromKey, err)
			}
			expanded = append(expanded, matches...)
		}
		files = expanded

		for _, file := range files {
			defs, err := readTasksFile(ctx, filepath.Join(path, filepath.FromSlash(file)), decoders)
			if err != nil {
				return nil, fmt.Errorf("kind %q: %w", kind, err)
			}
			names := make([]string, 0, len(defs))
			for name := range defs {
				names = append(names, name)
			}
			slices.Sort(names)
			if err := add(file, names, defs); err != nil {
				return nil, err
			}
		}

		logger.Debug("Loaded raw tasks.", "kind", kind, "count", len(tasks), "files", len(files))
		return stream.FromSlice(tasks), nil
	}
}

// NewDefaultLoader returns the loader that appends the run and task
// transforms to the kind's own list and then delegates to next.
func NewDefaultLoader(next Loader) Loader {
	return func(ctx context.Context, kind, path string, cfg *config.KindConfig, gc *config.GraphConfig, loaded []*task.Task) (*stream.Stream[*task.RawTask], error) {
		var listed []string
		for _, name := range cfg.Transforms {
			if name == transform.Run || name == transform.Task {
				listed = append(listed, name)
			}
		}
		if len(listed) > 0 {
			return nil, fmt.Errorf("%w: kind %q lists %s; the default loader appends %s and %s itself",
				ErrDefaultTransformListed, kind, strings.Join(listed, ", "), transform.Run, transform.Task)
		}
		cfg.Transforms = append(cfg.Transforms, transform.Run, transform.Task)
		return next(ctx, kind, path, cfg, gc, loaded)
	}
}

func readTasksFile(ctx context.Context, path string, decoders []config.Decoder) (map[string]*task.RawTask, error) {
	ext := filepath.Ext(path)
	idx := slices.IndexFunc(decoders, func(d config.Decoder) bool {
		return slices.Contains(d.Extensions(), ext)
	})
	if idx < 0 {
		return nil, fmt.Errorf("no decoder for %q files (%s)", ext, path)
	}
	m, err := decoders[idx].DecodeFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	var defs map[string]*task.RawTask
	if err := decode.Into(m, &defs); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for name, raw := range defs {
		if raw == nil {
			defs[name] = &task.RawTask{}
		}
	}
	return defs, nil
}
