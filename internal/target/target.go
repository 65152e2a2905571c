// Package target implements target task selectors: functions choosing,
// from the full task graph, the tasks a run was asked to perform.
package target

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/vk/taskgraph/internal/config"
	"github.com/vk/taskgraph/internal/registry"
	"github.com/vk/taskgraph/internal/task"
	"github.com/vk/taskgraph/internal/taskgraph"
)

// ErrUnknownSelector is returned when the parameters name an unregistered
// selector.
var ErrUnknownSelector = errors.New("unknown target tasks method")

// Selector returns the labels of the target tasks.
type Selector func(ctx context.Context, full *taskgraph.TaskGraph, params *config.Parameters, gc *config.GraphConfig) ([]string, error)

// Attributes read by the default selector.
const (
	RunOnProjectsAttribute = "run_on_projects"
	RunOnLevelsAttribute   = "run_on_levels"
)

// NewRegistry returns a registry holding the built-in selectors.
func NewRegistry() *registry.Registry[Selector] {
	r := registry.New[Selector]("target tasks method")
	r.Register("all", All)
	r.Register("nothing", Nothing)
	r.Register("labels", Labels)
	r.Register("default", Default)
	return r
}

// Lookup resolves name in reg.
func Lookup(reg *registry.Registry[Selector], name string) (Selector, error) {
	if err := reg.Validate(ErrUnknownSelector, name); err != nil {
		return nil, err
	}
	s, _ := reg.Lookup(name)
	return s, nil
}

// All selects every task.
func All(_ context.Context, full *taskgraph.TaskGraph, _ *config.Parameters, _ *config.GraphConfig) ([]string, error) {
	return full.Keys(), nil
}

// Nothing selects no task.
func Nothing(context.Context, *taskgraph.TaskGraph, *config.Parameters, *config.GraphConfig) ([]string, error) {
	return nil, nil
}

// Labels selects the labels listed in the parameters' target_task_labels.
func Labels(_ context.Context, _ *taskgraph.TaskGraph, params *config.Parameters, _ *config.GraphConfig) ([]string, error) {
	return append([]string(nil), params.TargetTaskLabels...), nil
}

// Default selects tasks whose run_on_projects attribute contains "all" or
// the current project and whose run_on_levels attribute, when set,
// contains the current level. Tasks without run_on_projects run on every
// project.
func Default(_ context.Context, full *taskgraph.TaskGraph, params *config.Parameters, _ *config.GraphConfig) ([]string, error) {
	var out []string
	for _, label := range full.Keys() {
		t := full.Tasks[label]
		ok, err := matches(t.Attributes, RunOnProjectsAttribute, "all", params.Project)
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", label, err)
		}
		if !ok {
			continue
		}
		if _, set := t.Attributes[RunOnLevelsAttribute]; set {
			ok, err = matches(t.Attributes, RunOnLevelsAttribute, params.Level)
			if err != nil {
				return nil, fmt.Errorf("task %q: %w", label, err)
			}
			if !ok {
				continue
			}
		}
		out = append(out, label)
	}
	return out, nil
}

// matches reports whether the list attribute contains any of wanted. An
// unset attribute matches.
func matches(attrs map[string]any, name string, wanted ...string) (bool, error) {
	v, ok := attrs[name]
	if !ok {
		return true, nil
	}
	list, ok := v.([]any)
	if !ok {
		if strs, isStrs := v.([]string); isStrs {
			for _, s := range strs {
				list = append(list, s)
			}
		} else {
			return false, fmt.Errorf("attribute %s must be a list, got %T", name, v)
		}
	}
	return slices.ContainsFunc(list, func(e any) bool {
		for _, w := range wanted {
			if task.ValuesEqual(e, w) {
				return true
			}
		}
		return false
	}), nil
}
