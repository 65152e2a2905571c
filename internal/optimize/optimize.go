package optimize

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/vk/taskgraph/internal/config"
	"github.com/vk/taskgraph/internal/ctxlog"
	"github.com/vk/taskgraph/internal/decode"
	"github.com/vk/taskgraph/internal/graph"
	"github.com/vk/taskgraph/internal/registry"
	"github.com/vk/taskgraph/internal/task"
	"github.com/vk/taskgraph/internal/taskgraph"
)

// ErrRemovedWithDependents is returned when a task that remains in the
// graph depends on a removed task.
var ErrRemovedWithDependents = errors.New("removed task has remaining dependents")

// Options configures Optimize.
type Options struct {
	// Requested are the labels the caller asked for. Tasks outside this
	// set are removed once nothing depends on them.
	Requested []string
	// DoNotOptimize are labels that are neither removed nor replaced.
	DoNotOptimize []string
	// ExistingTasks maps labels to ids of tasks to reuse.
	ExistingTasks  map[string]string
	DecisionTaskID string
	Params         *config.Parameters
	// Strategies defaults to NewRegistry().
	Strategies *registry.Registry[Strategy]
	// IDs defaults to RandomIDs.
	IDs IDGenerator
}

// Optimize prunes target and returns the optimized graph, keyed by task
// id, along with the label to task id mapping of every task that was kept
// or replaced.
func Optimize(ctx context.Context, target *taskgraph.TaskGraph, opts Options) (*taskgraph.TaskGraph, map[string]string, error) {
	logger := ctxlog.FromContext(ctx)
	if opts.Strategies == nil {
		opts.Strategies = NewRegistry()
	}
	if opts.IDs == nil {
		opts.IDs = RandomIDs{}
	}
	if opts.Params == nil {
		opts.Params = config.DefaultParameters()
	}

	var used []string
	for _, t := range target.Tasks {
		if t.Optimization != nil {
			used = append(used, t.Optimization.Strategy)
		}
	}
	if err := opts.Strategies.Validate(ErrUnknownStrategy, used...); err != nil {
		return nil, nil, err
	}

	o := &optimizer{
		target:        target,
		opts:          opts,
		requested:     toSet(opts.Requested),
		doNotOptimize: toSet(opts.DoNotOptimize),
		removed:       make(map[string]struct{}),
		replaced:      make(map[string]struct{}),
		labelToTaskID: make(map[string]string),
	}

	if err := o.removeTasks(ctx); err != nil {
		return nil, nil, err
	}
	logger.Debug("Removal phase complete.", "removed", len(o.removed))

	if err := o.replaceTasks(ctx); err != nil {
		return nil, nil, err
	}
	logger.Debug("Replacement phase complete.", "replaced", len(o.replaced), "removed", len(o.removed))

	optimized, err := o.subgraph()
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Optimized task graph.",
		"target", target.Len(), "removed", len(o.removed), "replaced", len(o.replaced), "remaining", optimized.Len())
	return optimized, o.labelToTaskID, nil
}

type optimizer struct {
	target        *taskgraph.TaskGraph
	opts          Options
	requested     map[string]struct{}
	doNotOptimize map[string]struct{}
	removed       map[string]struct{}
	replaced      map[string]struct{}
	labelToTaskID map[string]string
}

func (o *optimizer) strategy(t *task.Task) (Strategy, any) {
	name, arg := Never, any(nil)
	if t.Optimization != nil {
		name, arg = t.Optimization.Strategy, t.Optimization.Arg
	}
	s, ok := o.opts.Strategies.Lookup(name)
	if !ok {
		// Only reachable for Never on a registry that does not carry it.
		return Base{}, nil
	}
	return s, arg
}

// removeTasks visits dependents before dependencies.
func (o *optimizer) removeTasks(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	dependents := o.target.Graph.ReverseLinks()
	walk := o.target.Graph.VisitPreorder()

	for {
		label, ok, err := walk.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, skip := o.doNotOptimize[label]; skip {
			continue
		}
		if slices.ContainsFunc(dependents[label], func(d string) bool { return !o.has(o.removed, d) }) {
			continue
		}
		if _, ok := o.requested[label]; !ok {
			logger.Debug("Removing task that is no longer needed.", "label", label)
			o.removed[label] = struct{}{}
			continue
		}

		t := o.target.Tasks[label]
		s, arg := o.strategy(t)
		remove, err := s.ShouldRemoveTask(ctx, t, o.opts.Params, arg)
		if err != nil {
			return fmt.Errorf("optimizing %q: %w", label, err)
		}
		if remove {
			logger.Debug("Removing task.", "label", label)
			o.removed[label] = struct{}{}
		}
	}
}

// replaceTasks visits dependencies before dependents.
func (o *optimizer) replaceTasks(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	dependencies := o.target.Graph.Links()
	walk := o.target.Graph.VisitPostorder()

	for {
		label, ok, err := walk.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if o.has(o.doNotOptimize, label) || o.has(o.removed, label) {
			continue
		}
		if slices.ContainsFunc(dependencies[label], func(d string) bool {
			return !o.has(o.replaced, d) && !o.has(o.removed, d)
		}) {
			continue
		}
		if id, ok := o.opts.ExistingTasks[label]; ok && id != "" {
			logger.Debug("Replacing task with existing task.", "label", label, "taskID", id)
			o.replaced[label] = struct{}{}
			o.labelToTaskID[label] = id
			continue
		}

		t := o.target.Tasks[label]
		s, arg := o.strategy(t)
		v, err := s.ShouldReplaceTask(ctx, t, o.opts.Params, arg)
		if err != nil {
			return fmt.Errorf("optimizing %q: %w", label, err)
		}
		if v.IsDrop() {
			logger.Debug("Removing task during replacement.", "label", label)
			o.removed[label] = struct{}{}
		} else if id, ok := v.ReplacementID(); ok {
			logger.Debug("Replacing task.", "label", label, "taskID", id)
			o.replaced[label] = struct{}{}
			o.labelToTaskID[label] = id
		}
	}
}

func (o *optimizer) subgraph() (*taskgraph.TaskGraph, error) {
	var bad []string
	for _, e := range o.target.Graph.Edges() {
		if o.kept(e.From) && o.has(o.removed, e.To) {
			bad = append(bad, e.String())
		}
	}
	if len(bad) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrRemovedWithDependents, strings.Join(bad, ", "))
	}

	for _, label := range o.target.Graph.Nodes() {
		if o.kept(label) {
			o.labelToTaskID[label] = o.opts.IDs.NewID(label)
		}
	}

	named := o.target.Graph.NamedLinks()
	tasks := make(map[string]*task.Task)
	for _, label := range o.target.Graph.Nodes() {
		if !o.kept(label) {
			continue
		}
		t := o.target.Tasks[label].Clone()
		t.TaskID = o.labelToTaskID[label]

		// deps resolves task-reference names; depIDs is what the task
		// waits on. A soft dependency never shadows a named one.
		deps := make(map[string]string, len(named[label]))
		depIDs := make(map[string]struct{}, len(named[label])+len(t.SoftDependencies))
		for name, depLabel := range named[label] {
			id := o.labelToTaskID[depLabel]
			deps[name] = id
			depIDs[id] = struct{}{}
		}
		for _, soft := range t.SoftDependencies {
			if !o.kept(soft) {
				continue
			}
			id := o.labelToTaskID[soft]
			depIDs[id] = struct{}{}
			if _, taken := deps[soft]; !taken {
				deps[soft] = id
			}
		}

		def, err := taskgraph.ResolveReferences(t.Definition, taskgraph.References{
			Label:        label,
			Self:         t.TaskID,
			Decision:     o.opts.DecisionTaskID,
			Dependencies: deps,
		})
		if err != nil {
			return nil, err
		}
		if def == nil {
			def = map[string]any{}
		}
		ids := make([]string, 0, len(depIDs))
		for id := range depIDs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		var existing []string
		if err := decode.Into(def["dependencies"], &existing); err != nil {
			return nil, fmt.Errorf("task %q: definition dependencies: %w", label, err)
		}
		all := make([]any, 0, len(existing)+len(ids))
		for _, id := range append(existing, ids...) {
			all = append(all, id)
		}
		def["dependencies"] = all
		t.Definition = def
		tasks[t.TaskID] = t
	}

	var edges []graph.Edge
	for _, e := range o.target.Graph.Edges() {
		from, okFrom := o.labelToTaskID[e.From]
		to, okTo := o.labelToTaskID[e.To]
		if !okFrom || !okTo {
			continue
		}
		if _, ok := tasks[from]; !ok {
			continue
		}
		if _, ok := tasks[to]; !ok {
			continue
		}
		edges = append(edges, graph.Edge{From: from, To: to, Name: e.Name})
	}

	nodes := make([]string, 0, len(tasks))
	for id := range tasks {
		nodes = append(nodes, id)
	}
	g, err := graph.New(nodes, edges)
	if err != nil {
		return nil, err
	}
	return taskgraph.New(tasks, g)
}

// kept reports whether label stays in the optimized graph as a new task.
func (o *optimizer) kept(label string) bool {
	return o.target.Graph.Has(label) && !o.has(o.removed, label) && !o.has(o.replaced, label)
}

func (o *optimizer) has(set map[string]struct{}, label string) bool {
	_, ok := set[label]
	return ok
}

func toSet(items []string) map[string]struct{} {
	s := make(map[string]struct{}, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}
