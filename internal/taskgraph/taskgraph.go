// Package taskgraph pairs a graph with the tasks its nodes stand for.
package taskgraph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/vk/taskgraph/internal/graph"
	"github.com/vk/taskgraph/internal/task"
)

// ErrInconsistent is returned when the graph's nodes and the task keys differ.
var ErrInconsistent = errors.New("inconsistent task graph")

// TaskGraph is a graph whose nodes are keys of Tasks. Keys are labels
// before optimization and task ids after.
type TaskGraph struct {
	Graph *graph.Graph
	Tasks map[string]*task.Task
}

// New pairs g with tasks. The node set of g must equal the key set of tasks.
func New(tasks map[string]*task.Task, g *graph.Graph) (*TaskGraph, error) {
	if len(tasks) != g.Len() {
		return nil, fmt.Errorf("%w: %d tasks for %d nodes", ErrInconsistent, len(tasks), g.Len())
	}
	for key := range tasks {
		if !g.Has(key) {
			return nil, fmt.Errorf("%w: task %q is not a node", ErrInconsistent, key)
		}
	}
	return &TaskGraph{Graph: g, Tasks: tasks}, nil
}

// FromTasks builds an edge-free task graph keyed by label.
func FromTasks(tasks []*task.Task) (*TaskGraph, error) {
	byLabel := make(map[string]*task.Task, len(tasks))
	nodes := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if _, dup := byLabel[t.Label]; dup {
			return nil, fmt.Errorf("%w: label %q appears twice", ErrInconsistent, t.Label)
		}
		byLabel[t.Label] = t
		nodes = append(nodes, t.Label)
	}
	g, err := graph.New(nodes, nil)
	if err != nil {
		return nil, err
	}
	return &TaskGraph{Graph: g, Tasks: byLabel}, nil
}

// Keys returns the task keys in sorted order.
func (tg *TaskGraph) Keys() []string {
	keys := make([]string, 0, len(tg.Tasks))
	for k := range tg.Tasks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Subset returns the task graph induced by keys. Unknown keys are ignored.
func (tg *TaskGraph) Subset(keys []string) *TaskGraph {
	sub := tg.Graph.Subgraph(keys)
	tasks := make(map[string]*task.Task, sub.Len())
	for _, k := range sub.Nodes() {
		tasks[k] = tg.Tasks[k]
	}
	return &TaskGraph{Graph: sub, Tasks: tasks}
}

// Len returns the number of tasks.
func (tg *TaskGraph) Len() int {
	return len(tg.Tasks)
}
