package app

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/vk/taskgraph/internal/graph"
	"github.com/vk/taskgraph/internal/task"
	"github.com/vk/taskgraph/internal/taskgraph"
)

// taskJSON is the serialized form of a task.
type taskJSON struct {
	Kind             string            `json:"kind"`
	Label            string            `json:"label"`
	Description      string            `json:"description,omitempty"`
	Attributes       map[string]any    `json:"attributes"`
	Dependencies     map[string]string `json:"dependencies"`
	SoftDependencies []string          `json:"soft_dependencies"`
	Optimization     map[string]any    `json:"optimization"`
	Task             map[string]any    `json:"task"`
	TaskID           string            `json:"task_id,omitempty"`
}

func toJSON(t *task.Task) taskJSON {
	out := taskJSON{
		Kind:             t.Kind,
		Label:            t.Label,
		Description:      t.Description,
		Attributes:       t.Attributes,
		Dependencies:     t.Dependencies,
		SoftDependencies: t.SoftDependencies,
		Task:             t.Definition,
		TaskID:           t.TaskID,
	}
	if out.Attributes == nil {
		out.Attributes = map[string]any{}
	}
	if out.Dependencies == nil {
		out.Dependencies = map[string]string{}
	}
	if out.SoftDependencies == nil {
		out.SoftDependencies = []string{}
	}
	if t.Optimization != nil {
		out.Optimization = map[string]any{t.Optimization.Strategy: t.Optimization.Arg}
	}
	return out
}

// renderer writes artifacts as indented JSON or as styled text. Styling is
// dropped when the output is not a terminal.
type renderer struct {
	w     io.Writer
	json  bool
	label lipgloss.Style
	muted lipgloss.Style
}

func newRenderer(w io.Writer, asJSON bool) *renderer {
	r := lipgloss.NewRenderer(w)
	return &renderer{
		w:     w,
		json:  asJSON,
		label: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#20B9B4")),
		muted: r.NewStyle().Foreground(lipgloss.Color("#2C4A54")),
	}
}

func (r *renderer) encode(v any) error {
	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// taskGraph prints one task per line with its dependencies underneath.
// byID prefixes each line with the task id.
func (r *renderer) taskGraph(tg *taskgraph.TaskGraph, byID bool) error {
	if r.json {
		out := make(map[string]taskJSON, tg.Len())
		for key, t := range tg.Tasks {
			out[key] = toJSON(t)
		}
		return r.encode(out)
	}

	named := tg.Graph.NamedLinks()
	for _, key := range tg.Keys() {
		t := tg.Tasks[key]
		line := r.label.Render(t.Label)
		if byID {
			line = key + " " + line
		}
		if _, err := fmt.Fprintln(r.w, line); err != nil {
			return err
		}
		links := named[key]
		names := make([]string, 0, len(links))
		for name := range links {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if _, err := fmt.Fprintln(r.w, r.muted.Render(fmt.Sprintf("  %s -> %s", name, links[name]))); err != nil {
				return err
			}
		}
	}
	return nil
}

// tasks prints tasks keyed by their name within a kind.
func (r *renderer) tasks(tasks map[string]*task.Task) error {
	if r.json {
		out := make(map[string]taskJSON, len(tasks))
		for name, t := range tasks {
			out[name] = toJSON(t)
		}
		return r.encode(out)
	}

	names := make([]string, 0, len(tasks))
	for name := range tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := fmt.Fprintf(r.w, "%s %s\n", r.label.Render(name), r.muted.Render(tasks[name].Label)); err != nil {
			return err
		}
	}
	return nil
}

// kinds prints kinds in load order, each with the kinds it depends on.
func (r *renderer) kinds(kg *graph.Graph) error {
	order, err := kg.VisitPostorder().Drain()
	if err != nil {
		return err
	}
	links := kg.Links()

	if r.json {
		out := make(map[string][]string, len(order))
		for _, name := range order {
			deps := links[name]
			if deps == nil {
				deps = []string{}
			}
			out[name] = deps
		}
		return r.encode(out)
	}

	for _, name := range order {
		line := r.label.Render(name)
		if deps := links[name]; len(deps) > 0 {
			line += " " + r.muted.Render(fmt.Sprintf("%v", deps))
		}
		if _, err := fmt.Fprintln(r.w, line); err != nil {
			return err
		}
	}
	return nil
}
