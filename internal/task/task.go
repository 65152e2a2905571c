package task

import (
	"fmt"
	"reflect"
	"sort"
)

// AlwaysTargetAttribute is the attribute that marks a task as always
// targeted, regardless of the target task selector.
const AlwaysTargetAttribute = "always_target"

// Optimization names the strategy deciding whether a task can be skipped,
// along with the strategy-specific argument.
type Optimization struct {
	Strategy string
	Arg      any
}

// Task is a single unit of work with a globally unique label.
type Task struct {
	// Kind is the name of the kind that produced the task.
	Kind string
	// Label uniquely identifies the task within one generation run.
	Label string
	// Description is a human-readable summary.
	Description string
	// Attributes are arbitrary key/value pairs used for selection.
	Attributes map[string]any
	// Definition is the payload handed to the scheduler.
	Definition map[string]any
	// Dependencies maps a symbolic name to the label of the task depended on.
	Dependencies map[string]string
	// SoftDependencies are labels this task should follow when they are
	// present in the final graph, without pulling them in.
	SoftDependencies []string
	// Optimization is nil when the task is never optimized.
	Optimization *Optimization
	// TaskID is assigned by the optimization stage only.
	TaskID string
}

// AlwaysTarget reports whether the task carries a true always_target attribute.
func (t *Task) AlwaysTarget() bool {
	v, ok := t.Attributes[AlwaysTargetAttribute].(bool)
	return ok && v
}

// Attribute returns an attribute value and whether it was set.
func (t *Task) Attribute(name string) (any, bool) {
	v, ok := t.Attributes[name]
	return v, ok
}

// DependencyNames returns the symbolic dependency names in sorted order.
func (t *Task) DependencyNames() []string {
	names := make([]string, 0, len(t.Dependencies))
	for name := range t.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	c := *t
	c.Attributes = CopyMap(t.Attributes)
	c.Definition = CopyMap(t.Definition)
	if t.Dependencies != nil {
		c.Dependencies = make(map[string]string, len(t.Dependencies))
		for k, v := range t.Dependencies {
			c.Dependencies[k] = v
		}
	}
	if t.SoftDependencies != nil {
		c.SoftDependencies = append([]string(nil), t.SoftDependencies...)
	}
	if t.Optimization != nil {
		opt := *t.Optimization
		opt.Arg = copyValue(opt.Arg)
		c.Optimization = &opt
	}
	return &c
}

// CopyMap deep-copies nested maps and slices. Scalars are shared.
func CopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return CopyMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = copyValue(e)
		}
		return out
	case []string:
		return append([]string(nil), x...)
	default:
		return v
	}
}

// ValuesEqual compares two decoded configuration values. Scalars compare by
// their printed form, so an unquoted 3 in YAML equals the string "3".
func ValuesEqual(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	if !isScalar(a) || !isScalar(b) {
		return false
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}
