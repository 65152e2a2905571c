package task

import (
	"fmt"
	"sort"

	"github.com/vk/taskgraph/internal/decode"
)

// RawTask is the typed shape of a task while it moves through a kind's
// loader and transforms.
type RawTask struct {
	Name             string            `mapstructure:"name"`
	Label            string            `mapstructure:"label"`
	Description      string            `mapstructure:"description"`
	Attributes       map[string]any    `mapstructure:"attributes"`
	Dependencies     map[string]string `mapstructure:"dependencies"`
	SoftDependencies []string          `mapstructure:"soft-dependencies"`
	Optimization     *Optimization     `mapstructure:"optimization"`
	// Definition is the scheduler payload, written as "task" in kind files.
	Definition map[string]any `mapstructure:"task"`
	// Run is the opaque "run" section interpreted by the run transform.
	Run map[string]any `mapstructure:"run"`
	// Extra carries keys no built-in transform knows about.
	Extra map[string]any `mapstructure:",remain"`
}

// Clone returns a deep copy of the raw task.
func (r *RawTask) Clone() *RawTask {
	if r == nil {
		return nil
	}
	c := *r
	c.Attributes = CopyMap(r.Attributes)
	c.Definition = CopyMap(r.Definition)
	c.Run = CopyMap(r.Run)
	c.Extra = CopyMap(r.Extra)
	if r.Dependencies != nil {
		c.Dependencies = make(map[string]string, len(r.Dependencies))
		for k, v := range r.Dependencies {
			c.Dependencies[k] = v
		}
	}
	if r.SoftDependencies != nil {
		c.SoftDependencies = append([]string(nil), r.SoftDependencies...)
	}
	if r.Optimization != nil {
		opt := *r.Optimization
		opt.Arg = copyValue(opt.Arg)
		c.Optimization = &opt
	}
	return &c
}

// Freeze turns a fully transformed raw task into a Task owned by kind.
func (r *RawTask) Freeze(kind string) (*Task, error) {
	if r.Label == "" {
		return nil, fmt.Errorf("task %q of kind %q has no label", r.Name, kind)
	}
	t := &Task{
		Kind:         kind,
		Label:        r.Label,
		Description:  r.Description,
		Attributes:   CopyMap(r.Attributes),
		Definition:   CopyMap(r.Definition),
		Dependencies: make(map[string]string, len(r.Dependencies)),
	}
	if t.Attributes == nil {
		t.Attributes = map[string]any{}
	}
	if t.Definition == nil {
		t.Definition = map[string]any{}
	}
	for k, v := range r.Dependencies {
		t.Dependencies[k] = v
	}
	if len(r.SoftDependencies) > 0 {
		t.SoftDependencies = append([]string(nil), r.SoftDependencies...)
		sort.Strings(t.SoftDependencies)
	}
	if r.Optimization != nil {
		opt := *r.Optimization
		t.Optimization = &opt
	}
	return t, nil
}

// rawTask has RawTask's fields and tags but not its UnmarshalValue method,
// so decoding into it does not recurse.
type rawTask RawTask

// FromMap converts a decoded configuration mapping (YAML or HCL) into a
// RawTask. Unknown keys are kept in Extra.
func FromMap(m map[string]any) (*RawTask, error) {
	r := &RawTask{}
	if err := r.UnmarshalValue(m); err != nil {
		return nil, err
	}
	return r, nil
}

// UnmarshalValue implements decode.Unmarshaler, so RawTask fields nested in
// other configuration structs decode the same way FromMap does.
func (r *RawTask) UnmarshalValue(v any) error {
	if err := decode.Into(v, (*rawTask)(r)); err != nil {
		return err
	}
	if r.Optimization != nil && r.Optimization.Strategy == "" {
		r.Optimization = nil
	}
	r.Attributes = CopyMap(r.Attributes)
	r.Definition = CopyMap(r.Definition)
	r.Run = CopyMap(r.Run)
	r.Extra = CopyMap(r.Extra)
	return nil
}

// UnmarshalValue implements decode.Unmarshaler. The file form is a mapping
// with exactly one strategy name; an empty mapping leaves o zero.
func (o *Optimization) UnmarshalValue(v any) error {
	m, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("optimization must be a mapping of strategy name to argument, got %T", v)
	}
	if len(m) > 1 {
		return fmt.Errorf("optimization must name exactly one strategy, got %d", len(m))
	}
	for name, arg := range m {
		*o = Optimization{Strategy: name, Arg: copyValue(arg)}
	}
	return nil
}
