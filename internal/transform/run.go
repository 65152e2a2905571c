package transform

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/vk/taskgraph/internal/decode"
	"github.com/vk/taskgraph/internal/stream"
	"github.com/vk/taskgraph/internal/task"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// runSpec is the typed form of a task's run section.
type runSpec struct {
	Using   string       `mapstructure:"using" validate:"oneof=run-task bare"`
	Command shellCommand `mapstructure:"command" validate:"required,min=1,dive,required"`
	Cwd     string       `mapstructure:"cwd"`
	// Env values are printed as-is, so true stays "true".
	Env map[string]any `mapstructure:"env"`
}

// shellCommand is an argv; a plain string runs through sh -c.
type shellCommand []string

// UnmarshalValue implements decode.Unmarshaler.
func (c *shellCommand) UnmarshalValue(v any) error {
	if s, ok := v.(string); ok {
		*c = shellCommand{"sh", "-c", s}
		return nil
	}
	var argv []string
	if err := decode.Into(v, &argv); err != nil {
		return err
	}
	*c = argv
	return nil
}

// RunTransform gives every task a name and label and turns its run section
// into a payload in the definition.
//
// A task without a label is labeled "<kind>-<name>". The run section
// accepts using ("run-task", the default, or "bare"), command (a string or
// a list), cwd and env.
func RunTransform(tc *Config, in *stream.Stream[*task.RawTask]) *stream.Stream[*task.RawTask] {
	return stream.Map(in, func(raw *task.RawTask) (*task.RawTask, error) {
		out := raw.Clone()
		if out.Name == "" && out.Label == "" {
			return nil, fmt.Errorf("task has neither a name nor a label")
		}
		if out.Name == "" {
			out.Name = strings.TrimPrefix(out.Label, tc.Kind+"-")
		}
		if out.Label == "" {
			out.Label = tc.Kind + "-" + out.Name
		}
		if out.Description == "" {
			out.Description = fmt.Sprintf("%s %s", tc.Kind, out.Name)
		}
		if out.Run == nil {
			return out, nil
		}

		spec, err := parseRun(out.Run)
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", out.Label, err)
		}
		payload := map[string]any{"command": commandFor(spec)}
		if spec.Cwd != "" {
			payload["cwd"] = spec.Cwd
		}
		if len(spec.Env) > 0 {
			env := make(map[string]any, len(spec.Env))
			for k, v := range spec.Env {
				env[k] = fmt.Sprint(v)
			}
			payload["env"] = env
		}
		out.Definition = task.MergeMaps(out.Definition, map[string]any{"payload": payload})
		out.Run = nil
		return out, nil
	})
}

func parseRun(run map[string]any) (*runSpec, error) {
	spec := &runSpec{Using: "run-task"}
	if err := decode.Into(run, spec, decode.Strict()); err != nil {
		return nil, fmt.Errorf("invalid run section: %w", err)
	}
	if err := validate.Struct(spec); err != nil {
		return nil, fmt.Errorf("invalid run section: %w", err)
	}
	return spec, nil
}

func commandFor(spec *runSpec) []any {
	var cmd []string
	if spec.Using == "run-task" {
		cmd = append(cmd, "run-task", "--")
	}
	cmd = append(cmd, spec.Command...)
	out := make([]any, len(cmd))
	for i, c := range cmd {
		out[i] = c
	}
	return out
}
