package config

import (
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/vk/taskgraph/internal/decode"
	"github.com/vk/taskgraph/internal/task"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// AlwaysTarget is the decoded enable_always_target parameter: either a plain
// switch, or a list restricting always-target tasks to some kinds.
type AlwaysTarget struct {
	Enabled bool
	// Kinds is nil for the boolean form.
	Kinds []string
}

// UnmarshalValue implements decode.Unmarshaler. It accepts a bool or a list
// of kind names.
func (a *AlwaysTarget) UnmarshalValue(v any) error {
	switch x := v.(type) {
	case bool:
		*a = AlwaysTarget{Enabled: x}
		return nil
	case []any, []string:
		kinds := []string{}
		if err := decode.Into(x, &kinds); err != nil {
			return fmt.Errorf("enable_always_target: %w", err)
		}
		*a = AlwaysTarget{Enabled: true, Kinds: kinds}
		return nil
	default:
		return fmt.Errorf("enable_always_target must be a bool or a list of kind names, got %T", v)
	}
}

// Allows reports whether always-target tasks of the given kind are added.
func (a AlwaysTarget) Allows(kind string) bool {
	if !a.Enabled {
		return false
	}
	if a.Kinds == nil {
		return true
	}
	return slices.Contains(a.Kinds, kind)
}

// Parameters is the read-only input of one generation run.
type Parameters struct {
	Project string `mapstructure:"project"`
	Level   string `mapstructure:"level" validate:"omitempty,oneof=1 2 3"`
	// TargetTasksMethod names the target task selector.
	TargetTasksMethod string `mapstructure:"target_tasks_method" validate:"required"`
	// TargetTaskLabels feeds the "labels" selector.
	TargetTaskLabels []string `mapstructure:"target_task_labels"`
	// TargetKinds, when set, restricts loading to these kinds and the
	// kinds they depend on.
	TargetKinds         []string     `mapstructure:"target-kinds"`
	OptimizeTargetTasks bool         `mapstructure:"optimize_target_tasks"`
	EnableAlwaysTarget  AlwaysTarget `mapstructure:"enable_always_target"`
	// DoNotOptimize lists labels the optimizer must keep.
	DoNotOptimize []string `mapstructure:"do_not_optimize"`
	// ExistingTasks maps labels to task ids from a previous run.
	ExistingTasks map[string]string `mapstructure:"existing_tasks"`
	// Index maps index paths to task ids from previous runs.
	Index map[string]string `mapstructure:"index"`
	// ChangedFiles lists repository paths changed by the push.
	ChangedFiles   []string       `mapstructure:"files_changed"`
	DecisionTaskID string         `mapstructure:"decision_task_id"`
	BuildDate      int64          `mapstructure:"build_date" validate:"gte=0"`
	Extra          map[string]any `mapstructure:",remain"`
}

// DefaultParameters returns the parameters used when none are given.
func DefaultParameters() *Parameters {
	return &Parameters{
		Level:               "3",
		TargetTasksMethod:   "default",
		OptimizeTargetTasks: true,
		EnableAlwaysTarget:  AlwaysTarget{Enabled: true},
		DecisionTaskID:      "DECISION-TASK",
	}
}

// Validate checks the struct constraints.
func (p *Parameters) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	return nil
}

// ParametersFromMap overlays a decoded parameters file on DefaultParameters.
func ParametersFromMap(m map[string]any) (*Parameters, error) {
	p := DefaultParameters()
	if err := decode.Into(m, p); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	p.Extra = task.CopyMap(p.Extra)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
