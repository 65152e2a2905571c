package config

import (
	"fmt"
	"sort"

	"github.com/vk/taskgraph/internal/decode"
	"github.com/vk/taskgraph/internal/task"
)

// Model is the complete configuration of one repository: its graph
// configuration and every kind found under the root.
type Model struct {
	Root        string
	GraphConfig *GraphConfig
	Kinds       map[string]*KindDefinition
}

// KindNames returns the names of all kinds in sorted order.
func (m *Model) KindNames() []string {
	names := make([]string, 0, len(m.Kinds))
	for name := range m.Kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// KindDefinition is a kind as read from disk, before any task is loaded.
type KindDefinition struct {
	Name   string
	Path   string
	Config *KindConfig
}

// Repository describes one source repository the graph builds from.
type Repository struct {
	Name string `mapstructure:"name" validate:"required"`
}

// GraphConfig holds repository-wide settings shared by every kind.
type GraphConfig struct {
	// Root is the directory the configuration was loaded from.
	Root         string
	TrustDomain  string `validate:"required"`
	TaskPriority string `validate:"omitempty,oneof=highest very-high high medium low very-low lowest"`
	// WorkerAliases maps alias names to worker pool settings.
	WorkerAliases map[string]any
	Repositories  map[string]Repository `validate:"dive"`
	Extra         map[string]any
}

// graphConfigFile is the on-disk layout of config.*.
type graphConfigFile struct {
	TrustDomain  string `mapstructure:"trust-domain"`
	TaskPriority string `mapstructure:"task-priority"`
	Workers      struct {
		Aliases map[string]any `mapstructure:"aliases"`
	} `mapstructure:"workers"`
	Taskgraph struct {
		Repositories map[string]Repository `mapstructure:"repositories"`
	} `mapstructure:"taskgraph"`
	Extra map[string]any `mapstructure:",remain"`
}

// GraphConfigFromMap converts a decoded config file into a validated
// GraphConfig.
func GraphConfigFromMap(root string, m map[string]any) (*GraphConfig, error) {
	f := graphConfigFile{TaskPriority: "low"}
	if err := decode.Into(m, &f); err != nil {
		return nil, fmt.Errorf("invalid graph config: %w", err)
	}
	gc := &GraphConfig{
		Root:          root,
		TrustDomain:   f.TrustDomain,
		TaskPriority:  f.TaskPriority,
		WorkerAliases: task.CopyMap(f.Workers.Aliases),
		Repositories:  f.Taskgraph.Repositories,
		Extra:         task.CopyMap(f.Extra),
	}
	if gc.TaskPriority == "" {
		gc.TaskPriority = "low"
	}
	if err := validate.Struct(gc); err != nil {
		return nil, fmt.Errorf("invalid graph config: %w", err)
	}
	return gc, nil
}

// KindConfig is the declarative configuration of a single kind.
type KindConfig struct {
	// KindDependencies names kinds whose tasks must be loaded first.
	KindDependencies []string `mapstructure:"kind-dependencies"`
	// Transforms names the transform pipeline, applied in order.
	Transforms []string `mapstructure:"transforms"`
	// Loader names the loader; empty selects the default loader.
	Loader string `mapstructure:"loader"`
	// TaskDefaults is merged underneath every task the kind emits.
	TaskDefaults *task.RawTask `mapstructure:"task-defaults"`
	// Tasks are inline task definitions keyed by name.
	Tasks map[string]*task.RawTask `mapstructure:"tasks"`
	// Extra carries keys used by custom loaders and transforms.
	Extra map[string]any `mapstructure:",remain"`
}

// DefaultLoader is used when a kind does not name a loader.
const DefaultLoader = "default"

// LoaderName returns the configured loader or DefaultLoader.
func (c *KindConfig) LoaderName() string {
	if c.Loader == "" {
		return DefaultLoader
	}
	return c.Loader
}

// TaskNames returns the inline task names in sorted order.
func (c *KindConfig) TaskNames() []string {
	names := make([]string, 0, len(c.Tasks))
	for name := range c.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy, so loaders may extend Transforms without
// touching the shared configuration.
func (c *KindConfig) Clone() *KindConfig {
	out := &KindConfig{
		KindDependencies: append([]string(nil), c.KindDependencies...),
		Transforms:       append([]string(nil), c.Transforms...),
		Loader:           c.Loader,
		TaskDefaults:     c.TaskDefaults.Clone(),
		Extra:            task.CopyMap(c.Extra),
	}
	if c.Tasks != nil {
		out.Tasks = make(map[string]*task.RawTask, len(c.Tasks))
		for k, v := range c.Tasks {
			out.Tasks[k] = v.Clone()
		}
	}
	return out
}

// KindConfigFromMap converts a decoded kind file into a KindConfig.
func KindConfigFromMap(m map[string]any) (*KindConfig, error) {
	kc := &KindConfig{}
	if err := decode.Into(m, kc); err != nil {
		return nil, fmt.Errorf("invalid kind config: %w", err)
	}
	// A task written as "name:" with no body decodes to nil.
	for name, raw := range kc.Tasks {
		if raw == nil {
			kc.Tasks[name] = &task.RawTask{}
		}
	}
	kc.Extra = task.CopyMap(kc.Extra)
	return kc, nil
}
