package transform

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vk/taskgraph/internal/stream"
	"github.com/vk/taskgraph/internal/task"
)

// KindAttribute is set on every task by the task transform.
const KindAttribute = "kind"

// TaskTransform finalizes a task for the scheduler. It must run last: any
// key no earlier transform consumed is rejected here.
//
// The definition gains metadata (name, description, trust domain), a
// priority from the graph configuration unless the task sets one, and a
// worker type resolved through the graph configuration's worker aliases.
func TaskTransform(tc *Config, in *stream.Stream[*task.RawTask]) *stream.Stream[*task.RawTask] {
	return stream.Map(in, func(raw *task.RawTask) (*task.RawTask, error) {
		if raw.Label == "" {
			return nil, fmt.Errorf("task %q has no label; list the run transform before the task transform", raw.Name)
		}
		if raw.Run != nil {
			return nil, fmt.Errorf("task %q still has a run section", raw.Label)
		}
		if len(raw.Extra) > 0 {
			keys := make([]string, 0, len(raw.Extra))
			for k := range raw.Extra {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			return nil, fmt.Errorf("task %q has unknown keys: %s", raw.Label, strings.Join(keys, ", "))
		}

		out := raw.Clone()
		if out.Attributes == nil {
			out.Attributes = map[string]any{}
		}
		out.Attributes[KindAttribute] = tc.Kind

		def := out.Definition
		if def == nil {
			def = map[string]any{}
		}
		metadata := map[string]any{
			"name":        out.Label,
			"description": out.Description,
		}
		if tc.GraphConfig != nil {
			metadata["trust-domain"] = tc.GraphConfig.TrustDomain
			if _, ok := def["priority"]; !ok && tc.GraphConfig.TaskPriority != "" {
				def["priority"] = tc.GraphConfig.TaskPriority
			}
			if err := resolveWorker(def, tc.GraphConfig.WorkerAliases); err != nil {
				return nil, fmt.Errorf("task %q: %w", out.Label, err)
			}
		}
		if tc.Params != nil && tc.Params.BuildDate > 0 {
			metadata["created"] = tc.Params.BuildDate
		}
		def["metadata"] = task.MergeMaps(metadata, mapOrNil(def["metadata"]))
		out.Definition = def
		return out, nil
	})
}

// resolveWorker replaces a worker-type naming an alias with the alias'
// worker-type and provisioner.
func resolveWorker(def map[string]any, aliases map[string]any) error {
	name, ok := def["worker-type"].(string)
	if !ok || aliases == nil {
		return nil
	}
	alias, ok := aliases[name]
	if !ok {
		return nil
	}
	am, ok := alias.(map[string]any)
	if !ok {
		return fmt.Errorf("worker alias %q must be a mapping, got %T", name, alias)
	}
	wt, ok := am["worker-type"].(string)
	if !ok || wt == "" {
		return fmt.Errorf("worker alias %q has no worker-type", name)
	}
	def["worker-type"] = wt
	if p, ok := am["provisioner"].(string); ok {
		def["provisioner"] = p
	}
	return nil
}

func mapOrNil(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}
