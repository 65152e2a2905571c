package taskgraph

import (
	"fmt"
	"regexp"
)

// TaskReferenceKey marks a value to be resolved by ResolveReferences.
const TaskReferenceKey = "task-reference"

var referencePattern = regexp.MustCompile(`<([^<>]+)>`)

// References supplies the ids substituted into a task definition.
type References struct {
	// Label is the task being resolved, used in errors.
	Label string
	// Self is the task's own id.
	Self string
	// Decision is the id of the decision task.
	Decision string
	// Dependencies maps dependency names to task ids.
	Dependencies map[string]string
}

// ResolveReferences returns a copy of def in which every
// {"task-reference": "..."} mapping is replaced by its string with <self>,
// <decision> and <dependency-name> substituted by task ids.
func ResolveReferences(def map[string]any, refs References) (map[string]any, error) {
	out, err := resolveValue(def, refs)
	if err != nil {
		return nil, err
	}
	m, _ := out.(map[string]any)
	return m, nil
}

func resolveValue(v any, refs References) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		if ref, ok := x[TaskReferenceKey]; ok && len(x) == 1 {
			s, ok := ref.(string)
			if !ok {
				return nil, fmt.Errorf("task %q: %s must be a string, got %T", refs.Label, TaskReferenceKey, ref)
			}
			return substitute(s, refs)
		}
		out := make(map[string]any, len(x))
		for k, e := range x {
			r, err := resolveValue(e, refs)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			r, err := resolveValue(e, refs)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

func substitute(s string, refs References) (string, error) {
	var err error
	out := referencePattern.ReplaceAllStringFunc(s, func(match string) string {
		key := match[1 : len(match)-1]
		switch key {
		case "self":
			return refs.Self
		case "decision":
			return refs.Decision
		}
		id, ok := refs.Dependencies[key]
		if !ok {
			if err == nil {
				err = fmt.Errorf("task %q has no dependency named %q", refs.Label, key)
			}
			return match
		}
		return id
	})
	if err != nil {
		return "", err
	}
	return out, nil
}
