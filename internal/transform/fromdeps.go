package transform

import (
	"fmt"
	"slices"
	"strings"

	"github.com/vk/taskgraph/internal/decode"
	"github.com/vk/taskgraph/internal/stream"
	"github.com/vk/taskgraph/internal/task"
)

// FromDepsKey is the optional per-task section configuring FromDepsTransform.
const FromDepsKey = "from-deps"

type fromDepsSpec struct {
	Kinds []string `mapstructure:"kinds"`
	// WithAttributes holds the accepted values per attribute; a single
	// value is read as a one-element list.
	WithAttributes map[string][]any `mapstructure:"with-attributes"`
	CopyAttributes bool             `mapstructure:"copy-attributes"`
}

// FromDepsTransform treats each incoming task as a template and emits one
// task per matching kind-dependency task. The generated task is named
// after the dependency with its kind prefix removed and depends on it under
// the dependency's kind name.
//
// The template's from-deps section may restrict the kinds considered
// (kinds), keep only dependencies whose attributes hold one of the listed
// values (with-attributes), and copy the dependency's attributes
// underneath the template's (copy-attributes).
func FromDepsTransform(tc *Config, in *stream.Stream[*task.RawTask]) *stream.Stream[*task.RawTask] {
	return stream.FlatMap(in, func(tmpl *task.RawTask) ([]*task.RawTask, error) {
		spec, err := parseFromDeps(tmpl.Extra[FromDepsKey], tc)
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", tmpl.Name, err)
		}

		var out []*task.RawTask
		for _, dep := range tc.KindDependenciesTasks {
			if !spec.matches(dep) {
				continue
			}
			t := tmpl.Clone()
			delete(t.Extra, FromDepsKey)
			if len(t.Extra) == 0 {
				t.Extra = nil
			}
			t.Name = strings.TrimPrefix(dep.Label, dep.Kind+"-")
			t.Label = ""
			if t.Dependencies == nil {
				t.Dependencies = make(map[string]string, 1)
			}
			t.Dependencies[dep.Kind] = dep.Label
			if spec.CopyAttributes {
				t.Attributes = task.MergeMaps(dep.Attributes, t.Attributes)
			}
			out = append(out, t)
		}
		return out, nil
	})
}

func (s *fromDepsSpec) matches(dep *task.Task) bool {
	if !slices.Contains(s.Kinds, dep.Kind) {
		return false
	}
	for attr, values := range s.WithAttributes {
		v, ok := dep.Attributes[attr]
		if !ok || !slices.ContainsFunc(values, func(want any) bool { return task.ValuesEqual(want, v) }) {
			return false
		}
	}
	return true
}

func parseFromDeps(v any, tc *Config) (*fromDepsSpec, error) {
	spec := &fromDepsSpec{}
	if v != nil {
		if err := decode.Into(v, spec, decode.Strict()); err != nil {
			return nil, fmt.Errorf("invalid %s section: %w", FromDepsKey, err)
		}
	}
	for _, k := range spec.Kinds {
		if tc.KindConfig == nil || !slices.Contains(tc.KindConfig.KindDependencies, k) {
			return nil, fmt.Errorf("%s.kinds: %q is not a kind dependency of %q", FromDepsKey, k, tc.Kind)
		}
	}
	if spec.Kinds == nil && tc.KindConfig != nil {
		spec.Kinds = tc.KindConfig.KindDependencies
	}
	return spec, nil
}
