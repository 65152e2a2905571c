package optimize

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/vk/taskgraph/internal/config"
	"github.com/vk/taskgraph/internal/decode"
	"github.com/vk/taskgraph/internal/task"
	"lukechampine.com/blake3"
)

// AlwaysRemove removes every task it is asked about.
type AlwaysRemove struct{ Base }

// ShouldRemoveTask implements Strategy.
func (AlwaysRemove) ShouldRemoveTask(context.Context, *task.Task, *config.Parameters, any) (bool, error) {
	return true, nil
}

// ChangedFiles removes a task unless one of the changed files matches one
// of the glob patterns given as its argument.
type ChangedFiles struct{ Base }

// ShouldRemoveTask implements Strategy.
func (ChangedFiles) ShouldRemoveTask(_ context.Context, t *task.Task, params *config.Parameters, arg any) (bool, error) {
	var patterns []string
	if err := decode.Into(arg, &patterns); err != nil {
		return false, fmt.Errorf("%s: %w", SkipUnlessChanged, err)
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return false, fmt.Errorf("%s: invalid pattern %q", SkipUnlessChanged, p)
		}
		for _, f := range params.ChangedFiles {
			if ok, _ := doublestar.Match(p, f); ok {
				return false, nil
			}
		}
	}
	return true, nil
}

// IndexSearch replaces a task with the first of the index paths given as
// its argument found in the parameters' index.
type IndexSearch struct{ Base }

// ShouldReplaceTask implements Strategy.
func (IndexSearch) ShouldReplaceTask(_ context.Context, t *task.Task, params *config.Parameters, arg any) (Verdict, error) {
	var paths []string
	if err := decode.Into(arg, &paths); err != nil {
		return Keep, fmt.Errorf("%s: %w", IndexSearchName, err)
	}
	for _, p := range paths {
		if id, ok := params.Index[p]; ok && id != "" {
			return Replace(id), nil
		}
	}
	return Keep, nil
}

// Digest replaces a task with an earlier task whose definition had the same
// content. The digest covers the definition, the dependency labels and the
// optional string argument, and is looked up in the index as
// "digest.<hex>".
type Digest struct{ Base }

// ShouldReplaceTask implements Strategy.
func (Digest) ShouldReplaceTask(_ context.Context, t *task.Task, params *config.Parameters, arg any) (Verdict, error) {
	sum, err := TaskDigest(t, arg)
	if err != nil {
		return Keep, err
	}
	if id, ok := params.Index["digest."+sum]; ok && id != "" {
		return Replace(id), nil
	}
	return Keep, nil
}

// TaskDigest returns the hex blake3 digest Digest looks up for t.
func TaskDigest(t *task.Task, arg any) (string, error) {
	salt := ""
	if arg != nil {
		s, ok := arg.(string)
		if !ok {
			return "", fmt.Errorf("%s: argument must be a string, got %T", DigestName, arg)
		}
		salt = s
	}
	deps := make([]string, 0, len(t.Dependencies))
	for _, name := range t.DependencyNames() {
		deps = append(deps, name+"="+t.Dependencies[name])
	}
	sort.Strings(deps)

	// json.Marshal writes map keys in sorted order.
	data, err := json.Marshal(struct {
		Definition   map[string]any `json:"definition"`
		Dependencies []string       `json:"dependencies"`
		Salt         string         `json:"salt"`
	}{t.Definition, deps, salt})
	if err != nil {
		return "", fmt.Errorf("%s: %w", DigestName, err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Any combines strategies: a task is removed when any of them removes it,
// and replaced by the first one that drops or replaces it. The argument is
// a list holding one argument per strategy, or nil.
func Any(strategies ...Strategy) Strategy {
	return composite{strategies: strategies, all: false}
}

// All combines strategies: a task is removed only when every one of them
// removes it, and replaced only when every one of them agrees on the
// verdict. The argument has the same shape as for Any.
func All(strategies ...Strategy) Strategy {
	return composite{strategies: strategies, all: true}
}

type composite struct {
	strategies []Strategy
	all        bool
}

func (c composite) args(arg any) ([]any, error) {
	if arg == nil {
		return make([]any, len(c.strategies)), nil
	}
	list, ok := arg.([]any)
	if !ok || len(list) != len(c.strategies) {
		return nil, fmt.Errorf("composite strategy expects a list of %d arguments, got %v", len(c.strategies), arg)
	}
	return list, nil
}

func (c composite) ShouldRemoveTask(ctx context.Context, t *task.Task, params *config.Parameters, arg any) (bool, error) {
	args, err := c.args(arg)
	if err != nil {
		return false, err
	}
	for i, s := range c.strategies {
		remove, err := s.ShouldRemoveTask(ctx, t, params, args[i])
		if err != nil {
			return false, err
		}
		if remove && !c.all {
			return true, nil
		}
		if !remove && c.all {
			return false, nil
		}
	}
	return c.all && len(c.strategies) > 0, nil
}

func (c composite) ShouldReplaceTask(ctx context.Context, t *task.Task, params *config.Parameters, arg any) (Verdict, error) {
	args, err := c.args(arg)
	if err != nil {
		return Keep, err
	}
	var first *Verdict
	for i, s := range c.strategies {
		v, err := s.ShouldReplaceTask(ctx, t, params, args[i])
		if err != nil {
			return Keep, err
		}
		if !c.all {
			if v != Keep {
				return v, nil
			}
			continue
		}
		if first == nil {
			first = &v
		} else if *first != v {
			return Keep, nil
		}
	}
	if first == nil {
		return Keep, nil
	}
	return *first, nil
}

// Not inverts the removal decision of s. It never replaces.
func Not(s Strategy) Strategy {
	return not{s: s}
}

type not struct {
	Base
	s Strategy
}

func (n not) ShouldRemoveTask(ctx context.Context, t *task.Task, params *config.Parameters, arg any) (bool, error) {
	remove, err := n.s.ShouldRemoveTask(ctx, t, params, arg)
	if err != nil {
		return false, err
	}
	return !remove, nil
}
