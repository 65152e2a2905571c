package optimize

import (
	"context"
	"errors"

	"github.com/vk/taskgraph/internal/config"
	"github.com/vk/taskgraph/internal/registry"
	"github.com/vk/taskgraph/internal/task"
)

// ErrUnknownStrategy is returned when a task names an unregistered strategy.
var ErrUnknownStrategy = errors.New("unknown optimization strategy")

// Verdict is a strategy's answer during the replacement phase.
type Verdict struct {
	drop bool
	id   string
}

var (
	// Keep leaves the task in the graph.
	Keep = Verdict{}
	// Drop removes the task from the graph.
	Drop = Verdict{drop: true}
)

// Replace substitutes the task with an existing task id.
func Replace(id string) Verdict {
	return Verdict{id: id}
}

// IsDrop reports whether the verdict removes the task.
func (v Verdict) IsDrop() bool { return v.drop }

// ReplacementID returns the existing task id, if any.
func (v Verdict) ReplacementID() (string, bool) { return v.id, v.id != "" }

// Strategy decides whether a task can be skipped. arg is the value given
// with the strategy name in the task's optimization field.
type Strategy interface {
	// ShouldRemoveTask reports whether the task is unnecessary.
	ShouldRemoveTask(ctx context.Context, t *task.Task, params *config.Parameters, arg any) (bool, error)
	// ShouldReplaceTask may substitute the task with an existing one.
	ShouldReplaceTask(ctx context.Context, t *task.Task, params *config.Parameters, arg any) (Verdict, error)
}

// Base keeps every task. Embed it to implement only one of the methods.
type Base struct{}

// ShouldRemoveTask implements Strategy.
func (Base) ShouldRemoveTask(context.Context, *task.Task, *config.Parameters, any) (bool, error) {
	return false, nil
}

// ShouldReplaceTask implements Strategy.
func (Base) ShouldReplaceTask(context.Context, *task.Task, *config.Parameters, any) (Verdict, error) {
	return Keep, nil
}

// Names of the built-in strategies.
const (
	Never                     = "never"
	Always                    = "always"
	SkipUnlessChanged         = "skip-unless-changed"
	IndexSearchName           = "index-search"
	DigestName                = "digest"
	SkipUnlessChangedOrCached = "skip-unless-changed-or-cached"
)

// NewRegistry returns a registry holding the built-in strategies.
func NewRegistry() *registry.Registry[Strategy] {
	r := registry.New[Strategy]("optimization strategy")
	r.Register(Never, Base{})
	r.Register(Always, AlwaysRemove{})
	r.Register(SkipUnlessChanged, ChangedFiles{})
	r.Register(IndexSearchName, IndexSearch{})
	r.Register(DigestName, Digest{})
	r.Register(SkipUnlessChangedOrCached, Any(IndexSearch{}, ChangedFiles{}))
	return r
}
