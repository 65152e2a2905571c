package generator

import (
	"context"
	"strings"

	"github.com/vk/taskgraph/internal/config"
	"github.com/vk/taskgraph/internal/task"
)

// LoadTasksForKind loads kindName and the kinds it depends on, and returns
// the tasks of kindName keyed by label with the "<kind>-" prefix removed.
// Any TargetKinds in opts.Params are replaced.
func LoadTasksForKind(ctx context.Context, opts Options, kindName string) (map[string]*task.Task, error) {
	params := opts.Params
	if params == nil {
		params = config.DefaultParameters()
	}
	scoped := *params
	scoped.TargetKinds = []string{kindName}
	opts.Params = &scoped

	full, err := New(opts).FullTaskSet(ctx)
	if err != nil {
		return nil, err
	}
	prefix := kindName + "-"
	out := make(map[string]*task.Task)
	for label, t := range full.Tasks {
		if t.Kind != kindName {
			continue
		}
		out[strings.TrimPrefix(label, prefix)] = t
	}
	return out, nil
}
