package testutil

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/vk/taskgraph/internal/config"
	"github.com/vk/taskgraph/internal/loader"
	"github.com/vk/taskgraph/internal/optimize"
	"github.com/vk/taskgraph/internal/registry"
	"github.com/vk/taskgraph/internal/stream"
	"github.com/vk/taskgraph/internal/task"
)

// FakeLoaderName is the loader name fake kinds use.
const FakeLoaderName = "fake"

// FakeKinds provides a loader that emits three chained tasks per kind and
// records the order in which kinds were loaded.
type FakeKinds struct {
	mu     sync.Mutex
	loaded []string
}

// Loader returns the fake loader. For a kind K it emits K-t-0, K-t-1 and
// K-t-2; each task after the first depends on its predecessor as "prev".
// The kind's task-defaults are merged underneath.
func (f *FakeKinds) Loader() loader.Loader {
	return func(ctx context.Context, kind, path string, cfg *config.KindConfig, gc *config.GraphConfig, loaded []*task.Task) (*stream.Stream[*task.RawTask], error) {
		f.mu.Lock()
		f.loaded = append(f.loaded, kind)
		f.mu.Unlock()

		tasks := make([]*task.RawTask, 0, 3)
		for i := 0; i < 3; i++ {
			raw := &task.RawTask{
				Name:        fmt.Sprintf("t-%d", i),
				Label:       fmt.Sprintf("%s-t-%d", kind, i),
				Description: fmt.Sprintf("%s task %d", kind, i),
				Attributes:  map[string]any{"_tasknum": strconv.Itoa(i)},
				Definition: map[string]any{
					"i":        i,
					"metadata": map[string]any{"name": fmt.Sprintf("t-%d", i)},
					"deadline": "soon",
				},
			}
			if i > 0 {
				raw.Dependencies = map[string]string{"prev": fmt.Sprintf("%s-t-%d", kind, i-1)}
			}
			tasks = append(tasks, task.Merge(cfg.TaskDefaults, raw))
		}
		return stream.FromSlice(tasks), nil
	}
}

// Loaded returns the kinds loaded so far, in order.
func (f *FakeKinds) Loaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.loaded...)
}

// FakeKindConfig returns a kind configuration using the fake loader.
// TaskDefaults, when given, is decoded like a task-defaults section.
func FakeKindConfig(deps []string, taskDefaults map[string]any) *config.KindConfig {
	kc := &config.KindConfig{Loader: FakeLoaderName, KindDependencies: deps}
	if taskDefaults != nil {
		raw, err := task.FromMap(taskDefaults)
		if err != nil {
			panic(err)
		}
		kc.TaskDefaults = raw
	}
	return kc
}

// FakeStrategy removes tasks according to Mode: "always", "never", or
// "even"/"odd" on the task definition's "i".
type FakeStrategy struct {
	optimize.Base
	Mode string
}

// ShouldRemoveTask implements optimize.Strategy.
func (s FakeStrategy) ShouldRemoveTask(_ context.Context, t *task.Task, _ *config.Parameters, _ any) (bool, error) {
	switch s.Mode {
	case "always":
		return true, nil
	case "even", "odd":
		i, ok := t.Definition["i"].(int)
		if !ok {
			return false, fmt.Errorf("task %q has no integer i", t.Label)
		}
		return (i%2 == 0) == (s.Mode == "even"), nil
	default:
		return false, nil
	}
}

// FakeStrategies returns a strategy registry holding only the fake modes.
func FakeStrategies() *registry.Registry[optimize.Strategy] {
	r := registry.New[optimize.Strategy]("optimization strategy")
	for _, mode := range []string{"always", "never", "even", "odd"} {
		r.Register(mode, FakeStrategy{Mode: mode})
	}
	return r
}
