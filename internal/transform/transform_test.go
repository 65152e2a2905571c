package transform_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/taskgraph/internal/config"
	"github.com/vk/taskgraph/internal/stream"
	"github.com/vk/taskgraph/internal/task"
	"github.com/vk/taskgraph/internal/transform"
)

func newConfig() *transform.Config {
	return &transform.Config{
		Kind:       "build",
		Path:       "kinds/build",
		KindConfig: &config.KindConfig{KindDependencies: []string{"fetch", "toolchain"}},
		GraphConfig: &config.GraphConfig{
			TrustDomain:  "ci",
			TaskPriority: "low",
			WorkerAliases: map[string]any{
				"b-linux": map[string]any{"provisioner": "builders", "worker-type": "linux-large"},
			},
		},
		Params: config.DefaultParameters(),
	}
}

func apply(t *testing.T, tr transform.Transform, tc *transform.Config, in ...*task.RawTask) ([]*task.RawTask, error) {
	t.Helper()
	return tr(tc, stream.FromSlice(in)).Collect()
}

func TestPipeline(t *testing.T) {
	reg := transform.NewRegistry()
	assert.Equal(t, []string{"from-deps", "run", "task"}, reg.Names())

	var order []string
	mark := func(name string) transform.Transform {
		return func(tc *transform.Config, in *stream.Stream[*task.RawTask]) *stream.Stream[*task.RawTask] {
			return stream.Map(in, func(r *task.RawTask) (*task.RawTask, error) {
				order = append(order, name+":"+r.Name)
				return r, nil
			})
		}
	}
	reg.Register("first", mark("first"))
	reg.Register("second", mark("second"))

	p, err := transform.Pipeline(reg, []string{"first", "second"})
	require.NoError(t, err)
	out := p(newConfig(), stream.FromSlice([]*task.RawTask{{Name: "a"}, {Name: "b"}}))
	assert.Empty(t, order, "pipelines are lazy")

	got, err := out.Collect()
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, []string{"first:a", "second:a", "first:b", "second:b"}, order)
}

func TestPipeline_Identity(t *testing.T) {
	p, err := transform.Pipeline(transform.NewRegistry(), nil)
	require.NoError(t, err)
	got, err := apply(t, p, newConfig(), &task.RawTask{Name: "a"})
	require.NoError(t, err)
	assert.Equal(t, []*task.RawTask{{Name: "a"}}, got)
}

func TestPipeline_UnknownTransform(t *testing.T) {
	_, err := transform.Pipeline(transform.NewRegistry(), []string{"run", "notify"})
	require.ErrorIs(t, err, transform.ErrTransformNotFound)
	assert.Contains(t, err.Error(), `"notify"`)
}

func TestPipeline_ErrorsNameTheTransform(t *testing.T) {
	boom := errors.New("boom")
	reg := transform.NewRegistry()
	reg.Register("explode", func(tc *transform.Config, in *stream.Stream[*task.RawTask]) *stream.Stream[*task.RawTask] {
		return stream.Map(in, func(*task.RawTask) (*task.RawTask, error) { return nil, boom })
	})

	p, err := transform.Pipeline(reg, []string{"explode", "run", "task"})
	require.NoError(t, err)
	_, err = apply(t, p, newConfig(), &task.RawTask{Name: "a"})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, `transform "explode" of kind "build": boom`, err.Error())
}

func TestRunTransform(t *testing.T) {
	got, err := apply(t, transform.RunTransform, newConfig(),
		&task.RawTask{Name: "linux"},
		&task.RawTask{Label: "build-mac", Description: "mac build"},
		&task.RawTask{
			Name: "win",
			Run: map[string]any{
				"command": []any{"make", "all"},
				"cwd":     "src",
				"env":     map[string]any{"JOBS": 4, "DEBUG": true},
			},
			Definition: map[string]any{"payload": map[string]any{"max-run-time": 600}},
		},
		&task.RawTask{Name: "docs", Run: map[string]any{"using": "bare", "command": "make docs"}},
	)
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, "build-linux", got[0].Label)
	assert.Equal(t, "build linux", got[0].Description)
	assert.Equal(t, "mac", got[1].Name)
	assert.Equal(t, "mac build", got[1].Description)

	want := map[string]any{"payload": map[string]any{
		"max-run-time": 600,
		"command":      []any{"run-task", "--", "make", "all"},
		"cwd":          "src",
		"env":          map[string]any{"JOBS": "4", "DEBUG": "true"},
	}}
	if diff := cmp.Diff(want, got[2].Definition); diff != "" {
		t.Errorf("definition mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, got[2].Run)
	assert.Equal(t, []any{"sh", "-c", "make docs"}, got[3].Definition["payload"].(map[string]any)["command"])
}

func TestRunTransform_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		raw  *task.RawTask
		msg  string
	}{
		{name: "anonymous", raw: &task.RawTask{}, msg: "neither a name nor a label"},
		{name: "unknown using", raw: &task.RawTask{Name: "a", Run: map[string]any{"using": "docker", "command": "x"}}, msg: "invalid run section"},
		{name: "no command", raw: &task.RawTask{Name: "a", Run: map[string]any{}}, msg: "invalid run section"},
		{name: "unknown key", raw: &task.RawTask{Name: "a", Run: map[string]any{"command": "x", "image": "y"}}, msg: "image"},
		{name: "command is a mapping", raw: &task.RawTask{Name: "a", Run: map[string]any{"command": map[string]any{"sh": "x"}}}, msg: "command"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := apply(t, transform.RunTransform, newConfig(), tc.raw)
			require.ErrorContains(t, err, tc.msg)
		})
	}
}

func TestTaskTransform(t *testing.T) {
	tc := newConfig()
	tc.Params.BuildDate = 1700000000

	got, err := apply(t, transform.TaskTransform, tc,
		&task.RawTask{
			Name:        "linux",
			Label:       "build-linux",
			Description: "build for linux",
			Definition:  map[string]any{"worker-type": "b-linux"},
		},
		&task.RawTask{
			Name:       "mac",
			Label:      "build-mac",
			Definition: map[string]any{"priority": "high", "metadata": map[string]any{"owner": "release"}},
		},
	)
	require.NoError(t, err)

	assert.Equal(t, "build", got[0].Attributes["kind"])
	want := map[string]any{
		"worker-type": "linux-large",
		"provisioner": "builders",
		"priority":    "low",
		"metadata": map[string]any{
			"name":         "build-linux",
			"description":  "build for linux",
			"trust-domain": "ci",
			"created":      int64(1700000000),
		},
	}
	if diff := cmp.Diff(want, got[0].Definition); diff != "" {
		t.Errorf("definition mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "high", got[1].Definition["priority"])
	assert.Equal(t, "release", got[1].Definition["metadata"].(map[string]any)["owner"])
}

func TestTaskTransform_Invalid(t *testing.T) {
	_, err := apply(t, transform.TaskTransform, newConfig(), &task.RawTask{Name: "a"})
	require.ErrorContains(t, err, "has no label")

	_, err = apply(t, transform.TaskTransform, newConfig(), &task.RawTask{Label: "a", Extra: map[string]any{"zeta": 1, "alpha": 2}})
	require.ErrorContains(t, err, "unknown keys: alpha, zeta")

	_, err = apply(t, transform.TaskTransform, newConfig(), &task.RawTask{Label: "a", Run: map[string]any{}})
	require.ErrorContains(t, err, "still has a run section")
}

func TestFromDepsTransform(t *testing.T) {
	tc := newConfig()
	tc.KindDependenciesTasks = []*task.Task{
		{Kind: "fetch", Label: "fetch-src", Attributes: map[string]any{"platform": "any"}},
		{Kind: "toolchain", Label: "toolchain-linux", Attributes: map[string]any{"platform": "linux"}},
		{Kind: "toolchain", Label: "toolchain-mac", Attributes: map[string]any{"platform": "mac"}},
	}

	t.Run("all kind dependencies", func(t *testing.T) {
		got, err := apply(t, transform.FromDepsTransform, tc, &task.RawTask{Name: "tmpl"})
		require.NoError(t, err)
		var names []string
		for _, r := range got {
			names = append(names, r.Name)
		}
		assert.Equal(t, []string{"src", "linux", "mac"}, names)
		assert.Equal(t, map[string]string{"toolchain": "toolchain-linux"}, got[1].Dependencies)
		assert.Empty(t, got[1].Label)
	})

	t.Run("filtered", func(t *testing.T) {
		got, err := apply(t, transform.FromDepsTransform, tc, &task.RawTask{
			Name:       "tmpl",
			Attributes: map[string]any{"tier": 1},
			Extra: map[string]any{"from-deps": map[string]any{
				"kinds":           []any{"toolchain"},
				"with-attributes": map[string]any{"platform": []any{"linux"}},
				"copy-attributes": true,
			}},
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "linux", got[0].Name)
		assert.Equal(t, map[string]any{"platform": "linux", "tier": 1}, got[0].Attributes)
		assert.Nil(t, got[0].Extra)
	})

	t.Run("single attribute value", func(t *testing.T) {
		withTier := newConfig()
		withTier.KindDependenciesTasks = []*task.Task{
			{Kind: "toolchain", Label: "toolchain-linux", Attributes: map[string]any{"tier": 1}},
			{Kind: "toolchain", Label: "toolchain-mac", Attributes: map[string]any{"tier": 2}},
		}
		withTier.KindConfig.KindDependencies = []string{"toolchain"}

		got, err := apply(t, transform.FromDepsTransform, withTier, &task.RawTask{
			Name:  "tmpl",
			Extra: map[string]any{"from-deps": map[string]any{"with-attributes": map[string]any{"tier": "1"}}},
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "linux", got[0].Name)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := apply(t, transform.FromDepsTransform, tc, &task.RawTask{
			Name:  "tmpl",
			Extra: map[string]any{"from-deps": map[string]any{"kind": []any{"build"}}},
		})
		require.ErrorContains(t, err, "invalid from-deps section")
	})

	t.Run("kind outside dependencies", func(t *testing.T) {
		_, err := apply(t, transform.FromDepsTransform, tc, &task.RawTask{
			Name:  "tmpl",
			Extra: map[string]any{"from-deps": map[string]any{"kinds": []any{"docs"}}},
		})
		require.ErrorContains(t, err, `"docs" is not a kind dependency`)
	})
}

func TestBuiltinPipeline(t *testing.T) {
	p, err := transform.Pipeline(transform.NewRegistry(), []string{"run", "task"})
	require.NoError(t, err)

	got, err := apply(t, p, newConfig(), &task.RawTask{Name: "linux", Run: map[string]any{"command": []any{"make"}}})
	require.NoError(t, err)
	require.Len(t, got, 1)

	frozen, err := got[0].Freeze("build")
	require.NoError(t, err)
	assert.Equal(t, "build-linux", frozen.Label)
	assert.Equal(t, "build", frozen.Attributes["kind"])
	assert.Equal(t, []any{"run-task", "--", "make"}, frozen.Definition["payload"].(map[string]any)["command"])
}
