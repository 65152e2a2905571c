package generator_test

import (
	"context"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/taskgraph/internal/config"
	"github.com/vk/taskgraph/internal/generator"
	"github.com/vk/taskgraph/internal/graph"
	"github.com/vk/taskgraph/internal/kind"
	"github.com/vk/taskgraph/internal/optimize"
	"github.com/vk/taskgraph/internal/taskgraph"
	"github.com/vk/taskgraph/internal/testutil"
)

func mustGraph(t *testing.T, nodes []string, edges ...graph.Edge) *graph.Graph {
	t.Helper()
	g, err := graph.New(nodes, edges)
	require.NoError(t, err)
	return g
}

func optimizedLabels(tg *taskgraph.TaskGraph) []string {
	var labels []string
	for _, id := range tg.Keys() {
		labels = append(labels, tg.Tasks[id].Label)
	}
	slices.Sort(labels)
	return labels
}

func TestKindOrdering(t *testing.T) {
	h := testutil.MakeGenerator(t, testutil.GeneratorSpec{
		Kinds: []testutil.FakeKindSpec{
			{Name: "_fake3", Deps: []string{"_fake2", "_fake1"}},
			{Name: "_fake2", Deps: []string{"_fake1"}},
			{Name: "_fake1"},
		},
	})
	_, err := h.Generator.FullTaskSet(h.Ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"_fake1", "_fake2", "_fake3"}, h.Fake.Loaded())
}

func TestFullTaskSet(t *testing.T) {
	h := testutil.MakeGenerator(t, testutil.GeneratorSpec{})
	set, err := h.Generator.FullTaskSet(h.Ctx)
	require.NoError(t, err)

	want := mustGraph(t, []string{"_fake-t-0", "_fake-t-1", "_fake-t-2"})
	assert.True(t, want.Equal(set.Graph), "got %s", set.Graph)
	assert.Equal(t, []string{"_fake-t-0", "_fake-t-1", "_fake-t-2"}, set.Keys())
}

func TestFullTaskGraph(t *testing.T) {
	h := testutil.MakeGenerator(t, testutil.GeneratorSpec{})
	full, err := h.Generator.FullTaskGraph(h.Ctx)
	require.NoError(t, err)

	want := mustGraph(t, []string{"_fake-t-0", "_fake-t-1", "_fake-t-2"},
		graph.Edge{From: "_fake-t-1", To: "_fake-t-0", Name: "prev"},
		graph.Edge{From: "_fake-t-2", To: "_fake-t-1", Name: "prev"},
	)
	assert.True(t, want.Equal(full.Graph), "got %s", full.Graph)
	assert.Equal(t, []string{"_fake-t-0", "_fake-t-1", "_fake-t-2"}, full.Keys())
}

func TestTargetTaskSet(t *testing.T) {
	h := testutil.MakeGenerator(t, testutil.GeneratorSpec{Targets: []string{"_fake-t-1"}})
	set, err := h.Generator.TargetTaskSet(h.Ctx)
	require.NoError(t, err)

	assert.True(t, mustGraph(t, []string{"_fake-t-1"}).Equal(set.Graph), "got %s", set.Graph)
	assert.Equal(t, []string{"_fake-t-1"}, set.Keys())
}

func TestTargetTaskGraph(t *testing.T) {
	h := testutil.MakeGenerator(t, testutil.GeneratorSpec{Targets: []string{"_fake-t-1"}})
	tg, err := h.Generator.TargetTaskGraph(h.Ctx)
	require.NoError(t, err)

	want := mustGraph(t, []string{"_fake-t-0", "_fake-t-1"},
		graph.Edge{From: "_fake-t-1", To: "_fake-t-0", Name: "prev"})
	assert.True(t, want.Equal(tg.Graph), "got %s", tg.Graph)
	assert.Equal(t, []string{"_fake-t-0", "_fake-t-1"}, tg.Keys())
}

func TestAlwaysTargetTasks(t *testing.T) {
	targets := []string{"_fake-t-0", "_fake-t-1", "_ignore-t-0", "_ignore-t-1"}
	alwaysEven := map[string]any{
		"attributes":   map[string]any{"always_target": true},
		"optimization": map[string]any{"even": nil},
	}

	tests := []struct {
		name          string
		kinds         []testutil.FakeKindSpec
		params        map[string]any
		wantTarget    []string
		wantOptimized []string
	}{
		{
			name: "enabled",
			kinds: []testutil.FakeKindSpec{
				{Name: "_fake", TaskDefaults: map[string]any{"optimization": map[string]any{"odd": nil}}},
				{Name: "_ignore", TaskDefaults: alwaysEven},
			},
			params:        map[string]any{"optimize_target_tasks": false},
			wantTarget:    []string{"_fake-t-0", "_fake-t-1", "_ignore-t-0", "_ignore-t-1", "_ignore-t-2"},
			wantOptimized: []string{"_fake-t-0", "_fake-t-1", "_ignore-t-0", "_ignore-t-1"},
		},
		{
			name: "disabled",
			kinds: []testutil.FakeKindSpec{
				{Name: "_fake", TaskDefaults: map[string]any{"optimization": map[string]any{"odd": nil}}},
				{Name: "_ignore", TaskDefaults: alwaysEven},
			},
			params:        map[string]any{"optimize_target_tasks": false, "enable_always_target": false},
			wantTarget:    []string{"_fake-t-0", "_fake-t-1", "_ignore-t-0", "_ignore-t-1"},
			wantOptimized: []string{"_fake-t-0", "_fake-t-1", "_ignore-t-0", "_ignore-t-1"},
		},
		{
			name: "restricted to kinds",
			kinds: []testutil.FakeKindSpec{
				{Name: "_fake", TaskDefaults: map[string]any{
					"attributes":   map[string]any{"always_target": true},
					"optimization": map[string]any{"odd": nil},
				}},
				{Name: "_ignore", TaskDefaults: alwaysEven},
			},
			params:        map[string]any{"optimize_target_tasks": false, "enable_always_target": []any{"_fake"}},
			wantTarget:    []string{"_fake-t-0", "_fake-t-1", "_fake-t-2", "_ignore-t-0", "_ignore-t-1"},
			wantOptimized: []string{"_fake-t-0", "_fake-t-1", "_fake-t-2", "_ignore-t-0", "_ignore-t-1"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := testutil.MakeGenerator(t, testutil.GeneratorSpec{Targets: targets, Kinds: tc.kinds, Params: tc.params})

			set, err := h.Generator.TargetTaskSet(h.Ctx)
			require.NoError(t, err)
			assert.Equal(t, targets, set.Keys())

			tg, err := h.Generator.TargetTaskGraph(h.Ctx)
			require.NoError(t, err)
			assert.Equal(t, tc.wantTarget, tg.Keys())

			opt, err := h.Generator.OptimizedTaskGraph(h.Ctx)
			require.NoError(t, err)
			if diff := cmp.Diff(tc.wantOptimized, optimizedLabels(opt)); diff != "" {
				t.Errorf("optimized labels mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOptimizedTaskGraph(t *testing.T) {
	h := testutil.MakeGenerator(t, testutil.GeneratorSpec{Targets: []string{"_fake-t-2"}})

	_, err := h.Generator.LabelToTaskID()
	require.ErrorIs(t, err, generator.ErrNotReady)

	opt, err := h.Generator.OptimizedTaskGraph(h.Ctx)
	require.NoError(t, err)
	tid, err := h.Generator.LabelToTaskID()
	require.NoError(t, err)

	want := mustGraph(t, []string{tid["_fake-t-0"], tid["_fake-t-1"], tid["_fake-t-2"]},
		graph.Edge{From: tid["_fake-t-1"], To: tid["_fake-t-0"], Name: "prev"},
		graph.Edge{From: tid["_fake-t-2"], To: tid["_fake-t-1"], Name: "prev"},
	)
	assert.True(t, want.Equal(opt.Graph), "got %s", opt.Graph)

	for label, id := range tid {
		assert.Equal(t, id, opt.Tasks[id].TaskID)
		assert.Equal(t, label, opt.Tasks[id].Label)
	}
	assert.Equal(t, []any{tid["_fake-t-1"]}, opt.Tasks[tid["_fake-t-2"]].Definition["dependencies"])

	full, err := h.Generator.FullTaskSet(h.Ctx)
	require.NoError(t, err)
	assert.Empty(t, full.Tasks["_fake-t-2"].TaskID, "optimization must not touch loaded tasks")
}

func TestStagesAreCached(t *testing.T) {
	h := testutil.MakeGenerator(t, testutil.GeneratorSpec{Targets: []string{"_fake-t-0"}})

	first, err := h.Generator.FullTaskGraph(h.Ctx)
	require.NoError(t, err)
	_, err = h.Generator.OptimizedTaskGraph(h.Ctx)
	require.NoError(t, err)
	second, err := h.Generator.FullTaskGraph(h.Ctx)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, []string{"_fake"}, h.Fake.Loaded(), "kinds load once")
}

func TestErrors(t *testing.T) {
	t.Run("unknown target", func(t *testing.T) {
		h := testutil.MakeGenerator(t, testutil.GeneratorSpec{Targets: []string{"_fake-t-9"}})
		_, err := h.Generator.TargetTaskSet(h.Ctx)
		require.ErrorIs(t, err, generator.ErrUnknownTarget)
		assert.Contains(t, err.Error(), "_fake-t-9")
	})

	t.Run("dangling dependency", func(t *testing.T) {
		h := testutil.MakeGenerator(t, testutil.GeneratorSpec{Kinds: []testutil.FakeKindSpec{{
			Name:         "_fake",
			TaskDefaults: map[string]any{"dependencies": map[string]any{"missing": "_nope-t-0"}},
		}}})
		_, err := h.Generator.FullTaskGraph(h.Ctx)
		require.ErrorIs(t, err, generator.ErrDanglingDependency)
		assert.Contains(t, err.Error(), "_nope-t-0")
	})

	t.Run("unknown strategy", func(t *testing.T) {
		h := testutil.MakeGenerator(t, testutil.GeneratorSpec{
			Targets: []string{"_fake-t-0"},
			Kinds: []testutil.FakeKindSpec{{
				Name:         "_fake",
				TaskDefaults: map[string]any{"optimization": map[string]any{"bogus": nil}},
			}},
		})
		_, err := h.Generator.OptimizedTaskGraph(h.Ctx)
		require.ErrorIs(t, err, optimize.ErrUnknownStrategy)
		assert.Contains(t, err.Error(), "bogus")
	})

	t.Run("kind cycle", func(t *testing.T) {
		h := testutil.MakeGenerator(t, testutil.GeneratorSpec{Kinds: []testutil.FakeKindSpec{
			{Name: "a", Deps: []string{"b"}},
			{Name: "b", Deps: []string{"a"}},
		}})
		_, err := h.Generator.KindGraph(h.Ctx)
		require.ErrorIs(t, err, graph.ErrCyclicGraph)
	})

	t.Run("failure is sticky", func(t *testing.T) {
		h := testutil.MakeGenerator(t, testutil.GeneratorSpec{Targets: []string{"_fake-t-9"}})
		_, err := h.Generator.OptimizedTaskGraph(h.Ctx)
		require.ErrorIs(t, err, generator.ErrUnknownTarget)

		_, err = h.Generator.FullTaskSet(h.Ctx)
		assert.ErrorIs(t, err, generator.ErrUnknownTarget)
		_, err = h.Generator.LabelToTaskID()
		assert.ErrorIs(t, err, generator.ErrUnknownTarget)
	})

	t.Run("cancelled", func(t *testing.T) {
		h := testutil.MakeGenerator(t, testutil.GeneratorSpec{})
		ctx, cancel := context.WithCancel(h.Ctx)
		cancel()
		_, err := h.Generator.FullTaskSet(ctx)
		require.ErrorIs(t, err, context.Canceled)

		_, err = h.Generator.FullTaskSet(h.Ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestTargetKinds(t *testing.T) {
	h := testutil.MakeGenerator(t, testutil.GeneratorSpec{
		Kinds: []testutil.FakeKindSpec{
			{Name: "_fake1"},
			{Name: "_fake2", Deps: []string{"_fake1"}},
			{Name: "_other"},
		},
		Params: map[string]any{"target-kinds": []any{"_fake2"}},
	})
	set, err := h.Generator.FullTaskSet(h.Ctx)
	require.NoError(t, err)
	assert.Len(t, set.Tasks, 6)
	assert.Equal(t, []string{"_fake1", "_fake2"}, h.Fake.Loaded())
}

func TestLoadTasksForKind(t *testing.T) {
	fake := &testutil.FakeKinds{}
	reg := kind.DefaultRegistries()
	reg.Loaders.Register(testutil.FakeLoaderName, fake.Loader())

	model := &config.Model{
		Root:        "/root",
		GraphConfig: &config.GraphConfig{TrustDomain: "test"},
		Kinds: map[string]*config.KindDefinition{
			"_example-kind": {Name: "_example-kind", Config: testutil.FakeKindConfig(nil, nil)},
			"docker-image":  {Name: "docker-image", Config: testutil.FakeKindConfig(nil, nil)},
		},
	}
	ctx, _ := testutil.LogContext(t)
	tasks, err := generator.LoadTasksForKind(ctx, generator.Options{Model: model, Registries: reg}, "_example-kind")
	require.NoError(t, err)

	require.Contains(t, tasks, "t-1")
	assert.Equal(t, "_example-kind-t-1", tasks["t-1"].Label)
	assert.Len(t, tasks, 3)
	assert.Equal(t, []string{"_example-kind"}, fake.Loaded())
}

func TestLoadFromDisk(t *testing.T) {
	root := testutil.WriteFiles(t, map[string]string{
		"config.yml": "trust-domain: test\n",
		"kinds/build/kind.yml": `
tasks:
  linux:
    run:
      command: make
    attributes:
      run_on_projects: [all]
  docs:
    run:
      command: make docs
    attributes:
      run_on_projects: [other]
`,
		"kinds/test/kind.yml": `
kind-dependencies: [build]
transforms: [from-deps]
tasks:
  check:
    from-deps:
      kinds: [build]
      copy-attributes: true
    run:
      command: make check
`,
	})

	ctx, _ := testutil.LogContext(t)
	params := config.DefaultParameters()
	params.Project = "taskgraph"
	g := generator.New(generator.Options{Root: root, Decoders: testutil.Decoders(), Params: params})

	full, err := g.FullTaskGraph(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"build-docs", "build-linux", "test-docs", "test-linux"}, full.Keys())

	tg, err := g.TargetTaskGraph(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"build-linux", "test-linux"}, tg.Keys())
	assert.Equal(t, map[string]string{"build": "build-linux"}, tg.Tasks["test-linux"].Dependencies)

	gc, err := g.GraphConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "test", gc.TrustDomain)
}

func TestLoadFromDisk_UnquotedLevel(t *testing.T) {
	root := testutil.WriteFiles(t, map[string]string{
		"config.yml": "trust-domain: test\n",
		"kinds/build/kind.yml": `
tasks:
  linux:
    run:
      command: make
    attributes:
      run_on_levels: [3]
  docs:
    run:
      command: make docs
    attributes:
      run_on_levels: [1, 2]
`,
	})

	ctx, _ := testutil.LogContext(t)
	g := generator.New(generator.Options{Root: root, Decoders: testutil.Decoders(), Params: config.DefaultParameters()})

	set, err := g.TargetTaskSet(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"build-linux"}, set.Keys())
}
