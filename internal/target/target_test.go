package target

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/taskgraph/internal/config"
	"github.com/vk/taskgraph/internal/task"
	"github.com/vk/taskgraph/internal/taskgraph"
)

func fullGraph(t *testing.T, attrs map[string]map[string]any) *taskgraph.TaskGraph {
	t.Helper()
	var tasks []*task.Task
	for label, a := range attrs {
		tasks = append(tasks, &task.Task{Kind: "test", Label: label, Attributes: a})
	}
	tg, err := taskgraph.FromTasks(tasks)
	require.NoError(t, err)
	return tg
}

func TestAllAndNothing(t *testing.T) {
	full := fullGraph(t, map[string]map[string]any{"b": nil, "a": nil})
	params := config.DefaultParameters()

	got, err := All(context.Background(), full, params, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	got, err = Nothing(context.Background(), full, params, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLabels(t *testing.T) {
	params := config.DefaultParameters()
	params.TargetTaskLabels = []string{"x", "y"}

	got, err := Labels(context.Background(), fullGraph(t, nil), params, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, got)

	got[0] = "changed"
	assert.Equal(t, "x", params.TargetTaskLabels[0])
}

func TestDefault(t *testing.T) {
	full := fullGraph(t, map[string]map[string]any{
		"plain":        {},
		"all":          {RunOnProjectsAttribute: []any{"all"}},
		"mine":         {RunOnProjectsAttribute: []any{"other", "proj"}},
		"theirs":       {RunOnProjectsAttribute: []any{"other"}},
		"none":         {RunOnProjectsAttribute: []any{}},
		"level-ok":     {RunOnLevelsAttribute: []any{"1", "3"}},
		"level-denied": {RunOnLevelsAttribute: []any{"1"}},
		"level-int":    {RunOnLevelsAttribute: []any{3}},
		"level-float":  {RunOnLevelsAttribute: []any{float64(1)}},
		"typed":        {RunOnProjectsAttribute: []string{"proj"}},
	})
	params := config.DefaultParameters()
	params.Project = "proj"

	got, err := Default(context.Background(), full, params, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"all", "level-int", "level-ok", "mine", "plain", "typed"}, got)
}

func TestDefault_BadAttribute(t *testing.T) {
	full := fullGraph(t, map[string]map[string]any{
		"bad": {RunOnProjectsAttribute: "all"},
	})
	_, err := Default(context.Background(), full, config.DefaultParameters(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `task "bad"`)
}

func TestLookup(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, []string{"all", "default", "labels", "nothing"}, reg.Names())

	s, err := Lookup(reg, "all")
	require.NoError(t, err)
	assert.NotNil(t, s)

	_, err = Lookup(reg, "missing")
	assert.ErrorIs(t, err, ErrUnknownSelector)
}
