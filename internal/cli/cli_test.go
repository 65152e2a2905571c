package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/taskgraph/internal/testutil"
)

func fixtureRoot(t *testing.T) string {
	t.Helper()
	return testutil.WriteFiles(t, map[string]string{
		"config.hcl": `trust-domain = "test"`,
		"kinds/docker-image/kind.yml": `
tasks:
  base:
    run:
      command: docker build .
`,
		"kinds/build/kind.yml": `
kind-dependencies: [docker-image]
task-defaults:
  dependencies:
    image: docker-image-base
tasks:
  linux:
    run:
      command: make
`,
	})
}

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := Execute(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestExecute_Full(t *testing.T) {
	root := fixtureRoot(t)
	code, out, errOut := execute(t, "full", "--root", root)
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "build-linux\n  image -> docker-image-base\ndocker-image-base\n", out)
}

func TestExecute_JSON(t *testing.T) {
	root := fixtureRoot(t)
	code, out, errOut := execute(t, "target-graph", "--root", root, "--json", "--log-level", "debug")
	require.Equal(t, 0, code, errOut)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Contains(t, got, "build-linux")
	assert.Contains(t, got, "docker-image-base")
	assert.Contains(t, errOut, "level=DEBUG")
}

func TestExecute_Telemetry(t *testing.T) {
	root := fixtureRoot(t)
	code, out, errOut := execute(t, "optimized", "--root", root, "--seed", "s",
		"--trace-exporter", "stdout", "--metric-exporter", "stdout")
	require.Equal(t, 0, code, errOut)

	assert.NotContains(t, out, "generator.", "telemetry stays off the artifact stream")
	assert.Contains(t, errOut, `"generator.optimized_task_graph"`)
	assert.Contains(t, errOut, `"taskgraph.generator.stage.duration"`)
}

func TestExecute_LoadKind(t *testing.T) {
	root := fixtureRoot(t)
	code, out, errOut := execute(t, "load-kind", "build", "--root", root)
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "linux build-linux\n", out)
}

func TestExecute_TargetKind(t *testing.T) {
	root := fixtureRoot(t)
	code, out, errOut := execute(t, "full", "--root", root, "--target-kind", "docker-image")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "docker-image-base\n", out)
}

func TestExecute_ExitCodes(t *testing.T) {
	root := fixtureRoot(t)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"unknown flag", []string{"full", "--bogus"}, ExitUsage},
		{"bad log format", []string{"full", "--root", root, "--log-format", "xml"}, ExitUsage},
		{"bad trace exporter", []string{"full", "--root", root, "--trace-exporter", "otlp"}, ExitUsage},
		{"extra argument", []string{"full", "extra", "--root", root}, ExitUsage},
		{"load-kind without kind", []string{"load-kind", "--root", root}, ExitUsage},
		{"unknown command", []string{"bogus"}, ExitUsage},
		{"missing root", []string{"full", "--root", root + "/missing"}, ExitGeneration},
		{"unknown kind", []string{"load-kind", "nope", "--root", root}, ExitGeneration},
		{"help", []string{"--help"}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, _, errOut := execute(t, tc.args...)
			assert.Equal(t, tc.want, code, errOut)
			if tc.want != 0 {
				assert.Contains(t, errOut, "Error: ")
			}
		})
	}
}
