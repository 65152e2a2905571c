package testutil

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/taskgraph/internal/config"
	"github.com/vk/taskgraph/internal/ctxlog"
	"github.com/vk/taskgraph/internal/generator"
	"github.com/vk/taskgraph/internal/hcl"
	"github.com/vk/taskgraph/internal/kind"
	"github.com/vk/taskgraph/internal/optimize"
	"github.com/vk/taskgraph/internal/target"
	"github.com/vk/taskgraph/internal/taskgraph"
	"github.com/vk/taskgraph/internal/yaml"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// TestMethod is the target tasks method MakeGenerator registers.
const TestMethod = "test_method"

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// WriteFiles writes files, keyed by slash-separated relative path, under a
// fresh temporary directory and returns that directory.
func WriteFiles(t testing.TB, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

// LogContext returns a context carrying a debug logger that writes to the
// returned buffer. With TASKGRAPH_TEST_LOGS=true the output is dumped when
// the test ends.
func LogContext(t testing.TB) (context.Context, *SafeBuffer) {
	t.Helper()
	buf := &SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	if os.Getenv("TASKGRAPH_TEST_LOGS") == "true" {
		t.Cleanup(func() { t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), buf.String()) })
	}
	return ctxlog.WithLogger(context.Background(), logger), buf
}

// FakeKindSpec describes one kind served by the fake loader.
type FakeKindSpec struct {
	Name         string
	Deps         []string
	TaskDefaults map[string]any
}

// GeneratorSpec configures MakeGenerator.
type GeneratorSpec struct {
	// Targets is what the test_method selector returns.
	Targets []string
	// Kinds defaults to a single kind named "_fake".
	Kinds []FakeKindSpec
	// Params is a decoded parameters file overlaid on the test defaults.
	Params map[string]any
	Tracer trace.Tracer
	Meter  metric.Meter
}

// GeneratorHarness bundles a generator with the fakes behind it.
type GeneratorHarness struct {
	Generator *generator.TaskGraphGenerator
	Fake      *FakeKinds
	Ctx       context.Context
	Logs      *SafeBuffer
}

// MakeGenerator builds a generator over fake kinds, the fake optimization
// strategies and a selector returning spec.Targets. Task ids are seeded so
// they are stable across runs.
func MakeGenerator(t testing.TB, spec GeneratorSpec) *GeneratorHarness {
	t.Helper()

	kinds := spec.Kinds
	if len(kinds) == 0 {
		kinds = []FakeKindSpec{{Name: "_fake"}}
	}
	gc := &config.GraphConfig{Root: "/root", TrustDomain: "test", TaskPriority: "low"}
	model := &config.Model{Root: "/root", GraphConfig: gc, Kinds: make(map[string]*config.KindDefinition, len(kinds))}
	for _, k := range kinds {
		model.Kinds[k.Name] = &config.KindDefinition{
			Name:   k.Name,
			Path:   filepath.Join("/root", config.KindsDir, k.Name),
			Config: FakeKindConfig(k.Deps, k.TaskDefaults),
		}
	}

	raw := map[string]any{
		"target_tasks_method": TestMethod,
		"project":             "taskgraph",
	}
	for k, v := range spec.Params {
		raw[k] = v
	}
	params, err := config.ParametersFromMap(raw)
	require.NoError(t, err)

	fake := &FakeKinds{}
	reg := kind.DefaultRegistries()
	reg.Loaders.Register(FakeLoaderName, fake.Loader())

	selectors := target.NewRegistry()
	targets := append([]string(nil), spec.Targets...)
	selectors.Register(TestMethod, func(context.Context, *taskgraph.TaskGraph, *config.Parameters, *config.GraphConfig) ([]string, error) {
		return targets, nil
	})

	ctx, logs := LogContext(t)
	g := generator.New(generator.Options{
		Model:      model,
		Params:     params,
		Registries: reg,
		Strategies: FakeStrategies(),
		Selectors:  selectors,
		IDs:        optimize.NewSeededIDs(t.Name()),
		Workers:    2,
		Tracer:     spec.Tracer,
		Meter:      spec.Meter,
	})
	return &GeneratorHarness{Generator: g, Fake: fake, Ctx: ctx, Logs: logs}
}

// Decoders returns the YAML and HCL decoders the command line uses.
func Decoders() []config.Decoder {
	return []config.Decoder{yaml.NewDecoder(), hcl.NewDecoder()}
}
