package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/vk/taskgraph/internal/app"
)

// Exit codes.
const (
	ExitGeneration = 1
	ExitUsage      = 2
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code int
	Err  error
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ExitError) Unwrap() error {
	return e.Err
}

func usageError(err error) error {
	return &ExitError{Code: ExitUsage, Err: err}
}

type flags struct {
	root        string
	parameters  string
	json        bool
	logLevel    string
	logFormat   string
	workers     int
	targetKinds []string
	seed        string
	timeout     time.Duration
	traces      string
	metrics     string
}

// NewRootCommand returns the taskgraph command. Artifacts go to outW;
// logs and errors go to errW.
func NewRootCommand(outW, errW io.Writer) *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:   "taskgraph",
		Short: "Generate CI task graphs",
		Long: `taskgraph loads the kinds under a configuration root, builds the full
task graph, narrows it to the target tasks and optimizes the result.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(outW)
	root.SetErr(errW)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&f.root, "root", "taskcluster", "Directory holding config.yml and kinds/.")
	pf.StringVarP(&f.parameters, "parameters", "p", "", "Parameters file (YAML or HCL). Defaults apply when empty.")
	pf.BoolVar(&f.json, "json", false, "Write artifacts as JSON.")
	pf.StringVar(&f.logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	pf.StringVar(&f.logFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")
	pf.IntVar(&f.workers, "workers", 0, "Kinds loaded in parallel. 0 uses one per CPU.")
	pf.StringSliceVar(&f.targetKinds, "target-kind", nil, "Only load these kinds and their dependencies.")
	pf.StringVar(&f.seed, "seed", "", "Derive task ids from this seed instead of generating random ones.")
	pf.DurationVar(&f.timeout, "timeout", 0, "Abort generation after this long. 0 disables the limit.")
	pf.StringVar(&f.traces, "trace-exporter", "none", "Export generation spans. Options: 'none' or 'stdout' (written to stderr).")
	pf.StringVar(&f.metrics, "metric-exporter", "none", "Export generation metrics. Options: 'none' or 'stdout' (written to stderr).")

	for _, c := range []struct {
		artifact app.Artifact
		short    string
	}{
		{app.Full, "Show the full task graph"},
		{app.Target, "Show the target task set"},
		{app.TargetGraph, "Show the target task graph"},
		{app.Optimized, "Show the optimized task graph"},
		{app.Kinds, "Show the kinds in load order"},
	} {
		artifact := c.artifact
		root.AddCommand(&cobra.Command{
			Use:   string(artifact),
			Short: c.short,
			Args:  noArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return f.run(cmd, errW, func(ctx context.Context, a *app.App) error {
					return a.Show(ctx, artifact)
				})
			},
		})
	}

	root.AddCommand(&cobra.Command{
		Use:   "load-kind KIND",
		Short: "Load one kind and show its tasks",
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(1)(cmd, args); err != nil {
				return usageError(err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return f.run(cmd, errW, func(ctx context.Context, a *app.App) error {
				return a.LoadKind(ctx, args[0])
			})
		},
	})
	return root
}

func noArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		return usageError(err)
	}
	return nil
}

func (f *flags) run(cmd *cobra.Command, errW io.Writer, do func(context.Context, *app.App) error) (err error) {
	cfg, err := app.NewConfig(app.Config{
		Root:           f.root,
		ParametersFile: f.parameters,
		TargetKinds:    f.targetKinds,
		LogFormat:      strings.ToLower(f.logFormat),
		LogLevel:       strings.ToLower(f.logLevel),
		Workers:        f.workers,
		JSON:           f.json,
		Seed:           f.seed,
		TraceExporter:  strings.ToLower(f.traces),
		MetricExporter: strings.ToLower(f.metrics),
	})
	if err != nil {
		return usageError(err)
	}

	ctx := cmd.Context()
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	a, err := app.NewApp(ctx, cmd.OutOrStdout(), errW, cfg)
	if err != nil {
		return &ExitError{Code: ExitGeneration, Err: err}
	}
	defer func() {
		// Flush even when the run timed out.
		if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
			err = &ExitError{Code: ExitGeneration, Err: cerr}
		}
	}()
	if err := do(ctx, a); err != nil {
		return &ExitError{Code: ExitGeneration, Err: err}
	}
	return nil
}

// Execute runs the command line and returns the process exit code. Errors
// are printed to errW.
func Execute(ctx context.Context, args []string, outW, errW io.Writer) int {
	root := NewRootCommand(outW, errW)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	fmt.Fprintf(errW, "Error: %v\n", err)

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	// Anything cobra rejects on its own, such as an unknown command.
	return ExitUsage
}
