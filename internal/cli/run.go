package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/shlex"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/reviewflow/internal/config"
	"github.com/dshills/reviewflow/internal/flow"
	"github.com/dshills/reviewflow/internal/flow/emit"
	"github.com/dshills/reviewflow/internal/flow/store"
	"github.com/dshills/reviewflow/internal/llm"
	"github.com/dshills/reviewflow/internal/progress"
	"github.com/dshills/reviewflow/internal/report"
	"github.com/dshills/reviewflow/internal/review"
	"github.com/dshills/reviewflow/internal/scanner"
)

func run(ctx context.Context, projectPath string) error {
	if flags.port < 1 || flags.port > 65535 {
		return fmt.Errorf("invalid --port %d", flags.port)
	}
	execArgs, err := execArguments(flags.execArgsStr, flags.execArgs)
	if err != nil {
		return err
	}

	cfg, err := config.LoadOrDefault(flags.configPath)
	if err != nil {
		return err
	}

	runID := uuid.New().String()
	outputDir := resolveOutputDir(flags.output, cfg.Output.Dir, runID)

	sc, err := scanner.New(projectPath)
	if err != nil {
		return err
	}
	sc.IncludePatterns = cfg.Review.IncludePatterns
	sc.ExcludePatterns = cfg.Review.ExcludePatterns
	if cfg.Review.MaxFileKB > 0 {
		sc.MaxFileBytes = int64(cfg.Review.MaxFileKB) * 1024
	}

	registry := prometheus.NewRegistry()
	metrics := flow.NewPrometheusMetrics(registry)

	completer, err := buildCompleter(ctx, cfg, metrics, runID)
	if err != nil {
		return err
	}

	var emitters []emit.Emitter
	if !flags.quiet {
		emitters = append(emitters, progress.New(os.Stdout))
	}
	var buffered *emit.BufferedEmitter
	if flags.serve {
		buffered = emit.NewBufferedEmitter()
		emitters = append(emitters, buffered)
	}
	emitter := emit.NewMulti(emitters...)

	st, closeStore, err := buildStore(cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	engine, err := review.NewWorkflow(review.WorkflowConfig{
		Scanner:        sc,
		Completer:      completer,
		Store:          st,
		Emitter:        emitter,
		Metrics:        metrics,
		OutputDir:      outputDir,
		Workers:        cfg.Review.Workers,
		Replans:        cfg.Review.Replans,
		FocusAreas:     cfg.Review.FocusAreas,
		MaxCodeBytes:   cfg.Review.MaxFileKB * 1024,
		NodeTimeout:    cfg.Limits.NodeTimeout(),
		TestTimeout:    cfg.Limits.TestTimeout(),
		ProfileTimeout: cfg.Limits.ProfileTimeout(),
		OutputCapBytes: cfg.Limits.OutputCapKB * 1024,
	})
	if err != nil {
		return err
	}

	job := review.Job{
		RunID:        runID,
		ProjectPath:  sc.Root(),
		TestCommands: flags.tests,
		TestDir:      flags.testDir,
		Perf:         flags.perf || flags.profile,
		Profile:      flags.profile,
		ExecPath:     flags.execPath,
		ExecArgs:     execArgs,
		ExecCwd:      flags.execCwd,
		OutputDir:    outputDir,
	}

	final, err := engine.Run(ctx, runID, review.JobState{Job: job})
	if err != nil {
		return err
	}

	if err := engine.SaveCheckpoint(ctx, runID, "job-complete-"+runID); err != nil {
		fmt.Fprintf(os.Stderr, "warning: checkpoint not saved: %v\n", err)
	}

	printSummary(os.Stdout, final, completer)

	if flags.serve {
		srv := &report.Server{Dir: outputDir, Events: buffered, Registry: registry}
		fmt.Printf("Serving reports at http://localhost:%d (interrupt to stop)\n", flags.port)
		return srv.ListenAndServe(ctx, fmt.Sprintf(":%d", flags.port))
	}
	return nil
}

// execArguments merges the two argument flags: the shell-quoted string is
// split first, then the repeatable --exec-arg values are appended in order.
func execArguments(argStr string, repeated []string) ([]string, error) {
	var out []string
	if argStr != "" {
		words, err := shlex.Split(argStr)
		if err != nil {
			return nil, fmt.Errorf("parse --exec-args: %w", err)
		}
		out = append(out, words...)
	}
	return append(out, repeated...), nil
}

func resolveOutputDir(flagDir, cfgDir, runID string) string {
	switch {
	case flagDir != "":
		return flagDir
	case cfgDir != "":
		return cfgDir
	default:
		return filepath.Join("reviews", runID)
	}
}

// buildCompleter assembles the provider stack: concrete provider, retry
// wrapper feeding the retry counter, usage tracker on the outside.
func buildCompleter(ctx context.Context, cfg config.Config, metrics *flow.PrometheusMetrics, runID string) (*llm.UsageTracker, error) {
	base, err := llm.NewProvider(ctx, llm.ProviderSpec{
		Name:     cfg.Provider.Name,
		Model:    cfg.Provider.Model,
		APIKey:   cfg.Provider.APIKey(),
		Endpoint: cfg.Provider.Endpoint,
	})
	if err != nil {
		return nil, err
	}

	retrying := llm.NewRetrying(base, llm.RetryConfig{
		MaxAttempts: cfg.Limits.LLMRetries,
		CallTimeout: cfg.Limits.LLMTimeout(),
		OnRetry: func(attempt int, err error) {
			metrics.RecordLLMRetry(runID, base.Name())
		},
	})
	return llm.NewUsageTracker(retrying), nil
}

func buildStore(cfg config.Store) (store.Store[review.JobState], func(), error) {
	noop := func() {}
	switch cfg.Driver {
	case "sqlite":
		s, err := store.NewSQLiteStore[review.JobState](cfg.DSN)
		if err != nil {
			return nil, noop, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, func() { s.Close() }, nil
	case "mysql":
		s, err := store.NewMySQLStore[review.JobState](cfg.DSN)
		if err != nil {
			return nil, noop, fmt.Errorf("open mysql store: %w", err)
		}
		return s, func() { s.Close() }, nil
	default:
		return store.NewMemStore[review.JobState](), noop, nil
	}
}

func printSummary(w io.Writer, final review.JobState, usage *llm.UsageTracker) {
	findings := len(final.AllFindings())
	failed := final.FailedTasks()

	fmt.Fprintf(w, "Review complete: %d task(s), %d finding(s)", len(final.Tasks), findings)
	if len(failed) > 0 {
		fmt.Fprintf(w, ", %d task(s) failed", len(failed))
	}
	fmt.Fprintln(w)

	if len(final.Warnings) > 0 {
		fmt.Fprintf(w, "%d warning(s); see the report for details\n", len(final.Warnings))
	}
	fmt.Fprintf(w, "llm usage %s\n", usage.Stats())
	if len(final.Reports) > 0 {
		fmt.Fprintf(w, "Reports in %s\n", final.Job.OutputDir)
	}
}
