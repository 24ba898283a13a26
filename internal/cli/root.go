// Package cli implements the reviewflow command line: flag parsing, provider
// and store assembly, workflow execution, and the optional report server.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var flags struct {
	tests       []string
	testDir     string
	perf        bool
	profile     bool
	execPath    string
	execArgs    []string
	execArgsStr string
	execCwd     string
	serve       bool
	port        int
	quiet       bool
	configPath  string
	output      string
}

var rootCmd = &cobra.Command{
	Use:   "reviewflow <project-path>",
	Short: "Automated multi-stage code review",
	Long: `Reviewflow reviews a codebase in stages: it maps the project structure,
plans per-module review tasks, fans them out to concurrent LLM reviewers,
runs the project's tests, optionally analyzes performance, and writes
Markdown reports.

Contained failures (a failed review task, a failing test, an unprofilable
binary) end up in the report; only orchestration errors exit non-zero.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), args[0])
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringArrayVarP(&flags.tests, "test", "t", nil, "explicit test command (repeatable)")
	f.StringVar(&flags.testDir, "test-dir", "", "directory whose scripts all run as tests")
	f.BoolVar(&flags.perf, "perf", false, "enable performance analysis (static unless --profile)")
	f.BoolVar(&flags.profile, "profile", false, "profile the project executable (implies --perf)")
	f.StringVar(&flags.execPath, "exec", "", "executable to profile (default: auto-discovered)")
	f.StringArrayVar(&flags.execArgs, "exec-arg", nil, "argument for the profiled executable (repeatable)")
	f.StringVar(&flags.execArgsStr, "exec-args", "", "arguments for the profiled executable as one shell-quoted string")
	f.StringVar(&flags.execCwd, "exec-cwd", "", "working directory for the profiled executable (default: project root)")
	f.BoolVar(&flags.serve, "serve", false, "serve generated reports over HTTP after completion")
	f.IntVar(&flags.port, "port", 8080, "report server port")
	f.BoolVarP(&flags.quiet, "quiet", "q", false, "suppress progress output")
	f.StringVar(&flags.configPath, "config", "", "YAML config file (default "+defaultConfigNote+")")
	f.StringVarP(&flags.output, "output", "o", "", "report output directory (default ./reviews/<run-id>)")
}

const defaultConfigNote = "reviewflow.yaml if present"

// Execute runs the CLI. Interrupts cancel the run context so in-flight
// stages stop and the report server shuts down cleanly.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
