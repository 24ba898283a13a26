// Package testrun executes a job's user-supplied tests: explicit commands
// and scripts discovered in a test directory. Outcomes are classified by
// exit code; a failing test is report data, never fatal to the job.
package testrun

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dshills/reviewflow/internal/proc"
)

// DefaultTimeout bounds a single test command.
const DefaultTimeout = 120 * time.Second

// Outcome classifies one test execution.
type Outcome string

const (
	// OutcomePass: the command exited 0.
	OutcomePass Outcome = "pass"
	// OutcomeFail: the command ran and exited non-zero.
	OutcomeFail Outcome = "fail"
	// OutcomeError: the command timed out or never started.
	OutcomeError Outcome = "error"
)

// Result records one test execution.
type Result struct {
	Name     string
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
	Outcome  Outcome
}

// Runner executes tests through the process executor.
type Runner struct {
	Exec proc.Executor

	// Timeout applies per command. Zero uses DefaultTimeout.
	Timeout time.Duration

	// MaxOutputBytes caps captured output per stream. Zero uses the
	// executor default.
	MaxOutputBytes int

	// OnResult, when set, is called after each test completes. Drives
	// progress events.
	OnResult func(Result)
}

// RunCommands executes explicit test commands through `sh -c`, from the
// project root, in submission order. Stops early only if ctx is done.
func (r *Runner) RunCommands(ctx context.Context, projectPath string, cmds []string) []Result {
	results := make([]Result, 0, len(cmds))
	for i, cmd := range cmds {
		if ctx.Err() != nil {
			break
		}
		name := fmt.Sprintf("command-%d", i+1)
		results = append(results, r.runOne(ctx, name, cmd, projectPath))
	}
	return results
}

// RunDir discovers test scripts under dir (resolved against projectPath
// when relative) and runs them in name-sorted order. A missing directory
// is an error; individual script failures are not.
func (r *Runner) RunDir(ctx context.Context, projectPath, dir string) ([]Result, error) {
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(projectPath, dir)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("test directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("test directory is not a directory: %s", dir)
	}

	specs, err := discover(dir)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(specs))
	for _, spec := range specs {
		if ctx.Err() != nil {
			break
		}
		results = append(results, r.runOne(ctx, spec.name, spec.command, spec.dir))
	}
	return results, nil
}

func (r *Runner) runOne(ctx context.Context, name, command, dir string) Result {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	res, err := r.Exec.Run(ctx, proc.Spec{
		Command:        "sh",
		Args:           []string{"-c", command},
		Dir:            dir,
		Timeout:        timeout,
		MaxOutputBytes: r.MaxOutputBytes,
	})

	out := Result{
		Name:     name,
		Command:  command,
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		Duration: res.Duration,
		TimedOut: res.TimedOut,
	}
	switch {
	case err != nil || res.TimedOut:
		out.Outcome = OutcomeError
		if err != nil && out.Stderr == "" {
			out.Stderr = err.Error()
		}
	case res.ExitCode == 0:
		out.Outcome = OutcomePass
	default:
		out.Outcome = OutcomeFail
	}

	if r.OnResult != nil {
		r.OnResult(out)
	}
	return out
}

// testSpec is one discovered script and how to run it.
type testSpec struct {
	name    string // path relative to the test directory
	command string
	dir     string // working directory for the command
}

// discover walks the test directory and maps each script to a runner by
// extension: .sh via bash, .py via python3, _test.go via go test in the
// file's directory, test*.c compiled with gcc and executed.
func discover(testDir string) ([]testSpec, error) {
	var specs []testSpec

	err := filepath.Walk(testDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}
		name := info.Name()
		rel, relErr := filepath.Rel(testDir, path)
		if relErr != nil {
			return nil
		}

		switch {
		case strings.HasSuffix(name, ".sh"):
			specs = append(specs, testSpec{
				name:    rel,
				command: "bash " + path,
				dir:     testDir,
			})
		case strings.HasSuffix(name, ".py"):
			specs = append(specs, testSpec{
				name:    rel,
				command: "python3 " + path,
				dir:     testDir,
			})
		case strings.HasSuffix(name, "_test.go"):
			// go test resolves the package from the working directory.
			specs = append(specs, testSpec{
				name:    rel,
				command: "go test -v -run .",
				dir:     filepath.Dir(path),
			})
		case strings.HasSuffix(name, ".c") && strings.Contains(strings.ToLower(name), "test"):
			exe := filepath.Join(os.TempDir(), "reviewflow-"+strings.TrimSuffix(name, ".c"))
			specs = append(specs, testSpec{
				name:    rel,
				command: fmt.Sprintf("gcc -o %s %s && %s", exe, path, exe),
				dir:     testDir,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan test directory: %w", err)
	}

	sort.Slice(specs, func(i, j int) bool { return specs[i].name < specs[j].name })
	return specs, nil
}
