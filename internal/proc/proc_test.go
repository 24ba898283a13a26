//go:build unix

package proc

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestExecutor_CapturesBothStreams(t *testing.T) {
	var e Executor
	res, err := e.Run(context.Background(), Spec{
		Command: "sh",
		Args:    []string{"-c", "echo to-stdout; echo to-stderr 1>&2"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d", res.ExitCode)
	}
	if res.Stdout != "to-stdout\n" {
		t.Errorf("stdout = %q", res.Stdout)
	}
	if res.Stderr != "to-stderr\n" {
		t.Errorf("stderr = %q", res.Stderr)
	}
	if !strings.Contains(res.Combined(), "to-stdout") || !strings.Contains(res.Combined(), "to-stderr") {
		t.Errorf("Combined = %q", res.Combined())
	}
}

func TestExecutor_NonZeroExitIsData(t *testing.T) {
	var e Executor
	res, err := e.Run(context.Background(), Spec{
		Command: "sh",
		Args:    []string{"-c", "exit 3"},
	})
	if err != nil {
		t.Fatalf("non-zero exit should not be an error, got %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}
}

func TestExecutor_StartFailure(t *testing.T) {
	var e Executor
	_, err := e.Run(context.Background(), Spec{Command: "definitely-not-a-command-xyz"})
	if err == nil {
		t.Fatal("want start error")
	}
}

func TestExecutor_TimeoutKillsProcess(t *testing.T) {
	var e Executor
	start := time.Now()
	res, err := e.Run(context.Background(), Spec{
		Command: "sh",
		Args:    []string{"-c", "sleep 30"},
		Timeout: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("timeout should not be an error, got %v", err)
	}
	if !res.TimedOut {
		t.Error("TimedOut not set")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("kill took %v, process not reaped promptly", elapsed)
	}
}

func TestExecutor_TimeoutKeepsPartialOutput(t *testing.T) {
	var e Executor
	res, err := e.Run(context.Background(), Spec{
		Command: "sh",
		Args:    []string{"-c", "echo before; sleep 30"},
		Timeout: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(res.Stdout, "before") {
		t.Errorf("partial output lost: %q", res.Stdout)
	}
}

func TestExecutor_ContextCancel(t *testing.T) {
	var e Executor
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := e.Run(ctx, Spec{
		Command: "sh",
		Args:    []string{"-c", "sleep 30"},
	})
	if err == nil {
		t.Fatal("want context error after cancel")
	}
}

func TestExecutor_TruncatesOutput(t *testing.T) {
	var e Executor
	res, err := e.Run(context.Background(), Spec{
		Command:        "sh",
		Args:           []string{"-c", "i=0; while [ $i -lt 100 ]; do echo 0123456789; i=$((i+1)); done"},
		MaxOutputBytes: 64,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(res.Stdout, truncationNote) {
		t.Error("truncation note missing")
	}
	if len(res.Stdout) > 64+len(truncationNote)+2 {
		t.Errorf("stdout len = %d, cap not enforced", len(res.Stdout))
	}
}

func TestExecutor_OnLineStreams(t *testing.T) {
	var mu sync.Mutex
	lines := map[string][]string{}

	var e Executor
	_, err := e.Run(context.Background(), Spec{
		Command: "sh",
		Args:    []string{"-c", "echo one; echo two 1>&2"},
		OnLine: func(stream, line string) {
			mu.Lock()
			lines[stream] = append(lines[stream], line)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(lines["stdout"]) != 1 || lines["stdout"][0] != "one" {
		t.Errorf("stdout lines = %v", lines["stdout"])
	}
	if len(lines["stderr"]) != 1 || lines["stderr"][0] != "two" {
		t.Errorf("stderr lines = %v", lines["stderr"])
	}
}

func TestExecutor_RunsInDir(t *testing.T) {
	dir := t.TempDir()
	// pwd reports the physical path; resolve symlinks (macOS /var -> /private/var).
	want, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatalf("EvalSymlinks: %v", err)
	}

	var e Executor
	res, err := e.Run(context.Background(), Spec{
		Command: "pwd",
		Dir:     dir,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != want {
		t.Errorf("pwd = %q, want %q", strings.TrimSpace(res.Stdout), want)
	}
}

func TestExecutor_ExtraEnv(t *testing.T) {
	var e Executor
	res, err := e.Run(context.Background(), Spec{
		Command: "sh",
		Args:    []string{"-c", "echo $REVIEW_MARKER"},
		Env:     []string{"REVIEW_MARKER=marker-42"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "marker-42" {
		t.Errorf("env not passed: %q", res.Stdout)
	}
}
