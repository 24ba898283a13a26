// Package proc runs external commands for a review job: test scripts,
// compilers, and the profiler. Commands run in their own process group so
// a timeout kills the whole tree, and captured output is capped so a
// chatty child cannot exhaust memory.
package proc

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// Capture limits.
const (
	// DefaultMaxOutputBytes caps captured output per stream.
	DefaultMaxOutputBytes = 2 << 20 // 2 MiB

	// maxLineLength bounds a single scanned line.
	maxLineLength = 1 << 20

	truncationNote = "... (output truncated)"
)

// Spec describes one command invocation.
type Spec struct {
	Command string
	Args    []string

	// Dir is the working directory. Empty runs in the caller's.
	Dir string

	// Env holds extra KEY=VALUE entries appended to the parent environment.
	Env []string

	// Timeout kills the process group when it fires. Zero means none.
	Timeout time.Duration

	// MaxOutputBytes caps capture per stream. Zero uses the default.
	MaxOutputBytes int

	// OnLine, when set, receives each output line as it is produced, in
	// addition to capture. stream is "stdout" or "stderr". Called from
	// two reader goroutines; the callback must be safe for that.
	OnLine func(stream, line string)
}

// Result reports what happened. A non-zero exit code is data, not an
// error: Run returns an error only when the command could not be started
// or the caller's context was cancelled.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
}

// Combined returns stdout followed by stderr.
func (r Result) Combined() string {
	if r.Stdout == "" {
		return r.Stderr
	}
	if r.Stderr == "" {
		return r.Stdout
	}
	return r.Stdout + r.Stderr
}

// Executor runs commands. The zero value is ready to use.
type Executor struct{}

// Run executes the spec and blocks until the process exits or is killed.
// On timeout the whole process group gets SIGKILL and the partial output
// is returned with TimedOut set.
func (e *Executor) Run(ctx context.Context, spec Spec) (Result, error) {
	start := time.Now()

	runCtx := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	limit := spec.MaxOutputBytes
	if limit <= 0 {
		limit = DefaultMaxOutputBytes
	}

	// Not CommandContext: its kill hits only the direct child, and shell
	// wrappers would leave grandchildren running. The watcher below kills
	// the process group instead.
	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return Result{Duration: time.Since(start)}, fmt.Errorf("start %s: %w", spec.Command, err)
	}

	outBuf := &cappedBuffer{limit: limit}
	errBuf := &cappedBuffer{limit: limit}

	var readers sync.WaitGroup
	readers.Add(2)
	go scanStream(&readers, stdout, outBuf, "stdout", spec.OnLine)
	go scanStream(&readers, stderr, errBuf, "stderr", spec.OnLine)

	var timedOut atomic.Bool
	waitDone := make(chan struct{})
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case <-runCtx.Done():
			if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				timedOut.Store(true)
			}
			if cmd.Process != nil && cmd.ProcessState == nil {
				_ = killProcessGroup(cmd)
			}
		case <-waitDone:
		}
	}()

	// Drain pipes before Wait closes them.
	readers.Wait()
	runErr := cmd.Wait()
	close(waitDone)
	<-watcherDone

	res := Result{
		Stdout:   outBuf.String(),
		Stderr:   errBuf.String(),
		Duration: time.Since(start),
		TimedOut: timedOut.Load(),
	}

	if ctx.Err() != nil {
		return res, ctx.Err()
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			code, ok := getExitCodeFromError(exitErr)
			if !ok {
				code = 1
			}
			res.ExitCode = code
			return res, nil
		}
		return res, fmt.Errorf("wait %s: %w", spec.Command, runErr)
	}
	return res, nil
}

// scanStream reads one pipe line by line into buf. After the scanner
// stops (EOF or an over-long line) it keeps draining so the child never
// blocks on a full pipe.
func scanStream(wg *sync.WaitGroup, r io.Reader, buf *cappedBuffer, stream string, onLine func(string, string)) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	for scanner.Scan() {
		line := scanner.Text()
		buf.writeLine(line)
		if onLine != nil {
			onLine(stream, line)
		}
	}
	_, _ = io.Copy(io.Discard, r)
}

// cappedBuffer collects lines up to a byte limit. Writes come from a
// single scanner goroutine and reads happen after it is joined, so no
// locking is needed.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) writeLine(line string) {
	if b.truncated {
		return
	}
	if b.buf.Len()+len(line)+1 > b.limit {
		b.truncated = true
		return
	}
	b.buf.WriteString(line)
	b.buf.WriteByte('\n')
}

func (b *cappedBuffer) String() string {
	if !b.truncated {
		return b.buf.String()
	}
	return b.buf.String() + truncationNote + "\n"
}
