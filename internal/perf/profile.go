package perf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/reviewflow/internal/proc"
)

// DefaultProfileTimeout bounds one measured run of the project binary.
const DefaultProfileTimeout = 60 * time.Second

const perfStatEvents = "cycles,instructions,cache-misses,cache-references"

// rawCap bounds the raw profiler output kept in state.
const rawCap = 4000

var (
	perfElapsedRE   = regexp.MustCompile(`([\d.]+)\s+seconds time elapsed`)
	perfCacheMissRE = regexp.MustCompile(`([\d,]+)\s+cache-misses[^#\n]*#\s*([\d.]+)\s*%`)
	perfInstrRE     = regexp.MustCompile(`([\d,]+)\s+instructions`)

	timeWallRE    = regexp.MustCompile(`Elapsed \(wall clock\) time \([^)]*\):\s*([\d:.]+)`)
	timeUserRE    = regexp.MustCompile(`User time \(seconds\):\s*([\d.]+)`)
	timeSysRE     = regexp.MustCompile(`System time \(seconds\):\s*([\d.]+)`)
	timeCPURE     = regexp.MustCompile(`Percent of CPU this job got:\s*(\d+)%`)
	timeRSSRE     = regexp.MustCompile(`Maximum resident set size \(kbytes\):\s*(\d+)`)
	timeVolCSRE   = regexp.MustCompile(`Voluntary context switches:\s*(\d+)`)
	timeInvolCSRE = regexp.MustCompile(`Involuntary context switches:\s*(\d+)`)
	timeMajPFRE   = regexp.MustCompile(`Major \(requiring I/O\) page faults:\s*(\d+)`)
	timeMinPFRE   = regexp.MustCompile(`Minor \(reclaiming a frame\) page faults:\s*(\d+)`)
	timeFSInRE    = regexp.MustCompile(`File system inputs:\s*(\d+)`)
	timeFSOutRE   = regexp.MustCompile(`File system outputs:\s*(\d+)`)
)

// Profiler measures one run of the project binary. `perf stat` is tried
// first; when it is unavailable or yields nothing parseable the run falls
// back to `/usr/bin/time -v`. Both print their statistics on stderr.
type Profiler struct {
	Exec proc.Executor

	// Timeout kills the measured run. Zero uses DefaultProfileTimeout.
	Timeout time.Duration

	// MaxOutputBytes caps the measured program's captured output per
	// stream. Zero uses the executor default.
	MaxOutputBytes int

	// OnLine streams the measured program's output, for live progress.
	OnLine func(stream, line string)
}

// Run resolves the executable and measures it once.
func (p *Profiler) Run(ctx context.Context, projectPath string, spec ExecSpec) (*DynamicMetrics, error) {
	exe, runDir, err := ResolveExecutable(projectPath, spec)
	if err != nil {
		return nil, err
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProfileTimeout
	}

	res, err := p.Exec.Run(ctx, proc.Spec{
		Command:        "perf",
		Args:           append([]string{"stat", "-e", perfStatEvents, exe}, spec.Args...),
		Dir:            runDir,
		Timeout:        timeout,
		MaxOutputBytes: p.MaxOutputBytes,
		OnLine:         p.OnLine,
	})
	if err == nil {
		if res.TimedOut {
			return nil, &ProfilingError{Reason: fmt.Sprintf("perf run exceeded %s", timeout), TimedOut: true}
		}
		if dm := parsePerfStat(res.Stderr); dm != nil {
			dm.ExitCode = res.ExitCode
			dm.Raw = truncateRaw(res.Stderr)
			return dm, nil
		}
	}

	res, err = p.Exec.Run(ctx, proc.Spec{
		Command:        "/usr/bin/time",
		Args:           append([]string{"-v", exe}, spec.Args...),
		Dir:            runDir,
		Timeout:        timeout,
		MaxOutputBytes: p.MaxOutputBytes,
		OnLine:         p.OnLine,
	})
	if err != nil {
		return nil, &ProfilingError{Reason: "no usable profiling tool (tried perf, /usr/bin/time)", Cause: err}
	}
	if res.TimedOut {
		return nil, &ProfilingError{Reason: fmt.Sprintf("measured run exceeded %s", timeout), TimedOut: true}
	}
	dm := parseTimeV(res.Stderr)
	if dm == nil {
		return nil, &ProfilingError{Reason: "unparseable /usr/bin/time output"}
	}
	dm.ExitCode = res.ExitCode
	dm.Raw = truncateRaw(res.Stderr)
	return dm, nil
}

// ResolveExecutable picks the binary to profile and the directory to run it
// from. An explicit spec path resolves against the run directory and must
// name an executable file; an empty path probes conventional build output
// locations under the project root.
func ResolveExecutable(projectPath string, spec ExecSpec) (exe, runDir string, err error) {
	runDir = spec.Dir
	if runDir == "" {
		runDir = projectPath
	}

	if spec.Path != "" {
		exe = spec.Path
		if !filepath.IsAbs(exe) {
			exe = filepath.Join(runDir, exe)
		}
		if !isExecutable(exe) {
			return "", "", &ProfilingError{Reason: fmt.Sprintf("executable missing or not executable: %s", exe)}
		}
		return exe, runDir, nil
	}

	for _, cand := range []string{
		filepath.Join(projectPath, "build", "project_hw"),
		filepath.Join(projectPath, "build", "main"),
		filepath.Join(projectPath, "a.out"),
		filepath.Join(projectPath, "main"),
	} {
		if isExecutable(cand) {
			return cand, runDir, nil
		}
	}

	// os.ReadDir sorts by name, so the probe is deterministic.
	entries, readErr := os.ReadDir(filepath.Join(projectPath, "build"))
	if readErr == nil {
		for _, entry := range entries {
			if entry.IsDir() || skipBuildEntry(entry.Name()) {
				continue
			}
			path := filepath.Join(projectPath, "build", entry.Name())
			if isExecutable(path) {
				return path, runDir, nil
			}
		}
	}

	return "", "", &ProfilingError{Reason: "no executable found under " + projectPath}
}

func skipBuildEntry(name string) bool {
	return strings.HasSuffix(name, ".cmake") ||
		strings.HasSuffix(name, ".txt") ||
		strings.HasSuffix(name, ".sh")
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Mode()&0o111 != 0
}

// parsePerfStat pulls metrics from `perf stat` stderr. Returns nil when the
// output carries no elapsed time, meaning perf did not actually run the
// program.
func parsePerfStat(output string) *DynamicMetrics {
	m := perfElapsedRE.FindStringSubmatch(output)
	if m == nil {
		return nil
	}
	dm := &DynamicMetrics{Tool: "perf stat"}
	dm.ElapsedSeconds, _ = strconv.ParseFloat(m[1], 64)

	if m := perfCacheMissRE.FindStringSubmatch(output); m != nil {
		dm.CacheMissRate, _ = strconv.ParseFloat(m[2], 64)
	}
	if m := perfInstrRE.FindStringSubmatch(output); m != nil {
		dm.Instructions = parseCount(m[1])
	}
	return dm
}

// parseTimeV pulls metrics from `/usr/bin/time -v` stderr. Returns nil when
// the output carries no wall clock line.
func parseTimeV(output string) *DynamicMetrics {
	m := timeWallRE.FindStringSubmatch(output)
	if m == nil {
		return nil
	}
	dm := &DynamicMetrics{Tool: "/usr/bin/time -v"}
	dm.ElapsedSeconds = parseClock(m[1])

	if m := timeUserRE.FindStringSubmatch(output); m != nil {
		dm.UserSeconds, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := timeSysRE.FindStringSubmatch(output); m != nil {
		dm.SystemSeconds, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := timeCPURE.FindStringSubmatch(output); m != nil {
		dm.CPUPercent, _ = strconv.Atoi(m[1])
	}
	if m := timeRSSRE.FindStringSubmatch(output); m != nil {
		dm.MaxRSSKB = parseCount(m[1])
	}
	if m := timeVolCSRE.FindStringSubmatch(output); m != nil {
		dm.VoluntaryCtxSwitches = parseCount(m[1])
	}
	if m := timeInvolCSRE.FindStringSubmatch(output); m != nil {
		dm.InvoluntaryCtxSwitches = parseCount(m[1])
	}
	if m := timeMajPFRE.FindStringSubmatch(output); m != nil {
		dm.MajorPageFaults = parseCount(m[1])
	}
	if m := timeMinPFRE.FindStringSubmatch(output); m != nil {
		dm.MinorPageFaults = parseCount(m[1])
	}
	if m := timeFSInRE.FindStringSubmatch(output); m != nil {
		dm.FSInputs = parseCount(m[1])
	}
	if m := timeFSOutRE.FindStringSubmatch(output); m != nil {
		dm.FSOutputs = parseCount(m[1])
	}
	return dm
}

// parseClock converts GNU time's h:mm:ss or m:ss.cc wall clock to seconds.
func parseClock(s string) float64 {
	parts := strings.Split(s, ":")
	total := 0.0
	for _, part := range parts {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return 0
		}
		total = total*60 + v
	}
	return total
}

func parseCount(s string) int64 {
	v, _ := strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64)
	return v
}

func truncateRaw(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > rawCap {
		return s[:rawCap] + "\n... (truncated)"
	}
	return s
}
