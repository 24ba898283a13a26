package perf

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dshills/reviewflow/internal/flow"
	"github.com/dshills/reviewflow/internal/flow/emit"
	"github.com/dshills/reviewflow/internal/flow/store"
	"github.com/dshills/reviewflow/internal/llm"
	"github.com/dshills/reviewflow/internal/scanner"
)

// Config assembles one performance pipeline run.
type Config struct {
	RunID       string
	ProjectPath string

	// Language restricts extraction ("c", "go", "python"); empty means
	// every supported source file.
	Language string

	// Profile enables the dynamic profiler; Exec names the binary.
	Profile bool
	Exec    ExecSpec

	Scanner   *scanner.Scanner
	Completer llm.Completer
	Emitter   emit.Emitter
	Metrics   *flow.PrometheusMetrics

	// ProfileTimeout bounds the measured run. Zero uses
	// DefaultProfileTimeout.
	ProfileTimeout time.Duration

	// OutputCapBytes caps the measured program's captured output per
	// stream. Zero uses the executor default.
	OutputCapBytes int

	// OnProfileLine streams the measured program's output lines.
	OnProfileLine func(stream, line string)

	// Profiler overrides the default profiler, mainly for tests.
	Profiler *Profiler
}

// Run executes the performance pipeline to completion and returns its final
// state. Extraction failure aborts with an ExtractionError; every later
// stage degrades instead of failing.
func Run(ctx context.Context, cfg Config) (State, error) {
	profiler := cfg.Profiler
	if profiler == nil {
		profiler = &Profiler{
			Timeout:        cfg.ProfileTimeout,
			MaxOutputBytes: cfg.OutputCapBytes,
			OnLine:         cfg.OnProfileLine,
		}
	}

	eng := flow.New(Reduce, store.NewMemStore[State](), cfg.Emitter,
		flow.WithMaxSteps(8), flow.WithMetrics(cfg.Metrics))

	if err := eng.Add(NodeExtract, &ExtractNode{Extractor: &Extractor{Scanner: cfg.Scanner}}); err != nil {
		return State{}, err
	}
	analyze := &AnalyzeNode{Profiler: profiler, Metrics: cfg.Metrics, RunID: cfg.RunID}
	if err := eng.Add(NodeAnalyze, analyze); err != nil {
		return State{}, err
	}
	hotspots := flow.NodeFunc[State](func(_ context.Context, s State) flow.NodeResult[State] {
		return flow.NodeResult[State]{Delta: State{Hotspots: DetectHotspots(s.CodeUnits, s.MemoryRisks, s.Dynamic)}}
	})
	if err := eng.Add(NodeHotspots, hotspots); err != nil {
		return State{}, err
	}
	if err := eng.Add(NodeAdvise, &AdviseNode{Completer: cfg.Completer}); err != nil {
		return State{}, err
	}

	for _, edge := range [][2]string{
		{NodeExtract, NodeAnalyze},
		{NodeAnalyze, NodeHotspots},
		{NodeHotspots, NodeAdvise},
	} {
		if err := eng.Connect(edge[0], edge[1], nil); err != nil {
			return State{}, err
		}
	}
	if err := eng.StartAt(NodeExtract); err != nil {
		return State{}, err
	}

	initial := State{
		ProjectPath: cfg.ProjectPath,
		Language:    cfg.Language,
		Profile:     cfg.Profile,
		Exec:        cfg.Exec,
	}
	final, err := eng.Run(ctx, cfg.RunID, initial)
	if err != nil {
		var xerr *ExtractionError
		if errors.As(err, &xerr) {
			return final, xerr
		}
		return final, fmt.Errorf("performance pipeline: %w", err)
	}
	return final, nil
}

// AnalyzeNode runs the static memory analyzer and, when enabled, the
// dynamic profiler concurrently. The two write disjoint fields joined
// before the delta is returned; a profiler failure becomes a warning.
type AnalyzeNode struct {
	Profiler *Profiler
	Metrics  *flow.PrometheusMetrics
	RunID    string
}

// Run implements flow.Node.
func (n *AnalyzeNode) Run(ctx context.Context, state State) flow.NodeResult[State] {
	var (
		wg      sync.WaitGroup
		risks   []MemoryRisk
		dyn     *DynamicMetrics
		profErr error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		risks = AnalyzeMemory(state.CodeUnits, state.Language)
	}()

	if state.Profile {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dyn, profErr = n.Profiler.Run(ctx, state.ProjectPath, state.Exec)
		}()
	}
	wg.Wait()

	delta := State{MemoryRisks: risks, Dynamic: dyn}
	if profErr != nil {
		var perr *ProfilingError
		if errors.As(profErr, &perr) && perr.TimedOut {
			n.Metrics.RecordProcessTimeout(n.RunID, "profile")
		}
		delta.Warnings = append(delta.Warnings, fmt.Sprintf("dynamic profiling skipped: %v", profErr))
	}
	return flow.NodeResult[State]{Delta: delta}
}
