package review

import (
	"context"
	"time"

	"github.com/dshills/reviewflow/internal/flow"
	"github.com/dshills/reviewflow/internal/flow/emit"
	"github.com/dshills/reviewflow/internal/llm"
	"github.com/dshills/reviewflow/internal/perf"
	"github.com/dshills/reviewflow/internal/scanner"
)

// PerfNode runs the performance sub-pipeline as a single step of the review
// graph. The sub-pipeline is its own engine with its own run ID so its node
// lifecycle shows up in the event stream without colliding with the review
// run's steps.
//
// Sub-pipeline failure never fails the review: the report still renders, with
// a failure notice in place of the analysis.
type PerfNode struct {
	Scanner   *scanner.Scanner
	Completer llm.Completer
	Emitter   emit.Emitter
	Metrics   *flow.PrometheusMetrics

	// ProfileTimeout bounds the measured program run.
	ProfileTimeout time.Duration

	// OutputCapBytes caps the measured program's captured output.
	OutputCapBytes int

	// OnProfileLine streams the measured program's output.
	OnProfileLine func(stream, line string)

	// Profiler overrides the default profiler, mainly for tests.
	Profiler *perf.Profiler
}

func (n *PerfNode) Run(ctx context.Context, state JobState) flow.NodeResult[JobState] {
	job := state.Job

	cfg := perf.Config{
		RunID:       job.RunID + "-perf",
		ProjectPath: job.ProjectPath,
		Language:    state.Structure.PrimaryLanguage,
		Profile:     job.Profile,
		Exec: perf.ExecSpec{
			Path: job.ExecPath,
			Args: job.ExecArgs,
			Dir:  job.ExecCwd,
		},
		Scanner:        n.Scanner,
		Completer:      n.Completer,
		Emitter:        n.Emitter,
		Metrics:        n.Metrics,
		ProfileTimeout: n.ProfileTimeout,
		OutputCapBytes: n.OutputCapBytes,
		OnProfileLine:  n.OnProfileLine,
		Profiler:       n.Profiler,
	}

	perfState, err := perf.Run(ctx, cfg)
	if ctx.Err() != nil {
		return flow.NodeResult[JobState]{Err: ctx.Err()}
	}
	if err != nil {
		failed := perf.State{
			ProjectPath:   job.ProjectPath,
			Language:      cfg.Language,
			FailureNotice: err.Error(),
		}
		n.emit(job.RunID, "perf_failed", map[string]interface{}{"error": err.Error()})
		return flow.NodeResult[JobState]{Delta: JobState{
			Performance: &failed,
			Warnings:    []string{"performance analysis failed: " + err.Error()},
		}}
	}

	n.emit(job.RunID, "perf_done", map[string]interface{}{
		"functions": len(perfState.CodeUnits),
		"hotspots":  len(perfState.Hotspots),
		"risks":     len(perfState.MemoryRisks),
		"profiled":  perfState.Dynamic != nil,
	})
	return flow.NodeResult[JobState]{Delta: JobState{Performance: &perfState}}
}

func (n *PerfNode) emit(runID, msg string, meta map[string]interface{}) {
	if n.Emitter == nil {
		return
	}
	n.Emitter.Emit(emit.Event{RunID: runID, NodeID: NodePerf, Msg: msg, Meta: meta})
}
