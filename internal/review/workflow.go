package review

import (
	"time"

	"github.com/dshills/reviewflow/internal/flow"
	"github.com/dshills/reviewflow/internal/flow/emit"
	"github.com/dshills/reviewflow/internal/flow/store"
	"github.com/dshills/reviewflow/internal/llm"
	"github.com/dshills/reviewflow/internal/perf"
	"github.com/dshills/reviewflow/internal/report"
	"github.com/dshills/reviewflow/internal/scanner"
	"github.com/dshills/reviewflow/internal/testrun"
)

// DefaultMaxSteps bounds a review run. The longest path through the graph is
// six nodes; the headroom guards against a future routing mistake looping.
const DefaultMaxSteps = 12

// WorkflowConfig assembles one review workflow.
type WorkflowConfig struct {
	Scanner   *scanner.Scanner
	Completer llm.Completer

	// Store persists state after every step. nil uses an in-memory store.
	Store store.Store[JobState]

	Emitter emit.Emitter
	Metrics *flow.PrometheusMetrics

	// OutputDir receives the rendered reports and test scripts.
	OutputDir string

	// Workers caps the review pool. Zero sizes it from the host.
	Workers int

	// Replans is how many corrected attempts the planner gets.
	Replans int

	// FocusAreas steer the reviewers, e.g. "error handling".
	FocusAreas []string

	// MaxCodeBytes caps the source sent to one reviewer.
	MaxCodeBytes int

	// NodeTimeout bounds each workflow step. Zero means unlimited.
	NodeTimeout time.Duration

	// TestTimeout bounds each test command.
	TestTimeout time.Duration

	// OutputCapBytes caps captured output per test or profile stream.
	// Zero uses the process executor default.
	OutputCapBytes int

	// ProfileTimeout bounds the measured program run.
	ProfileTimeout time.Duration

	// OnProfileLine streams the measured program's output.
	OnProfileLine func(stream, line string)

	// Reviewer overrides the LLM-backed task reviewer, mainly for tests.
	Reviewer TaskReviewer

	// Profiler overrides the default profiler, mainly for tests.
	Profiler *perf.Profiler
}

// NewWorkflow wires the review graph:
//
//	analyze-structure -> plan-tasks -> dispatch -> run-tests
//	run-tests -> perf-analysis (when the job asks for it) -> report
//	run-tests -> report (otherwise)
func NewWorkflow(cfg WorkflowConfig) (*flow.Engine[JobState], error) {
	st := cfg.Store
	if st == nil {
		st = store.NewMemStore[JobState]()
	}

	eng := flow.New(ReduceJobState, st, cfg.Emitter,
		flow.WithMaxSteps(DefaultMaxSteps),
		flow.WithDefaultNodeTimeout(cfg.NodeTimeout),
		flow.WithMetrics(cfg.Metrics),
	)

	reviewer := cfg.Reviewer
	if reviewer == nil {
		reviewer = &TaskWorker{
			Scanner:      cfg.Scanner,
			Completer:    cfg.Completer,
			FocusAreas:   cfg.FocusAreas,
			MaxCodeBytes: cfg.MaxCodeBytes,
		}
	}

	var err error
	add := func(id string, node flow.Node[JobState]) {
		if err == nil {
			err = eng.Add(id, node)
		}
	}
	connect := func(from, to string, when flow.Predicate[JobState]) {
		if err == nil {
			err = eng.Connect(from, to, when)
		}
	}

	add(NodeAnalyzeStructure, &AnalyzeStructureNode{
		Scanner:   cfg.Scanner,
		Completer: cfg.Completer,
		Emitter:   cfg.Emitter,
	})
	add(NodePlanTasks, &PlanTasksNode{
		Completer: cfg.Completer,
		Emitter:   cfg.Emitter,
		Replans:   cfg.Replans,
	})
	add(NodeDispatch, &DispatchNode{
		Reviewer: reviewer,
		Emitter:  cfg.Emitter,
		Metrics:  cfg.Metrics,
		Workers:  cfg.Workers,
	})
	add(NodeRunTests, &RunTestsNode{
		Runner: &testrun.Runner{
			Timeout:        cfg.TestTimeout,
			MaxOutputBytes: cfg.OutputCapBytes,
		},
		Completer: cfg.Completer,
		Emitter:   cfg.Emitter,
		Metrics:   cfg.Metrics,
	})
	add(NodePerf, &PerfNode{
		Scanner:        cfg.Scanner,
		Completer:      cfg.Completer,
		Emitter:        cfg.Emitter,
		Metrics:        cfg.Metrics,
		ProfileTimeout: cfg.ProfileTimeout,
		OutputCapBytes: cfg.OutputCapBytes,
		OnProfileLine:  cfg.OnProfileLine,
		Profiler:       cfg.Profiler,
	})
	add(NodeReport, &ReportNode{
		Writer:  report.NewWriter(cfg.OutputDir),
		Emitter: cfg.Emitter,
	})

	connect(NodeAnalyzeStructure, NodePlanTasks, nil)
	connect(NodePlanTasks, NodeDispatch, nil)
	connect(NodeDispatch, NodeRunTests, nil)
	connect(NodeRunTests, NodePerf, func(s JobState) bool { return s.Job.Perf })
	connect(NodeRunTests, NodeReport, nil)
	connect(NodePerf, NodeReport, nil)

	if err == nil {
		err = eng.StartAt(NodeAnalyzeStructure)
	}
	if err != nil {
		return nil, err
	}
	return eng, nil
}
