// Package review implements the multi-stage code review job: structure
// analysis, task planning, concurrent per-task review, test execution, an
// optional performance pass, and report generation. The stages run as nodes
// on a flow.Engine over a shared JobState merged by ReduceJobState.
package review

import (
	"sort"
	"time"

	"github.com/dshills/reviewflow/internal/perf"
	"github.com/dshills/reviewflow/internal/scanner"
	"github.com/dshills/reviewflow/internal/testrun"
)

// Node IDs of the review workflow, in transition order.
const (
	NodeAnalyzeStructure = "analyze-structure"
	NodePlanTasks        = "plan-tasks"
	NodeDispatch         = "dispatch"
	NodeRunTests         = "run-tests"
	NodePerf             = "perf-analysis"
	NodeReport           = "report"
)

// Job holds the immutable parameters of one review run, fixed before the
// first node executes.
type Job struct {
	RunID       string `json:"run_id"`
	ProjectPath string `json:"project_path"`

	// TestCommands run through `sh -c` after review; TestDir is scanned
	// for executable test scripts.
	TestCommands []string `json:"test_commands,omitempty"`
	TestDir      string   `json:"test_dir,omitempty"`

	// Perf enables the performance sub-pipeline; Profile additionally
	// runs the project binary under a profiler.
	Perf    bool `json:"perf,omitempty"`
	Profile bool `json:"profile,omitempty"`

	// ExecPath/ExecArgs/ExecCwd describe the binary the profiler runs.
	// An empty ExecPath means probe conventional build locations.
	ExecPath string   `json:"exec_path,omitempty"`
	ExecArgs []string `json:"exec_args,omitempty"`
	ExecCwd  string   `json:"exec_cwd,omitempty"`

	// OutputDir receives the generated report documents.
	OutputDir string `json:"output_dir"`
}

// StructureDoc is the project overview produced by the structure stage.
type StructureDoc struct {
	Tree            string `json:"tree,omitempty"`
	Narrative       string `json:"narrative,omitempty"`
	FileCount       int    `json:"file_count,omitempty"`
	PrimaryLanguage string `json:"primary_language,omitempty"`
}

// Task is one unit of review work: a named, disjoint slice of the project's
// files. IDs are unique positive integers and double as dispatch order.
type Task struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	Files       []string `json:"files"`
	Description string   `json:"description,omitempty"`
	Language    string   `json:"language,omitempty"`
}

// Finding is a single reviewer observation tied to a file location.
type Finding struct {
	File        string `json:"file"`
	Line        int    `json:"line,omitempty"`
	Severity    string `json:"severity"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion,omitempty"`
}

// TestArtifact is a test script a worker generated for its task.
type TestArtifact struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// WorkerStatus is the terminal state of one task.
type WorkerStatus string

const (
	StatusOK     WorkerStatus = "ok"
	StatusFailed WorkerStatus = "failed"
)

// WorkerResult is the terminal record of one task. A failed worker still
// produces a result so the merge barrier always sees len(tasks) entries.
type WorkerResult struct {
	TaskID         int            `json:"task_id"`
	Status         WorkerStatus   `json:"status"`
	Findings       []Finding      `json:"findings,omitempty"`
	GeneratedTests []TestArtifact `json:"generated_tests,omitempty"`
	FailReason     string         `json:"fail_reason,omitempty"`
	Duration       time.Duration  `json:"duration,omitempty"`
}

// JobState is the shared state threaded through the review workflow. Nodes
// return deltas; ReduceJobState merges them.
type JobState struct {
	Job Job `json:"job"`

	Readme    string         `json:"readme,omitempty"`
	Inventory []scanner.File `json:"inventory,omitempty"`
	Structure StructureDoc   `json:"structure,omitempty"`

	Tasks   []Task               `json:"tasks,omitempty"`
	Results map[int]WorkerResult `json:"results,omitempty"`

	TestResults  []testrun.Result `json:"test_results,omitempty"`
	TestAnalysis string           `json:"test_analysis,omitempty"`

	Performance *perf.State `json:"performance,omitempty"`

	Reports  []string `json:"reports,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ReduceJobState merges a node delta into the accumulated state. Scalar and
// slice fields are write-once (first non-zero value wins for scalars, a
// non-empty slice replaces an empty one); Results merges by task ID with
// first-write-wins so re-delivered worker results are idempotent; Warnings
// and Reports accumulate.
func ReduceJobState(prev, delta JobState) JobState {
	if delta.Job.ProjectPath != "" {
		prev.Job = delta.Job
	}
	if delta.Readme != "" {
		prev.Readme = delta.Readme
	}
	if len(delta.Inventory) > 0 {
		prev.Inventory = delta.Inventory
	}
	if delta.Structure != (StructureDoc{}) {
		prev.Structure = delta.Structure
	}
	if len(delta.Tasks) > 0 {
		prev.Tasks = delta.Tasks
	}
	if len(delta.Results) > 0 {
		if prev.Results == nil {
			prev.Results = make(map[int]WorkerResult, len(delta.Results))
		}
		for id, res := range delta.Results {
			if _, seen := prev.Results[id]; !seen {
				prev.Results[id] = res
			}
		}
	}
	if len(delta.TestResults) > 0 {
		prev.TestResults = append(prev.TestResults, delta.TestResults...)
	}
	if delta.TestAnalysis != "" {
		prev.TestAnalysis = delta.TestAnalysis
	}
	if delta.Performance != nil {
		prev.Performance = delta.Performance
	}
	prev.Reports = append(prev.Reports, delta.Reports...)
	prev.Warnings = append(prev.Warnings, delta.Warnings...)
	return prev
}

// FailedTasks returns the IDs of tasks whose result is failed, ascending.
func (s JobState) FailedTasks() []int {
	var ids []int
	for id, res := range s.Results {
		if res.Status == StatusFailed {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// AllFindings collects findings from successful tasks in ascending task
// order.
func (s JobState) AllFindings() []Finding {
	var out []Finding
	for _, id := range s.taskOrder() {
		res := s.Results[id]
		if res.Status == StatusOK {
			out = append(out, res.Findings...)
		}
	}
	return out
}

func (s JobState) taskOrder() []int {
	ids := make([]int, 0, len(s.Results))
	for id := range s.Results {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
