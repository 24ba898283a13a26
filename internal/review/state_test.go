package review

import (
	"reflect"
	"testing"

	"github.com/dshills/reviewflow/internal/perf"
	"github.com/dshills/reviewflow/internal/scanner"
)

func TestReduceJobState_WriteOnceFields(t *testing.T) {
	job := Job{RunID: "r1", ProjectPath: "/p"}

	state := ReduceJobState(JobState{}, JobState{Job: job})
	state = ReduceJobState(state, JobState{
		Readme:    "readme",
		Inventory: []scanner.File{{Path: "main.c"}},
		Structure: StructureDoc{Tree: "main.c", FileCount: 1, PrimaryLanguage: "c"},
	})
	state = ReduceJobState(state, JobState{Tasks: []Task{{ID: 1, Name: "core", Files: []string{"main.c"}}}})

	if state.Job.RunID != "r1" {
		t.Errorf("Job.RunID = %q, want r1", state.Job.RunID)
	}
	if state.Readme != "readme" {
		t.Errorf("Readme = %q", state.Readme)
	}
	if state.Structure.PrimaryLanguage != "c" {
		t.Errorf("PrimaryLanguage = %q", state.Structure.PrimaryLanguage)
	}
	if len(state.Tasks) != 1 || state.Tasks[0].ID != 1 {
		t.Errorf("Tasks = %+v", state.Tasks)
	}

	// An empty delta leaves everything in place.
	unchanged := ReduceJobState(state, JobState{})
	if !reflect.DeepEqual(unchanged.Structure, state.Structure) || unchanged.Readme != state.Readme {
		t.Error("empty delta modified state")
	}
}

func TestReduceJobState_ResultsFirstWriteWins(t *testing.T) {
	first := WorkerResult{TaskID: 1, Status: StatusOK, Findings: []Finding{{File: "a.c", Severity: "high", Description: "x"}}}
	second := WorkerResult{TaskID: 1, Status: StatusFailed, FailReason: "late duplicate"}

	state := ReduceJobState(JobState{}, JobState{Results: map[int]WorkerResult{1: first}})
	state = ReduceJobState(state, JobState{Results: map[int]WorkerResult{1: second, 2: {TaskID: 2, Status: StatusOK}}})

	if state.Results[1].Status != StatusOK {
		t.Errorf("task 1 result overwritten: %+v", state.Results[1])
	}
	if _, ok := state.Results[2]; !ok {
		t.Error("task 2 result missing")
	}
}

func TestReduceJobState_MergeOrderIndependentForDisjointResults(t *testing.T) {
	a := JobState{Results: map[int]WorkerResult{1: {TaskID: 1, Status: StatusOK}}}
	b := JobState{Results: map[int]WorkerResult{2: {TaskID: 2, Status: StatusFailed, FailReason: "x"}}}

	ab := ReduceJobState(ReduceJobState(JobState{}, a), b)
	ba := ReduceJobState(ReduceJobState(JobState{}, b), a)

	if !reflect.DeepEqual(ab.Results, ba.Results) {
		t.Errorf("merge order changed results: %+v vs %+v", ab.Results, ba.Results)
	}
}

func TestReduceJobState_Accumulators(t *testing.T) {
	state := ReduceJobState(JobState{}, JobState{Warnings: []string{"w1"}, Reports: []string{"a.md"}})
	state = ReduceJobState(state, JobState{Warnings: []string{"w2"}, Reports: []string{"b.md"}})

	if !reflect.DeepEqual(state.Warnings, []string{"w1", "w2"}) {
		t.Errorf("Warnings = %v", state.Warnings)
	}
	if !reflect.DeepEqual(state.Reports, []string{"a.md", "b.md"}) {
		t.Errorf("Reports = %v", state.Reports)
	}
}

func TestReduceJobState_Performance(t *testing.T) {
	perfState := &perf.State{ProjectPath: "/p", Language: "c"}
	state := ReduceJobState(JobState{}, JobState{Performance: perfState})
	if state.Performance == nil || state.Performance.Language != "c" {
		t.Errorf("Performance = %+v", state.Performance)
	}
}

func TestFailedTasksAndAllFindings(t *testing.T) {
	state := JobState{Results: map[int]WorkerResult{
		3: {TaskID: 3, Status: StatusOK, Findings: []Finding{{File: "c.c", Severity: "low", Description: "third"}}},
		1: {TaskID: 1, Status: StatusOK, Findings: []Finding{{File: "a.c", Severity: "high", Description: "first"}}},
		2: {TaskID: 2, Status: StatusFailed, FailReason: "x", Findings: []Finding{{File: "b.c", Description: "ignored"}}},
		4: {TaskID: 4, Status: StatusFailed, FailReason: "y"},
	}}

	if got := state.FailedTasks(); !reflect.DeepEqual(got, []int{2, 4}) {
		t.Errorf("FailedTasks() = %v, want [2 4]", got)
	}

	findings := state.AllFindings()
	if len(findings) != 2 {
		t.Fatalf("AllFindings() returned %d findings, want 2", len(findings))
	}
	if findings[0].Description != "first" || findings[1].Description != "third" {
		t.Errorf("AllFindings() order = %q, %q", findings[0].Description, findings[1].Description)
	}
}
