package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/dshills/reviewflow/internal/flow/emit"
)

// reviewerFunc adapts a function to the TaskReviewer interface for tests.
type reviewerFunc func(ctx context.Context, state JobState, task Task) (WorkerResult, error)

func (f reviewerFunc) Review(ctx context.Context, state JobState, task Task) (WorkerResult, error) {
	return f(ctx, state, task)
}

func dispatchState(taskCount int) JobState {
	tasks := make([]Task, 0, taskCount)
	for i := 1; i <= taskCount; i++ {
		tasks = append(tasks, Task{ID: i, Name: fmt.Sprintf("task-%d", i), Files: []string{fmt.Sprintf("f%d.c", i)}})
	}
	return JobState{Job: Job{RunID: "r1"}, Tasks: tasks}
}

func TestDispatchNode_AllTasksReviewed(t *testing.T) {
	var calls atomic.Int64
	node := &DispatchNode{
		Workers: 2,
		Reviewer: reviewerFunc(func(_ context.Context, _ JobState, task Task) (WorkerResult, error) {
			calls.Add(1)
			return WorkerResult{
				TaskID:   task.ID,
				Status:   StatusOK,
				Findings: []Finding{{File: task.Files[0], Severity: "low", Description: "x"}},
			}, nil
		}),
	}

	res := node.Run(context.Background(), dispatchState(5))
	if res.Err != nil {
		t.Fatalf("Run() error: %v", res.Err)
	}
	if got := calls.Load(); got != 5 {
		t.Errorf("reviewer called %d times, want 5", got)
	}
	if len(res.Delta.Results) != 5 {
		t.Fatalf("got %d results, want 5", len(res.Delta.Results))
	}
	for id := 1; id <= 5; id++ {
		wr, ok := res.Delta.Results[id]
		if !ok {
			t.Fatalf("no result for task %d", id)
		}
		if wr.Status != StatusOK || wr.TaskID != id {
			t.Errorf("task %d result = %+v", id, wr)
		}
	}
}

func TestDispatchNode_ContainsWorkerFailure(t *testing.T) {
	buf := emit.NewBufferedEmitter()
	node := &DispatchNode{
		Workers: 1,
		Emitter: buf,
		Reviewer: reviewerFunc(func(_ context.Context, _ JobState, task Task) (WorkerResult, error) {
			if task.ID == 2 {
				return WorkerResult{}, errors.New("model unavailable")
			}
			return WorkerResult{TaskID: task.ID, Status: StatusOK}, nil
		}),
	}

	res := node.Run(context.Background(), dispatchState(3))
	if res.Err != nil {
		t.Fatalf("a single failing task must not abort dispatch: %v", res.Err)
	}

	failed := res.Delta.Results[2]
	if failed.Status != StatusFailed {
		t.Fatalf("task 2 status = %q, want failed", failed.Status)
	}
	if !strings.Contains(failed.FailReason, "model unavailable") {
		t.Errorf("FailReason = %q", failed.FailReason)
	}
	for _, id := range []int{1, 3} {
		if res.Delta.Results[id].Status != StatusOK {
			t.Errorf("task %d status = %q, want ok", id, res.Delta.Results[id].Status)
		}
	}

	starts, dones, failures := 0, 0, 0
	for _, ev := range buf.History("r1") {
		switch ev.Msg {
		case "task_start":
			starts++
		case "task_done":
			dones++
			if _, ok := ev.Meta["error"]; ok {
				failures++
			}
		}
	}
	if starts != 3 || dones != 3 || failures != 1 {
		t.Errorf("events: %d starts, %d dones, %d failures; want 3/3/1", starts, dones, failures)
	}
}

func TestDispatchNode_ContainsPanic(t *testing.T) {
	node := &DispatchNode{
		Workers: 1,
		Reviewer: reviewerFunc(func(_ context.Context, _ JobState, task Task) (WorkerResult, error) {
			if task.ID == 1 {
				panic("nil map write")
			}
			return WorkerResult{TaskID: task.ID, Status: StatusOK}, nil
		}),
	}

	res := node.Run(context.Background(), dispatchState(2))
	if res.Err != nil {
		t.Fatalf("a panicking worker must not abort dispatch: %v", res.Err)
	}
	failed := res.Delta.Results[1]
	if failed.Status != StatusFailed || !strings.Contains(failed.FailReason, "worker panic") {
		t.Errorf("task 1 result = %+v", failed)
	}
	if res.Delta.Results[2].Status != StatusOK {
		t.Errorf("task 2 status = %q", res.Delta.Results[2].Status)
	}
}

func TestDispatchNode_NoTasksIsFatal(t *testing.T) {
	node := &DispatchNode{Reviewer: reviewerFunc(func(context.Context, JobState, Task) (WorkerResult, error) {
		return WorkerResult{}, nil
	})}

	res := node.Run(context.Background(), JobState{Job: Job{RunID: "r1"}})
	if res.Err == nil || !strings.Contains(res.Err.Error(), "no tasks") {
		t.Errorf("Err = %v", res.Err)
	}
}

func TestDispatchNode_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	node := &DispatchNode{Reviewer: reviewerFunc(func(context.Context, JobState, Task) (WorkerResult, error) {
		return WorkerResult{Status: StatusOK}, nil
	})}

	res := node.Run(ctx, dispatchState(3))
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", res.Err)
	}
}

func TestDispatchNode_PoolClampedToTaskCount(t *testing.T) {
	// More workers than tasks must not deadlock or duplicate results.
	node := &DispatchNode{
		Workers: 16,
		Reviewer: reviewerFunc(func(_ context.Context, _ JobState, task Task) (WorkerResult, error) {
			return WorkerResult{TaskID: task.ID, Status: StatusOK}, nil
		}),
	}

	res := node.Run(context.Background(), dispatchState(2))
	if res.Err != nil {
		t.Fatalf("Run() error: %v", res.Err)
	}
	if len(res.Delta.Results) != 2 {
		t.Errorf("got %d results, want 2", len(res.Delta.Results))
	}
}
