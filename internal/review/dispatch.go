package review

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/dshills/reviewflow/internal/flow"
	"github.com/dshills/reviewflow/internal/flow/emit"
)

// DefaultWorkers is the dispatch pool size when none is configured:
// one per CPU, capped at 8.
func DefaultWorkers() int {
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}

// DispatchNode fans the planned tasks out to a fixed pool of review
// workers and merges their results into a single delta once every task has
// a terminal result. Tasks are dequeued in ascending ID order; worker
// errors and panics become failed entries for their task only.
type DispatchNode struct {
	Reviewer TaskReviewer
	Emitter  emit.Emitter
	Metrics  *flow.PrometheusMetrics

	// Workers is the pool size. Zero or negative uses DefaultWorkers().
	Workers int
}

// Run implements flow.Node.
func (n *DispatchNode) Run(ctx context.Context, state JobState) flow.NodeResult[JobState] {
	tasks := state.Tasks
	if len(tasks) == 0 {
		return flow.NodeResult[JobState]{Err: fmt.Errorf("dispatch reached with no tasks")}
	}

	workers := n.Workers
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	if workers > len(tasks) {
		workers = len(tasks)
	}

	frontier := flow.NewFrontier[Task](len(tasks))
	for _, task := range tasks {
		if err := frontier.Enqueue(ctx, task.ID, task); err != nil {
			return flow.NodeResult[JobState]{Err: fmt.Errorf("enqueue task %d: %w", task.ID, err)}
		}
	}
	frontier.Close()
	n.Metrics.SetTaskQueueDepth(float64(frontier.Len()))

	results := make(chan WorkerResult, len(tasks))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, err := frontier.Dequeue(ctx)
				if err != nil {
					return
				}
				n.Metrics.SetTaskQueueDepth(float64(frontier.Len()))
				results <- n.reviewOne(ctx, state, task)
			}
		}()
	}
	wg.Wait()
	close(results)

	if ctx.Err() != nil {
		return flow.NodeResult[JobState]{Err: ctx.Err()}
	}

	merged := make(map[int]WorkerResult, len(tasks))
	for res := range results {
		if _, seen := merged[res.TaskID]; !seen {
			merged[res.TaskID] = res
		}
	}
	if len(merged) != len(tasks) {
		return flow.NodeResult[JobState]{Err: fmt.Errorf("dispatch barrier: %d results for %d tasks", len(merged), len(tasks))}
	}

	return flow.NodeResult[JobState]{Delta: JobState{Results: merged}}
}

// reviewOne runs a single task to a terminal result. Worker errors and
// panics are contained here: the task is marked failed and the run goes on.
func (n *DispatchNode) reviewOne(ctx context.Context, state JobState, task Task) WorkerResult {
	n.Metrics.AddInflightWorkers(1)
	defer n.Metrics.AddInflightWorkers(-1)

	n.emit(state.Job.RunID, "task_start", map[string]interface{}{
		"task": task.ID,
		"name": task.Name,
	})

	start := time.Now()
	res, err := n.callReviewer(ctx, state, task)
	if err != nil {
		var werr *WorkerError
		if !errors.As(err, &werr) {
			werr = &WorkerError{TaskID: task.ID, Cause: err}
		}
		res = WorkerResult{
			TaskID:     task.ID,
			Status:     StatusFailed,
			FailReason: werr.Cause.Error(),
			Duration:   time.Since(start),
		}
	}
	res.TaskID = task.ID

	meta := map[string]interface{}{
		"task":     task.ID,
		"status":   string(res.Status),
		"findings": len(res.Findings),
		"ms":       res.Duration.Milliseconds(),
	}
	if res.Status == StatusFailed {
		meta["error"] = res.FailReason
		n.Metrics.RecordWorkerFailure(state.Job.RunID)
	}
	n.emit(state.Job.RunID, "task_done", meta)
	return res
}

func (n *DispatchNode) callReviewer(ctx context.Context, state JobState, task Task) (res WorkerResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &WorkerError{TaskID: task.ID, Cause: fmt.Errorf("worker panic: %v", r)}
		}
	}()
	return n.Reviewer.Review(ctx, state, task)
}

func (n *DispatchNode) emit(runID, msg string, meta map[string]interface{}) {
	if n.Emitter == nil {
		return
	}
	n.Emitter.Emit(emit.Event{RunID: runID, NodeID: NodeDispatch, Msg: msg, Meta: meta})
}
