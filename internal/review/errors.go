package review

import "fmt"

// PlanningError aborts the run: the planner exhausted its attempts without
// producing a valid task partition.
type PlanningError struct {
	Attempts int
	Reason   string
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("task planning failed after %d attempt(s): %s", e.Attempts, e.Reason)
}

// WorkerError is contained: the dispatch boundary converts it into a failed
// result for its task instead of aborting the run.
type WorkerError struct {
	TaskID int
	Cause  error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("task %d: %v", e.TaskID, e.Cause)
}

func (e *WorkerError) Unwrap() error { return e.Cause }
