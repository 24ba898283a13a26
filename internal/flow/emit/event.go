package emit

// Event is an observability record produced while a review job executes.
//
// The engine emits one event per lifecycle transition (node start, node end,
// retry, checkpoint) and domain nodes emit their own progress events (task
// dispatched, task merged, test finished). Consumers range from the console
// progress renderer to the report server's /events endpoint.
type Event struct {
	// RunID identifies the job execution that produced this event.
	RunID string

	// Step is the sequential engine step (1-indexed). Zero for
	// run-level events such as run_start and run_end.
	Step int

	// NodeID names the graph node that produced the event.
	// Empty for run-level events.
	NodeID string

	// Msg is the event kind, e.g. "node_start", "node_end", "node_retry",
	// "task_done", "test_done", "checkpoint_saved".
	Msg string

	// Meta carries event-specific payload. Common keys:
	//   - "duration_ms": execution duration in milliseconds
	//   - "error": error text
	//   - "attempt": retry attempt number
	//   - "task_id": review task identifier
	//   - "status": pass/fail/error classification
	Meta map[string]interface{}
}
