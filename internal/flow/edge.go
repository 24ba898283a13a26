// Package flow provides the workflow engine that sequences review job
// stages: a typed state machine with conditional edges, per-node policies,
// persistence, and observability events.
package flow

// Edge is a possible transition between two nodes.
//
// Unconditional edges (When = nil) always traverse. Conditional edges
// traverse only when the predicate holds for the current state. Explicit
// routing via NodeResult.Route takes precedence over edges.
type Edge[S any] struct {
	// From is the source node ID.
	From string

	// To is the destination node ID.
	To string

	// When gates the transition. nil means unconditional.
	When Predicate[S]
}

// Predicate evaluates state to decide whether an edge is taken. Predicates
// must be pure: the review graph's perf branch is decided by evaluating
// them once at the branch point.
//
//	eng.Connect("run-tests", "perf-analysis", func(s JobState) bool { return s.Job.Perf })
//	eng.Connect("run-tests", "report", nil)
type Predicate[S any] func(state S) bool
