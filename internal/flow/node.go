package flow

import "context"

// Node is a processing stage in a review workflow graph.
//
// A node receives the current state, performs its work (scan the project,
// call a completer, run processes), and returns a NodeResult carrying a
// partial state update and a routing decision.
//
// Type parameter S is the state type shared across the workflow.
type Node[S any] interface {
	// Run executes the node's logic. The returned NodeResult carries the
	// state delta, the routing decision, and any error.
	Run(ctx context.Context, state S) NodeResult[S]
}

// NodeResult is the output of a node execution.
type NodeResult[S any] struct {
	// Delta is the partial state update produced by this node. It is
	// merged into the current state by the configured reducer.
	Delta S

	// Route is the next hop. Use Stop() for terminal nodes, Goto(id) for
	// explicit routing, or leave zero to fall back to edge predicates.
	Route Next

	// Err halts the workflow when non-nil. The engine wraps it in a
	// NodeError so callers can identify the failing node.
	Err error
}

// Next is a routing decision. Exactly one of To, Terminal, or neither
// (edge fallback) should be set.
type Next struct {
	// To names the next node to execute.
	To string

	// Terminal stops the workflow.
	Terminal bool
}

// Stop returns a Next that terminates workflow execution.
func Stop() Next {
	return Next{Terminal: true}
}

// Goto returns a Next that routes to the named node.
func Goto(nodeID string) Next {
	return Next{To: nodeID}
}

// NodeFunc adapts a plain function to the Node interface.
//
//	extract := flow.NodeFunc[PerfState](func(ctx context.Context, s PerfState) flow.NodeResult[PerfState] {
//	    units, err := extractUnits(s.ProjectPath)
//	    if err != nil {
//	        return flow.NodeResult[PerfState]{Err: err}
//	    }
//	    return flow.NodeResult[PerfState]{Delta: PerfState{CodeUnits: units}, Route: flow.Goto("analyze")}
//	})
type NodeFunc[S any] func(ctx context.Context, state S) NodeResult[S]

// Run implements Node.
func (f NodeFunc[S]) Run(ctx context.Context, state S) NodeResult[S] {
	return f(ctx, state)
}

// Reducer merges a partial state update into the current state. Reducers
// must be deterministic and must not mutate prev in place beyond returning
// the merged value.
type Reducer[S any] func(prev, delta S) S

// NodeError wraps a failure produced by a node, attributing it to the node
// that failed. Use errors.As to reach the typed cause (PlanningError,
// ExtractionError, ...).
type NodeError struct {
	// NodeID identifies the failing node.
	NodeID string

	// Code is a machine-readable classification, e.g. "NODE_FAILED".
	Code string

	// Message describes the failure.
	Message string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *NodeError) Unwrap() error {
	return e.Cause
}
