package flow

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/dshills/reviewflow/internal/flow/emit"
	"github.com/dshills/reviewflow/internal/flow/store"
)

// Engine sequences a review workflow: it executes nodes, merges their
// deltas through the reducer, persists state after every step, and emits
// observability events.
//
// The engine runs one node at a time on the calling goroutine. Stages that
// need parallelism (the task dispatch pool, the perf analyzers) fan out
// inside a node and return a single merged delta; that keeps state merging
// deterministic while still using the machine.
//
// Per-node policies add timeout and bounded retry on top of the loop:
// timeout precedence is NodePolicy.Timeout, then Options.DefaultNodeTimeout,
// then unlimited.
//
//	eng := flow.New(review.ReduceJobState, store.NewMemStore[review.JobState](), emitter,
//	    flow.WithMaxSteps(50))
//	eng.Add("analyze-structure", structureNode)
//	eng.StartAt("analyze-structure")
//	final, err := eng.Run(ctx, runID, initial)
type Engine[S any] struct {
	mu sync.RWMutex

	reducer   Reducer[S]
	nodes     map[string]Node[S]
	policies  map[string]*NodePolicy
	edges     []Edge[S]
	startNode string

	store   store.Store[S]
	emitter emit.Emitter
	opts    Options

	// rng feeds backoff jitter; only touched from the run loop.
	rng *rand.Rand
}

// New creates an engine. The reducer and store are required by Run; the
// emitter may be nil to disable events.
func New[S any](reducer Reducer[S], st store.Store[S], emitter emit.Emitter, opts ...Option) *Engine[S] {
	var options Options
	for _, opt := range opts {
		opt(&options)
	}

	return &Engine[S]{
		reducer:  reducer,
		nodes:    make(map[string]Node[S]),
		policies: make(map[string]*NodePolicy),
		store:    st,
		emitter:  emitter,
		opts:     options,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- backoff jitter
	}
}

// Add registers a node under a unique ID.
func (e *Engine[S]) Add(nodeID string, node Node[S]) error {
	return e.AddWithPolicy(nodeID, node, nil)
}

// AddWithPolicy registers a node with an execution policy. An invalid
// retry policy is rejected up front rather than at run time.
func (e *Engine[S]) AddWithPolicy(nodeID string, node Node[S], policy *NodePolicy) error {
	if nodeID == "" {
		return &EngineError{Message: "node ID cannot be empty"}
	}
	if node == nil {
		return &EngineError{Message: "node cannot be nil"}
	}
	if policy != nil && policy.RetryPolicy != nil {
		if err := policy.RetryPolicy.Validate(); err != nil {
			return err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; exists {
		return &EngineError{
			Message: "duplicate node ID: " + nodeID,
			Code:    CodeDuplicateNode,
		}
	}

	e.nodes[nodeID] = node
	if policy != nil {
		e.policies[nodeID] = policy
	}
	return nil
}

// StartAt sets the entry node. The node must already be registered.
func (e *Engine[S]) StartAt(nodeID string) error {
	if nodeID == "" {
		return &EngineError{Message: "start node ID cannot be empty"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; !exists {
		return &EngineError{
			Message: "start node does not exist: " + nodeID,
			Code:    CodeNodeNotFound,
		}
	}

	e.startNode = nodeID
	return nil
}

// Connect adds an edge. A nil predicate is unconditional. Node existence is
// validated lazily so graphs can be wired in any order.
func (e *Engine[S]) Connect(from, to string, predicate Predicate[S]) error {
	if from == "" {
		return &EngineError{Message: "from node ID cannot be empty"}
	}
	if to == "" {
		return &EngineError{Message: "to node ID cannot be empty"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.edges = append(e.edges, Edge[S]{From: from, To: to, When: predicate})
	return nil
}

// Run executes the workflow from the start node until a node routes to
// Stop, a node fails, or a limit trips.
//
// Per step: MaxSteps guard, context check, node execution under policy
// (timeout, bounded retry with backoff), reducer merge, store.SaveStep,
// node_start/node_end/node_error events, and stage latency metrics.
func (e *Engine[S]) Run(ctx context.Context, runID string, initial S) (S, error) {
	var zero S

	if err := e.validate(); err != nil {
		return zero, err
	}

	e.mu.RLock()
	startNode := e.startNode
	e.mu.RUnlock()

	return e.runFrom(ctx, runID, startNode, initial)
}

func (e *Engine[S]) validate() error {
	if e.reducer == nil {
		return &EngineError{Message: "reducer is required", Code: CodeMissingReducer}
	}
	if e.store == nil {
		return &EngineError{Message: "store is required", Code: CodeMissingStore}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.startNode == "" {
		return &EngineError{Message: "start node not set (call StartAt before Run)", Code: CodeNoStartNode}
	}
	if _, exists := e.nodes[e.startNode]; !exists {
		return &EngineError{Message: "start node does not exist: " + e.startNode, Code: CodeNodeNotFound}
	}
	return nil
}

// runFrom is the execution loop shared by Run and ResumeFromCheckpoint.
func (e *Engine[S]) runFrom(ctx context.Context, runID, startNode string, initial S) (S, error) {
	var zero S

	runStart := time.Now()
	e.emit(emit.Event{RunID: runID, Msg: "run_start", Meta: map[string]interface{}{"start_node": startNode}})

	currentState := initial
	currentNode := startNode
	step := 0

	for {
		step++

		if e.opts.MaxSteps > 0 && step > e.opts.MaxSteps {
			return zero, &EngineError{
				Message: "workflow exceeded MaxSteps limit",
				Code:    CodeMaxStepsExceeded,
			}
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		e.mu.RLock()
		nodeImpl, exists := e.nodes[currentNode]
		policy := e.policies[currentNode]
		e.mu.RUnlock()

		if !exists {
			return zero, &EngineError{
				Message: "node not found during execution: " + currentNode,
				Code:    CodeNodeNotFound,
			}
		}

		e.emit(emit.Event{RunID: runID, Step: step, NodeID: currentNode, Msg: "node_start"})
		nodeStart := time.Now()

		result, execErr := e.executeWithPolicy(ctx, runID, step, currentNode, nodeImpl, policy, currentState)
		latencyMS := float64(time.Since(nodeStart)) / float64(time.Millisecond)

		if execErr != nil {
			e.opts.Metrics.RecordStageLatency(runID, currentNode, statusOf(execErr), latencyMS)
			e.emit(emit.Event{
				RunID: runID, Step: step, NodeID: currentNode, Msg: "node_error",
				Meta: map[string]interface{}{"error": execErr.Error()},
			})
			return zero, execErr
		}
		if result.Err != nil {
			e.opts.Metrics.RecordStageLatency(runID, currentNode, "error", latencyMS)
			e.emit(emit.Event{
				RunID: runID, Step: step, NodeID: currentNode, Msg: "node_error",
				Meta: map[string]interface{}{"error": result.Err.Error()},
			})
			return zero, wrapNodeErr(currentNode, result.Err)
		}
		e.opts.Metrics.RecordStageLatency(runID, currentNode, "success", latencyMS)

		currentState = e.reducer(currentState, result.Delta)

		if err := e.store.SaveStep(ctx, runID, step, currentNode, currentState); err != nil {
			return zero, &EngineError{
				Message: "failed to save step: " + err.Error(),
				Code:    CodeStoreError,
			}
		}

		e.emit(emit.Event{
			RunID: runID, Step: step, NodeID: currentNode, Msg: "node_end",
			Meta: map[string]interface{}{"duration_ms": int64(latencyMS)},
		})

		if result.Route.Terminal {
			e.emit(emit.Event{
				RunID: runID, Step: step, Msg: "run_end",
				Meta: map[string]interface{}{
					"duration_ms": time.Since(runStart).Milliseconds(),
					"steps":       step,
				},
			})
			return currentState, nil
		}

		if result.Route.To != "" {
			currentNode = result.Route.To
			continue
		}

		nextNode := e.evaluateEdges(currentNode, currentState)
		if nextNode == "" {
			return zero, &EngineError{
				Message: "no valid route from node: " + currentNode,
				Code:    CodeNoRoute,
			}
		}
		currentNode = nextNode
	}
}

// executeWithPolicy runs one node under its policy: timeout enforcement
// plus bounded retry with exponential backoff and jitter. The returned
// error is engine-level (timeout, context); node-level failures travel in
// NodeResult.Err.
func (e *Engine[S]) executeWithPolicy(
	ctx context.Context,
	runID string,
	step int,
	nodeID string,
	node Node[S],
	policy *NodePolicy,
	state S,
) (NodeResult[S], error) {
	var retry *RetryPolicy
	if policy != nil {
		retry = policy.RetryPolicy
	}

	maxAttempts := 1
	if retry != nil && retry.MaxAttempts > 1 {
		maxAttempts = retry.MaxAttempts
	}

	var result NodeResult[S]
	var timeoutErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := computeBackoff(attempt-1, retry.BaseDelay, retry.MaxDelay, e.rng)
			e.opts.Metrics.RecordNodeRetry(runID, nodeID)
			e.emit(emit.Event{
				RunID: runID, Step: step, NodeID: nodeID, Msg: "node_retry",
				Meta: map[string]interface{}{"attempt": attempt, "delay_ms": delay.Milliseconds()},
			})

			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, timeoutErr = executeNodeWithTimeout(ctx, node, nodeID, state, policy, e.opts.DefaultNodeTimeout)

		failure := timeoutErr
		if failure == nil {
			failure = result.Err
		}
		if failure == nil {
			return result, nil
		}

		retryable := retry != nil && retry.Retryable != nil && retry.Retryable(failure)
		if !retryable || attempt+1 == maxAttempts {
			break
		}
	}

	return result, timeoutErr
}

// evaluateEdges returns the destination of the first matching edge out of
// fromNode, or "" when none match. Edges are checked in insertion order;
// nil predicates always match.
func (e *Engine[S]) evaluateEdges(fromNode string, state S) string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, edge := range e.edges {
		if edge.From != fromNode {
			continue
		}
		if edge.When == nil || edge.When(state) {
			return edge.To
		}
	}
	return ""
}

// SaveCheckpoint labels the most recent persisted state of a run. The CLI
// writes a "job-complete" checkpoint after every successful run.
func (e *Engine[S]) SaveCheckpoint(ctx context.Context, runID, cpID string) error {
	latestState, latestStep, err := e.store.LoadLatest(ctx, runID)
	if err != nil {
		return &EngineError{
			Message: "cannot create checkpoint: run state not found: " + err.Error(),
			Code:    CodeStoreError,
		}
	}

	if err := e.store.SaveCheckpoint(ctx, cpID, latestState, latestStep); err != nil {
		return &EngineError{
			Message: "failed to save checkpoint: " + err.Error(),
			Code:    CodeStoreError,
		}
	}

	e.emit(emit.Event{
		RunID: runID, Step: latestStep, Msg: "checkpoint_saved",
		Meta: map[string]interface{}{"checkpoint_id": cpID},
	})
	return nil
}

// ResumeFromCheckpoint starts a new run from a saved checkpoint's state,
// beginning execution at startNode.
func (e *Engine[S]) ResumeFromCheckpoint(ctx context.Context, cpID, newRunID, startNode string) (S, error) {
	var zero S

	if e.reducer == nil {
		return zero, &EngineError{Message: "reducer is required", Code: CodeMissingReducer}
	}
	if e.store == nil {
		return zero, &EngineError{Message: "store is required", Code: CodeMissingStore}
	}
	if startNode == "" {
		return zero, &EngineError{Message: "start node not specified for resume", Code: CodeNoStartNode}
	}

	e.mu.RLock()
	_, exists := e.nodes[startNode]
	e.mu.RUnlock()
	if !exists {
		return zero, &EngineError{Message: "resume start node does not exist: " + startNode, Code: CodeNodeNotFound}
	}

	checkpointState, checkpointStep, err := e.store.LoadCheckpoint(ctx, cpID)
	if err != nil {
		return zero, &EngineError{
			Message: "cannot resume: checkpoint not found: " + err.Error(),
			Code:    CodeStoreError,
		}
	}

	e.emit(emit.Event{
		RunID: newRunID, NodeID: startNode, Msg: "run_resumed",
		Meta: map[string]interface{}{"checkpoint_id": cpID, "checkpoint_step": checkpointStep},
	})

	return e.runFrom(ctx, newRunID, startNode, checkpointState)
}

func (e *Engine[S]) emit(event emit.Event) {
	if e.emitter != nil {
		e.emitter.Emit(event)
	}
}

func wrapNodeErr(nodeID string, err error) error {
	var nodeErr *NodeError
	if errors.As(err, &nodeErr) {
		return err
	}
	return &NodeError{
		NodeID:  nodeID,
		Code:    "NODE_FAILED",
		Message: err.Error(),
		Cause:   err,
	}
}

func statusOf(err error) string {
	var engineErr *EngineError
	if errors.As(err, &engineErr) && engineErr.Code == CodeNodeTimeout {
		return "timeout"
	}
	return "error"
}
