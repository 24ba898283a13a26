package flow

import "errors"

// EngineError reports a failure of the engine itself, as opposed to a
// failure inside a node (see NodeError).
type EngineError struct {
	Message string
	Code    string
}

// Engine error codes.
const (
	CodeDuplicateNode    = "DUPLICATE_NODE"
	CodeNodeNotFound     = "NODE_NOT_FOUND"
	CodeMissingReducer   = "MISSING_REDUCER"
	CodeMissingStore     = "MISSING_STORE"
	CodeNoStartNode      = "NO_START_NODE"
	CodeMaxStepsExceeded = "MAX_STEPS_EXCEEDED"
	CodeStoreError       = "STORE_ERROR"
	CodeNoRoute          = "NO_ROUTE"
	CodeNodeTimeout      = "NODE_TIMEOUT"
)

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// ErrInvalidRetryPolicy is returned by RetryPolicy.Validate for
// out-of-range configuration.
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")

// ErrFrontierClosed is returned by Frontier.Dequeue once the queue is
// closed and fully drained.
var ErrFrontierClosed = errors.New("frontier closed")
