package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested run ID or checkpoint ID does not exist.
var ErrNotFound = errors.New("not found")

// Store persists job state snapshots and named checkpoints.
//
// The engine saves state after every node execution, which gives each run a
// step-by-step history usable for post-mortem inspection, and writes a
// labeled checkpoint when a job completes. Implementations:
//   - MemStore: in-memory, the default
//   - SQLiteStore: single-file persistence (modernc.org/sqlite)
//   - MySQLStore: shared persistence (go-sql-driver/mysql)
//
// Type parameter S is the state type to persist; it must be JSON-serializable.
type Store[S any] interface {
	// SaveStep persists the state after a node execution step.
	// Steps are identified by runID + step number; saving the same pair
	// twice overwrites the earlier record.
	SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error

	// LoadLatest retrieves the state with the highest step number for a run.
	// Returns ErrNotFound when the run has no persisted steps.
	LoadLatest(ctx context.Context, runID string) (state S, step int, err error)

	// SaveCheckpoint creates a named snapshot of job state. An existing
	// checkpoint with the same ID is overwritten.
	SaveCheckpoint(ctx context.Context, cpID string, state S, step int) error

	// LoadCheckpoint retrieves a previously saved checkpoint.
	// Returns ErrNotFound when cpID does not exist.
	LoadCheckpoint(ctx context.Context, cpID string) (state S, step int, err error)
}

// StepRecord is one persisted execution step.
type StepRecord[S any] struct {
	Step   int    `json:"step"`
	NodeID string `json:"node_id"`
	State  S      `json:"state"`
}

// Checkpoint is a named state snapshot.
type Checkpoint[S any] struct {
	ID    string `json:"id"`
	State S      `json:"state"`
	Step  int    `json:"step"`
}
