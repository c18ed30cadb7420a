// Package runstore persists per-cycle snapshots of analysis runs.
// Snapshots are append-only: each cycle of a run appends exactly one
// record, and the latest snapshot carries the run's current state.
package runstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a run has no snapshots.
var ErrNotFound = errors.New("run not found")

// ErrDuplicateCycle is returned when a snapshot for an already-stored
// (RunID, Cycle) pair is appended.
var ErrDuplicateCycle = errors.New("duplicate cycle")

// Snapshot is one materialized run state at the end of a cycle.
// State holds the serialized engine run state as JSON.
type Snapshot struct {
	RunID     string
	Cycle     int
	State     json.RawMessage
	CreatedAt time.Time
}

// Store defines append-only snapshot persistence.
type Store interface {
	// Append stores a snapshot. The (RunID, Cycle) pair must be new;
	// appending a duplicate cycle is an error.
	Append(ctx context.Context, snap Snapshot) error
	// Latest returns the highest-cycle snapshot for a run, or ErrNotFound.
	Latest(ctx context.Context, runID string) (Snapshot, error)
	// List returns all snapshots for a run in cycle order. An unknown
	// run returns ErrNotFound.
	List(ctx context.Context, runID string) ([]Snapshot, error)
}
