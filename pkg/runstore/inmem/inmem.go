// Package inmem provides an in-memory runstore.Store for tests and
// single-process deployments.
package inmem

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wilhg/scout/pkg/runstore"
)

// Store keeps snapshots in a map keyed by run ID.
type Store struct {
	mu   sync.RWMutex
	runs map[string][]runstore.Snapshot
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{runs: make(map[string][]runstore.Snapshot)}
}

// Append stores a snapshot, rejecting duplicate cycles per run.
func (s *Store) Append(_ context.Context, snap runstore.Snapshot) error {
	if snap.RunID == "" {
		return fmt.Errorf("run id is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snaps := s.runs[snap.RunID]
	for _, existing := range snaps {
		if existing.Cycle == snap.Cycle {
			return fmt.Errorf("cycle %d for run %s: %w", snap.Cycle, snap.RunID, runstore.ErrDuplicateCycle)
		}
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	// Copy the state so later caller mutations do not leak in.
	state := make([]byte, len(snap.State))
	copy(state, snap.State)
	snap.State = state
	s.runs[snap.RunID] = append(snaps, snap)
	return nil
}

// Latest returns the highest-cycle snapshot for a run.
func (s *Store) Latest(_ context.Context, runID string) (runstore.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snaps := s.runs[runID]
	if len(snaps) == 0 {
		return runstore.Snapshot{}, runstore.ErrNotFound
	}
	latest := snaps[0]
	for _, snap := range snaps[1:] {
		if snap.Cycle > latest.Cycle {
			latest = snap
		}
	}
	return latest, nil
}

// List returns all snapshots for a run ordered by cycle.
func (s *Store) List(_ context.Context, runID string) ([]runstore.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snaps := s.runs[runID]
	if len(snaps) == 0 {
		return nil, runstore.ErrNotFound
	}
	out := make([]runstore.Snapshot, len(snaps))
	copy(out, snaps)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].Cycle > out[j].Cycle; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out, nil
}
