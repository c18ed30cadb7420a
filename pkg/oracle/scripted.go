package oracle

import (
	"context"
	"fmt"
	"sync"
)

// Step configures one oracle turn in a scripted sequence.
type Step struct {
	Decision Decision
	Err      error
}

// Scripted is a deterministic oracle for tests and replay: it returns its
// steps in order and fails once the script is exhausted.
type Scripted struct {
	mu    sync.Mutex
	index int
	steps []Step
}

var _ Oracle = (*Scripted)(nil)

// NewScripted builds a scripted oracle from the given steps.
func NewScripted(steps ...Step) *Scripted {
	cloned := make([]Step, len(steps))
	copy(cloned, steps)
	return &Scripted{steps: cloned}
}

// Decide returns the next scripted step.
func (s *Scripted) Decide(_ context.Context, _ []Message) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index >= len(s.steps) {
		return Decision{}, fmt.Errorf("oracle script exhausted at step %d", s.index+1)
	}
	cur := s.steps[s.index]
	s.index++
	if cur.Err != nil {
		return Decision{}, cur.Err
	}
	return cur.Decision, nil
}

// Calls reports how many decisions have been served.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}
