package eval

import (
	"context"
	"fmt"

	"github.com/wilhg/scout/pkg/cache"
	"github.com/wilhg/scout/pkg/engine"
	"github.com/wilhg/scout/pkg/oracle"
	"github.com/wilhg/scout/pkg/runstore"
	"github.com/wilhg/scout/pkg/tool"
)

// DecisionTrail extracts the oracle decisions recorded in a run transcript,
// in order. Assistant messages that no longer parse are an error: the trail
// is only useful when it can be replayed verbatim.
func DecisionTrail(state engine.RunState) ([]oracle.Decision, error) {
	var out []oracle.Decision
	for i, m := range state.History {
		if m.Role != oracle.RoleAssistant {
			continue
		}
		d, err := oracle.ParseDecision(m.Content)
		if err != nil {
			return nil, fmt.Errorf("history entry %d: %w", i, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// ReplayRun re-drives a fresh engine through a recorded run's decision
// trail using a scripted oracle. The registry should hold deterministic
// stand-ins for the run's tools; the replayed run gets its own run ID so
// its snapshots never collide with the original's.
func ReplayRun(ctx context.Context, reg *tool.Registry, c cache.Cache, st runstore.Store, recorded engine.RunState, opts ...engine.Option) (engine.RunState, error) {
	trail, err := DecisionTrail(recorded)
	if err != nil {
		return engine.RunState{}, err
	}
	steps := make([]oracle.Step, len(trail))
	for i, d := range trail {
		steps[i] = oracle.Step{Decision: d}
	}
	eng, err := engine.New(reg, oracle.NewScripted(steps...), c, st, opts...)
	if err != nil {
		return engine.RunState{}, err
	}
	return eng.Run(ctx, engine.RunRequest{
		RunID:                  recorded.RunID + "-replay",
		Subject:                recorded.Subject,
		Scope:                  recorded.Scope,
		IncludeRecommendations: recorded.IncludeRecommendations,
	})
}
