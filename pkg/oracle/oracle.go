package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wilhg/scout/pkg/errmodel"
)

// Oracle chooses the next action for a run given its transcript. It must be
// stateless with respect to runs: all context arrives through history.
// Non-deterministic implementations are tolerated; correctness never relies
// on identical histories producing identical decisions.
type Oracle interface {
	Decide(ctx context.Context, history []Message) (Decision, error)
}

// LLMOracle adapts a chat provider into the Decision protocol. Provider
// replies that fail to parse surface as malformed-decision errors; the
// engine treats those as single-step failures, not run failures.
type LLMOracle struct {
	llm      LLM
	model    string
	estimate TokenEstimator
	budget   int
}

// LLMOption configures the LLMOracle.
type LLMOption func(*LLMOracle)

// WithModel overrides the provider's default model.
func WithModel(model string) LLMOption {
	return func(o *LLMOracle) { o.model = model }
}

// WithTokenBudget trims the transcript to at most budget tokens before each
// provider call, using the given estimator.
func WithTokenBudget(budget int, estimate TokenEstimator) LLMOption {
	return func(o *LLMOracle) {
		o.budget = budget
		o.estimate = estimate
	}
}

// NewLLMOracle wraps an LLM provider.
func NewLLMOracle(llm LLM, opts ...LLMOption) (*LLMOracle, error) {
	if llm == nil {
		return nil, fmt.Errorf("oracle: llm is nil")
	}
	o := &LLMOracle{llm: llm}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Decide assembles the transcript under the token budget, queries the
// provider, and parses the reply into a Decision.
func (o *LLMOracle) Decide(ctx context.Context, history []Message) (Decision, error) {
	trimmed := AssembleHistory(history, o.estimate, o.budget)
	msgs := make([]ProviderMessage, 0, len(trimmed))
	for _, m := range trimmed {
		msgs = append(msgs, ProviderMessage{Role: providerRole(m.Role), Content: renderContent(m)})
	}
	opts := map[string]any{}
	if o.model != "" {
		opts["model"] = o.model
	}
	res, err := o.llm.Generate(ctx, msgs, opts)
	if err != nil {
		return Decision{}, errmodel.New(errmodel.CategoryDecision, errmodel.CodeOracleUnavailable,
			"oracle provider call failed", map[string]any{"provider": o.llm.Name()}, err)
	}
	return ParseDecision(res.Text)
}

// providerRole maps transcript roles onto the chat roles providers accept.
// Observations travel as user messages so every provider sees them.
func providerRole(role string) string {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
		return role
	default:
		return RoleUser
	}
}

// renderContent flattens a message for the provider; observation metadata
// is appended as compact JSON so the model can read tool names and error
// kinds.
func renderContent(m Message) string {
	if m.Role != RoleObservation || len(m.Meta) == 0 {
		return m.Content
	}
	meta, err := json.Marshal(m.Meta)
	if err != nil {
		return m.Content
	}
	var b strings.Builder
	b.WriteString("[observation] ")
	b.WriteString(m.Content)
	b.WriteString("\n")
	b.Write(meta)
	return b.String()
}
