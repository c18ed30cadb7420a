package oracle

import (
	tiktoken "github.com/pkoukk/tiktoken-go"
)

// TokenEstimator estimates token usage of text content.
type TokenEstimator func(text string) int

// RuneEstimator is the fallback estimator: one token per rune. It
// overestimates, which only makes trimming more conservative.
func RuneEstimator(text string) int { return len([]rune(text)) }

// NewTikTokenEstimator returns a TokenEstimator backed by tiktoken-go for
// the given model. If the model is unknown, EncodingForModel returns an
// error and callers should fall back to RuneEstimator.
func NewTikTokenEstimator(model string) (TokenEstimator, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, err
	}
	return func(text string) int {
		return len(enc.Encode(text, nil, nil))
	}, nil
}

// AssembleHistory deterministically trims a transcript to a token budget
// before it is handed to a provider. The system framing and the first user
// message are pinned; of the remainder, the newest messages that still fit
// are kept, preserving original order. A non-positive budget keeps
// everything.
func AssembleHistory(history []Message, estimate TokenEstimator, maxTokens int) []Message {
	if maxTokens <= 0 || len(history) == 0 {
		return history
	}
	if estimate == nil {
		estimate = RuneEstimator
	}

	pinned := 0
	for pinned < len(history) && history[pinned].Role == RoleSystem {
		pinned++
	}
	if pinned < len(history) && history[pinned].Role == RoleUser {
		pinned++
	}

	budget := maxTokens
	for _, m := range history[:pinned] {
		budget -= estimate(m.Content)
	}
	// Pinned messages are always included, even over budget; the provider
	// cannot reason without the framing and the request.
	if budget < 0 {
		budget = 0
	}

	tail := history[pinned:]
	keep := make([]bool, len(tail))
	for i := len(tail) - 1; i >= 0; i-- {
		cost := estimate(tail[i].Content)
		if cost > budget {
			continue
		}
		budget -= cost
		keep[i] = true
	}

	out := make([]Message, 0, len(history))
	out = append(out, history[:pinned]...)
	for i, m := range tail {
		if keep[i] {
			out = append(out, m)
		}
	}
	return out
}
