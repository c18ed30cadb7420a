// Package oracle defines the decision-making boundary of the analysis
// runtime. An Oracle inspects the run transcript and returns either a batch
// of tool invocations or a final answer; the LLM-backed implementation
// speaks a strict JSON protocol to a pluggable provider.
package oracle

import "time"

// Message roles. Observations carry tool results and error feedback from
// the engine back into the transcript.
const (
	RoleSystem      = "system"
	RoleUser        = "user"
	RoleAssistant   = "assistant"
	RoleObservation = "observation"
)

// Message is one entry in a run's reasoning transcript.
type Message struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// System builds a system framing message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User builds a user request message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant builds an assistant (oracle reply) message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Observation builds an engine observation with structured metadata.
func Observation(content string, meta map[string]any) Message {
	return Message{Role: RoleObservation, Content: content, Meta: meta}
}
