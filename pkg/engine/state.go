package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wilhg/scout/pkg/oracle"
)

// Scope limits which tools a run may invoke.
type Scope string

const (
	ScopeFull           Scope = "full"
	ScopeProductOnly    Scope = "product_only"
	ScopeCompetitorOnly Scope = "competitor_only"
	ScopeSentimentOnly  Scope = "sentiment_only"
)

// Canonical tool names. Concrete implementations live in pkg/tool/tools;
// the engine references them for scope allowlists and report synthesis.
const (
	ToolProduct    = "scrape_product_data"
	ToolCompetitor = "analyze_competitors"
	ToolSentiment  = "analyze_sentiment"
	ToolReport     = "generate_report"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	switch s {
	case ScopeFull, ScopeProductOnly, ScopeCompetitorOnly, ScopeSentimentOnly:
		return true
	}
	return false
}

// Allowed returns the tool allowlist for the scope. Report synthesis is
// permitted in every scope. A nil map means no restriction.
func (s Scope) Allowed() map[string]bool {
	switch s {
	case ScopeProductOnly:
		return map[string]bool{ToolProduct: true, ToolReport: true}
	case ScopeCompetitorOnly:
		return map[string]bool{ToolCompetitor: true, ToolReport: true}
	case ScopeSentimentOnly:
		return map[string]bool{ToolSentiment: true, ToolReport: true}
	default:
		return nil
	}
}

// Status is a run's lifecycle state.
type Status string

const (
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
)

// RunState is the full state of one analysis run. RunID, Subject and
// Scope are immutable after start; History is append-only; Status is
// write-once into a terminal value.
type RunState struct {
	RunID         string                    `json:"run_id"`
	Subject       string                    `json:"subject"`
	Scope         Scope                     `json:"scope"`
	Status        Status                    `json:"status"`
	History       []oracle.Message          `json:"history"`
	Collected     map[string]map[string]any `json:"collected"`
	StepsExecuted int                       `json:"steps_executed"`
	FinalReport   string                    `json:"final_report,omitempty"`
	Err           string                    `json:"error,omitempty"`

	// IncludeRecommendations echoes the request flag so replays and
	// best-effort synthesis reuse the caller's choice.
	IncludeRecommendations bool `json:"include_recommendations"`

	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *RunState) terminal() bool {
	return s.Status == StatusFinished || s.Status == StatusFailed
}

func (s *RunState) finish(report string, now time.Time) {
	if s.terminal() {
		return
	}
	s.Status = StatusFinished
	s.FinalReport = report
	s.UpdatedAt = now
}

func (s *RunState) fail(msg string, now time.Time) {
	if s.terminal() {
		return
	}
	s.Status = StatusFailed
	s.Err = msg
	s.UpdatedAt = now
}

// EncodeState serializes a run state for snapshot storage.
func EncodeState(s RunState) (json.RawMessage, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode run state: %w", err)
	}
	return b, nil
}

// DecodeState deserializes a snapshot back into a run state.
func DecodeState(data json.RawMessage) (RunState, error) {
	var s RunState
	if err := json.Unmarshal(data, &s); err != nil {
		return RunState{}, fmt.Errorf("decode run state: %w", err)
	}
	return s, nil
}

// ToolInvocation is the per-call record produced by one tool dispatch.
// It is folded into History and Collected, never persisted on its own.
type ToolInvocation struct {
	Tool     string
	Args     map[string]any
	Output   map[string]any
	Err      error
	CacheHit bool
	Latency  time.Duration
}
