package oracle

import (
	"encoding/json"
	"strings"

	"github.com/wilhg/scout/pkg/errmodel"
)

// DecisionKind discriminates the two legal oracle outcomes.
type DecisionKind string

const (
	// KindInvoke requests one or more tool calls. Multiple requests in the
	// same decision are independent and eligible for parallel dispatch.
	KindInvoke DecisionKind = "invoke"
	// KindFinish terminates the run with a final answer.
	KindFinish DecisionKind = "finish"
)

// ToolRequest names one tool invocation the oracle wants performed.
type ToolRequest struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Decision is the oracle's answer for one cycle: either a batch of tool
// requests or a final answer, never both.
type Decision struct {
	Requests []ToolRequest `json:"tools,omitempty"`
	Answer   string        `json:"answer,omitempty"`
}

// Kind reports which outcome the decision carries.
func (d Decision) Kind() DecisionKind {
	if len(d.Requests) > 0 {
		return KindInvoke
	}
	return KindFinish
}

// Invoke builds a tool-invocation decision.
func Invoke(reqs ...ToolRequest) Decision { return Decision{Requests: reqs} }

// Finish builds a terminal decision.
func Finish(answer string) Decision { return Decision{Answer: answer} }

// wireDecision is the JSON protocol the LLM oracle expects from providers:
//
//	{"action":"invoke","tools":[{"name":"product","args":{...}}]}
//	{"action":"finish","answer":"..."}
type wireDecision struct {
	Action string        `json:"action"`
	Tools  []ToolRequest `json:"tools,omitempty"`
	Answer string        `json:"answer,omitempty"`
}

// ParseDecision parses a provider reply into a Decision. Replies wrapped in
// markdown code fences are unwrapped first. Anything that does not decode
// into exactly one legal action fails with a malformed-decision error.
func ParseDecision(text string) (Decision, error) {
	raw := stripFences(strings.TrimSpace(text))
	if raw == "" {
		return Decision{}, errmodel.MalformedDecision("empty oracle reply", nil)
	}
	var wd wireDecision
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&wd); err != nil {
		return Decision{}, errmodel.MalformedDecision("oracle reply is not valid decision JSON",
			map[string]any{"reply": raw, "error": err.Error()})
	}
	switch wd.Action {
	case "invoke":
		if len(wd.Tools) == 0 {
			return Decision{}, errmodel.MalformedDecision("invoke decision names no tools",
				map[string]any{"reply": raw})
		}
		for _, r := range wd.Tools {
			if r.Name == "" {
				return Decision{}, errmodel.MalformedDecision("invoke decision has unnamed tool",
					map[string]any{"reply": raw})
			}
		}
		return Decision{Requests: wd.Tools}, nil
	case "finish":
		if wd.Answer == "" {
			return Decision{}, errmodel.MalformedDecision("finish decision carries no answer",
				map[string]any{"reply": raw})
		}
		return Decision{Answer: wd.Answer}, nil
	default:
		return Decision{}, errmodel.MalformedDecision("unknown decision action",
			map[string]any{"action": wd.Action, "reply": raw})
	}
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// drop the language tag line ("json", "") if present
		first := strings.TrimSpace(s[:i])
		if first == "" || !strings.ContainsAny(first, "{}") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
