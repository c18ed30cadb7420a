package oracle

import (
	"context"
	"errors"
	"testing"

	"github.com/wilhg/scout/pkg/errmodel"
)

type fakeLLM struct {
	reply string
	err   error
	seen  []ProviderMessage
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) Generate(_ context.Context, messages []ProviderMessage, _ map[string]any) (GenerateResult, error) {
	f.seen = messages
	if f.err != nil {
		return GenerateResult{}, f.err
	}
	return GenerateResult{Text: f.reply}, nil
}

func TestLLMOracleDecide(t *testing.T) {
	llm := &fakeLLM{reply: `{"action":"invoke","tools":[{"name":"product","args":{"product_name":"widget x"}}]}`}
	o, err := NewLLMOracle(llm)
	if err != nil {
		t.Fatal(err)
	}
	d, err := o.Decide(context.Background(), []Message{System("frame"), User("analyze widget x")})
	if err != nil {
		t.Fatal(err)
	}
	if d.Kind() != KindInvoke || d.Requests[0].Name != "product" {
		t.Fatalf("decision=%#v", d)
	}
	if len(llm.seen) != 2 || llm.seen[0].Role != "system" {
		t.Fatalf("provider messages=%#v", llm.seen)
	}
}

func TestLLMOracleObservationRendering(t *testing.T) {
	llm := &fakeLLM{reply: `{"action":"finish","answer":"done"}`}
	o, _ := NewLLMOracle(llm)
	history := []Message{
		System("frame"),
		User("analyze widget x"),
		Observation("tool failed", map[string]any{"tool": "competitor", "kind": "tool_failed"}),
	}
	if _, err := o.Decide(context.Background(), history); err != nil {
		t.Fatal(err)
	}
	// observations travel as user-role messages with metadata inline
	last := llm.seen[len(llm.seen)-1]
	if last.Role != "user" {
		t.Fatalf("observation role=%q", last.Role)
	}
	if want := "[observation] tool failed"; len(last.Content) < len(want) || last.Content[:len(want)] != want {
		t.Fatalf("content=%q", last.Content)
	}
}

func TestLLMOracleTransportFailure(t *testing.T) {
	llm := &fakeLLM{err: errors.New("connection refused")}
	o, _ := NewLLMOracle(llm)
	_, err := o.Decide(context.Background(), []Message{User("x")})
	if !errmodel.IsCode(err, errmodel.CodeOracleUnavailable) {
		t.Fatalf("want oracle_unavailable, got %v", err)
	}
}

func TestLLMOracleMalformedReply(t *testing.T) {
	llm := &fakeLLM{reply: "let me think about that"}
	o, _ := NewLLMOracle(llm)
	_, err := o.Decide(context.Background(), []Message{User("x")})
	if !errmodel.IsCode(err, errmodel.CodeMalformedDecision) {
		t.Fatalf("want malformed_decision, got %v", err)
	}
}

func TestScriptedOracle(t *testing.T) {
	s := NewScripted(
		Step{Decision: Invoke(ToolRequest{Name: "product"})},
		Step{Decision: Finish("done")},
	)
	d, err := s.Decide(context.Background(), nil)
	if err != nil || d.Kind() != KindInvoke {
		t.Fatalf("d=%#v err=%v", d, err)
	}
	d, err = s.Decide(context.Background(), nil)
	if err != nil || d.Answer != "done" {
		t.Fatalf("d=%#v err=%v", d, err)
	}
	if _, err := s.Decide(context.Background(), nil); err == nil {
		t.Fatal("exhausted script should fail")
	}
	if s.Calls() != 3 {
		t.Fatalf("calls=%d", s.Calls())
	}
}
