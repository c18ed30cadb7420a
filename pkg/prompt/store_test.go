package prompt

import (
	"errors"
	"strings"
	"testing"
)

func TestSaveVersionsIncrement(t *testing.T) {
	s := NewStore()
	p1, _, err := s.Save(Prompt{Name: "n", Body: "v1"})
	if err != nil || p1.Version != 1 {
		t.Fatalf("p1=%#v err=%v", p1, err)
	}
	p2, _, err := s.Save(Prompt{Name: "n", Body: "v2"})
	if err != nil || p2.Version != 2 {
		t.Fatalf("p2=%#v err=%v", p2, err)
	}
	latest, ok := s.Get("n", 0)
	if !ok || latest.Body != "v2" {
		t.Fatalf("latest=%#v", latest)
	}
	old, ok := s.Get("n", 1)
	if !ok || old.Body != "v1" {
		t.Fatalf("old=%#v", old)
	}
	if got := s.List("n"); len(got) != 2 {
		t.Fatalf("list=%d", len(got))
	}
}

func TestSaveLintFailures(t *testing.T) {
	s := NewStore()
	_, issues, err := s.Save(Prompt{Name: "", Body: ""})
	if !errors.Is(err, ErrLintFailed) || len(issues) != 2 {
		t.Fatalf("issues=%v err=%v", issues, err)
	}
	_, issues, err = s.Save(Prompt{Name: "n", Body: "api key sk-abc123"})
	if !errors.Is(err, ErrLintFailed) || issues[0].Rule != "security.secrets" {
		t.Fatalf("issues=%v err=%v", issues, err)
	}
}

func TestRenderAnalysisPrompt(t *testing.T) {
	out, err := Render(DefaultAnalysisPrompt, AnalysisVars{
		Subject: "Widget X",
		Scope:   "sentiment_only",
		Tools: []ToolSummary{
			{Name: "sentiment", Description: "Analyzes customer sentiment"},
			{Name: "report", Description: "Synthesizes the final report"},
		},
		IncludeRecommendations: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`"sentiment_only"`,
		"- sentiment: Analyzes customer sentiment",
		`{"action":"invoke"`,
		"actionable recommendations",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("rendered prompt missing %q:\n%s", want, out)
		}
	}
}
