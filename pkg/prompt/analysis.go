package prompt

import (
	"fmt"
	"strings"
	"text/template"
)

// AnalysisPromptName is the store name of the oracle's system framing.
const AnalysisPromptName = "market-analysis/system"

// DefaultAnalysisPrompt is version 1 of the system framing handed to the
// oracle at run start. It describes the available tools, the decision
// protocol, and the requested scope.
const DefaultAnalysisPrompt = `You are an e-commerce market analysis agent.

Analyze the requested product using the available tools:
{{range .Tools}}- {{.Name}}: {{.Description}}
{{end}}
The requested scope is "{{.Scope}}". Only request tools permitted by the
scope; out-of-scope requests will be rejected and reported back to you.
Gather product data before competitor analysis when both are in scope
(competitor analysis uses the product category). Competitor and sentiment
lookups are independent; request them together so they run in parallel.
Finish by synthesizing a report from everything collected.
{{if .IncludeRecommendations}}Include actionable recommendations in the final report.
{{end}}
Reply with exactly one JSON object per turn, and nothing else:
  {"action":"invoke","tools":[{"name":"<tool>","args":{...}}]}
  {"action":"finish","answer":"<final report text>"}`

// ToolSummary names one tool for prompt rendering.
type ToolSummary struct {
	Name        string
	Description string
}

// AnalysisVars are the template variables of the analysis system prompt.
type AnalysisVars struct {
	Subject                string
	Scope                  string
	Tools                  []ToolSummary
	IncludeRecommendations bool
}

// Render executes a prompt body as a text/template with the given vars.
func Render(body string, vars any) (string, error) {
	t, err := template.New("prompt").Option("missingkey=error").Parse(body)
	if err != nil {
		return "", fmt.Errorf("prompt: parse: %w", err)
	}
	var b strings.Builder
	if err := t.Execute(&b, vars); err != nil {
		return "", fmt.Errorf("prompt: render: %w", err)
	}
	return b.String(), nil
}
