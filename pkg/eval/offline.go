// Package eval provides offline evaluation tooling: fixture-driven prompt
// checks and replay of recorded runs.
package eval

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/wilhg/scout/pkg/prompt"
)

// Fixture is one prompt check: a template, the variables to render it
// with, and substring expectations on the rendered output.
type Fixture struct {
	Name   string         `json:"name"`
	Prompt string         `json:"prompt"`
	Vars   map[string]any `json:"vars"`
	Expect Expectation    `json:"expect"`
}

// Expectation lists substrings the rendered prompt must and must not
// contain.
type Expectation struct {
	Contains    []string `json:"contains,omitempty"`
	NotContains []string `json:"not_contains,omitempty"`
}

// Result is the outcome of a single fixture. A render failure counts as
// one failure; otherwise every unmet expectation adds one.
type Result struct {
	Fixture  string
	Passed   bool
	Failures []string
}

// Report aggregates the results of one evaluation pass.
type Report struct {
	Results []Result
}

// Total is the number of fixtures evaluated.
func (r Report) Total() int { return len(r.Results) }

// Passed counts fixtures with no failures.
func (r Report) Passed() int {
	n := 0
	for _, res := range r.Results {
		if res.Passed {
			n++
		}
	}
	return n
}

// Score is the passing fraction in [0,1]. An empty report scores 1.
func (r Report) Score() float64 {
	if len(r.Results) == 0 {
		return 1
	}
	return float64(r.Passed()) / float64(len(r.Results))
}

// Failures flattens every failure message, prefixed with its fixture name.
func (r Report) Failures() []string {
	var out []string
	for _, res := range r.Results {
		for _, f := range res.Failures {
			out = append(out, res.Fixture+": "+f)
		}
	}
	return out
}

// EvaluatePromptFixtures renders every .json fixture found directly under
// dir and checks its expectations.
func EvaluatePromptFixtures(fsys fs.FS, dir string) (Report, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return Report{}, err
	}
	var rep Report
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		raw, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return Report{}, err
		}
		var fx Fixture
		if err := json.Unmarshal(raw, &fx); err != nil {
			return Report{}, fmt.Errorf("fixture %s: %w", e.Name(), err)
		}
		rep.Results = append(rep.Results, checkFixture(fx))
	}
	return rep, nil
}

func checkFixture(fx Fixture) Result {
	res := Result{Fixture: fx.Name}
	out, err := prompt.Render(fx.Prompt, fx.Vars)
	if err != nil {
		res.Failures = append(res.Failures, "render: "+err.Error())
		return res
	}
	for _, want := range fx.Expect.Contains {
		if !strings.Contains(out, want) {
			res.Failures = append(res.Failures, fmt.Sprintf("missing %q", want))
		}
	}
	for _, banned := range fx.Expect.NotContains {
		if strings.Contains(out, banned) {
			res.Failures = append(res.Failures, fmt.Sprintf("forbidden %q", banned))
		}
	}
	res.Passed = len(res.Failures) == 0
	return res
}
