package eval

import (
	"testing"
	"testing/fstest"
)

func TestEvaluatePromptFixtures(t *testing.T) {
	fsys := fstest.MapFS{
		"cases/greet.json": {Data: []byte(`{"name":"greet","prompt":"Hello {{.name}}","vars":{"name":"Ada"},"expect":{"contains":["Hello Ada"]}}`)},
		"cases/leak.json":  {Data: []byte(`{"name":"leak","prompt":"API key: {{.key}}","vars":{"key":"***"},"expect":{"not_contains":["sk-"]}}`)},
	}
	rep, err := EvaluatePromptFixtures(fsys, "cases")
	if err != nil {
		t.Fatal(err)
	}
	if rep.Total() != 2 || rep.Passed() != 2 || rep.Score() != 1 {
		t.Fatalf("total=%d passed=%d score=%v failures=%v", rep.Total(), rep.Passed(), rep.Score(), rep.Failures())
	}
}

func TestEvaluatePromptFixturesMissingVar(t *testing.T) {
	fsys := fstest.MapFS{
		"cases/x.json": {Data: []byte(`{"name":"x","prompt":"Hello {{.name}}","vars":{}}`)},
	}
	rep, err := EvaluatePromptFixtures(fsys, "cases")
	if err != nil {
		t.Fatal(err)
	}
	if rep.Total() != 1 || rep.Passed() != 0 || rep.Score() != 0 {
		t.Fatalf("expected render failure: total=%d passed=%d failures=%v", rep.Total(), rep.Passed(), rep.Failures())
	}
	if fails := rep.Failures(); len(fails) != 1 {
		t.Fatalf("failures=%v want one render failure", fails)
	}
}

func TestEvaluatePromptFixturesEmptyDir(t *testing.T) {
	fsys := fstest.MapFS{
		"cases/.keep": {Data: []byte{}},
	}
	rep, err := EvaluatePromptFixtures(fsys, "cases")
	if err != nil {
		t.Fatal(err)
	}
	if rep.Score() != 1 || rep.Total() != 0 {
		t.Fatalf("empty dir: total=%d score=%v", rep.Total(), rep.Score())
	}
}

func TestEvaluateAnalysisPromptFixture(t *testing.T) {
	fsys := fstest.MapFS{
		"cases/scope.json": {Data: []byte(`{
			"name": "scope",
			"prompt": "The requested scope is \"{{.Scope}}\".{{if .IncludeRecommendations}} Recommend.{{end}}",
			"vars": {"Scope": "product_only", "IncludeRecommendations": false},
			"expect": {"contains": ["product_only"], "not_contains": ["Recommend."]}
		}`)},
	}
	rep, err := EvaluatePromptFixtures(fsys, "cases")
	if err != nil {
		t.Fatal(err)
	}
	if rep.Score() != 1 {
		t.Fatalf("failures=%v", rep.Failures())
	}
}
