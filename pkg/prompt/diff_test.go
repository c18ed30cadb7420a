package prompt

import (
	"strings"
	"testing"
)

func TestUnifiedDiffEqualInputs(t *testing.T) {
	if d := UnifiedDiff("same\nbody", "same\nbody"); d != "" {
		t.Fatalf("diff=%q want empty", d)
	}
}

func TestUnifiedDiffMarksChangedLines(t *testing.T) {
	d := UnifiedDiff("keep\nold line\ntail", "keep\nnew line\ntail")
	for _, want := range []string{" keep\n", "-old line\n", "+new line\n", " tail\n"} {
		if !strings.Contains(d, want) {
			t.Fatalf("diff missing %q:\n%s", want, d)
		}
	}
}

func TestUnifiedDiffHandlesInsertionsAndDeletions(t *testing.T) {
	d := UnifiedDiff("a\nb", "a\nb\nc")
	if !strings.Contains(d, "+c\n") {
		t.Fatalf("missing appended line:\n%s", d)
	}
	d = UnifiedDiff("a\nb\nc", "a\nc")
	if !strings.Contains(d, "-b\n") {
		t.Fatalf("missing removed line:\n%s", d)
	}
}

func TestStoreDiffAcrossVersions(t *testing.T) {
	s := NewStore()
	if _, _, err := s.Save(Prompt{Name: "analysis", Body: "You analyze products."}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Save(Prompt{Name: "analysis", Body: "You analyze market positions."}); err != nil {
		t.Fatal(err)
	}

	d := s.Diff("analysis", 1, 2)
	if !strings.Contains(d, "-You analyze products.") || !strings.Contains(d, "+You analyze market positions.") {
		t.Fatalf("diff=%q", d)
	}

	if d := s.Diff("analysis", 1, 9); d != "" {
		t.Fatalf("unknown version: diff=%q want empty", d)
	}
	if d := s.Diff("missing", 1, 2); d != "" {
		t.Fatalf("unknown name: diff=%q want empty", d)
	}
}
