package prompt

import "strings"

// UnifiedDiff compares two prompt bodies line by line and renders the
// change in a minimal unified format, with unchanged lines kept as
// context. Equal inputs yield "".
func UnifiedDiff(a, b string) string {
	if a == b {
		return ""
	}
	al := strings.Split(a, "\n")
	bl := strings.Split(b, "\n")

	// Longest common subsequence over lines. Prompt bodies are small,
	// so the quadratic table is acceptable.
	lcs := make([][]int, len(al)+1)
	for i := range lcs {
		lcs[i] = make([]int, len(bl)+1)
	}
	for i := len(al) - 1; i >= 0; i-- {
		for j := len(bl) - 1; j >= 0; j-- {
			if al[i] == bl[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else {
				lcs[i][j] = max(lcs[i+1][j], lcs[i][j+1])
			}
		}
	}

	var sb strings.Builder
	sb.WriteString("--- a\n+++ b\n")
	i, j := 0, 0
	for i < len(al) && j < len(bl) {
		switch {
		case al[i] == bl[j]:
			sb.WriteString(" " + al[i] + "\n")
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			sb.WriteString("-" + al[i] + "\n")
			i++
		default:
			sb.WriteString("+" + bl[j] + "\n")
			j++
		}
	}
	for ; i < len(al); i++ {
		sb.WriteString("-" + al[i] + "\n")
	}
	for ; j < len(bl); j++ {
		sb.WriteString("+" + bl[j] + "\n")
	}
	return sb.String()
}

// Diff renders the change between two stored versions of a prompt.
// Unknown names or versions yield "".
func (s *Store) Diff(name string, from, to int) string {
	older, ok := s.Get(name, from)
	if !ok {
		return ""
	}
	newer, ok := s.Get(name, to)
	if !ok {
		return ""
	}
	return UnifiedDiff(older.Body, newer.Body)
}
