package tools

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var wordPattern = regexp.MustCompile(`\b[a-z]{4,}\b`)

// wordFrequencies counts words of four letters or more, skipping the
// given stopwords.
func wordFrequencies(text string, stopwords map[string]bool) map[string]int {
	freq := make(map[string]int)
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if stopwords[w] {
			continue
		}
		freq[w]++
	}
	return freq
}

// topWords returns the n most frequent words, ties broken alphabetically
// so the result is deterministic.
func topWords(freq map[string]int, n int) []string {
	type wc struct {
		word  string
		count int
	}
	ranked := make([]wc, 0, len(freq))
	for w, c := range freq {
		ranked = append(ranked, wc{w, c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].word < ranked[j].word
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.word
	}
	return out
}

// title upper-cases the first letter of each word.
func title(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// asMap round-trips a struct through JSON so tool outputs match the
// schemas derived from the same struct.
func asMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool output: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode tool output: %w", err)
	}
	return m, nil
}

func round1(f float64) float64 { return float64(int(f*10+0.5)) / 10 }

func round2(f float64) float64 { return float64(int(f*100+0.5)) / 100 }
