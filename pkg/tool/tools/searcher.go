// Package tools implements the market-analysis tool set: product data
// collection, competitor analysis, customer sentiment and report
// synthesis. Network access is isolated behind the Searcher interface so
// the tools stay testable and swappable.
package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// SearchResult is one entry of a web search results page.
type SearchResult struct {
	Title   string
	Snippet string
	URL     string
}

// Searcher retrieves search results for a query.
type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// SearchFunc adapts a function to the Searcher interface.
type SearchFunc func(ctx context.Context, query string) ([]SearchResult, error)

func (f SearchFunc) Search(ctx context.Context, query string) ([]SearchResult, error) {
	return f(ctx, query)
}

const defaultSearchEndpoint = "https://html.duckduckgo.com/html/"

// HTMLSearcher queries an HTML search endpoint and parses the result list.
type HTMLSearcher struct {
	endpoint string
	client   *http.Client
	agent    string
}

// HTMLSearcherOption configures an HTMLSearcher.
type HTMLSearcherOption func(*HTMLSearcher)

// WithEndpoint overrides the search endpoint.
func WithEndpoint(endpoint string) HTMLSearcherOption {
	return func(s *HTMLSearcher) {
		if endpoint != "" {
			s.endpoint = endpoint
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) HTMLSearcherOption {
	return func(s *HTMLSearcher) {
		if c != nil {
			s.client = c
		}
	}
}

// NewHTMLSearcher builds a searcher against an HTML results endpoint.
func NewHTMLSearcher(opts ...HTMLSearcherOption) *HTMLSearcher {
	s := &HTMLSearcher{
		endpoint: defaultSearchEndpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
		agent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search fetches and parses one results page.
func (s *HTMLSearcher) Search(ctx context.Context, query string) ([]SearchResult, error) {
	u := s.endpoint + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.agent)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: unexpected status %d", resp.StatusCode)
	}
	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("search: parse results: %w", err)
	}
	return parseResults(doc), nil
}

// parseResults walks the document collecting .result blocks with their
// .result__title, .result__snippet and .result__url children.
func parseResults(doc *html.Node) []SearchResult {
	var out []SearchResult
	for _, block := range findAll(doc, elementWithClass("result")) {
		r := SearchResult{
			Title:   textOfFirst(block, "result__title"),
			Snippet: textOfFirst(block, "result__snippet"),
			URL:     textOfFirst(block, "result__url"),
		}
		if r.Title == "" && r.Snippet == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

func elementWithClass(class string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		for _, a := range n.Attr {
			if a.Key != "class" {
				continue
			}
			for _, c := range strings.Fields(a.Val) {
				if c == class {
					return true
				}
			}
		}
		return false
	}
}

func findAll(n *html.Node, pred func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if pred(n) {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func textOfFirst(n *html.Node, class string) string {
	nodes := findAll(n, elementWithClass(class))
	if len(nodes) == 0 {
		return ""
	}
	return strings.TrimSpace(textContent(nodes[0]))
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
