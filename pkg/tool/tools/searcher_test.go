package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const resultsPage = `<html><body>
<div class="results">
  <div class="result results_links">
    <h2 class="result__title"><a href="#">iPhone 17 at $999</a></h2>
    <a class="result__snippet">In stock with fast shipping.</a>
    <span class="result__url">www.amazon.com/iphone-17</span>
  </div>
  <div class="result">
    <h2 class="result__title"><a href="#">Best iPhone 17 deals</a></h2>
    <a class="result__snippet">Compare prices across sellers.</a>
    <span class="result__url">www.bestbuy.com/site/iphone</span>
  </div>
  <div class="no-result">ignored</div>
</div>
</body></html>`

func TestHTMLSearcherParsesResults(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		_, _ = w.Write([]byte(resultsPage))
	}))
	t.Cleanup(srv.Close)

	s := NewHTMLSearcher(WithEndpoint(srv.URL), WithHTTPClient(srv.Client()))
	results, err := s.Search(context.Background(), "iPhone 17 price buy")
	if err != nil {
		t.Fatal(err)
	}
	if gotQuery != "iPhone 17 price buy" {
		t.Fatalf("query=%q", gotQuery)
	}
	if len(results) != 2 {
		t.Fatalf("results=%d want 2", len(results))
	}
	first := results[0]
	if first.Title != "iPhone 17 at $999" {
		t.Fatalf("title=%q", first.Title)
	}
	if first.Snippet != "In stock with fast shipping." {
		t.Fatalf("snippet=%q", first.Snippet)
	}
	if first.URL != "www.amazon.com/iphone-17" {
		t.Fatalf("url=%q", first.URL)
	}
}

func TestHTMLSearcherNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	s := NewHTMLSearcher(WithEndpoint(srv.URL), WithHTTPClient(srv.Client()))
	if _, err := s.Search(context.Background(), "anything"); err == nil {
		t.Fatal("want error on non-200 status")
	}
}
