package assistant

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const sampleDDGPage = `<html><body>
<div class="result">
  <a rel="nofollow" class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F&amp;rut=abc">The Go <b>Documentation</b></a>
  <a class="result__snippet" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F">Official Go documentation and guides.</a>
</div>
<div class="result">
  <a rel="nofollow" class="result__a" href="https://example.org/direct">Direct Link</a>
  <a class="result__snippet" href="https://example.org/direct">A result without the redirect wrapper.</a>
</div>
</body></html>`

func TestExtractDDGResults(t *testing.T) {
	results := extractDDGResults(sampleDDGPage)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	first := results[0]
	if first.Title != "The Go Documentation" {
		t.Errorf("title = %q, want %q", first.Title, "The Go Documentation")
	}
	if first.URL != "https://go.dev/doc/" {
		t.Errorf("redirect not unwrapped: url = %q", first.URL)
	}
	if first.Snippet != "Official Go documentation and guides." {
		t.Errorf("snippet = %q", first.Snippet)
	}

	second := results[1]
	if second.URL != "https://example.org/direct" {
		t.Errorf("direct url = %q", second.URL)
	}
	if second.Title != "Direct Link" {
		t.Errorf("title = %q", second.Title)
	}
}

func TestExtractDDGResultsEmpty(t *testing.T) {
	tests := []struct {
		name string
		html string
	}{
		{"blank page", ""},
		{"no result blocks", "<html><body><p>no results found</p></body></html>"},
		{"result without href", `<a class="result__a">Broken</a>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractDDGResults(tt.html); len(got) != 0 {
				t.Errorf("got %d results, want 0", len(got))
			}
		})
	}
}

func TestSearchFormatsResults(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Write([]byte(sampleDDGPage))
	}))
	defer srv.Close()

	s := NewSearchClient(time.Second, 1, nil)
	s.baseURL = srv.URL

	block, err := s.Search(context.Background(), "go documentation")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if gotQuery != "go documentation" {
		t.Errorf("query = %q", gotQuery)
	}
	if !strings.HasPrefix(block, "1. The Go Documentation") {
		t.Errorf("block should start with the first numbered result: %q", block)
	}
	// maxResults is 1, so the second parsed result must not appear.
	if strings.Contains(block, "Direct Link") {
		t.Errorf("block should respect the result cap: %q", block)
	}
}

func TestSearchNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>no results</p></body></html>"))
	}))
	defer srv.Close()

	s := NewSearchClient(time.Second, 3, nil)
	s.baseURL = srv.URL

	block, err := s.Search(context.Background(), "obscure query")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if block != "" {
		t.Errorf("empty result set should yield an empty block, got %q", block)
	}
}

func TestSearchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewSearchClient(time.Second, 3, nil)
	s.baseURL = srv.URL

	if _, err := s.Search(context.Background(), "anything"); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}

func TestStripHTMLTags(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"with <b>bold</b> words", "with bold words"},
		{"  padded  ", "padded"},
		{"<span>nested <em>tags</em></span>", "nested tags"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := stripHTMLTags(tt.in); got != tt.want {
			t.Errorf("stripHTMLTags(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
