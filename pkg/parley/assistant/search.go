package assistant

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// defaultSearchURL is DuckDuckGo's HTML endpoint. It needs no API key, which
// matters for a self-hosted gateway.
const defaultSearchURL = "https://html.duckduckgo.com/html"

// SearchClient queries a DuckDuckGo-style HTML endpoint and formats results
// for prompt context.
type SearchClient struct {
	baseURL    string
	client     *http.Client
	maxResults int
	logger     *slog.Logger
}

// SearchResult is one parsed search hit.
type SearchResult struct {
	Title   string
	URL     string
	Snippet string
}

// NewSearchClient creates a search client with the given per-request timeout.
func NewSearchClient(timeout time.Duration, maxResults int, logger *slog.Logger) *SearchClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchClient{
		baseURL:    defaultSearchURL,
		client:     &http.Client{Timeout: timeout},
		maxResults: maxResults,
		logger:     logger.With("component", "search"),
	}
}

// Search runs the query and returns a numbered text block ready to embed in a
// prompt. An empty result set returns ("", nil) so callers can fall back to
// answering without search context.
func (s *SearchClient) Search(ctx context.Context, query string) (string, error) {
	searchURL := fmt.Sprintf("%s/?q=%s", s.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return "", fmt.Errorf("search: creating request: %w", err)
	}
	req.Header.Set("User-Agent", "Parley/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("search: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search: unexpected status %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 200*1024))
	results := extractDDGResults(string(body))
	if len(results) == 0 {
		s.logger.Debug("no search results", "query", query)
		return "", nil
	}

	var sb strings.Builder
	for i, r := range results {
		if i >= s.maxResults {
			break
		}
		fmt.Fprintf(&sb, "%d. %s\n   %s\n   %s\n\n", i+1, r.Title, r.URL, r.Snippet)
	}
	return strings.TrimSpace(sb.String()), nil
}

// extractDDGResults parses the DuckDuckGo HTML page for result blocks:
// <a class="result__a" href="...">Title</a> followed by a result__snippet.
func extractDDGResults(html string) []SearchResult {
	var results []SearchResult

	parts := strings.Split(html, "result__a")
	for _, part := range parts[1:] {
		var r SearchResult

		hrefIdx := strings.Index(part, "href=\"")
		if hrefIdx >= 0 {
			urlStart := hrefIdx + 6
			urlEnd := strings.Index(part[urlStart:], "\"")
			if urlEnd > 0 {
				r.URL = part[urlStart : urlStart+urlEnd]
				// DuckDuckGo wraps links in a redirect; unwrap the uddg param.
				if udIdx := strings.Index(r.URL, "uddg="); udIdx >= 0 {
					r.URL = r.URL[udIdx+5:]
					if ampIdx := strings.Index(r.URL, "&"); ampIdx >= 0 {
						r.URL = r.URL[:ampIdx]
					}
					if decoded, err := url.QueryUnescape(r.URL); err == nil {
						r.URL = decoded
					}
				}
			}
		}

		gtIdx := strings.Index(part, ">")
		if gtIdx >= 0 {
			closeIdx := strings.Index(part[gtIdx:], "</a>")
			if closeIdx > 0 {
				r.Title = stripHTMLTags(part[gtIdx+1 : gtIdx+closeIdx])
			}
		}

		snipIdx := strings.Index(part, "result__snippet")
		if snipIdx >= 0 {
			snipStart := strings.Index(part[snipIdx:], ">")
			if snipStart >= 0 {
				snipEnd := strings.Index(part[snipIdx+snipStart:], "</")
				if snipEnd > 0 {
					r.Snippet = stripHTMLTags(part[snipIdx+snipStart+1 : snipIdx+snipStart+snipEnd])
				}
			}
		}

		if r.Title != "" && r.URL != "" {
			results = append(results, r)
		}
	}

	return results
}

// stripHTMLTags removes markup, keeping only text content.
func stripHTMLTags(s string) string {
	var result strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}
