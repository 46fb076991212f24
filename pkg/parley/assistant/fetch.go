package assistant

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
)

// urlPattern matches http(s) URLs embedded in chat messages.
var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// ExtractURLs returns the URLs found in a message, in order of appearance.
func ExtractURLs(text string) []string {
	return urlPattern.FindAllString(text, -1)
}

// Fetcher retrieves web pages and reduces them to readable article text for
// prompt context.
type Fetcher struct {
	client   *http.Client
	maxChars int
	logger   *slog.Logger
}

// NewFetcher creates a fetcher with the given timeout and per-page character
// cap.
func NewFetcher(timeout time.Duration, maxChars int, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxChars: maxChars,
		logger:   logger.With("component", "fetch"),
	}
}

// Fetch downloads the page and extracts its main content, dropping
// navigation and boilerplate. The result is capped at the configured
// character limit.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("fetch: invalid url %q: %w", rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("fetch: creating request: %w", err)
	}
	req.Header.Set("User-Agent", "Parley/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch: %s returned status %d", parsed.Host, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "text/plain") {
		return "", fmt.Errorf("fetch: unsupported content type %q", contentType)
	}

	body := io.LimitReader(resp.Body, 5*1024*1024)

	article, err := readability.FromReader(body, parsed)
	if err != nil {
		return "", fmt.Errorf("fetch: extracting content from %s: %w", parsed.Host, err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return "", fmt.Errorf("fetch: no readable content at %s", parsed.Host)
	}

	if article.Title != "" {
		text = article.Title + "\n\n" + text
	}
	return TruncateRunes(text, f.maxChars), nil
}
