package assistant

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/parleybot/parley/pkg/parley/channels"
)

// newDDGTestServer serves a canned result page the way the search endpoint
// would. Tests point the search client at it instead of the live endpoint.
func newDDGTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleDDGPage))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestShouldTriggerSearch(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"trigger phrase", "what's the latest news about the election", true},
		{"price question", "how much does a macbook cost these days", true},
		{"weather", "current weather in Lisbon please", true},
		{"mixed case", "Search For the new release notes", true},
		{"no trigger", "write me a short poem about autumn", false},
		{"too short", "latest?", false},
		{"exactly below threshold", "latest one", false},
		{"negative trigger wins", "search for the answer in this document", false},
		{"refers to attachment", "look up what the attached spreadsheet says", false},
		{"refers to conversation", "find information on what you said earlier. earlier you claimed otherwise", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldTriggerSearch(tt.text); got != tt.want {
				t.Errorf("ShouldTriggerSearch(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestExtractURLs(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"none", "no links here", nil},
		{"single", "see https://example.com/page for details", []string{"https://example.com/page"}},
		{"http and https", "http://a.example and https://b.example/x?q=1", []string{"http://a.example", "https://b.example/x?q=1"}},
		{"angle brackets excluded", "check <https://example.com>", []string{"https://example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractURLs(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("ExtractURLs(%q) = %v, want %v", tt.text, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("url[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestResolveSearchRateLimited(t *testing.T) {
	srv := newDDGTestServer(t)
	search := NewSearchClient(time.Second, 3, nil)
	search.baseURL = srv.URL
	limiter := NewRateLimiter(10 * time.Second)
	now := time.Now()
	limiter.now = func() time.Time { return now }

	a := NewAugmenter(search, NewFetcher(time.Second, 1000, nil), NewAttachmentProcessor(FilesConfig{}, nil), limiter, nil)
	cfg := DefaultGuildConfig()
	msg := channels.IncomingMessage{Content: "what's the latest news about fusion power"}

	first := a.Resolve(context.Background(), msg, cfg, "guild1", nil)
	if first.SearchQuery == "" {
		t.Error("first resolve should attempt search")
	}
	if first.SearchResults == "" {
		t.Error("first resolve should carry the formatted results")
	}

	now = now.Add(2 * time.Second)
	second := a.Resolve(context.Background(), msg, cfg, "guild1", nil)
	if second.SearchQuery != "" {
		t.Error("second resolve inside the cooldown window should skip search")
	}

	now = now.Add(9 * time.Second)
	third := a.Resolve(context.Background(), msg, cfg, "guild1", nil)
	if third.SearchQuery == "" {
		t.Error("resolve after the window should attempt search again")
	}
}

func TestResolveSearchDisabled(t *testing.T) {
	srv := newDDGTestServer(t)
	search := NewSearchClient(time.Second, 3, nil)
	search.baseURL = srv.URL
	limiter := NewRateLimiter(10 * time.Second)
	a := NewAugmenter(search, NewFetcher(time.Second, 1000, nil), NewAttachmentProcessor(FilesConfig{}, nil), limiter, nil)

	cfg := DefaultGuildConfig()
	cfg.SearchEnabled = false
	msg := channels.IncomingMessage{Content: "what's the latest news about fusion power"}

	plan := a.Resolve(context.Background(), msg, cfg, "guild1", nil)
	if plan.SearchQuery != "" {
		t.Error("disabled search should never be attempted")
	}
	if limiter.Remaining("guild1", "search") != 0 {
		t.Error("disabled search should not consume the rate-limit window")
	}
}

func TestAugmentationPlanEmpty(t *testing.T) {
	var plan AugmentationPlan
	if !plan.Empty() {
		t.Error("zero plan should be empty")
	}

	plan.SearchResults = "1. result"
	if plan.Empty() {
		t.Error("plan with search results should not be empty")
	}
}

func TestAugmentationPlanSummaries(t *testing.T) {
	plan := AugmentationPlan{Attachments: []AttachmentContent{
		{Filename: "cat.png", ImageDataURL: "data:image/png;base64,xxxx"},
		{Filename: "report.pdf", Text: "quarterly numbers"},
		{Filename: "blob.bin", Placeholder: "[Unsupported file type: blob.bin]"},
	}}

	got := plan.Summaries()
	want := []string{"image: cat.png", "document: report.pdf", "unreadable: blob.bin"}
	if len(got) != len(want) {
		t.Fatalf("summaries = %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("summary[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
