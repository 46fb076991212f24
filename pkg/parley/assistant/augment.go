package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/parleybot/parley/pkg/parley/channels"
)

// minSearchMessageLength keeps trivially short messages from triggering a
// web search.
const minSearchMessageLength = 12

// searchTriggers are phrases signaling a request for current information that
// the model's training data cannot answer.
var searchTriggers = []string{
	"search for", "look up", "find information",
	"current news", "current weather", "latest",
	"what's happening", "what is happening",
	"who's currently", "who is currently",
	"weather in", "temperature in", "today's",
	"who is the current", "who's the current",
	"recent", "breaking news",
	"how much does", "how much is", "price of", "cost of",
	"how expensive", "how cheap",
	"where is", "where can i find", "where to",
	"when will", "when does", "schedule for",
	"stock price", "exchange rate", "crypto price",
	"currently happening",
	"update on", "updates about", "changes to", "new version",
	"statistics", "data on", "numbers for",
}

// negativeSearchTriggers indicate the user is asking about local content,
// an attachment or earlier conversation, so a web search would be noise.
var negativeSearchTriggers = []string{
	"this document", "this file", "this pdf",
	"attached", "the content", "summarize this", "a document",
	"in the image", "in the picture", "in this attachment",
	"in the pdf", "in this text", "in the code", "in this file",
	"you just", "you said", "you mentioned", "earlier you",
	"above message", "previous message", "your last",
	"analyze this", "explain this", "review this",
	"what does this", "tell me about this",
}

// ShouldTriggerSearch applies the heuristic trigger rules to a message.
func ShouldTriggerSearch(text string) bool {
	if len(text) < minSearchMessageLength {
		return false
	}
	lower := strings.ToLower(text)

	triggered := false
	for _, t := range searchTriggers {
		if strings.Contains(lower, t) {
			triggered = true
			break
		}
	}
	if !triggered {
		return false
	}
	for _, n := range negativeSearchTriggers {
		if strings.Contains(lower, n) {
			return false
		}
	}
	return true
}

// FetchedURL holds one URL's extraction outcome. Text and Err are mutually
// exclusive.
type FetchedURL struct {
	URL  string
	Text string
	Err  error
}

// AugmentationPlan is everything gathered to enrich one message before
// inference.
type AugmentationPlan struct {
	// SearchResults is the formatted search block, empty when search did
	// not trigger or returned nothing.
	SearchResults string
	SearchQuery   string
	URLs          []FetchedURL
	Attachments   []AttachmentContent
}

// Empty reports whether the plan carries no enrichment at all.
func (p AugmentationPlan) Empty() bool {
	return p.SearchResults == "" && len(p.URLs) == 0 && len(p.Attachments) == 0
}

// Augmenter resolves which enrichment steps apply to a message and executes
// them. Every step degrades gracefully: a failed search or fetch leaves a
// gap or placeholder, never an error that blocks the pipeline.
type Augmenter struct {
	search      *SearchClient
	fetcher     *Fetcher
	attachments *AttachmentProcessor
	limiter     *RateLimiter
	logger      *slog.Logger
}

// NewAugmenter wires the augmentation steps together.
func NewAugmenter(search *SearchClient, fetcher *Fetcher, attachments *AttachmentProcessor, limiter *RateLimiter, logger *slog.Logger) *Augmenter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Augmenter{
		search:      search,
		fetcher:     fetcher,
		attachments: attachments,
		limiter:     limiter,
		logger:      logger.With("component", "augment"),
	}
}

// Resolve builds the augmentation plan for one message. Search, URL fetching
// and attachment ingestion are independent channels; each applies on its own
// merits. scopeKey identifies the rate-limit scope, usually the guild.
func (a *Augmenter) Resolve(ctx context.Context, msg channels.IncomingMessage, cfg GuildConfig, scopeKey string, dl downloader) AugmentationPlan {
	var plan AugmentationPlan

	if cfg.SearchEnabled && ShouldTriggerSearch(msg.Content) {
		if a.limiter.TryAcquire(scopeKey, "search") {
			plan.SearchQuery = msg.Content
			results, err := a.search.Search(ctx, msg.Content)
			if err != nil {
				a.logger.Warn("search failed, continuing without results", "error", err)
			} else {
				plan.SearchResults = results
			}
		} else {
			a.logger.Debug("search rate-limited", "scope", scopeKey,
				"retry_in", a.limiter.Remaining(scopeKey, "search"))
		}
	}

	urls := ExtractURLs(msg.Content)
	if len(urls) > 0 {
		plan.URLs = a.fetchAll(ctx, urls)
	}

	if len(msg.Attachments) > 0 && dl != nil {
		plan.Attachments = a.attachments.Process(ctx, dl, msg.Attachments)
	}

	return plan
}

// fetchAll retrieves every URL concurrently, preserving message order in the
// result slice.
func (a *Augmenter) fetchAll(ctx context.Context, urls []string) []FetchedURL {
	out := make([]FetchedURL, len(urls))
	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			text, err := a.fetcher.Fetch(ctx, u)
			out[i] = FetchedURL{URL: u, Text: text, Err: err}
			if err != nil {
				a.logger.Warn("url fetch failed", "url", u, "error", err)
			}
		}(i, u)
	}
	wg.Wait()
	return out
}

// Summaries renders short attachment descriptions for history storage, so a
// restored conversation still shows what files were shared.
func (p AugmentationPlan) Summaries() []string {
	if len(p.Attachments) == 0 {
		return nil
	}
	out := make([]string, 0, len(p.Attachments))
	for _, att := range p.Attachments {
		switch {
		case att.IsImage():
			out = append(out, fmt.Sprintf("image: %s", att.Filename))
		case att.Text != "":
			out = append(out, fmt.Sprintf("document: %s", att.Filename))
		default:
			out = append(out, fmt.Sprintf("unreadable: %s", att.Filename))
		}
	}
	return out
}
