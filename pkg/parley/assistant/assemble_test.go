package assistant

import (
	"errors"
	"strings"
	"testing"
)

func TestAssembleRequestOrdering(t *testing.T) {
	cfg := DefaultGuildConfig()
	cfg.SystemPrompt = "Be terse."
	history := []Turn{
		{Role: RoleUser, Content: "first question"},
		{Role: RoleAssistant, Content: "first answer"},
	}

	req := AssembleRequest(cfg, "default-model", history, "second question", AugmentationPlan{})

	if len(req.Messages) != 4 {
		t.Fatalf("got %d messages, want 4", len(req.Messages))
	}
	wantRoles := []string{"system", "user", "assistant", "user"}
	for i, msg := range req.Messages {
		if msg.Role != wantRoles[i] {
			t.Errorf("messages[%d].Role = %q, want %q", i, msg.Role, wantRoles[i])
		}
	}
	if req.Messages[0].Content != "Be terse." {
		t.Errorf("system content = %v", req.Messages[0].Content)
	}
	if req.Messages[3].Content != "second question" {
		t.Errorf("final user content = %v", req.Messages[3].Content)
	}
}

func TestAssembleRequestModelFallback(t *testing.T) {
	cfg := DefaultGuildConfig()

	req := AssembleRequest(cfg, "default-model", nil, "hi there", AugmentationPlan{})
	if req.Model != "default-model" {
		t.Errorf("Model = %q, want server default", req.Model)
	}

	cfg.SelectedModel = "guild-model"
	req = AssembleRequest(cfg, "default-model", nil, "hi there", AugmentationPlan{})
	if req.Model != "guild-model" {
		t.Errorf("Model = %q, want guild override", req.Model)
	}
}

func TestAssembleRequestSamplingSettings(t *testing.T) {
	cfg := DefaultGuildConfig()
	cfg.Temperature = 1.3
	cfg.MaxTokens = 512

	req := AssembleRequest(cfg, "m", nil, "hi", AugmentationPlan{})
	if req.Temperature != 1.3 {
		t.Errorf("Temperature = %v", req.Temperature)
	}
	if req.MaxTokens != 512 {
		t.Errorf("MaxTokens = %d", req.MaxTokens)
	}
}

func TestAssembleRequestDefaultSystemPrompt(t *testing.T) {
	req := AssembleRequest(DefaultGuildConfig(), "m", nil, "hi", AugmentationPlan{})
	if req.Messages[0].Content != DefaultSystemPrompt {
		t.Errorf("system content = %v, want default prompt", req.Messages[0].Content)
	}
}

func TestComposeUserTextSections(t *testing.T) {
	plan := AugmentationPlan{
		SearchResults: "1. Result title\n   https://example.com\n   snippet",
		URLs: []FetchedURL{
			{URL: "https://ok.example", Text: "extracted article"},
			{URL: "https://down.example", Err: errors.New("status 503")},
		},
		Attachments: []AttachmentContent{
			{Filename: "notes.txt", Text: "meeting notes"},
			{Filename: "huge.pdf", Placeholder: "[PDF too large: huge.pdf]"},
		},
	}

	got := composeUserText("what do these say?", plan)

	if !strings.HasPrefix(got, "what do these say?") {
		t.Errorf("user text should come first, got %q", got)
	}
	for _, want := range []string{
		"--- WEB SEARCH RESULTS ---",
		"--- END SEARCH RESULTS ---",
		"--- CONTENT FROM https://ok.example ---",
		"extracted article",
		"[Content from https://down.example could not be retrieved.]",
		"--- ATTACHED FILE: notes.txt ---",
		"meeting notes",
		"[PDF too large: huge.pdf]",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("composed text missing %q", want)
		}
	}

	searchIdx := strings.Index(got, "--- WEB SEARCH RESULTS ---")
	urlIdx := strings.Index(got, "--- CONTENT FROM")
	fileIdx := strings.Index(got, "--- ATTACHED FILE")
	if !(searchIdx < urlIdx && urlIdx < fileIdx) {
		t.Errorf("sections out of order: search=%d url=%d file=%d", searchIdx, urlIdx, fileIdx)
	}
}

func TestBuildUserMessageMultimodal(t *testing.T) {
	plan := AugmentationPlan{
		Attachments: []AttachmentContent{
			{Filename: "cat.png", ImageDataURL: "data:image/png;base64,AAAA"},
			{Filename: "notes.txt", Text: "plain notes"},
		},
	}

	msg := buildUserMessage("what's in the picture?", plan)
	parts, ok := msg.Content.([]ContentPart)
	if !ok {
		t.Fatalf("content type = %T, want []ContentPart", msg.Content)
	}
	if len(parts) != 2 {
		t.Fatalf("got %d parts, want 2", len(parts))
	}
	if parts[0].Type != "text" || !strings.Contains(parts[0].Text, "what's in the picture?") {
		t.Errorf("first part = %+v, want text part with user message", parts[0])
	}
	if !strings.Contains(parts[0].Text, "plain notes") {
		t.Error("text part should include the attached document content")
	}
	if parts[1].Type != "image_url" || parts[1].ImageURL == nil || parts[1].ImageURL.URL != "data:image/png;base64,AAAA" {
		t.Errorf("image part = %+v", parts[1])
	}
}

func TestBuildUserMessageTextOnly(t *testing.T) {
	msg := buildUserMessage("just text", AugmentationPlan{})
	if content, ok := msg.Content.(string); !ok || content != "just text" {
		t.Errorf("content = %#v, want plain string", msg.Content)
	}
}
