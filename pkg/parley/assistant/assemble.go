package assistant

import (
	"fmt"
	"strings"
)

// AssembleRequest builds the inference request for one message: the system
// prompt first, then the conversation context window, then the current user
// message enriched with whatever the augmentation plan gathered. Images ride
// along as multimodal content parts; everything else is delimited text.
func AssembleRequest(cfg GuildConfig, defaultModel string, history []Turn, userText string, plan AugmentationPlan) CompletionRequest {
	model := cfg.SelectedModel
	if model == "" {
		model = defaultModel
	}

	messages := make([]ChatMessage, 0, len(history)+2)
	messages = append(messages, ChatMessage{Role: "system", Content: cfg.EffectiveSystemPrompt()})

	for _, turn := range history {
		messages = append(messages, ChatMessage{Role: string(turn.Role), Content: turn.Content})
	}

	messages = append(messages, buildUserMessage(userText, plan))

	return CompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}
}

// buildUserMessage synthesizes the final user message. Text-only input stays
// a plain string; image attachments switch the content to multimodal parts.
func buildUserMessage(userText string, plan AugmentationPlan) ChatMessage {
	text := composeUserText(userText, plan)

	var images []AttachmentContent
	for _, att := range plan.Attachments {
		if att.IsImage() {
			images = append(images, att)
		}
	}
	if len(images) == 0 {
		return ChatMessage{Role: "user", Content: text}
	}

	parts := make([]ContentPart, 0, len(images)+1)
	parts = append(parts, ContentPart{Type: "text", Text: text})
	for _, img := range images {
		parts = append(parts, ContentPart{
			Type:     "image_url",
			ImageURL: &ImageURL{URL: img.ImageDataURL},
		})
	}
	return ChatMessage{Role: "user", Content: parts}
}

// composeUserText joins the raw message with delimited augmentation blocks.
// Each block is clearly fenced so the model can tell provided context from
// the user's own words.
func composeUserText(userText string, plan AugmentationPlan) string {
	var sb strings.Builder
	sb.WriteString(userText)

	if plan.SearchResults != "" {
		sb.WriteString("\n\n--- WEB SEARCH RESULTS ---\n")
		sb.WriteString(plan.SearchResults)
		sb.WriteString("\n--- END SEARCH RESULTS ---")
	}

	for _, u := range plan.URLs {
		if u.Err != nil {
			fmt.Fprintf(&sb, "\n\n[Content from %s could not be retrieved.]", u.URL)
			continue
		}
		fmt.Fprintf(&sb, "\n\n--- CONTENT FROM %s ---\n%s\n--- END CONTENT ---", u.URL, u.Text)
	}

	for _, att := range plan.Attachments {
		switch {
		case att.Placeholder != "":
			sb.WriteString("\n\n")
			sb.WriteString(att.Placeholder)
		case att.Text != "":
			fmt.Fprintf(&sb, "\n\n--- ATTACHED FILE: %s ---\n%s\n--- END FILE ---", att.Filename, att.Text)
		}
	}

	return sb.String()
}
