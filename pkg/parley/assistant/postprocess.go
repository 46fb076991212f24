package assistant

import (
	"strings"
)

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// SplitReasoning separates reasoning spans delimited by <think>...</think>
// from the visible part of a model response. Multiple spans are all removed
// and concatenated into the reasoning return. An opening tag with no matching
// close swallows everything to the end of the text, since the model never
// surfaced a final answer after it. Both results are whitespace-trimmed.
func SplitReasoning(text string) (visible, reasoning string) {
	var vis, res strings.Builder
	for {
		start := strings.Index(text, thinkOpen)
		if start < 0 {
			vis.WriteString(text)
			break
		}
		vis.WriteString(text[:start])
		rest := text[start+len(thinkOpen):]
		end := strings.Index(rest, thinkClose)
		if end < 0 {
			// Unclosed tag: the remainder is all reasoning.
			res.WriteString(rest)
			break
		}
		res.WriteString(rest[:end])
		res.WriteString("\n")
		text = rest[end+len(thinkClose):]
	}
	return strings.TrimSpace(vis.String()), strings.TrimSpace(res.String())
}

// StripReasoning returns only the visible part of a model response.
func StripReasoning(text string) string {
	visible, _ := SplitReasoning(text)
	return visible
}

// TruncateRunes shortens text to at most max runes, never splitting a
// multi-byte character. A truncated result carries an ellipsis marker.
func TruncateRunes(text string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "…"
}

// EstimateTokens approximates the token count of a text for local models
// without shipping a tokenizer. ASCII characters weigh one, anything wider
// weighs four, and roughly four weight units make a token.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	weight := 0
	for _, r := range text {
		if r < 128 {
			weight++
		} else {
			weight += 4
		}
	}
	return (weight + 3) / 4
}
