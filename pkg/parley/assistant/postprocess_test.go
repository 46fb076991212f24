package assistant

import (
	"strings"
	"testing"
)

func TestSplitReasoning(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		wantVisible   string
		wantReasoning string
	}{
		{
			name:        "no markup",
			input:       "Just a plain answer.",
			wantVisible: "Just a plain answer.",
		},
		{
			name:          "single span",
			input:         "<think>step one, step two</think>The answer is 42.",
			wantVisible:   "The answer is 42.",
			wantReasoning: "step one, step two",
		},
		{
			name:          "multiple spans",
			input:         "<think>first</think>Part one. <think>second</think>Part two.",
			wantVisible:   "Part one. Part two.",
			wantReasoning: "first\nsecond",
		},
		{
			name:          "unclosed tag swallows the rest",
			input:         "Before. <think>never closed, keeps going",
			wantVisible:   "Before.",
			wantReasoning: "never closed, keeps going",
		},
		{
			name:        "empty input",
			input:       "",
			wantVisible: "",
		},
		{
			name:          "only reasoning",
			input:         "<think>all internal</think>",
			wantVisible:   "",
			wantReasoning: "all internal",
		},
		{
			name:        "surrounding whitespace trimmed",
			input:       "  \n<think>x</think>  answer  \n",
			wantVisible: "answer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			visible, reasoning := SplitReasoning(tt.input)
			if visible != tt.wantVisible {
				t.Errorf("visible = %q, want %q", visible, tt.wantVisible)
			}
			if tt.wantReasoning != "" && reasoning != tt.wantReasoning {
				t.Errorf("reasoning = %q, want %q", reasoning, tt.wantReasoning)
			}
		})
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := TruncateRunes("hello", 10); got != "hello" {
		t.Errorf("short text changed: %q", got)
	}
	if got := TruncateRunes("hello world", 5); got != "hello…" {
		t.Errorf("got %q, want %q", got, "hello…")
	}

	// Multi-byte characters must never be split.
	text := strings.Repeat("á", 10)
	got := TruncateRunes(text, 4)
	if got != strings.Repeat("á", 4)+"…" {
		t.Errorf("multi-byte truncation produced %q", got)
	}

	if got := TruncateRunes("anything", 0); got != "" {
		t.Errorf("zero max should return empty, got %q", got)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"abcd", 1},
		{"abcde", 2},
		{"世", 1},
		{"世界", 2},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.input); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}
