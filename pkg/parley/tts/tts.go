// Package tts provides text-to-speech synthesis for spoken replies in voice
// channels. Targets any OpenAI-compatible /audio/speech endpoint.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"
)

// Config holds the TTS endpoint settings.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	// Voice is the process-wide default; guilds can select their own.
	Voice string `yaml:"voice"`
}

// DefaultConfig returns the default TTS settings.
func DefaultConfig() Config {
	return Config{
		Enabled: false,
		BaseURL: "https://api.openai.com/v1",
		Model:   "tts-1",
		Voice:   "alloy",
	}
}

// Provider is the interface for TTS backends.
type Provider interface {
	// Synthesize converts text to audio. Returns audio bytes and their
	// MIME type.
	Synthesize(ctx context.Context, text, voice string) ([]byte, string, error)
}

// maxInputChars is the endpoint's input limit for a single synthesis call.
const maxInputChars = 4096

// OpenAIProvider implements TTS via an OpenAI-compatible speech API.
type OpenAIProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewOpenAIProvider creates a provider for the configured endpoint.
func NewOpenAIProvider(cfg Config, timeout time.Duration) *OpenAIProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "tts-1"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIProvider{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

// Synthesize converts text to audio. Requests Opus in an Ogg container,
// which Discord voice playback consumes directly.
func (p *OpenAIProvider) Synthesize(ctx context.Context, text, voice string) ([]byte, string, error) {
	if voice == "" {
		voice = "alloy"
	}
	if len(text) > maxInputChars {
		cut := maxInputChars - 3
		// Back up to a rune boundary so the cut never splits a character.
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}

	payload := map[string]any{
		"model":           p.model,
		"input":           text,
		"voice":           voice,
		"response_format": "opus",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("tts: marshal request: %w", err)
	}

	url := p.baseURL + "/audio/speech"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("tts: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("tts: API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, "", fmt.Errorf("tts: API returned %d: %s", resp.StatusCode, string(errBody))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("tts: reading audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, "", fmt.Errorf("tts: empty audio response")
	}

	return audio, "audio/ogg", nil
}

var _ Provider = (*OpenAIProvider)(nil)
