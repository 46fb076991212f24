// Package assistant – llm.go implements the chat completions client.
// Uses the OpenAI-compatible API format, which works with LM Studio, Ollama,
// vLLM, and any compatible local endpoint.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// LLMClient handles communication with the inference endpoint.
type LLMClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewLLMClient creates a client for the configured endpoint. No global HTTP
// timeout is set; each call carries its own context deadline.
func NewLLMClient(cfg APIConfig, logger *slog.Logger) *LLMClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:1234/v1"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:          10,
				MaxIdleConnsPerHost:   5,
				IdleConnTimeout:       120 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 300 * time.Second,
			},
		},
		logger: logger.With("component", "llm"),
	}
}

// ---------- Wire Types (OpenAI-compatible) ----------

// ContentPart is a single part of multimodal message content. Used for
// vision: {"type":"text","text":"..."} and
// {"type":"image_url","image_url":{"url":"data:..."}}.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL holds the URL (including data: URLs) for vision content.
type ImageURL struct {
	URL string `json:"url"`
}

// ChatMessage is a message in the OpenAI chat format. Content is either a
// string or []ContentPart for multimodal messages.
type ChatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// chatRequest is the chat completions request body.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

// chatResponse is the chat completions response body.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// CompletionRequest is the assembled input for one inference call.
type CompletionRequest struct {
	Model    string
	Messages []ChatMessage
	// Temperature in [0, 2].
	Temperature float64
	// MaxTokens caps the response length; -1 means no cap (omitted from
	// the wire request).
	MaxTokens int
}

// CompletionResponse holds the parsed result of one inference call.
type CompletionResponse struct {
	Content      string
	FinishReason string
	Usage        TokenUsage
}

// TokenUsage holds token counts as reported by the endpoint.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Complete sends one chat completion request and returns the parsed response.
// Context cancellation and deadline expiry surface as wrapped errors the
// caller can classify.
func (c *LLMClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	body := chatRequest{
		Model:    req.Model,
		Messages: req.Messages,
	}
	t := req.Temperature
	body.Temperature = &t
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		body.MaxTokens = &mt
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("llm: marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("llm: creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Debug("sending chat completion",
		"model", req.Model,
		"messages", len(req.Messages),
		"temperature", req.Temperature,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &PipelineError{Kind: FailureTimeout, Err: fmt.Errorf("llm: request timed out: %w", err)}
		}
		return nil, &PipelineError{Kind: FailureInference, Err: fmt.Errorf("llm: request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &PipelineError{Kind: FailureInference, Err: fmt.Errorf("llm: reading response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &PipelineError{
			Kind: FailureInference,
			Err:  fmt.Errorf("llm: API returned %d: %s", resp.StatusCode, truncateForLog(string(respBody), 200)),
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &PipelineError{Kind: FailureInference, Err: fmt.Errorf("llm: parsing response: %w", err)}
	}
	if parsed.Error != nil {
		return nil, &PipelineError{Kind: FailureInference, Err: fmt.Errorf("llm: API error: %s", parsed.Error.Message)}
	}
	if len(parsed.Choices) == 0 {
		return nil, &PipelineError{Kind: FailureInference, Err: errors.New("llm: response contained no choices")}
	}

	result := &CompletionResponse{
		Content:      parsed.Choices[0].Message.Content,
		FinishReason: parsed.Choices[0].FinishReason,
		Usage: TokenUsage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
	}

	c.logger.Info("chat completion done",
		"model", req.Model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", result.Usage.PromptTokens,
		"completion_tokens", result.Usage.CompletionTokens,
		"finish_reason", result.FinishReason,
	)
	return result, nil
}

// ListModels queries the endpoint for its available model identifiers.
func (c *LLMClient) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("llm: creating request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm: listing models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("llm: models endpoint returned %d: %s", resp.StatusCode, truncateForLog(string(body), 200))
	}

	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("llm: parsing models response: %w", err)
	}

	models := make([]string, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		models = append(models, m.ID)
	}
	return models, nil
}

// truncateForLog shortens text for log and error output.
func truncateForLog(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
