// Package assistant – config.go defines all configuration structures for the
// Parley gateway. The Config built here is immutable after startup and passed
// by reference into the components that need it; per-guild mutable settings
// live in the GuildConfigStore instead.
package assistant

import (
	"fmt"
	"path/filepath"

	"github.com/parleybot/parley/pkg/parley/tts"
)

// Config holds all gateway configuration.
type Config struct {
	// Name is the assistant name shown in logs and the setup wizard.
	Name string `yaml:"name"`

	// DataDir is the base directory for persisted state (guild config,
	// stats, conversation database).
	DataDir string `yaml:"data_dir"`

	// API configures the local inference server endpoint.
	API APIConfig `yaml:"api"`

	// Discord configures the Discord gateway.
	Discord DiscordConfig `yaml:"discord"`

	// Gateway configures message acceptance rules.
	Gateway GatewayConfig `yaml:"gateway"`

	// Search configures the web search augmentation.
	Search SearchConfig `yaml:"search"`

	// Files configures attachment ingestion limits.
	Files FilesConfig `yaml:"files"`

	// History configures conversation history bounds and persistence.
	History HistoryConfig `yaml:"history"`

	// Timeouts bounds every external call the pipeline makes.
	Timeouts TimeoutConfig `yaml:"timeouts"`

	// TTS configures speech synthesis.
	TTS tts.Config `yaml:"tts"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig configures the inference server connection.
// Any OpenAI-compatible server works (LM Studio, llama.cpp, Ollama, vLLM).
type APIConfig struct {
	// BaseURL is the chat completions endpoint base (default: "http://localhost:1234/v1").
	BaseURL string `yaml:"base_url"`

	// APIKey is the bearer token. Local servers usually accept anything.
	APIKey string `yaml:"api_key"`

	// DefaultModel is sent when a guild has not selected a model.
	// Most local servers treat an unknown model name as "whatever is loaded".
	DefaultModel string `yaml:"default_model"`
}

// DiscordConfig configures the Discord connection.
type DiscordConfig struct {
	// Token is the Discord bot token. Resolved via keyring/env when empty.
	Token string `yaml:"token"`

	// SendTyping sends "typing..." indicators while processing.
	SendTyping bool `yaml:"send_typing"`
}

// GatewayConfig configures which messages the pipeline accepts.
type GatewayConfig struct {
	// AllowDMs enables responding to direct messages.
	AllowDMs bool `yaml:"allow_dms"`

	// IgnoreBots drops messages authored by other automated accounts.
	IgnoreBots bool `yaml:"ignore_bots"`
}

// SearchConfig configures the web search augmentation step.
type SearchConfig struct {
	// MaxResults is the maximum number of search results to include (default: 5).
	MaxResults int `yaml:"max_results"`

	// CooldownSeconds is the per-guild minimum interval between searches (default: 10).
	CooldownSeconds int `yaml:"cooldown_seconds"`

	// MaxURLChars caps extracted text per fetched URL (default: 60000).
	MaxURLChars int `yaml:"max_url_chars"`
}

// FilesConfig configures attachment ingestion. Sizes are in megabytes to match
// how operators think about Discord upload limits.
type FilesConfig struct {
	// AllowImages enables image attachment ingestion.
	AllowImages bool `yaml:"allow_images"`

	// MaxImageSizeMB is the maximum accepted image size (default: 10).
	MaxImageSizeMB int `yaml:"max_image_size_mb"`

	// AllowText enables text file attachment ingestion.
	AllowText bool `yaml:"allow_text"`

	// MaxTextSizeMB is the maximum accepted text file size (default: 5).
	MaxTextSizeMB int `yaml:"max_text_size_mb"`

	// AllowPDF enables PDF attachment ingestion.
	AllowPDF bool `yaml:"allow_pdf"`

	// MaxPDFSizeMB is the maximum accepted PDF size (default: 20).
	MaxPDFSizeMB int `yaml:"max_pdf_size_mb"`

	// MaxPDFChars caps extracted text per PDF (default: 40000).
	MaxPDFChars int `yaml:"max_pdf_chars"`
}

// HistoryConfig configures conversation history.
type HistoryConfig struct {
	// MaxMessages is the hard bound on stored turns per chat (default: 100).
	MaxMessages int `yaml:"max_messages"`

	// ContextMessages is how many trailing turns are sent to the model (default: 20).
	ContextMessages int `yaml:"context_messages"`

	// InactivityDays is how long an idle conversation is kept in memory
	// before the pruner drops it (default: 30).
	InactivityDays int `yaml:"inactivity_days"`
}

// TimeoutConfig bounds all external calls. Values are seconds.
type TimeoutConfig struct {
	// Inference is the chat completion timeout (default: 300; local models are slow).
	Inference int `yaml:"inference"`

	// Search is the web search timeout (default: 15).
	Search int `yaml:"search"`

	// Fetch is the per-URL fetch/extract timeout (default: 20).
	Fetch int `yaml:"fetch"`

	// TTS is the speech synthesis timeout (default: 60).
	TTS int `yaml:"tts"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error").
	Level string `yaml:"level"`

	// Format is the log format ("json", "text").
	Format string `yaml:"format"`
}

// DefaultConfig returns the default gateway configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "Parley",
		DataDir: "./data",
		API: APIConfig{
			BaseURL:      "http://localhost:1234/v1",
			DefaultModel: "local-model",
		},
		Discord: DiscordConfig{
			SendTyping: true,
		},
		Gateway: GatewayConfig{
			AllowDMs:   true,
			IgnoreBots: true,
		},
		Search: SearchConfig{
			MaxResults:      5,
			CooldownSeconds: 10,
			MaxURLChars:     60000,
		},
		Files: FilesConfig{
			AllowImages:    true,
			MaxImageSizeMB: 10,
			AllowText:      true,
			MaxTextSizeMB:  5,
			AllowPDF:       true,
			MaxPDFSizeMB:   20,
			MaxPDFChars:    40000,
		},
		History: HistoryConfig{
			MaxMessages:     100,
			ContextMessages: 20,
			InactivityDays:  30,
		},
		Timeouts: TimeoutConfig{
			Inference: 300,
			Search:    15,
			Fetch:     20,
			TTS:       60,
		},
		TTS: tts.Config{
			Voice: "alloy",
			Model: "tts-1",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks the configuration for values that would break at runtime.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("config: api.base_url is required")
	}
	if c.History.MaxMessages <= 0 {
		return fmt.Errorf("config: history.max_messages must be positive")
	}
	if c.History.ContextMessages <= 0 {
		return fmt.Errorf("config: history.context_messages must be positive")
	}
	if c.History.ContextMessages > c.History.MaxMessages {
		return fmt.Errorf("config: history.context_messages (%d) exceeds max_messages (%d)",
			c.History.ContextMessages, c.History.MaxMessages)
	}
	if c.Search.CooldownSeconds < 0 {
		return fmt.Errorf("config: search.cooldown_seconds cannot be negative")
	}
	return nil
}

// GuildConfigPath returns the path of the persisted guild settings file.
func (c *Config) GuildConfigPath() string {
	return filepath.Join(c.DataDir, "guilds.yaml")
}

// StatsPath returns the path of the persisted statistics file.
func (c *Config) StatsPath() string {
	return filepath.Join(c.DataDir, "stats.yaml")
}

// HistoryDBPath returns the path of the conversation history database.
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.DataDir, "conversations.db")
}
