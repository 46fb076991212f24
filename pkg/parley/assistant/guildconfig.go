// Package assistant – guildconfig.go implements per-guild mutable settings.
// Every guild gets independent prompt, sampling, search, and voice settings;
// an absent entry behaves exactly like one populated with defaults. All
// mutation goes through validated store operations and is written through to
// disk so settings survive a restart.
package assistant

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// Default guild settings.
const (
	DefaultSystemPrompt = "You are a helpful assistant."
	DefaultTemperature  = 0.7
	DefaultMaxTokens    = -1 // -1 means unlimited
	DefaultVoice        = "alloy"
)

// AvailableVoices lists the TTS voices a guild can select.
var AvailableVoices = []string{"alloy", "echo", "fable", "nova", "onyx", "shimmer"}

// VoiceDescriptions maps each voice to a short description for the selector.
var VoiceDescriptions = map[string]string{
	"alloy":   "Neutral and balanced",
	"echo":    "Clear and expressive",
	"fable":   "Warm and engaging",
	"nova":    "Energetic and bright",
	"onyx":    "Deep and authoritative",
	"shimmer": "Soft and soothing",
}

// DebugLevel controls how verbose per-guild debug logging is.
type DebugLevel string

const (
	DebugInfo  DebugLevel = "info"
	DebugDebug DebugLevel = "debug"
)

// GuildConfig holds the mutable settings for one guild.
type GuildConfig struct {
	// SystemPrompt overrides the default system prompt. Empty = default.
	SystemPrompt string `yaml:"system_prompt,omitempty"`

	// Temperature is the sampling temperature, 0.0 to 2.0.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens limits response length. -1 means unlimited.
	MaxTokens int `yaml:"max_tokens"`

	// DebugEnabled turns on per-guild debug logging.
	DebugEnabled bool `yaml:"debug_enabled"`

	// DebugLevel is "info" or "debug".
	DebugLevel DebugLevel `yaml:"debug_level"`

	// SearchEnabled allows web search augmentation for this guild.
	SearchEnabled bool `yaml:"search_enabled"`

	// TTSEnabled allows speech synthesis for this guild.
	TTSEnabled bool `yaml:"tts_enabled"`

	// SelectedModel overrides the server default model. Empty = default.
	SelectedModel string `yaml:"selected_model,omitempty"`

	// SelectedVoice is the TTS voice.
	SelectedVoice string `yaml:"selected_voice"`

	// MonitoredChannels lists the channel IDs the bot responds in.
	// Empty means the bot stays silent in the guild until a channel is added.
	MonitoredChannels []string `yaml:"monitored_channels,omitempty"`

	// AdminRoleName is the role that may change settings, in addition to
	// users with the Administrator permission.
	AdminRoleName string `yaml:"admin_role_name,omitempty"`
}

// DefaultGuildConfig returns the settings a guild starts with.
func DefaultGuildConfig() GuildConfig {
	return GuildConfig{
		SystemPrompt:  "",
		Temperature:   DefaultTemperature,
		MaxTokens:     DefaultMaxTokens,
		DebugLevel:    DebugInfo,
		SearchEnabled: true,
		TTSEnabled:    true,
		SelectedVoice: DefaultVoice,
	}
}

// EffectiveSystemPrompt returns the custom prompt or the default.
func (g GuildConfig) EffectiveSystemPrompt() string {
	if g.SystemPrompt != "" {
		return g.SystemPrompt
	}
	return DefaultSystemPrompt
}

// GuildConfigStore owns the per-guild settings map. All mutation happens
// through its operations so range checks stay centrally enforced, and every
// successful mutation is written through to the YAML file.
type GuildConfigStore struct {
	path   string
	logger *slog.Logger

	mu     sync.RWMutex
	guilds map[string]GuildConfig
}

// NewGuildConfigStore creates a store backed by the given YAML file.
// An existing file is loaded; a missing one is treated as an empty store.
func NewGuildConfigStore(path string, logger *slog.Logger) (*GuildConfigStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &GuildConfigStore{
		path:   path,
		logger: logger.With("component", "guildconfig"),
		guilds: make(map[string]GuildConfig),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("guildconfig: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s.guilds); err != nil {
		return nil, fmt.Errorf("guildconfig: parsing %s: %w", path, err)
	}
	s.logger.Info("guild settings loaded", "guilds", len(s.guilds))
	return s, nil
}

// Get returns the settings for a guild. Never fails: an unknown guild gets
// defaults without creating an entry.
func (s *GuildConfigStore) Get(guildID string) GuildConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cfg, ok := s.guilds[guildID]; ok {
		return cfg
	}
	return DefaultGuildConfig()
}

// SetSystemPrompt updates the system prompt after validation.
func (s *GuildConfigStore) SetSystemPrompt(guildID, prompt string) error {
	if err := ValidateSystemPrompt(prompt); err != nil {
		return err
	}
	return s.update(guildID, func(cfg *GuildConfig) {
		cfg.SystemPrompt = prompt
	})
}

// SetTemperature updates the sampling temperature. Valid range is [0.0, 2.0].
func (s *GuildConfigStore) SetTemperature(guildID string, temp float64) error {
	if temp < 0.0 || temp > 2.0 {
		return &ConfigValidationError{Field: "temperature", Reason: "must be between 0.0 and 2.0"}
	}
	return s.update(guildID, func(cfg *GuildConfig) {
		cfg.Temperature = temp
	})
}

// SetMaxTokens updates the token limit. -1 means unlimited; any other
// non-positive value is rejected.
func (s *GuildConfigStore) SetMaxTokens(guildID string, tokens int) error {
	if tokens <= 0 && tokens != -1 {
		return &ConfigValidationError{Field: "max_tokens", Reason: "must be a positive integer or -1 (unlimited)"}
	}
	return s.update(guildID, func(cfg *GuildConfig) {
		cfg.MaxTokens = tokens
	})
}

// SetDebug updates debug logging for the guild.
func (s *GuildConfigStore) SetDebug(guildID string, enabled bool, level DebugLevel) error {
	if level != DebugInfo && level != DebugDebug {
		return &ConfigValidationError{Field: "debug_level", Reason: `must be "info" or "debug"`}
	}
	return s.update(guildID, func(cfg *GuildConfig) {
		cfg.DebugEnabled = enabled
		cfg.DebugLevel = level
	})
}

// SetSearchEnabled toggles web search augmentation.
func (s *GuildConfigStore) SetSearchEnabled(guildID string, enabled bool) error {
	return s.update(guildID, func(cfg *GuildConfig) {
		cfg.SearchEnabled = enabled
	})
}

// SetTTSEnabled toggles speech synthesis.
func (s *GuildConfigStore) SetTTSEnabled(guildID string, enabled bool) error {
	return s.update(guildID, func(cfg *GuildConfig) {
		cfg.TTSEnabled = enabled
	})
}

// SetModel selects the inference model. Empty string restores the server default.
func (s *GuildConfigStore) SetModel(guildID, model string) error {
	return s.update(guildID, func(cfg *GuildConfig) {
		cfg.SelectedModel = model
	})
}

// SetVoice selects the TTS voice.
func (s *GuildConfigStore) SetVoice(guildID, voice string) error {
	if !slices.Contains(AvailableVoices, voice) {
		return &ConfigValidationError{
			Field:  "selected_voice",
			Reason: "must be one of: alloy, echo, fable, nova, onyx, shimmer",
		}
	}
	return s.update(guildID, func(cfg *GuildConfig) {
		cfg.SelectedVoice = voice
	})
}

// SetAdminRole sets the bot-admin role name for the guild.
func (s *GuildConfigStore) SetAdminRole(guildID, role string) error {
	return s.update(guildID, func(cfg *GuildConfig) {
		cfg.AdminRoleName = role
	})
}

// AddMonitoredChannel adds a channel to the guild's monitored list.
// Returns false when the channel was already present.
func (s *GuildConfigStore) AddMonitoredChannel(guildID, channelID string) (bool, error) {
	added := false
	err := s.update(guildID, func(cfg *GuildConfig) {
		if slices.Contains(cfg.MonitoredChannels, channelID) {
			return
		}
		cfg.MonitoredChannels = append(cfg.MonitoredChannels, channelID)
		added = true
	})
	return added, err
}

// RemoveMonitoredChannel removes a channel from the guild's monitored list.
// Returns false when the channel was not present.
func (s *GuildConfigStore) RemoveMonitoredChannel(guildID, channelID string) (bool, error) {
	removed := false
	err := s.update(guildID, func(cfg *GuildConfig) {
		idx := slices.Index(cfg.MonitoredChannels, channelID)
		if idx < 0 {
			return
		}
		cfg.MonitoredChannels = slices.Delete(cfg.MonitoredChannels, idx, idx+1)
		removed = true
	})
	return removed, err
}

// IsChannelMonitored reports whether the bot responds in the given channel.
func (s *GuildConfigStore) IsChannelMonitored(guildID, channelID string) bool {
	return slices.Contains(s.Get(guildID).MonitoredChannels, channelID)
}

// ResetField restores one field to its default value.
func (s *GuildConfigStore) ResetField(guildID, field string) error {
	defaults := DefaultGuildConfig()
	return s.update(guildID, func(cfg *GuildConfig) {
		switch field {
		case "system_prompt":
			cfg.SystemPrompt = defaults.SystemPrompt
		case "temperature":
			cfg.Temperature = defaults.Temperature
		case "max_tokens":
			cfg.MaxTokens = defaults.MaxTokens
		case "debug":
			cfg.DebugEnabled = defaults.DebugEnabled
			cfg.DebugLevel = defaults.DebugLevel
		case "search_enabled":
			cfg.SearchEnabled = defaults.SearchEnabled
		case "tts_enabled":
			cfg.TTSEnabled = defaults.TTSEnabled
		case "selected_model":
			cfg.SelectedModel = defaults.SelectedModel
		case "selected_voice":
			cfg.SelectedVoice = defaults.SelectedVoice
		}
	})
}

// ResetAll restores every setting for a guild to defaults. The entry is kept
// (populated with defaults) rather than deleted, so the reset is observable
// in the persisted file.
func (s *GuildConfigStore) ResetAll(guildID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guilds[guildID] = DefaultGuildConfig()
	return s.saveLocked()
}

// Flush writes the current state to disk. Called on shutdown.
func (s *GuildConfigStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// update applies a mutation under the write lock and persists the result.
// The entry is created lazily from defaults on first mutation.
func (s *GuildConfigStore) update(guildID string, mutate func(*GuildConfig)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.guilds[guildID]
	if !ok {
		cfg = DefaultGuildConfig()
	}
	mutate(&cfg)
	s.guilds[guildID] = cfg

	if err := s.saveLocked(); err != nil {
		s.logger.Error("persisting guild settings failed", "guild", guildID, "err", err)
		return err
	}
	return nil
}

// saveLocked writes the whole map as YAML. Caller holds the write lock.
func (s *GuildConfigStore) saveLocked() error {
	data, err := yaml.Marshal(s.guilds)
	if err != nil {
		return fmt.Errorf("guildconfig: marshaling: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("guildconfig: creating data dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("guildconfig: writing %s: %w", s.path, err)
	}
	return nil
}
