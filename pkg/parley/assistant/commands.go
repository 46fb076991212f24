// Package assistant – commands.go is the channel-agnostic command surface.
// Each operation maps to one store mutation or query; the Discord adapter
// and the terminal client both dispatch here and render the returned text.
package assistant

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Commander executes administrative and conversational commands.
type Commander struct {
	guilds   *GuildConfigStore
	sessions *ConversationStore
	stats    *StatsStore
	llm      *LLMClient
}

// NewCommander wires the command surface to the stores.
func NewCommander(guilds *GuildConfigStore, sessions *ConversationStore, stats *StatsStore, llm *LLMClient) *Commander {
	return &Commander{guilds: guilds, sessions: sessions, stats: stats, llm: llm}
}

// ---------- History ----------

// ResetHistory clears the conversation for a chat.
func (c *Commander) ResetHistory(chatID string) string {
	c.sessions.Clear(chatID)
	return "Conversation history cleared."
}

// ClearLast removes the most recent exchange from the conversation.
func (c *Commander) ClearLast(chatID string) string {
	removed := c.sessions.ClearLast(chatID)
	if removed == 0 {
		return "Nothing to remove: the conversation is empty."
	}
	return fmt.Sprintf("Removed the last exchange (%d message(s)).", removed)
}

// ShowHistory renders the recent conversation turns.
func (c *Commander) ShowHistory(chatID string) string {
	turns := c.sessions.ContextWindow(chatID)
	if len(turns) == 0 {
		return "No conversation history for this channel."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Last %d message(s):\n", len(turns))
	for _, t := range turns {
		role := "User"
		if t.Role == RoleAssistant {
			role = "Assistant"
		}
		fmt.Fprintf(&sb, "**%s**: %s\n", role, TruncateRunes(t.Content, 200))
	}
	return sb.String()
}

// ---------- Statistics ----------

// ShowStats renders the channel's usage counters.
func (c *Commander) ShowStats(chatID string) string {
	return c.stats.Summary(chatID)
}

// ResetStats zeroes the channel's usage counters.
func (c *Commander) ResetStats(chatID string) string {
	c.stats.Reset(chatID)
	return "Statistics reset for this channel."
}

// ---------- Configuration ----------

// ShowConfig renders the guild's effective settings.
func (c *Commander) ShowConfig(guildID string) string {
	cfg := c.guilds.Get(guildID)

	model := cfg.SelectedModel
	if model == "" {
		model = "(server default)"
	}
	maxTokens := strconv.Itoa(cfg.MaxTokens)
	if cfg.MaxTokens == -1 {
		maxTokens = "unlimited"
	}

	var sb strings.Builder
	sb.WriteString("**Current configuration**\n")
	fmt.Fprintf(&sb, "System prompt: %s\n", TruncateRunes(cfg.EffectiveSystemPrompt(), 300))
	fmt.Fprintf(&sb, "Temperature: %.2f\n", cfg.Temperature)
	fmt.Fprintf(&sb, "Max tokens: %s\n", maxTokens)
	fmt.Fprintf(&sb, "Model: %s\n", model)
	fmt.Fprintf(&sb, "Voice: %s\n", cfg.SelectedVoice)
	fmt.Fprintf(&sb, "Search enabled: %t\n", cfg.SearchEnabled)
	fmt.Fprintf(&sb, "TTS enabled: %t\n", cfg.TTSEnabled)
	fmt.Fprintf(&sb, "Debug: %t (%s)\n", cfg.DebugEnabled, cfg.DebugLevel)
	if len(cfg.MonitoredChannels) > 0 {
		fmt.Fprintf(&sb, "Monitored channels: %s\n", strings.Join(cfg.MonitoredChannels, ", "))
	}
	return sb.String()
}

// SetSystemPrompt updates the guild's system prompt after validation.
func (c *Commander) SetSystemPrompt(guildID, prompt string) string {
	if err := c.guilds.SetSystemPrompt(guildID, prompt); err != nil {
		return err.Error()
	}
	return "System prompt updated."
}

// SetTemperature parses and applies a sampling temperature.
func (c *Commander) SetTemperature(guildID, raw string) string {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return "Temperature must be a number between 0.0 and 2.0."
	}
	if err := c.guilds.SetTemperature(guildID, v); err != nil {
		return err.Error()
	}
	return fmt.Sprintf("Temperature set to %.2f.", v)
}

// SetMaxTokens parses and applies a response token cap. -1 means unlimited.
func (c *Commander) SetMaxTokens(guildID, raw string) string {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return "Max tokens must be a positive integer, or -1 for unlimited."
	}
	if err := c.guilds.SetMaxTokens(guildID, v); err != nil {
		return err.Error()
	}
	if v == -1 {
		return "Max tokens set to unlimited."
	}
	return fmt.Sprintf("Max tokens set to %d.", v)
}

// SetSearch toggles web search for the guild.
func (c *Commander) SetSearch(guildID string, enabled bool) string {
	if err := c.guilds.SetSearchEnabled(guildID, enabled); err != nil {
		return err.Error()
	}
	if enabled {
		return "Web search enabled."
	}
	return "Web search disabled."
}

// SetTTS toggles speech synthesis for the guild.
func (c *Commander) SetTTS(guildID string, enabled bool) string {
	if err := c.guilds.SetTTSEnabled(guildID, enabled); err != nil {
		return err.Error()
	}
	if enabled {
		return "Text-to-speech enabled."
	}
	return "Text-to-speech disabled."
}

// SetDebug toggles per-guild debug output.
func (c *Commander) SetDebug(guildID string, enabled bool, level string) string {
	lvl := DebugLevel(level)
	if level == "" {
		lvl = DebugInfo
	}
	if err := c.guilds.SetDebug(guildID, enabled, lvl); err != nil {
		return err.Error()
	}
	if enabled {
		return fmt.Sprintf("Debug mode enabled (level: %s).", lvl)
	}
	return "Debug mode disabled."
}

// ResetConfigField restores one setting to its default.
func (c *Commander) ResetConfigField(guildID, field string) string {
	if err := c.guilds.ResetField(guildID, field); err != nil {
		return err.Error()
	}
	return fmt.Sprintf("Setting %q reset to default.", field)
}

// ResetConfig restores every guild setting to its default.
func (c *Commander) ResetConfig(guildID string) string {
	if err := c.guilds.ResetAll(guildID); err != nil {
		return err.Error()
	}
	return "All settings reset to defaults."
}

// ---------- Model ----------

// ListModels queries the inference endpoint for available models.
func (c *Commander) ListModels(ctx context.Context) string {
	models, err := c.llm.ListModels(ctx)
	if err != nil {
		return "Could not reach the inference endpoint to list models."
	}
	if len(models) == 0 {
		return "The inference endpoint reports no loaded models."
	}
	var sb strings.Builder
	sb.WriteString("**Available models**\n")
	for _, m := range models {
		fmt.Fprintf(&sb, "- %s\n", m)
	}
	return sb.String()
}

// SelectModel sets the guild's model, verifying it exists on the endpoint
// when the endpoint is reachable.
func (c *Commander) SelectModel(ctx context.Context, guildID, model string) string {
	model = strings.TrimSpace(model)
	if model == "" {
		return "Model name must not be empty."
	}
	if models, err := c.llm.ListModels(ctx); err == nil && len(models) > 0 {
		found := false
		for _, m := range models {
			if m == model {
				found = true
				break
			}
		}
		if !found {
			return fmt.Sprintf("Model %q is not loaded on the endpoint. Use the model list command to see what is available.", model)
		}
	}
	if err := c.guilds.SetModel(guildID, model); err != nil {
		return err.Error()
	}
	return fmt.Sprintf("Model set to %s.", model)
}

// ---------- Voice ----------

// ListVoices renders the selectable TTS voices with their descriptions.
func (c *Commander) ListVoices(guildID string) string {
	current := c.guilds.Get(guildID).SelectedVoice
	var sb strings.Builder
	sb.WriteString("**Available voices**\n")
	for _, v := range AvailableVoices {
		marker := ""
		if v == current {
			marker = " (current)"
		}
		fmt.Fprintf(&sb, "- **%s**: %s%s\n", v, VoiceDescriptions[v], marker)
	}
	return sb.String()
}

// SelectVoice sets the guild's TTS voice.
func (c *Commander) SelectVoice(guildID, voice string) string {
	if err := c.guilds.SetVoice(guildID, voice); err != nil {
		return err.Error()
	}
	return fmt.Sprintf("Voice set to %s.", voice)
}

// ---------- Monitored channels ----------

// MonitorChannel adds a channel to the guild's response allow-list.
func (c *Commander) MonitorChannel(guildID, channelID string) string {
	added, err := c.guilds.AddMonitoredChannel(guildID, channelID)
	if err != nil {
		return err.Error()
	}
	if !added {
		return "That channel is already monitored."
	}
	return "Channel added to the monitored list."
}

// ListMonitoredChannels renders the guild's response allow-list.
func (c *Commander) ListMonitoredChannels(guildID string) string {
	monitored := c.guilds.Get(guildID).MonitoredChannels
	if len(monitored) == 0 {
		return "No channels are monitored. I only answer direct mentions and DMs."
	}
	var sb strings.Builder
	sb.WriteString("**Monitored channels**\n")
	for _, id := range monitored {
		fmt.Fprintf(&sb, "- <#%s>\n", id)
	}
	return sb.String()
}

// UnmonitorChannel removes a channel from the guild's response allow-list.
func (c *Commander) UnmonitorChannel(guildID, channelID string) string {
	removed, err := c.guilds.RemoveMonitoredChannel(guildID, channelID)
	if err != nil {
		return err.Error()
	}
	if !removed {
		return "That channel was not monitored."
	}
	return "Channel removed from the monitored list."
}
