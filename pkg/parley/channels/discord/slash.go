// slash.go wires Discord slash commands to the assistant command surface.
// Configuration mutations are gated behind server management permission or
// the guild's configured admin role.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/parleybot/parley/pkg/parley/assistant"
	"github.com/parleybot/parley/pkg/parley/channels"
)

// slashCommands is the command tree registered with Discord on startup.
var slashCommands = []*discordgo.ApplicationCommand{
	{Name: "reset", Description: "Clear the conversation history for this channel"},
	{Name: "history", Description: "Show the recent conversation history"},
	{Name: "clearlast", Description: "Remove the last exchange from the history"},
	{
		Name:        "stats",
		Description: "Usage statistics for this channel",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "show", Description: "Show statistics"},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "reset", Description: "Reset statistics"},
		},
	},
	{
		Name:        "config",
		Description: "Show or change assistant settings for this server",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "show", Description: "Show the current settings"},
			{
				Type: discordgo.ApplicationCommandOptionSubCommand, Name: "prompt", Description: "Set the system prompt",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionString, Name: "text", Description: "The new system prompt", Required: true},
				},
			},
			{
				Type: discordgo.ApplicationCommandOptionSubCommand, Name: "temperature", Description: "Set the sampling temperature (0.0 to 2.0)",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionString, Name: "value", Description: "Temperature value", Required: true},
				},
			},
			{
				Type: discordgo.ApplicationCommandOptionSubCommand, Name: "maxtokens", Description: "Set the response token cap (-1 for unlimited)",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionString, Name: "value", Description: "Token cap", Required: true},
				},
			},
			{
				Type: discordgo.ApplicationCommandOptionSubCommand, Name: "search", Description: "Enable or disable web search",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionBoolean, Name: "enabled", Description: "Search enabled", Required: true},
				},
			},
			{
				Type: discordgo.ApplicationCommandOptionSubCommand, Name: "tts", Description: "Enable or disable text-to-speech",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionBoolean, Name: "enabled", Description: "TTS enabled", Required: true},
				},
			},
			{
				Type: discordgo.ApplicationCommandOptionSubCommand, Name: "debug", Description: "Toggle debug output",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionBoolean, Name: "enabled", Description: "Debug enabled", Required: true},
					{
						Type: discordgo.ApplicationCommandOptionString, Name: "level", Description: "Verbosity",
						Choices: []*discordgo.ApplicationCommandOptionChoice{
							{Name: "info", Value: "info"},
							{Name: "debug", Value: "debug"},
						},
					},
				},
			},
			{
				Type: discordgo.ApplicationCommandOptionSubCommand, Name: "reset", Description: "Reset settings to defaults",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionString, Name: "field", Description: "Single setting to reset (omit for all)"},
				},
			},
		},
	},
	{
		Name:        "model",
		Description: "List or select the inference model",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "list", Description: "List models loaded on the endpoint"},
			{
				Type: discordgo.ApplicationCommandOptionSubCommand, Name: "set", Description: "Select a model for this server",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionString, Name: "name", Description: "Model identifier", Required: true},
				},
			},
		},
	},
	{
		Name:        "voice",
		Description: "List or select the text-to-speech voice",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "list", Description: "List available voices"},
			{
				Type: discordgo.ApplicationCommandOptionSubCommand, Name: "set", Description: "Select a voice for this server",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionString, Name: "name", Description: "Voice name", Required: true},
				},
			},
		},
	},
	{
		Name:        "monitor",
		Description: "Manage which channels the assistant answers in",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "add", Description: "Monitor this channel"},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "remove", Description: "Stop monitoring this channel"},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "list", Description: "List the monitored channels"},
		},
	},
	{Name: "join", Description: "Join your current voice channel"},
	{Name: "leave", Description: "Leave the voice channel"},
}

// adminCommands mutate server configuration and require elevated rights.
var adminCommands = map[string]bool{
	"config":  true,
	"model":   true,
	"voice":   true,
	"monitor": true,
}

// SlashHandler dispatches slash command interactions to the command surface.
type SlashHandler struct {
	commander *assistant.Commander
	guilds    *assistant.GuildConfigStore
	adapter   *Discord
	logger    *slog.Logger
}

// RegisterSlashCommands installs the command tree and attaches the dispatch
// handler. Must be called after Connect.
func (d *Discord) RegisterSlashCommands(commander *assistant.Commander, guilds *assistant.GuildConfigStore) error {
	if d.session == nil {
		return channels.ErrChannelDisconnected
	}

	h := &SlashHandler{
		commander: commander,
		guilds:    guilds,
		adapter:   d,
		logger:    d.logger.With("component", "slash"),
	}
	d.onCommand = h.dispatch

	appID := d.session.State.User.ID
	if _, err := d.session.ApplicationCommandBulkOverwrite(appID, "", slashCommands); err != nil {
		return fmt.Errorf("discord: registering slash commands: %w", err)
	}
	d.logger.Info("discord: slash commands registered", "count", len(slashCommands))
	return nil
}

// onInteractionCreate acknowledges the interaction within Discord's 3 second
// window, then runs the handler and edits the response in.
func (d *Discord) onInteractionCreate(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	if ic.Type != discordgo.InteractionApplicationCommand || d.onCommand == nil {
		return
	}

	if err := s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		d.logger.Warn("discord: failed to ack interaction", "error", err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(d.ctx, 30*time.Second)
		defer cancel()

		content := d.onCommand(ctx, ic)
		if content == "" {
			content = "Done."
		}
		if _, err := s.InteractionResponseEdit(ic.Interaction, &discordgo.WebhookEdit{Content: &content}); err != nil {
			d.logger.Warn("discord: failed to edit interaction response", "error", err)
		}
	}()
}

// dispatch routes one interaction to its command surface operation.
func (h *SlashHandler) dispatch(ctx context.Context, ic *discordgo.InteractionCreate) string {
	data := ic.ApplicationCommandData()
	guildID := ic.GuildID
	chatID := ic.ChannelID

	if adminCommands[data.Name] && !h.isAdmin(ic) {
		return "You need server management permission or the configured admin role to change assistant settings."
	}

	switch data.Name {
	case "reset":
		return h.commander.ResetHistory(chatID)
	case "history":
		return h.commander.ShowHistory(chatID)
	case "clearlast":
		return h.commander.ClearLast(chatID)
	case "stats":
		if sub := subcommand(data); sub == "reset" {
			return h.commander.ResetStats(chatID)
		}
		return h.commander.ShowStats(chatID)
	case "config":
		return h.dispatchConfig(guildID, data)
	case "model":
		if sub := subcommand(data); sub == "set" {
			return h.commander.SelectModel(ctx, guildID, optionString(data, "set", "name"))
		}
		return h.commander.ListModels(ctx)
	case "voice":
		if sub := subcommand(data); sub == "set" {
			return h.commander.SelectVoice(guildID, optionString(data, "set", "name"))
		}
		return h.commander.ListVoices(guildID)
	case "monitor":
		switch subcommand(data) {
		case "remove":
			return h.commander.UnmonitorChannel(guildID, chatID)
		case "list":
			return h.commander.ListMonitoredChannels(guildID)
		}
		return h.commander.MonitorChannel(guildID, chatID)
	case "join":
		channelID, err := h.adapter.JoinVoice(ctx, guildID, interactionUserID(ic))
		if err != nil {
			h.logger.Warn("voice join failed", "guild", guildID, "error", err)
			return "Could not join: are you in a voice channel?"
		}
		return fmt.Sprintf("Joined <#%s>.", channelID)
	case "leave":
		if err := h.adapter.LeaveVoice(guildID); err != nil {
			return "I am not in a voice channel."
		}
		return "Left the voice channel."
	}
	return "Unknown command."
}

func (h *SlashHandler) dispatchConfig(guildID string, data discordgo.ApplicationCommandInteractionData) string {
	switch subcommand(data) {
	case "show":
		return h.commander.ShowConfig(guildID)
	case "prompt":
		return h.commander.SetSystemPrompt(guildID, optionString(data, "prompt", "text"))
	case "temperature":
		return h.commander.SetTemperature(guildID, optionString(data, "temperature", "value"))
	case "maxtokens":
		return h.commander.SetMaxTokens(guildID, optionString(data, "maxtokens", "value"))
	case "search":
		return h.commander.SetSearch(guildID, optionBool(data, "search", "enabled"))
	case "tts":
		return h.commander.SetTTS(guildID, optionBool(data, "tts", "enabled"))
	case "debug":
		return h.commander.SetDebug(guildID, optionBool(data, "debug", "enabled"), optionString(data, "debug", "level"))
	case "reset":
		if field := optionString(data, "reset", "field"); field != "" {
			return h.commander.ResetConfigField(guildID, field)
		}
		return h.commander.ResetConfig(guildID)
	}
	return "Unknown config operation."
}

// isAdmin grants access to members with Manage Server permission or the
// guild's configured admin role.
func (h *SlashHandler) isAdmin(ic *discordgo.InteractionCreate) bool {
	if ic.Member == nil {
		// DMs have no member context; nothing to administer there.
		return false
	}
	if ic.Member.Permissions&discordgo.PermissionManageServer != 0 {
		return true
	}

	adminRole := h.guilds.Get(ic.GuildID).AdminRoleName
	if adminRole == "" {
		return false
	}
	guild, err := h.adapter.session.State.Guild(ic.GuildID)
	if err != nil {
		return false
	}
	for _, roleID := range ic.Member.Roles {
		for _, role := range guild.Roles {
			if role.ID == roleID && role.Name == adminRole {
				return true
			}
		}
	}
	return false
}

// ---------- Option helpers ----------

func subcommand(data discordgo.ApplicationCommandInteractionData) string {
	if len(data.Options) == 0 {
		return ""
	}
	if data.Options[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		return data.Options[0].Name
	}
	return ""
}

func subOptions(data discordgo.ApplicationCommandInteractionData, sub string) []*discordgo.ApplicationCommandInteractionDataOption {
	for _, opt := range data.Options {
		if opt.Type == discordgo.ApplicationCommandOptionSubCommand && opt.Name == sub {
			return opt.Options
		}
	}
	return data.Options
}

func optionString(data discordgo.ApplicationCommandInteractionData, sub, name string) string {
	for _, opt := range subOptions(data, sub) {
		if opt.Name == name {
			return opt.StringValue()
		}
	}
	return ""
}

func optionBool(data discordgo.ApplicationCommandInteractionData, sub, name string) bool {
	for _, opt := range subOptions(data, sub) {
		if opt.Name == name {
			return opt.BoolValue()
		}
	}
	return false
}

func interactionUserID(ic *discordgo.InteractionCreate) string {
	if ic.Member != nil && ic.Member.User != nil {
		return ic.Member.User.ID
	}
	if ic.User != nil {
		return ic.User.ID
	}
	return ""
}
