// Package discord implements the Discord channel for Parley using discordgo.
//
// Features:
//   - Send/receive text and attachments
//   - Mention and DM detection for the gateway filter
//   - Typing indicators
//   - Long responses split across the 2000 character message limit
//   - Slash commands for history, statistics, and configuration
//   - Voice channel join/leave with synthesized speech playback
//   - Automatic reconnection via discordgo's gateway
package discord

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/parleybot/parley/pkg/parley/channels"
)

// Config holds Discord channel configuration.
type Config struct {
	// Token is the Discord bot token.
	Token string

	// SendTyping sends "typing..." indicators while processing.
	SendTyping bool
}

// Discord implements channels.Channel, channels.MediaChannel,
// channels.PresenceChannel, and channels.VoiceChannel.
type Discord struct {
	cfg     Config
	logger  *slog.Logger
	session *discordgo.Session

	// messages forwards incoming messages to the assistant.
	messages chan *channels.IncomingMessage

	connected atomic.Bool

	// httpClient downloads attachments from Discord's CDN.
	httpClient *http.Client

	// voice tracks one active voice connection per guild.
	voiceMu sync.Mutex
	voice   map[string]*discordgo.VoiceConnection

	// onCommand handles slash command interactions when registered.
	onCommand func(ctx context.Context, ic *discordgo.InteractionCreate) string

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Discord channel instance.
func New(cfg Config, logger *slog.Logger) *Discord {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discord{
		cfg:        cfg,
		logger:     logger.With("component", "discord"),
		messages:   make(chan *channels.IncomingMessage, 256),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		voice:      make(map[string]*discordgo.VoiceConnection),
	}
}

// ---------- Channel Interface ----------

// Name returns "discord".
func (d *Discord) Name() string { return "discord" }

// Connect opens the Discord gateway WebSocket connection.
func (d *Discord) Connect(ctx context.Context) error {
	if d.cfg.Token == "" {
		return fmt.Errorf("discord: bot token is required")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	session, err := discordgo.New("Bot " + d.cfg.Token)
	if err != nil {
		return fmt.Errorf("discord: creating session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildVoiceStates

	session.AddHandler(d.onMessageCreate)
	session.AddHandler(d.onInteractionCreate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord: opening gateway: %w", err)
	}

	d.session = session
	d.connected.Store(true)

	user := session.State.User
	d.logger.Info("discord: connected", "bot", user.Username, "id", user.ID)
	return nil
}

// Disconnect closes the Discord gateway connection.
func (d *Discord) Disconnect() error {
	if d.cancel != nil {
		d.cancel()
	}

	d.voiceMu.Lock()
	for guildID, vc := range d.voice {
		if err := vc.Disconnect(); err != nil {
			d.logger.Warn("discord: voice disconnect failed", "guild", guildID, "error", err)
		}
	}
	d.voice = make(map[string]*discordgo.VoiceConnection)
	d.voiceMu.Unlock()

	if d.session != nil {
		d.session.Close()
	}
	d.connected.Store(false)
	d.logger.Info("discord: disconnected")
	return nil
}

// Send sends a text message to the specified channel, splitting it when it
// exceeds Discord's 2000 character limit.
func (d *Discord) Send(ctx context.Context, to string, message *channels.OutgoingMessage) error {
	if d.session == nil {
		return channels.ErrChannelDisconnected
	}

	chunks := splitMessage(message.Content, 2000)
	for i, chunk := range chunks {
		msgSend := &discordgo.MessageSend{Content: chunk}
		if i == 0 && message.ReplyTo != "" {
			msgSend.Reference = &discordgo.MessageReference{MessageID: message.ReplyTo}
		}
		if _, err := d.session.ChannelMessageSendComplex(to, msgSend); err != nil {
			return fmt.Errorf("discord: sending message: %w", err)
		}
	}
	return nil
}

// Receive returns the incoming messages channel.
func (d *Discord) Receive() <-chan *channels.IncomingMessage {
	return d.messages
}

// IsConnected returns true if the bot is connected.
func (d *Discord) IsConnected() bool { return d.connected.Load() }

// ---------- MediaChannel Interface ----------

// DownloadAttachment fetches the raw bytes of an attachment from the CDN.
func (d *Discord) DownloadAttachment(ctx context.Context, att *channels.Attachment) ([]byte, string, error) {
	if att == nil || att.URL == "" {
		return nil, "", channels.ErrMediaDownloadFailed
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("discord: creating download request: %w", err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("discord: download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("discord: download returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("discord: reading attachment: %w", err)
	}
	return data, att.MimeType, nil
}

// ---------- PresenceChannel Interface ----------

// SendTyping sends a typing indicator to the channel.
func (d *Discord) SendTyping(ctx context.Context, to string) error {
	if d.session == nil || !d.cfg.SendTyping {
		return nil
	}
	return d.session.ChannelTyping(to)
}

// ---------- Event Handlers ----------

// onMessageCreate maps Discord messages onto the channel-neutral format.
func (d *Discord) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID {
		return
	}

	incoming := &channels.IncomingMessage{
		ID:        m.ID,
		Channel:   "discord",
		GuildID:   m.GuildID,
		ChatID:    m.ChannelID,
		From:      m.Author.ID,
		FromName:  m.Author.Username,
		FromBot:   m.Author.Bot,
		IsDirect:  m.GuildID == "",
		Mentioned: mentionsUser(m.Mentions, s.State.User.ID),
		Type:      channels.MessageText,
		Content:   stripBotMention(m.Content, s.State.User.ID),
		Timestamp: m.Timestamp,
	}

	for _, att := range m.Attachments {
		incoming.Attachments = append(incoming.Attachments, channels.Attachment{
			URL:      att.URL,
			Filename: att.Filename,
			MimeType: att.ContentType,
			Size:     int64(att.Size),
		})
	}
	if len(incoming.Attachments) > 0 {
		incoming.Type = channels.MessageDocument
	}

	select {
	case d.messages <- incoming:
	default:
		d.logger.Warn("discord: message buffer full, dropping message", "msg_id", incoming.ID)
	}
}

// ---------- Helpers ----------

func mentionsUser(mentions []*discordgo.User, userID string) bool {
	for _, u := range mentions {
		if u != nil && u.ID == userID {
			return true
		}
	}
	return false
}

// stripBotMention removes the bot's own mention tokens so the model sees the
// question, not the addressing.
func stripBotMention(content, userID string) string {
	content = strings.ReplaceAll(content, "<@"+userID+">", "")
	content = strings.ReplaceAll(content, "<@!"+userID+">", "")
	return strings.TrimSpace(content)
}

// splitMessage splits text into chunks respecting the length limit,
// preferring newline boundaries.
func splitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}
	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}
		cutAt := maxLen
		if idx := strings.LastIndex(text[:maxLen], "\n"); idx > maxLen/2 {
			cutAt = idx + 1
		}
		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}
	return chunks
}

// Compile-time interface verification.
var (
	_ channels.Channel         = (*Discord)(nil)
	_ channels.MediaChannel    = (*Discord)(nil)
	_ channels.PresenceChannel = (*Discord)(nil)
	_ channels.VoiceChannel    = (*Discord)(nil)
)
