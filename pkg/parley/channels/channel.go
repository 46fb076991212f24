// Package channels defines the interfaces and types for Parley communication
// channels. A channel (Discord today, potentially others) implements the
// Channel interface to receive and send messages in a unified way; the
// assistant core never talks to a platform SDK directly.
package channels

import (
	"context"
	"errors"
	"time"
)

// MessageType identifies the kind of message content.
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageDocument MessageType = "document"
)

// Common channel errors.
var (
	ErrChannelDisconnected = errors.New("channel is not connected")
	ErrMediaDownloadFailed = errors.New("media download failed")
	ErrNotInVoice          = errors.New("not connected to a voice channel")
)

// Channel defines the interface that every communication channel must implement.
type Channel interface {
	// Name returns the channel identifier (e.g. "discord").
	Name() string

	// Connect establishes the connection to the messaging platform.
	Connect(ctx context.Context) error

	// Disconnect gracefully closes the connection.
	Disconnect() error

	// Send sends a message to the specified chat/channel ID.
	Send(ctx context.Context, to string, message *OutgoingMessage) error

	// Receive returns a Go channel that emits incoming messages.
	Receive() <-chan *IncomingMessage

	// IsConnected returns true if the channel is connected.
	IsConnected() bool
}

// MediaChannel extends Channel with attachment download capability.
type MediaChannel interface {
	Channel

	// DownloadAttachment fetches the raw bytes of an attachment.
	// Returns the data and the MIME type reported by the platform.
	DownloadAttachment(ctx context.Context, att *Attachment) ([]byte, string, error)
}

// PresenceChannel extends Channel with typing indicators.
type PresenceChannel interface {
	Channel

	// SendTyping sends a "typing..." indicator to the chat.
	SendTyping(ctx context.Context, to string) error
}

// VoiceChannel extends Channel with voice-channel playback. The assistant
// hands synthesized audio to this interface; encoding and transport details
// live inside the adapter.
type VoiceChannel interface {
	Channel

	// JoinVoice connects the bot to the voice channel the given user is in.
	JoinVoice(ctx context.Context, guildID, userID string) (string, error)

	// LeaveVoice disconnects from the guild's voice channel.
	LeaveVoice(guildID string) error

	// InVoice reports whether the bot has an active voice connection
	// for the guild.
	InVoice(guildID string) bool

	// PlayAudio plays an audio payload in the guild's voice channel.
	// Returns ErrNotInVoice when there is no active connection.
	PlayAudio(ctx context.Context, guildID string, audio []byte, mimeType string) error
}

// IncomingMessage represents a message received from a channel.
type IncomingMessage struct {
	// ID is the unique message identifier in the source channel.
	ID string

	// Channel identifies the source channel (e.g. "discord").
	Channel string

	// GuildID is the server identifier. Empty for direct messages.
	GuildID string

	// ChatID is the text channel or DM identifier.
	ChatID string

	// From is the sender identifier on the platform.
	From string

	// FromName is the sender display name (if available).
	FromName string

	// FromBot indicates the sender is an automated account.
	FromBot bool

	// IsDirect indicates a direct message rather than a guild channel.
	IsDirect bool

	// Mentioned indicates the bot was mentioned directly in the message.
	Mentioned bool

	// Type is the message content type.
	Type MessageType

	// Content is the text content of the message.
	Content string

	// Attachments lists files attached to the message.
	Attachments []Attachment

	// Timestamp is when the message was sent.
	Timestamp time.Time
}

// Attachment describes a file attached to an incoming message.
type Attachment struct {
	// URL is the platform download URL.
	URL string

	// Filename is the original file name.
	Filename string

	// MimeType is the content type declared by the platform.
	MimeType string

	// Size is the file size in bytes.
	Size int64
}

// OutgoingMessage represents a message to be sent through a channel.
type OutgoingMessage struct {
	// Content is the text to send.
	Content string

	// ReplyTo references the message being replied to (optional).
	ReplyTo string
}
