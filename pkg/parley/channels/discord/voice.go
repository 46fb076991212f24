// voice.go implements voice channel membership and playback of synthesized
// speech. The TTS provider delivers Opus packets in an Ogg container, which
// maps directly onto Discord's voice transport once the container is
// unwrapped.
package discord

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/parleybot/parley/pkg/parley/channels"
)

// JoinVoice connects the bot to the voice channel the given user currently
// occupies and returns that channel's ID.
func (d *Discord) JoinVoice(ctx context.Context, guildID, userID string) (string, error) {
	if d.session == nil {
		return "", channels.ErrChannelDisconnected
	}

	guild, err := d.session.State.Guild(guildID)
	if err != nil {
		return "", fmt.Errorf("discord: resolving guild %s: %w", guildID, err)
	}

	var channelID string
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			channelID = vs.ChannelID
			break
		}
	}
	if channelID == "" {
		return "", fmt.Errorf("discord: user %s is not in a voice channel", userID)
	}

	vc, err := d.session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return "", fmt.Errorf("discord: joining voice channel: %w", err)
	}

	d.voiceMu.Lock()
	d.voice[guildID] = vc
	d.voiceMu.Unlock()

	d.logger.Info("discord: joined voice channel", "guild", guildID, "channel", channelID)
	return channelID, nil
}

// LeaveVoice disconnects from the guild's voice channel.
func (d *Discord) LeaveVoice(guildID string) error {
	d.voiceMu.Lock()
	vc, ok := d.voice[guildID]
	if ok {
		delete(d.voice, guildID)
	}
	d.voiceMu.Unlock()

	if !ok {
		return channels.ErrNotInVoice
	}
	if err := vc.Disconnect(); err != nil {
		return fmt.Errorf("discord: leaving voice channel: %w", err)
	}
	d.logger.Info("discord: left voice channel", "guild", guildID)
	return nil
}

// InVoice reports whether the bot has an active voice connection for the guild.
func (d *Discord) InVoice(guildID string) bool {
	d.voiceMu.Lock()
	defer d.voiceMu.Unlock()
	_, ok := d.voice[guildID]
	return ok
}

// PlayAudio streams an Opus payload into the guild's voice channel. Only
// audio/ogg payloads are supported; the Ogg container is unwrapped and the
// Opus packets forwarded at their native pacing.
func (d *Discord) PlayAudio(ctx context.Context, guildID string, audio []byte, mimeType string) error {
	d.voiceMu.Lock()
	vc, ok := d.voice[guildID]
	d.voiceMu.Unlock()
	if !ok {
		return channels.ErrNotInVoice
	}
	if mimeType != "audio/ogg" {
		return fmt.Errorf("discord: unsupported audio type %q", mimeType)
	}

	packets, err := extractOpusPackets(audio)
	if err != nil {
		return fmt.Errorf("discord: parsing audio: %w", err)
	}
	if len(packets) == 0 {
		return fmt.Errorf("discord: audio contained no packets")
	}

	if err := vc.Speaking(true); err != nil {
		return fmt.Errorf("discord: setting speaking state: %w", err)
	}
	defer func() {
		if err := vc.Speaking(false); err != nil {
			d.logger.Debug("discord: clearing speaking state failed", "error", err)
		}
	}()

	// Packets are 20ms frames; pace them so the buffer never overruns.
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for _, pkt := range packets {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		select {
		case vc.OpusSend <- pkt:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// extractOpusPackets unwraps the Ogg container and returns the raw Opus
// packets, skipping the OpusHead and OpusTags header packets.
func extractOpusPackets(data []byte) ([][]byte, error) {
	r := bytes.NewReader(data)
	var packets [][]byte
	var partial []byte

	for {
		pagePackets, cont, err := readOggPage(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		for i, seg := range pagePackets {
			if i == 0 && cont {
				partial = append(partial, seg.data...)
				if seg.complete {
					packets = appendAudioPacket(packets, partial)
					partial = nil
				}
				continue
			}
			if seg.complete {
				packets = appendAudioPacket(packets, seg.data)
			} else {
				partial = append(partial, seg.data...)
			}
		}
	}
	return packets, nil
}

// appendAudioPacket filters out the Opus stream headers.
func appendAudioPacket(packets [][]byte, pkt []byte) [][]byte {
	if len(pkt) >= 8 {
		magic := string(pkt[:8])
		if magic == "OpusHead" || magic == "OpusTags" {
			return packets
		}
	}
	buf := make([]byte, len(pkt))
	copy(buf, pkt)
	return append(packets, buf)
}

type oggSegment struct {
	data     []byte
	complete bool
}

// readOggPage reads one Ogg page and returns its packet segments. The second
// return reports whether the first segment continues a packet from the
// previous page.
func readOggPage(r *bytes.Reader) ([]oggSegment, bool, error) {
	header := make([]byte, 27)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, false, io.EOF
		}
		return nil, false, err
	}
	if !bytes.Equal(header[:4], []byte("OggS")) {
		return nil, false, fmt.Errorf("invalid ogg page capture pattern")
	}

	continued := header[5]&0x01 != 0
	segCount := int(header[26])

	segTable := make([]byte, segCount)
	if _, err := io.ReadFull(r, segTable); err != nil {
		return nil, false, err
	}

	var segments []oggSegment
	var current []byte
	for _, lacing := range segTable {
		chunk := make([]byte, int(lacing))
		if _, err := io.ReadFull(r, chunk); err != nil {
			return nil, false, err
		}
		current = append(current, chunk...)
		// A lacing value below 255 terminates the packet.
		if lacing < 255 {
			segments = append(segments, oggSegment{data: current, complete: true})
			current = nil
		}
	}
	if len(current) > 0 {
		segments = append(segments, oggSegment{data: current, complete: false})
	}
	return segments, continued, nil
}
