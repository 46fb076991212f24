package discord

import (
	"bytes"
	"testing"
)

// buildOggPage assembles one Ogg page. Each entry in lacings is the raw
// lacing table; data is the concatenated segment payload.
func buildOggPage(continued bool, lacings []byte, data []byte) []byte {
	header := make([]byte, 27)
	copy(header, "OggS")
	if continued {
		header[5] = 0x01
	}
	header[26] = byte(len(lacings))

	page := append(header, lacings...)
	return append(page, data...)
}

// packetPage wraps one complete packet smaller than 255 bytes in its own page.
func packetPage(pkt []byte) []byte {
	return buildOggPage(false, []byte{byte(len(pkt))}, pkt)
}

func TestExtractOpusPackets(t *testing.T) {
	head := append([]byte("OpusHead"), make([]byte, 11)...)
	tags := append([]byte("OpusTags"), make([]byte, 4)...)
	frame1 := []byte{0xF8, 0x01, 0x02}
	frame2 := []byte{0xF8, 0x03, 0x04, 0x05}

	var stream []byte
	stream = append(stream, packetPage(head)...)
	stream = append(stream, packetPage(tags)...)
	stream = append(stream, buildOggPage(false,
		[]byte{byte(len(frame1)), byte(len(frame2))},
		append(append([]byte{}, frame1...), frame2...))...)

	packets, err := extractOpusPackets(stream)
	if err != nil {
		t.Fatalf("extractOpusPackets failed: %v", err)
	}
	if len(packets) != 2 {
		t.Fatalf("got %d packets, want 2 (headers must be skipped)", len(packets))
	}
	if !bytes.Equal(packets[0], frame1) {
		t.Errorf("packets[0] = %v, want %v", packets[0], frame1)
	}
	if !bytes.Equal(packets[1], frame2) {
		t.Errorf("packets[1] = %v, want %v", packets[1], frame2)
	}
}

func TestExtractOpusPacketsCrossPage(t *testing.T) {
	// A 300-byte packet: 255 bytes on the first page (lacing 255 leaves the
	// packet open), 45 bytes on a continuation page.
	pkt := make([]byte, 300)
	for i := range pkt {
		pkt[i] = byte(i)
	}

	var stream []byte
	stream = append(stream, buildOggPage(false, []byte{255}, pkt[:255])...)
	stream = append(stream, buildOggPage(true, []byte{45}, pkt[255:])...)

	packets, err := extractOpusPackets(stream)
	if err != nil {
		t.Fatalf("extractOpusPackets failed: %v", err)
	}
	if len(packets) != 1 {
		t.Fatalf("got %d packets, want 1 reassembled packet", len(packets))
	}
	if !bytes.Equal(packets[0], pkt) {
		t.Error("reassembled packet does not match the original")
	}
}

func TestExtractOpusPacketsMultiLacingPacket(t *testing.T) {
	// A 300-byte packet wholly inside one page uses lacing values [255, 45].
	pkt := make([]byte, 300)
	for i := range pkt {
		pkt[i] = byte(i % 251)
	}
	stream := buildOggPage(false, []byte{255, 45}, pkt)

	packets, err := extractOpusPackets(stream)
	if err != nil {
		t.Fatalf("extractOpusPackets failed: %v", err)
	}
	if len(packets) != 1 {
		t.Fatalf("got %d packets, want 1", len(packets))
	}
	if !bytes.Equal(packets[0], pkt) {
		t.Error("packet does not match the original")
	}
}

func TestExtractOpusPacketsInvalidCapture(t *testing.T) {
	if _, err := extractOpusPackets([]byte("NotAnOggStream with enough bytes to read")); err == nil {
		t.Fatal("expected error for bad capture pattern")
	}
}

func TestExtractOpusPacketsEmpty(t *testing.T) {
	packets, err := extractOpusPackets(nil)
	if err != nil {
		t.Fatalf("empty input should not error: %v", err)
	}
	if len(packets) != 0 {
		t.Errorf("got %d packets, want 0", len(packets))
	}
}
