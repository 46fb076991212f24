package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/parleybot/parley/pkg/parley/channels"
	"github.com/parleybot/parley/pkg/parley/tts"
)

// fakeChannel is an in-memory channels.Channel for pipeline tests. Sent
// messages are mirrored on sentCh so tests can wait for delivery without
// sleeping.
type fakeChannel struct {
	incoming chan *channels.IncomingMessage
	sentCh   chan *channels.OutgoingMessage

	mu   sync.Mutex
	sent []*channels.OutgoingMessage
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		incoming: make(chan *channels.IncomingMessage, 16),
		sentCh:   make(chan *channels.OutgoingMessage, 16),
	}
}

func (f *fakeChannel) Name() string                              { return "fake" }
func (f *fakeChannel) Connect(ctx context.Context) error         { return nil }
func (f *fakeChannel) Disconnect() error                         { return nil }
func (f *fakeChannel) IsConnected() bool                         { return true }
func (f *fakeChannel) Receive() <-chan *channels.IncomingMessage { return f.incoming }

func (f *fakeChannel) Send(ctx context.Context, to string, msg *channels.OutgoingMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	f.sentCh <- msg
	return nil
}

func (f *fakeChannel) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// waitSent blocks until one message has been delivered.
func (f *fakeChannel) waitSent(t *testing.T) *channels.OutgoingMessage {
	t.Helper()
	select {
	case msg := <-f.sentCh:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for an outgoing message")
		return nil
	}
}

// fakeMediaChannel adds attachment downloads backed by a URL-keyed map.
type fakeMediaChannel struct {
	*fakeChannel
	files map[string][]byte
}

func (f *fakeMediaChannel) DownloadAttachment(ctx context.Context, att *channels.Attachment) ([]byte, string, error) {
	data, ok := f.files[att.URL]
	if !ok {
		return nil, "", channels.ErrMediaDownloadFailed
	}
	return data, att.MimeType, nil
}

// fakeVoiceChannel reports an active voice connection.
type fakeVoiceChannel struct {
	*fakeChannel
}

func (f *fakeVoiceChannel) JoinVoice(ctx context.Context, guildID, userID string) (string, error) {
	return "vc1", nil
}
func (f *fakeVoiceChannel) LeaveVoice(guildID string) error { return nil }
func (f *fakeVoiceChannel) InVoice(guildID string) bool     { return true }
func (f *fakeVoiceChannel) PlayAudio(ctx context.Context, guildID string, audio []byte, mimeType string) error {
	return nil
}

// newLLMTestServer serves a fixed chat completion for every request.
func newLLMTestServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": content}, "finish_reason": "stop"},
			},
			"usage": map[string]int{"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestAssistant(t *testing.T, llmURL string, speech tts.Provider) *Assistant {
	t.Helper()
	cfg := *DefaultConfig()
	cfg.API.BaseURL = llmURL
	cfg.Timeouts.Inference = 5

	guilds, err := NewGuildConfigStore(filepath.Join(t.TempDir(), "guilds.yaml"), nil)
	if err != nil {
		t.Fatalf("creating guild store: %v", err)
	}
	stats, err := NewStatsStore(filepath.Join(t.TempDir(), "stats.yaml"), nil)
	if err != nil {
		t.Fatalf("creating stats store: %v", err)
	}
	sessions := NewConversationStore(cfg.History, nil, nil)

	search := NewSearchClient(time.Second, 3, nil)
	augmenter := NewAugmenter(search, NewFetcher(time.Second, 1000, nil),
		NewAttachmentProcessor(cfg.Files, nil), NewRateLimiter(10*time.Second), nil)
	llm := NewLLMClient(cfg.API, nil)

	return New(cfg, guilds, sessions, stats, augmenter, llm, speech, nil)
}

func dmMessage(chatID, content string) *channels.IncomingMessage {
	return &channels.IncomingMessage{
		ID:        "m-" + chatID,
		ChatID:    chatID,
		From:      "user1",
		IsDirect:  true,
		Content:   content,
		Timestamp: time.Now(),
	}
}

func TestHandleMessageSuccess(t *testing.T) {
	srv := newLLMTestServer(t, "<think>two plus two</think>The answer is 4.")
	a := newTestAssistant(t, srv.URL, nil)
	ch := newFakeChannel()

	a.HandleMessage(context.Background(), ch, dmMessage("dm1", "what is 2+2?"))

	reply := ch.waitSent(t)
	if reply.Content != "The answer is 4." {
		t.Errorf("reply = %q, reasoning should be stripped", reply.Content)
	}

	turns := a.sessions.ContextWindow("dm1")
	if len(turns) != 2 {
		t.Fatalf("history has %d turns, want 2", len(turns))
	}
	if turns[0].Role != RoleUser || turns[0].Content != "what is 2+2?" {
		t.Errorf("first turn = %+v", turns[0])
	}
	if turns[1].Role != RoleAssistant || turns[1].Content != "The answer is 4." {
		t.Errorf("second turn = %+v", turns[1])
	}

	rec := a.stats.Get("dm1")
	if rec.TotalMessages != 1 {
		t.Errorf("TotalMessages = %d, want 1", rec.TotalMessages)
	}
	if rec.PromptTokens != 12 {
		t.Errorf("PromptTokens = %d, want the endpoint-reported 12", rec.PromptTokens)
	}
}

func TestHandleMessageInferenceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := newTestAssistant(t, srv.URL, nil)
	ch := newFakeChannel()

	a.HandleMessage(context.Background(), ch, dmMessage("dm1", "hello?"))

	notice := ch.waitSent(t)
	if !strings.Contains(notice.Content, "unavailable") {
		t.Errorf("notice = %q, want an unavailability message", notice.Content)
	}
	if n := ch.sentCount(); n != 1 {
		t.Errorf("sent %d messages, want exactly one failure notice", n)
	}

	// The question stays in history; no assistant turn is recorded.
	turns := a.sessions.ContextWindow("dm1")
	if len(turns) != 1 || turns[0].Role != RoleUser {
		t.Fatalf("history = %+v, want a lone user turn", turns)
	}
	if rec := a.stats.Get("dm1"); rec.TotalMessages != 0 {
		t.Errorf("TotalMessages = %d, failed runs must not count", rec.TotalMessages)
	}
}

func TestHandleMessageFiltersOutsideScope(t *testing.T) {
	srv := newLLMTestServer(t, "should never be asked")
	a := newTestAssistant(t, srv.URL, nil)

	tests := []struct {
		name string
		msg  *channels.IncomingMessage
	}{
		{"bot author", &channels.IncomingMessage{ChatID: "dm1", IsDirect: true, FromBot: true, Content: "hi"}},
		{"unmonitored guild channel", &channels.IncomingMessage{GuildID: "g1", ChatID: "c1", Content: "hi"}},
		{"empty message", &channels.IncomingMessage{ChatID: "dm1", IsDirect: true, Content: "   "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := newFakeChannel()
			a.HandleMessage(context.Background(), ch, tt.msg)
			if n := ch.sentCount(); n != 0 {
				t.Errorf("sent %d messages, rejection must be silent", n)
			}
			if n := a.sessions.Len(tt.msg.ChatID); n != 0 {
				t.Errorf("history has %d turns, rejection must not touch it", n)
			}
		})
	}
}

func TestHandleMessageOversizedAttachment(t *testing.T) {
	srv := newLLMTestServer(t, "Noted, thanks.")
	a := newTestAssistant(t, srv.URL, nil)
	ch := &fakeMediaChannel{
		fakeChannel: newFakeChannel(),
		files:       map[string][]byte{"https://cdn.example/notes.txt": []byte("remember the milk")},
	}

	msg := dmMessage("dm1", "please look at these files")
	msg.Attachments = []channels.Attachment{
		{URL: "https://cdn.example/notes.txt", Filename: "notes.txt", MimeType: "text/plain", Size: 17},
		{URL: "https://cdn.example/big.txt", Filename: "big.txt", MimeType: "text/plain", Size: 6 * 1024 * 1024},
	}
	a.HandleMessage(context.Background(), ch, msg)

	// The oversized file degrades to a placeholder; delivery still happens.
	reply := ch.waitSent(t)
	if reply.Content != "Noted, thanks." {
		t.Errorf("reply = %q", reply.Content)
	}

	turns := a.sessions.ContextWindow("dm1")
	if len(turns) != 2 {
		t.Fatalf("history has %d turns, want 2", len(turns))
	}
	summaries := turns[0].AttachmentSummaries
	want := []string{"document: notes.txt", "unreadable: big.txt"}
	if len(summaries) != len(want) {
		t.Fatalf("summaries = %v, want %v", summaries, want)
	}
	for i := range want {
		if summaries[i] != want[i] {
			t.Errorf("summary[%d] = %q, want %q", i, summaries[i], want[i])
		}
	}
}

func TestRunKeepsArrivalOrderPerChat(t *testing.T) {
	srv := newLLMTestServer(t, "ok")
	a := newTestAssistant(t, srv.URL, nil)
	ch := newFakeChannel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx, ch)

	// Back-to-back messages in one chat must land in history in arrival
	// order, round after round, regardless of goroutine scheduling.
	for round := 0; round < 50; round++ {
		chatID := fmt.Sprintf("dm-%d", round)
		ch.incoming <- dmMessage(chatID, "first")
		ch.incoming <- dmMessage(chatID, "second")

		for i := 0; i < 2; i++ {
			ch.waitSent(t)
		}

		var userTurns []string
		for _, turn := range a.sessions.ContextWindow(chatID) {
			if turn.Role == RoleUser {
				userTurns = append(userTurns, turn.Content)
			}
		}
		if len(userTurns) != 2 || userTurns[0] != "first" || userTurns[1] != "second" {
			t.Fatalf("round %d: user turns = %v, want [first second]", round, userTurns)
		}
	}
}

func TestRunReleasesChatQueues(t *testing.T) {
	srv := newLLMTestServer(t, "ok")
	a := newTestAssistant(t, srv.URL, nil)
	ch := newFakeChannel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx, ch)

	for i := 0; i < 5; i++ {
		ch.incoming <- dmMessage(fmt.Sprintf("dm-%d", i), "hello")
	}
	for i := 0; i < 5; i++ {
		ch.waitSent(t)
	}

	// Queue entries clean up after the last message in a chat completes, so
	// the map does not grow with every chat ever seen.
	deadline := time.Now().Add(2 * time.Second)
	for {
		a.mu.Lock()
		n := len(a.chatTails)
		a.mu.Unlock()
		if n == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("%d queue entries never released", n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// stalledSpeech blocks until the synthesis context expires, the behavior of
// an unresponsive speech endpoint.
type stalledSpeech struct{}

func (stalledSpeech) Synthesize(ctx context.Context, text, voice string) ([]byte, string, error) {
	<-ctx.Done()
	return nil, "", ctx.Err()
}

func TestSpeakTimeoutStillNotifies(t *testing.T) {
	srv := newLLMTestServer(t, "unused")
	a := newTestAssistant(t, srv.URL, stalledSpeech{})
	a.cfg.TTS.Enabled = true
	a.cfg.Timeouts.TTS = 0

	vc := &fakeVoiceChannel{fakeChannel: newFakeChannel()}
	a.maybeSpeak(vc, "guild1", "chan1", DefaultGuildConfig(), "hello there", a.logger)

	// Synthesis dies with an expired context; the notice must still arrive,
	// which requires sending it under a fresh context.
	notice := vc.waitSent(t)
	if !strings.Contains(notice.Content, "Voice synthesis failed") {
		t.Errorf("notice = %q", notice.Content)
	}
}

func TestInferenceErrorNotice(t *testing.T) {
	timeout := &PipelineError{Kind: FailureTimeout, Err: fmt.Errorf("deadline exceeded")}
	if got := inferenceErrorNotice(timeout); !strings.Contains(got, "too long") {
		t.Errorf("timeout notice = %q", got)
	}
	generic := &PipelineError{Kind: FailureInference, Err: fmt.Errorf("boom")}
	if got := inferenceErrorNotice(generic); !strings.Contains(got, "unavailable") {
		t.Errorf("generic notice = %q", got)
	}
}
