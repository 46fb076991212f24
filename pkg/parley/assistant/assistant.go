// Package assistant – assistant.go is the message pipeline orchestrator:
// filter, augment, assemble, infer, post-process, persist, deliver.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parleybot/parley/pkg/parley/channels"
	"github.com/parleybot/parley/pkg/parley/tts"
)

// Assistant runs the full pipeline for each incoming message. One instance
// serves every guild and DM; messages for the same chat are dispatched
// through a serial queue so they process in arrival order, while different
// chats run fully in parallel.
type Assistant struct {
	cfg       Config
	guilds    *GuildConfigStore
	sessions  *ConversationStore
	stats     *StatsStore
	augmenter *Augmenter
	llm       *LLMClient
	speech    tts.Provider
	logger    *slog.Logger

	mu        sync.Mutex
	chatTails map[string]chan struct{}
}

// New creates the assistant with all pipeline stages wired.
func New(cfg Config, guilds *GuildConfigStore, sessions *ConversationStore, stats *StatsStore, augmenter *Augmenter, llm *LLMClient, speech tts.Provider, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assistant{
		cfg:       cfg,
		guilds:    guilds,
		sessions:  sessions,
		stats:     stats,
		augmenter: augmenter,
		llm:       llm,
		speech:    speech,
		logger:    logger.With("component", "assistant"),
		chatTails: make(map[string]chan struct{}),
	}
}

// Run consumes the channel's message stream until the context is canceled.
// Each message is handled in its own goroutine, but a goroutine first waits
// for its predecessor in the same chat to finish, so within one chat messages
// process strictly in arrival order while different chats run in parallel.
func (a *Assistant) Run(ctx context.Context, ch channels.Channel) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch.Receive():
			if !ok {
				return
			}
			prev, release := a.enqueue(msg.ChatID)
			go func(msg *channels.IncomingMessage) {
				defer release()
				defer func() {
					if r := recover(); r != nil {
						a.logger.Error("panic handling message", "chat", msg.ChatID, "panic", r)
					}
				}()
				if prev != nil {
					select {
					case <-prev:
					case <-ctx.Done():
						return
					}
				}
				a.HandleMessage(ctx, ch, msg)
			}(msg)
		}
	}
}

// enqueue links a message into its chat's serial queue. The returned prev
// channel closes when the chat's previous message finishes (nil when the
// queue was empty); release must be called when this message is done. The
// queue entry removes itself once the last message in it completes, so the
// map holds only chats with work in flight.
func (a *Assistant) enqueue(chatID string) (prev chan struct{}, release func()) {
	done := make(chan struct{})

	a.mu.Lock()
	prev = a.chatTails[chatID]
	a.chatTails[chatID] = done
	a.mu.Unlock()

	release = func() {
		a.mu.Lock()
		if a.chatTails[chatID] == done {
			delete(a.chatTails, chatID)
		}
		a.mu.Unlock()
		close(done)
	}
	return prev, release
}

// HandleMessage runs one message through the pipeline. Filtered messages
// return silently; downstream failures produce a user-facing notice without
// crashing the process.
func (a *Assistant) HandleMessage(ctx context.Context, ch channels.Channel, msg *channels.IncomingMessage) {
	if !a.shouldRespond(msg) {
		return
	}

	runID := uuid.NewString()
	logger := a.logger.With("run", runID, "chat", msg.ChatID, "from", msg.From)
	start := time.Now()

	guildCfg := a.guilds.Get(a.scopeKey(msg))

	if pc, ok := ch.(channels.PresenceChannel); ok {
		if err := pc.SendTyping(ctx, msg.ChatID); err != nil {
			logger.Debug("typing indicator failed", "error", err)
		}
	}

	// Augmentation never fails the pipeline; degraded steps leave
	// placeholders behind.
	var dl downloader
	if mc, ok := ch.(channels.MediaChannel); ok {
		dl = mc
	}
	plan := a.augmenter.Resolve(ctx, *msg, guildCfg, a.scopeKey(msg), dl)

	history := a.sessions.ContextWindow(msg.ChatID)
	req := AssembleRequest(guildCfg, a.cfg.API.DefaultModel, history, msg.Content, plan)

	// The user turn goes into history before inference so the conversation
	// reflects what was asked even when the model call fails.
	a.sessions.AppendUserTurn(msg.ChatID, Turn{
		Content:             msg.Content,
		AttachmentSummaries: plan.Summaries(),
		Timestamp:           msg.Timestamp,
	})

	inferCtx, cancel := context.WithTimeout(ctx, time.Duration(a.cfg.Timeouts.Inference)*time.Second)
	defer cancel()

	resp, err := a.llm.Complete(inferCtx, req)
	if err != nil {
		logger.Error("inference failed", "error", err)
		a.sendNotice(ctx, ch, msg.ChatID, inferenceErrorNotice(err))
		return
	}

	reply, reasoning := SplitReasoning(resp.Content)
	if guildCfg.DebugEnabled && reasoning != "" {
		logger.Debug("model reasoning", "reasoning", truncateForLog(reasoning, 2000))
	}
	if reply == "" {
		logger.Warn("model produced no visible content", "raw_len", len(resp.Content))
		a.sendNotice(ctx, ch, msg.ChatID, "I could not produce a response. Please try again.")
		return
	}
	if guildCfg.MaxTokens > 0 {
		// Advisory guard on top of the request limit; roughly four runes
		// per token.
		reply = TruncateRunes(reply, guildCfg.MaxTokens*4)
	}

	// Persistence failures are logged, never user-facing.
	a.sessions.AppendAssistantTurn(msg.ChatID, Turn{Content: reply})

	elapsed := time.Since(start)
	a.recordStats(msg.ChatID, req, resp, reply, elapsed)

	if guildCfg.DebugEnabled && guildCfg.DebugLevel == DebugDebug {
		reply += fmt.Sprintf("\n\n`%s | %.1fs | %d+%d tokens`",
			req.Model, elapsed.Seconds(), resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}

	if err := ch.Send(ctx, msg.ChatID, &channels.OutgoingMessage{Content: reply, ReplyTo: msg.ID}); err != nil {
		logger.Error("delivery failed", "error", err)
		return
	}

	logger.Info("message handled",
		"duration_ms", elapsed.Milliseconds(),
		"model", req.Model,
		"search", plan.SearchResults != "",
		"urls", len(plan.URLs),
		"attachments", len(plan.Attachments),
	)

	a.maybeSpeak(ch, msg.GuildID, msg.ChatID, guildCfg, reply, logger)
}

// shouldRespond is the gateway filter. Bots are ignored when configured, DMs
// honor the allow flag, and guild messages need either a monitored channel
// or a direct mention.
func (a *Assistant) shouldRespond(msg *channels.IncomingMessage) bool {
	if msg.FromBot && a.cfg.Gateway.IgnoreBots {
		return false
	}
	if strings.TrimSpace(msg.Content) == "" && len(msg.Attachments) == 0 {
		return false
	}
	if msg.IsDirect {
		return a.cfg.Gateway.AllowDMs
	}
	if msg.Mentioned {
		return true
	}
	return a.guilds.IsChannelMonitored(msg.GuildID, msg.ChatID)
}

// scopeKey is the per-server configuration and rate-limit scope. DMs scope
// by chat since they have no guild.
func (a *Assistant) scopeKey(msg *channels.IncomingMessage) string {
	if msg.GuildID != "" {
		return msg.GuildID
	}
	return msg.ChatID
}

// recordStats folds one run into the channel counters. Endpoint-reported
// usage wins; the heuristic estimate fills in when the endpoint omits it.
// Response tokens count the cleaned reply, not the stripped reasoning.
func (a *Assistant) recordStats(chatID string, req CompletionRequest, resp *CompletionResponse, reply string, elapsed time.Duration) {
	promptTokens := resp.Usage.PromptTokens
	if promptTokens == 0 {
		for _, m := range req.Messages {
			if text, ok := m.Content.(string); ok {
				promptTokens += EstimateTokens(text)
			}
		}
	}
	a.stats.Record(chatID, StatsSample{
		PromptTokens:   promptTokens,
		ResponseTokens: EstimateTokens(reply),
		ElapsedSeconds: elapsed.Seconds(),
	})
}

// maybeSpeak synthesizes and plays the reply when the guild opted in and the
// bot is sitting in a voice channel. Runs detached; a speech failure is
// reported to the text channel once, never retried.
func (a *Assistant) maybeSpeak(ch channels.Channel, guildID, chatID string, guildCfg GuildConfig, reply string, logger *slog.Logger) {
	if a.speech == nil || !a.cfg.TTS.Enabled || !guildCfg.TTSEnabled || guildID == "" {
		return
	}
	vc, ok := ch.(channels.VoiceChannel)
	if !ok || !vc.InVoice(guildID) {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(a.cfg.Timeouts.TTS)*time.Second)
		defer cancel()

		voice := guildCfg.SelectedVoice
		if voice == "" {
			voice = a.cfg.TTS.Voice
		}
		audio, mime, err := a.speech.Synthesize(ctx, reply, voice)
		if err != nil {
			logger.Warn("speech synthesis failed", "error", err)
			a.sendFailureNotice(ch, chatID, "Voice synthesis failed for this reply.")
			return
		}
		if err := vc.PlayAudio(ctx, guildID, audio, mime); err != nil {
			logger.Warn("voice playback failed", "error", err)
			a.sendFailureNotice(ch, chatID, "Voice playback failed for this reply.")
		}
	}()
}

func (a *Assistant) sendNotice(ctx context.Context, ch channels.Channel, chatID, text string) {
	if err := ch.Send(ctx, chatID, &channels.OutgoingMessage{Content: text}); err != nil {
		a.logger.Error("failed to send notice", "chat", chatID, "error", err)
	}
}

// sendFailureNotice reports a failure whose own context may already be
// expired, most commonly a timeout, so the notice gets a fresh one.
func (a *Assistant) sendFailureNotice(ch channels.Channel, chatID, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	a.sendNotice(ctx, ch, chatID, text)
}

// inferenceErrorNotice maps a pipeline failure to the user-facing message.
func inferenceErrorNotice(err error) string {
	var perr *PipelineError
	if errors.As(err, &perr) && perr.Kind == FailureTimeout {
		return "The model took too long to respond. Please try again."
	}
	return "The language model is currently unavailable. Please try again later."
}
