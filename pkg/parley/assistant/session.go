// Package assistant – session.go implements per-channel conversation history.
// Each text channel or DM has its own bounded history; the context window
// handed to the inference server is always a trailing slice of it. History is
// restored from the persistence backend on first access after a restart.
package assistant

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Role identifies which side of the conversation produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message stored as part of conversation history.
type Turn struct {
	Role Role

	// Content is the plain message text, without augmentation sections.
	Content string

	// AttachmentSummaries lists short descriptions of attachments that came
	// with the turn (filenames, rejection placeholders).
	AttachmentSummaries []string

	Timestamp time.Time
}

// HistoryPersister is the interface for conversation persistence backends.
type HistoryPersister interface {
	SaveTurn(chatID string, turn Turn) error
	LoadConversation(chatID string) ([]Turn, error)
	DeleteLast(chatID string, n int) error
	DeleteConversation(chatID string) error
	Trim(chatID string, maxTurns int) error
	Close() error
}

// conversation holds the in-memory history for one chat.
type conversation struct {
	mu         sync.Mutex
	turns      []Turn
	lastActive time.Time
}

// ConversationStore owns per-channel conversation history. Operations on the
// same chat serialize on that chat's lock; different chats proceed in parallel.
type ConversationStore struct {
	maxMessages     int
	contextMessages int
	logger          *slog.Logger
	persistence     HistoryPersister

	mu    sync.RWMutex
	chats map[string]*conversation
}

// NewConversationStore creates a store with the given history bounds.
// persistence may be nil for a purely in-memory store (tests, REPL).
func NewConversationStore(cfg HistoryConfig, persistence HistoryPersister, logger *slog.Logger) *ConversationStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationStore{
		maxMessages:     cfg.MaxMessages,
		contextMessages: cfg.ContextMessages,
		logger:          logger.With("component", "sessions"),
		persistence:     persistence,
		chats:           make(map[string]*conversation),
	}
}

// AppendUserTurn records what the user asked. Called before inference so the
// conversation reflects the question even when inference later fails.
func (s *ConversationStore) AppendUserTurn(chatID string, turn Turn) {
	turn.Role = RoleUser
	s.append(chatID, turn)
}

// AppendAssistantTurn records the assistant's reply after inference.
func (s *ConversationStore) AppendAssistantTurn(chatID string, turn Turn) {
	turn.Role = RoleAssistant
	s.append(chatID, turn)
}

func (s *ConversationStore) append(chatID string, turn Turn) {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	conv := s.getOrCreate(chatID)

	conv.mu.Lock()
	conv.turns = append(conv.turns, turn)
	// New entries are never dropped to make room for themselves: the bound
	// is applied after the append, evicting from the front.
	if s.maxMessages > 0 && len(conv.turns) > s.maxMessages {
		conv.turns = conv.turns[len(conv.turns)-s.maxMessages:]
	}
	conv.lastActive = time.Now()
	conv.mu.Unlock()

	if s.persistence != nil {
		if err := s.persistence.SaveTurn(chatID, turn); err != nil {
			s.logger.Warn("persisting turn failed", "chat", chatID, "err", err)
		}
		if err := s.persistence.Trim(chatID, s.maxMessages); err != nil {
			s.logger.Warn("trimming persisted history failed", "chat", chatID, "err", err)
		}
	}
}

// ContextWindow returns the most recent context turns, oldest first.
// The result is always a suffix of the full history and never longer than
// the configured context size.
func (s *ConversationStore) ContextWindow(chatID string) []Turn {
	conv := s.getOrCreate(chatID)
	conv.mu.Lock()
	defer conv.mu.Unlock()

	n := len(conv.turns)
	window := s.contextMessages
	if window <= 0 || window > n {
		window = n
	}
	out := make([]Turn, window)
	copy(out, conv.turns[n-window:])
	return out
}

// Len returns the number of stored turns for a chat.
func (s *ConversationStore) Len(chatID string) int {
	conv := s.getOrCreate(chatID)
	conv.mu.Lock()
	defer conv.mu.Unlock()
	return len(conv.turns)
}

// Clear removes the entire history for a chat.
func (s *ConversationStore) Clear(chatID string) {
	conv := s.getOrCreate(chatID)
	conv.mu.Lock()
	conv.turns = nil
	conv.lastActive = time.Now()
	conv.mu.Unlock()

	if s.persistence != nil {
		if err := s.persistence.DeleteConversation(chatID); err != nil {
			s.logger.Warn("clearing persisted history failed", "chat", chatID, "err", err)
		}
	}
}

// ClearLast removes the most recent exchange: the trailing assistant turn and
// the user turn before it. If the history ends in a lone user turn (the state
// after a failed inference), only that turn is removed. No-op on empty history.
func (s *ConversationStore) ClearLast(chatID string) int {
	conv := s.getOrCreate(chatID)
	conv.mu.Lock()

	removed := 0
	if n := len(conv.turns); n > 0 {
		if conv.turns[n-1].Role == RoleAssistant {
			removed = 2
			if n < 2 {
				removed = 1
			}
		} else {
			removed = 1
		}
		conv.turns = conv.turns[:n-removed]
		conv.lastActive = time.Now()
	}
	conv.mu.Unlock()

	if removed > 0 && s.persistence != nil {
		if err := s.persistence.DeleteLast(chatID, removed); err != nil {
			s.logger.Warn("removing persisted turns failed", "chat", chatID, "err", err)
		}
	}
	return removed
}

// Prune drops in-memory conversations idle for longer than maxIdle.
// Persisted history is kept; a pruned chat reloads on next access.
func (s *ConversationStore) Prune(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := 0
	for chatID, conv := range s.chats {
		conv.mu.Lock()
		idle := conv.lastActive.Before(cutoff)
		conv.mu.Unlock()
		if idle {
			delete(s.chats, chatID)
			pruned++
		}
	}
	if pruned > 0 {
		s.logger.Info("inactive conversations pruned", "pruned", pruned, "remaining", len(s.chats))
	}
	return pruned
}

// StartPruner runs Prune periodically until the context is cancelled.
func (s *ConversationStore) StartPruner(ctx context.Context, maxIdle, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Prune(maxIdle)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// getOrCreate returns the conversation for a chat, restoring persisted
// history on first access.
func (s *ConversationStore) getOrCreate(chatID string) *conversation {
	s.mu.RLock()
	conv, ok := s.chats[chatID]
	s.mu.RUnlock()
	if ok {
		return conv
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Double-check after acquiring the write lock.
	if conv, ok := s.chats[chatID]; ok {
		return conv
	}

	conv = &conversation{lastActive: time.Now()}
	if s.persistence != nil {
		turns, err := s.persistence.LoadConversation(chatID)
		switch {
		case err != nil:
			s.logger.Warn("restoring conversation failed", "chat", chatID, "err", err)
		case len(turns) > 0:
			if s.maxMessages > 0 && len(turns) > s.maxMessages {
				turns = turns[len(turns)-s.maxMessages:]
			}
			conv.turns = turns
			s.logger.Info("conversation restored", "chat", chatID, "turns", len(turns))
		}
	}
	s.chats[chatID] = conv
	return conv
}
