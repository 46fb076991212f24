// Package assistant – stats.go implements per-channel usage statistics:
// message counts, token estimates, and a running mean of response latency.
// Counters only move forward; the only way down is an explicit reset.
package assistant

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// StatsRecord holds cumulative usage counters for one channel.
// Token figures come from a length-based heuristic, not an exact tokenizer;
// treat them as approximations.
type StatsRecord struct {
	TotalMessages      int     `yaml:"total_messages"`
	PromptTokens       int     `yaml:"prompt_tokens"`
	ResponseTokens     int     `yaml:"response_tokens"`
	AvgResponseSeconds float64 `yaml:"avg_response_seconds"`
}

// StatsSample is one completed pipeline run's contribution.
type StatsSample struct {
	PromptTokens   int
	ResponseTokens int
	ElapsedSeconds float64
}

// StatsStore owns the per-channel statistics map, persisted as YAML.
type StatsStore struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	channels map[string]StatsRecord
	dirty    bool
}

// NewStatsStore creates a store backed by the given YAML file.
// An existing file is loaded; a missing one starts empty.
func NewStatsStore(path string, logger *slog.Logger) (*StatsStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &StatsStore{
		path:     path,
		logger:   logger.With("component", "stats"),
		channels: make(map[string]StatsRecord),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("stats: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s.channels); err != nil {
		return nil, fmt.Errorf("stats: parsing %s: %w", path, err)
	}
	s.logger.Info("statistics loaded", "channels", len(s.channels))
	return s, nil
}

// Record folds one pipeline run into the channel's counters. All four fields
// update as one unit under the lock. The mean uses the incremental formula so
// no timing history needs to be retained.
func (s *StatsStore) Record(chatID string, sample StatsSample) {
	s.mu.Lock()
	rec := s.channels[chatID]
	rec.TotalMessages++
	rec.PromptTokens += sample.PromptTokens
	rec.ResponseTokens += sample.ResponseTokens
	rec.AvgResponseSeconds += (sample.ElapsedSeconds - rec.AvgResponseSeconds) / float64(rec.TotalMessages)
	s.channels[chatID] = rec
	s.dirty = true
	s.mu.Unlock()
}

// Get returns the counters for a channel; zeros when nothing was recorded.
func (s *StatsStore) Get(chatID string) StatsRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channels[chatID]
}

// Reset zeroes the counters for a channel.
func (s *StatsStore) Reset(chatID string) {
	s.mu.Lock()
	delete(s.channels, chatID)
	s.dirty = true
	s.mu.Unlock()
}

// Summary renders the counters as display text for the stats command.
func (s *StatsStore) Summary(chatID string) string {
	rec := s.Get(chatID)
	if rec.TotalMessages == 0 {
		return "No statistics recorded for this channel yet."
	}
	return fmt.Sprintf(
		"Messages: %d\nPrompt tokens (est.): %d\nResponse tokens (est.): %d\nAvg response time: %.2fs",
		rec.TotalMessages, rec.PromptTokens, rec.ResponseTokens, rec.AvgResponseSeconds,
	)
}

// Flush writes the current state to disk if anything changed since the last
// flush. Called periodically and on shutdown.
func (s *StatsStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}

	data, err := yaml.Marshal(s.channels)
	if err != nil {
		return fmt.Errorf("stats: marshaling: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("stats: creating data dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("stats: writing %s: %w", s.path, err)
	}
	s.dirty = false
	return nil
}
