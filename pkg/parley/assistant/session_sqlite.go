// Package assistant – session_sqlite.go implements conversation persistence
// backed by a SQLite database, so history survives restarts without keeping
// every idle chat resident in memory.
package assistant

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteHistory stores conversation turns in a single `turns` table.
type SQLiteHistory struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLiteHistory opens (creating if needed) the conversation database.
func OpenSQLiteHistory(path string, logger *slog.Logger) (*SQLiteHistory, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history db: creating dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("history db: opening %s: %w", path, err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS turns (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id     TEXT NOT NULL,
		role        TEXT NOT NULL,
		content     TEXT NOT NULL,
		attachments TEXT NOT NULL DEFAULT '[]',
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_chat ON turns(chat_id, id);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history db: creating schema: %w", err)
	}

	return &SQLiteHistory{db: db, logger: logger.With("component", "history-db")}, nil
}

// SaveTurn appends a turn for the given chat.
func (p *SQLiteHistory) SaveTurn(chatID string, turn Turn) error {
	attachments, err := json.Marshal(turn.AttachmentSummaries)
	if err != nil {
		attachments = []byte("[]")
	}
	_, err = p.db.Exec(`
		INSERT INTO turns (chat_id, role, content, attachments, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		chatID, string(turn.Role), turn.Content, string(attachments),
		turn.Timestamp.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save turn: %w", err)
	}
	return nil
}

// LoadConversation reads all turns for a chat, oldest first.
func (p *SQLiteHistory) LoadConversation(chatID string) ([]Turn, error) {
	rows, err := p.db.Query(`
		SELECT role, content, attachments, created_at
		FROM turns WHERE chat_id = ? ORDER BY id ASC`, chatID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var (
			t           Turn
			role        string
			attachments string
			createdAt   string
		)
		if err := rows.Scan(&role, &t.Content, &attachments, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Role = Role(role)
		t.Timestamp, _ = time.Parse(time.RFC3339, createdAt)
		_ = json.Unmarshal([]byte(attachments), &t.AttachmentSummaries)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// DeleteLast removes the n most recent turns for a chat.
func (p *SQLiteHistory) DeleteLast(chatID string, n int) error {
	_, err := p.db.Exec(`
		DELETE FROM turns WHERE id IN (
			SELECT id FROM turns WHERE chat_id = ? ORDER BY id DESC LIMIT ?
		)`, chatID, n)
	if err != nil {
		return fmt.Errorf("delete last turns: %w", err)
	}
	return nil
}

// DeleteConversation removes all turns for a chat.
func (p *SQLiteHistory) DeleteConversation(chatID string) error {
	_, err := p.db.Exec(`DELETE FROM turns WHERE chat_id = ?`, chatID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

// Trim keeps only the maxTurns most recent turns for a chat.
func (p *SQLiteHistory) Trim(chatID string, maxTurns int) error {
	if maxTurns <= 0 {
		return nil
	}
	_, err := p.db.Exec(`
		DELETE FROM turns WHERE chat_id = ? AND id NOT IN (
			SELECT id FROM turns WHERE chat_id = ? ORDER BY id DESC LIMIT ?
		)`, chatID, chatID, maxTurns)
	if err != nil {
		return fmt.Errorf("trim conversation: %w", err)
	}
	return nil
}

// Close closes the database.
func (p *SQLiteHistory) Close() error {
	return p.db.Close()
}

var _ HistoryPersister = (*SQLiteHistory)(nil)
