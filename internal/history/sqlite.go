package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ciciliostudio/sidekick/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	session_key TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	role        TEXT NOT NULL,
	content     TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL,
	PRIMARY KEY (session_key, seq)
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_key);
`

// SQLiteStore persists transcripts in a local sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Read(sessionKey string) ([]types.Message, error) {
	rows, err := s.db.Query(
		`SELECT role, content, created_at FROM messages WHERE session_key = ? ORDER BY seq`,
		sessionKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	defer rows.Close()

	var messages []types.Message
	for rows.Next() {
		var m types.Message
		if err := rows.Scan(&m.Role, &m.Content, &m.Time); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// Write replaces the session's transcript wholesale, mirroring how the
// orchestrator treats history as an ordered list it owns.
func (s *SQLiteStore) Write(sessionKey string, messages []types.Message) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin history write: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM messages WHERE session_key = ?`, sessionKey); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO messages (session_key, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range messages {
		when := m.Time
		if when.IsZero() {
			when = time.Now()
		}
		if _, err := stmt.Exec(sessionKey, i, m.Role, m.Content, when); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) Clear(sessionKey string) error {
	_, err := s.db.Exec(`DELETE FROM messages WHERE session_key = ?`, sessionKey)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
