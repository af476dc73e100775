// Package history persists chat transcripts in a SQLite database so
// conversations survive process restarts. Each conversation is identified by
// a ULID and stores the messages exactly as the session reports them, which
// lets a later SetHistory resume the conversation byte for byte.
package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"fireside/chat"
)

// Conversation is a stored transcript's metadata.
type Conversation struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store wraps a SQLite database connection for persisting transcripts.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens (and initializes) a SQLite database file.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "fireside_history.db"
	}

	if dir := filepath.Dir(filepath.Clean(path)); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to ensure history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}

	// Pragmas are per-connection; a single pooled connection keeps the
	// foreign_keys setting in force for every query.
	db.SetMaxOpenConns(1)

	if err := bootstrap(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func bootstrap(db *sql.DB) error {
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
		PRAGMA foreign_keys=ON;
	`); err != nil {
		return fmt.Errorf("failed to configure database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS messages (
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_calls TEXT,
			name TEXT,
			PRIMARY KEY (conversation_id, position)
		);
	`); err != nil {
		return fmt.Errorf("failed to create history tables: %w", err)
	}

	return nil
}

// CreateConversation registers a new empty conversation and returns its id.
func (s *Store) CreateConversation(title string) (string, error) {
	if s == nil || s.db == nil {
		return "", errors.New("history store is not initialized")
	}

	id := ulid.Make().String()
	now := time.Now().Unix()
	if _, err := s.db.Exec(
		`INSERT INTO conversations (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, title, now, now,
	); err != nil {
		return "", fmt.Errorf("failed to create conversation: %w", err)
	}
	return id, nil
}

// SaveMessages replaces the stored transcript of a conversation. The message
// slice is what Session.GetHistory returns; storing it verbatim keeps resume
// via SetHistory exact.
func (s *Store) SaveMessages(conversationID string, msgs []chat.Message) error {
	if s == nil || s.db == nil {
		return errors.New("history store is not initialized")
	}
	if conversationID == "" {
		return errors.New("conversation id must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("failed to clear transcript: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO messages (conversation_id, position, role, content, tool_calls, name) VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range msgs {
		var calls sql.NullString
		if len(m.ToolCalls) > 0 {
			encoded, err := json.Marshal(m.ToolCalls)
			if err != nil {
				return fmt.Errorf("failed to encode tool calls: %w", err)
			}
			calls = sql.NullString{String: string(encoded), Valid: true}
		}
		var name sql.NullString
		if m.Name != "" {
			name = sql.NullString{String: m.Name, Valid: true}
		}
		if _, err := stmt.Exec(conversationID, i, string(m.Role), m.Content, calls, name); err != nil {
			return fmt.Errorf("failed to store message %d: %w", i, err)
		}
	}

	res, err := tx.Exec(`UPDATE conversations SET updated_at = ? WHERE id = ?`, time.Now().Unix(), conversationID)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("unknown conversation %q", conversationID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transcript: %w", err)
	}
	return nil
}

// Messages loads a conversation's transcript in order.
func (s *Store) Messages(conversationID string) ([]chat.Message, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("history store is not initialized")
	}

	rows, err := s.db.Query(
		`SELECT role, content, tool_calls, name FROM messages WHERE conversation_id = ? ORDER BY position`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		var (
			role    string
			content string
			calls   sql.NullString
			name    sql.NullString
		)
		if err := rows.Scan(&role, &content, &calls, &name); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		m := chat.Message{Role: chat.Role(role), Content: content, Name: name.String}
		if calls.Valid {
			if err := json.Unmarshal([]byte(calls.String), &m.ToolCalls); err != nil {
				return nil, fmt.Errorf("failed to decode tool calls: %w", err)
			}
		}
		msgs = append(msgs, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return msgs, nil
}

// Conversations lists stored conversations, most recently updated first.
func (s *Store) Conversations(limit int) ([]Conversation, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("history store is not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(
		`SELECT id, title, created_at, updated_at FROM conversations ORDER BY updated_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var (
			c       Conversation
			created int64
			updated int64
		)
		if err := rows.Scan(&c.ID, &c.Title, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		c.CreatedAt = time.Unix(created, 0)
		c.UpdatedAt = time.Unix(updated, 0)
		convs = append(convs, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversation rows: %w", err)
	}
	return convs, nil
}

// DeleteConversation removes a conversation and its transcript.
func (s *Store) DeleteConversation(conversationID string) error {
	if s == nil || s.db == nil {
		return errors.New("history store is not initialized")
	}
	if _, err := s.db.Exec(`DELETE FROM conversations WHERE id = ?`, conversationID); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// Close releases database resources held by the store.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
