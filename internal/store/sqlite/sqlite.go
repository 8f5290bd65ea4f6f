package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rincondev/warelay/internal/store"
)

// Store implements store.MessageStore on a local SQLite file.
// This is the standalone-mode backend; no external services required.
type Store struct {
	db *sql.DB
}

// Open creates (or opens) the SQLite database at path and ensures the
// schema exists. Parent directories are created if needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL for concurrent webhook + panel reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	slog.Info("sqlite store initialized", "path", path)
	return s, nil
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			body TEXT NOT NULL,
			timestamp TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_chat_timestamp
			ON messages(chat_id, timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Append(ctx context.Context, chatID, sender, body string) (store.Message, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (chat_id, sender, body, timestamp) VALUES (?, ?, ?, ?)`,
		chatID, sender, body, now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return store.Message{}, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return store.Message{}, fmt.Errorf("last insert id: %w", err)
	}
	return store.Message{ID: id, ChatID: chatID, Sender: sender, Body: body, Timestamp: now}, nil
}

func (s *Store) ListChats(ctx context.Context) ([]store.ChatRef, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id FROM messages GROUP BY chat_id ORDER BY MAX(id) DESC`)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var chats []store.ChatRef
	for rows.Next() {
		var ref store.ChatRef
		if err := rows.Scan(&ref.ChatID); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, ref)
	}
	return chats, rows.Err()
}

func (s *Store) ListMessages(ctx context.Context, chatID string) ([]store.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, sender, body, timestamp FROM messages
		 WHERE chat_id = ? ORDER BY id ASC`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []store.Message
	for rows.Next() {
		var m store.Message
		var ts string
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Sender, &m.Body, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
