package pg

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/rincondev/warelay/internal/store"
)

// Store implements store.MessageStore backed by Postgres.
// Schema is managed via `warelay migrate` (golang-migrate), not created here.
type Store struct {
	db *sql.DB
}

// New connects to Postgres using the given DSN and verifies the connection.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	slog.Info("postgres store initialized")
	return &Store{db: db}, nil
}

func (s *Store) Append(ctx context.Context, chatID, sender, body string) (store.Message, error) {
	now := time.Now().UTC()
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO messages (chat_id, sender, body, timestamp)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		chatID, sender, body, now,
	).Scan(&id)
	if err != nil {
		return store.Message{}, fmt.Errorf("insert message: %w", err)
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
		 WHERE chat_id = $1 ORDER BY id ASC`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []store.Message
	for rows.Next() {
		var m store.Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Sender, &m.Body, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Timestamp = m.Timestamp.UTC()
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
