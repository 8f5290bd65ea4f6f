package store

import (
	"context"
	"time"
)

// Sender identifies who produced a message.
const (
	SenderUser  = "user"
	SenderHuman = "human"
	SenderBot   = "bot"
)

// Message is one persisted chat message. Records are append-only: they
// are never updated or deleted once written.
type Message struct {
	ID        int64     `json:"id"`
	ChatID    string    `json:"chatId"`
	Sender    string    `json:"sender"` // user | human | bot
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatRef is a distinct chat identifier as returned by ListChats.
type ChatRef struct {
	ChatID string `json:"chatId"`
}

// MessageStore persists chat history.
type MessageStore interface {
	// Append writes a message and returns it with ID and Timestamp filled in.
	Append(ctx context.Context, chatID, sender, body string) (Message, error)

	// ListChats returns distinct chat IDs, most recently active first.
	ListChats(ctx context.Context) ([]ChatRef, error)

	// ListMessages returns a chat's full history in ascending timestamp order.
	ListMessages(ctx context.Context, chatID string) ([]Message, error)

	Close() error
}
