package bus

import (
	"sync"

	"github.com/rincondev/warelay/internal/store"
)

// Event names broadcast to panel websocket clients.
const (
	EventMessageCreated = "message.created"
	EventChatState      = "chat.state"
)

// Event is a server-side event to broadcast to connected panel clients.
type Event struct {
	Name    string      `json:"name"`
	Payload interface{} `json:"payload,omitempty"`
}

// MessagePayload accompanies EventMessageCreated.
type MessagePayload struct {
	Message store.Message `json:"message"`
}

// ChatStatePayload accompanies EventChatState.
type ChatStatePayload struct {
	ChatID                  string `json:"chatId"`
	AIActive                bool   `json:"aiActive"`
	LastHumanInterventionAt *int64 `json:"lastHumanInterventionAt"` // unix ms, null when absent
}

// EventHandler handles a broadcast event.
type EventHandler func(Event)

// EventPublisher abstracts event broadcast + subscription. The HTTP
// event stream subscribes per websocket client; the arbiter broadcasts.
type EventPublisher interface {
	Subscribe(id string, handler EventHandler)
	Unsubscribe(id string)
	Broadcast(event Event)
}

// Bus is an in-process EventPublisher. Safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]EventHandler
}

func New() *Bus {
	return &Bus{handlers: make(map[string]EventHandler)}
}

func (b *Bus) Subscribe(id string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[id] = handler
}

func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, id)
}

// Broadcast delivers the event to all subscribers. Handlers run on the
// caller's goroutine and must not block.
func (b *Bus) Broadcast(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, handler := range b.handlers {
		handler(event)
	}
}
