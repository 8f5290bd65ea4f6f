package carrier

import (
	"context"
	"fmt"
	"strings"
)

// Carrier delivers outbound text to a chat on one messaging network.
type Carrier interface {
	// Name returns the carrier identifier (e.g. "twilio", "telegram").
	Name() string

	// Send delivers body to the chat. chatID is the carrier-specific
	// address (e.g. "whatsapp:+15551234567" or "telegram:123456").
	Send(ctx context.Context, chatID, body string) error
}

// Router picks the carrier for a chatId by its namespace prefix.
// Telegram chat ids are namespaced "telegram:<id>"; everything else
// (Twilio's own "whatsapp:+E164" addresses included) goes to the
// default carrier.
type Router struct {
	byPrefix map[string]Carrier
	fallback Carrier
}

func NewRouter(fallback Carrier) *Router {
	return &Router{
		byPrefix: make(map[string]Carrier),
		fallback: fallback,
	}
}

// Register routes chat ids with the given prefix (e.g. "telegram:") to c.
func (r *Router) Register(prefix string, c Carrier) {
	r.byPrefix[prefix] = c
}

func (r *Router) Name() string { return "router" }

func (r *Router) Send(ctx context.Context, chatID, body string) error {
	for prefix, c := range r.byPrefix {
		if strings.HasPrefix(chatID, prefix) {
			return c.Send(ctx, chatID, body)
		}
	}
	if r.fallback == nil {
		return fmt.Errorf("no carrier for chat %q", chatID)
	}
	return r.fallback.Send(ctx, chatID, body)
}
