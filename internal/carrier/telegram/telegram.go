package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/rincondev/warelay/internal/config"
)

// Prefix namespaces Telegram conversations in chat ids:
// "telegram:<numeric chat id>". Twilio addresses keep their native
// "whatsapp:+E164" form, so the two carriers never collide.
const Prefix = "telegram:"

// InboundFunc receives one inbound message from the polling loop.
type InboundFunc func(ctx context.Context, chatID, text string)

// Carrier relays messages over the Telegram Bot API. Inbound messages
// arrive via long polling; outbound sends go through SendMessage.
type Carrier struct {
	bot     *telego.Bot
	inbound InboundFunc

	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// New creates the Telegram carrier. inbound is invoked for every text
// message received while polling runs.
func New(cfg config.TelegramConfig, inbound InboundFunc) (*Carrier, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}

	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Carrier{bot: bot, inbound: inbound}, nil
}

func (c *Carrier) Name() string { return "telegram" }

// Send delivers body to a "telegram:<id>" chat.
func (c *Carrier) Send(ctx context.Context, chatID, body string) error {
	raw := strings.TrimPrefix(chatID, Prefix)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}

	if _, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(id), body)); err != nil {
		return fmt.Errorf("telegram send to %s: %w", chatID, err)
	}
	return nil
}

// Start begins long polling for updates. It returns once polling is
// established; message handling continues in the background until Stop
// or ctx cancellation.
func (c *Carrier) Start(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	slog.Info("telegram carrier connected", "username", c.bot.Username())

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed")
					return
				}
				c.handleUpdate(pollCtx, update)
			}
		}
	}()

	return nil
}

// Stop cancels polling and waits for the handler goroutine to exit.
func (c *Carrier) Stop() {
	if c.pollCancel != nil {
		c.pollCancel()
	}
	if c.pollDone != nil {
		<-c.pollDone
	}
}

func (c *Carrier) handleUpdate(ctx context.Context, update telego.Update) {
	msg := update.Message
	if msg == nil {
		slog.Debug("telegram update skipped (no message)", "update_id", update.UpdateID)
		return
	}
	if msg.Text == "" {
		return // media-only messages carry nothing for the arbiter
	}

	chatID := Prefix + strconv.FormatInt(msg.Chat.ID, 10)
	c.inbound(ctx, chatID, msg.Text)
}
