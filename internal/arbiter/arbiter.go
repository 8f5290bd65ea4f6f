package arbiter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/rincondev/warelay/internal/bus"
	"github.com/rincondev/warelay/internal/carrier"
	"github.com/rincondev/warelay/internal/providers"
	"github.com/rincondev/warelay/internal/store"
)

// DecisionKind discriminates the outcome of an inbound message.
type DecisionKind string

const (
	// DecisionCommand means an operator command was executed and a
	// status reply was sent.
	DecisionCommand DecisionKind = "command"
	// DecisionAutomatedReply means an automated completion was requested.
	DecisionAutomatedReply DecisionKind = "automated_reply"
	// DecisionSuppressed means no automated reply is due.
	DecisionSuppressed DecisionKind = "suppressed"
)

// Suppression reasons.
const (
	ReasonAIDisabled = "ai-disabled"
	ReasonHumanPause = "human-pause"
)

// Decision is the discriminated result of handling one inbound message.
type Decision struct {
	Kind     DecisionKind
	Command  string // command decisions: the canonical command
	Reply    string // command status text, or the generated reply once sent
	Reason   string // suppressed decisions: why
	Prompt   string // automated decisions: system prompt used
	UserText string
}

// PromptSource provides the current conversation system prompt.
type PromptSource interface {
	Get() string
}

// Options bound the arbitrator's completion fan-out.
type Options struct {
	PauseWindow              time.Duration
	CompletionTimeout        time.Duration
	MaxConcurrentCompletions int64
	CompletionRPM            float64 // 0 = unlimited
}

// Arbitrator owns per-chat response arbitration: for every inbound
// event it decides whether to execute a command, stay silent, or
// request an automated completion. It performs no I/O during the
// decision itself; persistence, delivery, and completion calls go to
// the injected collaborators.
type Arbitrator struct {
	states   *StateStore
	messages store.MessageStore
	carrier  carrier.Carrier
	provider providers.Provider
	prompt   PromptSource
	events   bus.EventPublisher

	pauseWindow       time.Duration
	completionTimeout time.Duration
	sem               *semaphore.Weighted
	limiter           *rate.Limiter

	now func() time.Time // injectable clock for tests
}

func New(messages store.MessageStore, c carrier.Carrier, p providers.Provider, prompt PromptSource, events bus.EventPublisher, opts Options) *Arbitrator {
	if opts.PauseWindow <= 0 {
		opts.PauseWindow = 30 * time.Minute
	}
	if opts.CompletionTimeout <= 0 {
		opts.CompletionTimeout = 60 * time.Second
	}
	if opts.MaxConcurrentCompletions <= 0 {
		opts.MaxConcurrentCompletions = 8
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.CompletionRPM > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.CompletionRPM/60.0), 1)
	}

	return &Arbitrator{
		states:            NewStateStore(),
		messages:          messages,
		carrier:           c,
		provider:          p,
		prompt:            prompt,
		events:            events,
		pauseWindow:       opts.PauseWindow,
		completionTimeout: opts.CompletionTimeout,
		sem:               semaphore.NewWeighted(opts.MaxConcurrentCompletions),
		limiter:           limiter,
		now:               time.Now,
	}
}

// HandleInbound processes one user message from the carrier webhook.
//
// The message is always persisted as sender "user" before anything else;
// a later completion or delivery failure never rolls that back. The
// returned error covers only the persistence write. Command, completion,
// and delivery failures are logged and swallowed, matching the webhook
// contract of acknowledging the carrier regardless of outcome.
func (a *Arbitrator) HandleInbound(ctx context.Context, chatID, text string) (Decision, error) {
	text = strings.TrimSpace(text)
	if chatID == "" {
		return Decision{}, fmt.Errorf("empty chat id")
	}

	msg, err := a.messages.Append(ctx, chatID, store.SenderUser, text)
	if err != nil {
		return Decision{}, fmt.Errorf("persist user message: %w", err)
	}
	a.broadcastMessage(msg)

	decision := a.decide(chatID, text)

	switch decision.Kind {
	case DecisionCommand:
		if err := a.carrier.Send(ctx, chatID, decision.Reply); err != nil {
			slog.Error("command status delivery failed", "chat", chatID, "command", decision.Command, "error", err)
		}
	case DecisionAutomatedReply:
		a.completeAndReply(ctx, chatID, &decision)
	case DecisionSuppressed:
		slog.Debug("automated reply suppressed", "chat", chatID, "reason", decision.Reason)
	}

	return decision, nil
}

// decide runs the state machine for one inbound message. State reads
// and mutations happen under the chat's lock, so concurrent messages
// for the same chat serialize here.
func (a *Arbitrator) decide(chatID, text string) Decision {
	now := a.now()

	var decision Decision
	st := a.states.Update(chatID, func(st *ChatState) {
		if cmd := parseCommand(text); cmd != "" {
			decision = Decision{
				Kind:    DecisionCommand,
				Command: cmd,
				Reply:   a.runCommand(cmd, st, now),
			}
			return
		}

		switch {
		case !st.AIActive:
			decision = Decision{Kind: DecisionSuppressed, Reason: ReasonAIDisabled}
		case st.Paused(now, a.pauseWindow):
			decision = Decision{Kind: DecisionSuppressed, Reason: ReasonHumanPause}
		default:
			decision = Decision{
				Kind:     DecisionAutomatedReply,
				Prompt:   a.prompt.Get(),
				UserText: text,
			}
		}
	})

	if decision.Kind == DecisionCommand {
		a.broadcastState(st)
	}
	return decision
}

// completeAndReply requests a completion and, on success, persists and
// delivers the bot reply. Failures are logged; the user message already
// persisted is never rolled back, and no retry happens at this level.
func (a *Arbitrator) completeAndReply(ctx context.Context, chatID string, decision *Decision) {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		slog.Warn("completion slot unavailable", "chat", chatID, "error", err)
		return
	}
	defer a.sem.Release(1)

	if err := a.limiter.Wait(ctx); err != nil {
		slog.Warn("completion rate limit wait aborted", "chat", chatID, "error", err)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, a.completionTimeout)
	defer cancel()

	resp, err := a.provider.Complete(callCtx, providers.CompletionRequest{
		SystemPrompt: decision.Prompt,
		UserText:     decision.UserText,
	})
	if err != nil {
		slog.Error("completion failed", "chat", chatID, "error", err)
		return
	}
	decision.Reply = resp.Content

	msg, err := a.messages.Append(ctx, chatID, store.SenderBot, resp.Content)
	if err != nil {
		slog.Error("persist bot message failed", "chat", chatID, "error", err)
	} else {
		a.broadcastMessage(msg)
	}

	if err := a.carrier.Send(ctx, chatID, resp.Content); err != nil {
		slog.Error("automated reply delivery failed", "chat", chatID, "error", err)
	}
}

// OperatorSend persists and delivers a message typed by a human
// operator in the panel. It deliberately leaves aiActive and the
// intervention timestamp untouched; only webhook-side /human claims
// start a pause.
func (a *Arbitrator) OperatorSend(ctx context.Context, chatID, text string) (store.Message, error) {
	msg, err := a.messages.Append(ctx, chatID, store.SenderHuman, text)
	if err != nil {
		return store.Message{}, fmt.Errorf("persist operator message: %w", err)
	}
	a.broadcastMessage(msg)

	if err := a.carrier.Send(ctx, chatID, text); err != nil {
		return msg, fmt.Errorf("deliver operator message: %w", err)
	}
	return msg, nil
}

// ToggleAI flips automated replies for a chat. Landing on active clears
// any pending human pause. Returns the new state snapshot.
func (a *Arbitrator) ToggleAI(chatID string) ChatState {
	st := a.states.Update(chatID, func(st *ChatState) {
		setAIActive(st, !st.AIActive)
	})
	a.broadcastState(st)
	return st
}

// State returns the chat's current state snapshot, creating the default
// state on first reference. Pause expiry is evaluated only at inbound
// time, so a snapshot may still name an already-expired pause.
func (a *Arbitrator) State(chatID string) ChatState {
	return a.states.Snapshot(chatID)
}

func (a *Arbitrator) broadcastMessage(msg store.Message) {
	if a.events == nil {
		return
	}
	a.events.Broadcast(bus.Event{
		Name:    bus.EventMessageCreated,
		Payload: bus.MessagePayload{Message: msg},
	})
}

func (a *Arbitrator) broadcastState(st ChatState) {
	if a.events == nil {
		return
	}
	payload := bus.ChatStatePayload{ChatID: st.ChatID, AIActive: st.AIActive}
	if !st.LastHumanInterventionAt.IsZero() {
		ms := st.LastHumanInterventionAt.UnixMilli()
		payload.LastHumanInterventionAt = &ms
	}
	a.events.Broadcast(bus.Event{Name: bus.EventChatState, Payload: payload})
}
