package arbiter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rincondev/warelay/internal/bus"
	"github.com/rincondev/warelay/internal/providers"
	"github.com/rincondev/warelay/internal/store"
)

type memStore struct {
	mu         sync.Mutex
	msgs       []store.Message
	next       int64
	failAppend bool
}

func (m *memStore) Append(_ context.Context, chatID, sender, body string) (store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAppend {
		return store.Message{}, errors.New("disk full")
	}
	m.next++
	msg := store.Message{ID: m.next, ChatID: chatID, Sender: sender, Body: body, Timestamp: time.Now()}
	m.msgs = append(m.msgs, msg)
	return msg, nil
}

func (m *memStore) ListChats(context.Context) ([]store.ChatRef, error) { return nil, nil }

func (m *memStore) ListMessages(_ context.Context, chatID string) ([]store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Message
	for _, msg := range m.msgs {
		if msg.ChatID == chatID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) bySender(sender string) []store.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Message
	for _, msg := range m.msgs {
		if msg.Sender == sender {
			out = append(out, msg)
		}
	}
	return out
}

type sentMessage struct {
	chatID string
	body   string
}

type fakeCarrier struct {
	mu    sync.Mutex
	sends []sentMessage
	err   error
}

func (c *fakeCarrier) Name() string { return "fake" }

func (c *fakeCarrier) Send(_ context.Context, chatID, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sends = append(c.sends, sentMessage{chatID: chatID, body: body})
	return nil
}

func (c *fakeCarrier) sent() []sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentMessage(nil), c.sends...)
}

type fakeProvider struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests []providers.CompletionRequest
}

func (p *fakeProvider) Complete(_ context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	return &providers.CompletionResponse{Content: p.reply, FinishReason: "stop"}, nil
}

func (p *fakeProvider) DefaultModel() string { return "test-model" }
func (p *fakeProvider) Name() string         { return "fake" }

func (p *fakeProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

type staticPrompt string

func (s staticPrompt) Get() string { return string(s) }

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testFixture struct {
	arb      *Arbitrator
	store    *memStore
	carrier  *fakeCarrier
	provider *fakeProvider
	clock    *testClock
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{
		store:    &memStore{},
		carrier:  &fakeCarrier{},
		provider: &fakeProvider{reply: "¡Hola! ¿En qué puedo ayudarte?"},
		clock:    &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
	}
	f.arb = New(f.store, f.carrier, f.provider, staticPrompt("test prompt"), bus.New(), Options{
		PauseWindow:       30 * time.Minute,
		CompletionTimeout: 5 * time.Second,
	})
	f.arb.now = f.clock.Now
	return f
}

const testChat = "whatsapp:+5215512345678"

func TestInboundDefaultStateGetsAutomatedReply(t *testing.T) {
	f := newFixture(t)

	d, err := f.arb.HandleInbound(context.Background(), testChat, "hola, ¿tienen wifi?")
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if d.Kind != DecisionAutomatedReply {
		t.Fatalf("decision = %q, want %q", d.Kind, DecisionAutomatedReply)
	}
	if d.Prompt != "test prompt" || d.UserText != "hola, ¿tienen wifi?" {
		t.Errorf("decision carried prompt %q text %q", d.Prompt, d.UserText)
	}

	if got := f.provider.calls(); got != 1 {
		t.Fatalf("provider calls = %d, want 1", got)
	}
	if users := f.store.bySender(store.SenderUser); len(users) != 1 {
		t.Errorf("user messages persisted = %d, want 1", len(users))
	}
	bots := f.store.bySender(store.SenderBot)
	if len(bots) != 1 || bots[0].Body != f.provider.reply {
		t.Errorf("bot messages = %+v, want one with provider reply", bots)
	}
	sends := f.carrier.sent()
	if len(sends) != 1 || sends[0].body != f.provider.reply {
		t.Errorf("carrier sends = %+v, want one with provider reply", sends)
	}
}

func TestCommandAIOffSuppressesReplies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.arb.HandleInbound(ctx, testChat, "/ia off")
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if d.Kind != DecisionCommand || d.Command != cmdAIOff {
		t.Fatalf("decision = %+v, want ai-off command", d)
	}
	if d.Reply != "🤖 IA desactivada para este chat." {
		t.Errorf("reply = %q", d.Reply)
	}
	if st := f.arb.State(testChat); st.AIActive {
		t.Error("aiActive still true after /ia off")
	}

	d, err = f.arb.HandleInbound(ctx, testChat, "¿siguen abiertos?")
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if d.Kind != DecisionSuppressed || d.Reason != ReasonAIDisabled {
		t.Fatalf("decision = %+v, want suppressed/ai-disabled", d)
	}
	if got := f.provider.calls(); got != 0 {
		t.Errorf("provider calls = %d, want 0", got)
	}
	// Suppressed messages are still persisted.
	if users := f.store.bySender(store.SenderUser); len(users) != 2 {
		t.Errorf("user messages persisted = %d, want 2", len(users))
	}
}

func TestCommandAIOnReactivatesAndClearsPause(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.arb.HandleInbound(ctx, testChat, "/human")
	f.arb.HandleInbound(ctx, testChat, "/ia off")

	d, err := f.arb.HandleInbound(ctx, testChat, "/ia on")
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if d.Reply != "🤖 IA reactivada para este chat." {
		t.Errorf("reply = %q", d.Reply)
	}

	st := f.arb.State(testChat)
	if !st.AIActive {
		t.Error("aiActive false after /ia on")
	}
	if !st.LastHumanInterventionAt.IsZero() {
		t.Error("/ia on did not clear the pause timestamp")
	}

	d, _ = f.arb.HandleInbound(ctx, testChat, "hola de nuevo")
	if d.Kind != DecisionAutomatedReply {
		t.Fatalf("decision after /ia on = %+v, want automated reply", d)
	}
}

func TestHumanPauseWindowExpiresLazily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.arb.HandleInbound(ctx, testChat, "/human")
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if !strings.Contains(d.Reply, "30 minutos") {
		t.Errorf("pause reply = %q, want the window length in minutes", d.Reply)
	}

	f.clock.Advance(10 * time.Minute)
	d, _ = f.arb.HandleInbound(ctx, testChat, "una pregunta")
	if d.Kind != DecisionSuppressed || d.Reason != ReasonHumanPause {
		t.Fatalf("decision inside window = %+v, want suppressed/human-pause", d)
	}

	f.clock.Advance(21 * time.Minute) // past the 30-minute window
	d, _ = f.arb.HandleInbound(ctx, testChat, "¿sigues ahí?")
	if d.Kind != DecisionAutomatedReply {
		t.Fatalf("decision after window = %+v, want automated reply", d)
	}
}

func TestStatusCommandReportsPause(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, _ := f.arb.HandleInbound(ctx, testChat, "/ia estado")
	if !strings.Contains(d.Reply, "✅ Activa") {
		t.Errorf("status = %q, want active marker", d.Reply)
	}

	f.arb.HandleInbound(ctx, testChat, "/human")
	f.clock.Advance(12 * time.Minute)
	d, _ = f.arb.HandleInbound(ctx, testChat, "/ia estado")
	if !strings.Contains(d.Reply, "Se reactivará en 18 minutos") {
		t.Errorf("status during pause = %q, want 18 minutes remaining", d.Reply)
	}

	f.arb.HandleInbound(ctx, testChat, "/ia off")
	d, _ = f.arb.HandleInbound(ctx, testChat, "/ia estado")
	if !strings.Contains(d.Reply, "❌ Desactivada") {
		t.Errorf("status after /ia off = %q, want inactive marker", d.Reply)
	}
}

func TestOperatorSendLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.arb.OperatorSend(ctx, testChat, "hola, soy del equipo")
	if err != nil {
		t.Fatalf("OperatorSend: %v", err)
	}
	if msg.Sender != store.SenderHuman {
		t.Errorf("sender = %q, want %q", msg.Sender, store.SenderHuman)
	}
	sends := f.carrier.sent()
	if len(sends) != 1 || sends[0].body != "hola, soy del equipo" {
		t.Errorf("carrier sends = %+v", sends)
	}

	st := f.arb.State(testChat)
	if !st.AIActive || !st.LastHumanInterventionAt.IsZero() {
		t.Errorf("operator send mutated state: %+v", st)
	}

	// Automated replies keep flowing after an operator message.
	d, _ := f.arb.HandleInbound(ctx, testChat, "gracias")
	if d.Kind != DecisionAutomatedReply {
		t.Fatalf("decision after operator send = %+v, want automated reply", d)
	}
}

func TestOperatorSendDeliveryFailure(t *testing.T) {
	f := newFixture(t)
	f.carrier.err = errors.New("carrier down")

	msg, err := f.arb.OperatorSend(context.Background(), testChat, "hola")
	if err == nil {
		t.Fatal("expected delivery error")
	}
	if msg.ID == 0 {
		t.Error("message not persisted before delivery attempt")
	}
	if humans := f.store.bySender(store.SenderHuman); len(humans) != 1 {
		t.Errorf("human messages persisted = %d, want 1", len(humans))
	}
}

func TestUserMessagePersistedDespiteCompletionFailure(t *testing.T) {
	f := newFixture(t)
	f.provider.err = errors.New("upstream 500")

	d, err := f.arb.HandleInbound(context.Background(), testChat, "hola")
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if d.Kind != DecisionAutomatedReply {
		t.Fatalf("decision = %+v", d)
	}
	if d.Reply != "" {
		t.Errorf("reply = %q, want empty on completion failure", d.Reply)
	}
	if users := f.store.bySender(store.SenderUser); len(users) != 1 {
		t.Errorf("user messages persisted = %d, want 1", len(users))
	}
	if bots := f.store.bySender(store.SenderBot); len(bots) != 0 {
		t.Errorf("bot messages = %d, want 0", len(bots))
	}
	if sends := f.carrier.sent(); len(sends) != 0 {
		t.Errorf("carrier sends = %d, want 0", len(sends))
	}
}

func TestPersistFailureAbortsHandling(t *testing.T) {
	f := newFixture(t)
	f.store.failAppend = true

	_, err := f.arb.HandleInbound(context.Background(), testChat, "hola")
	if err == nil {
		t.Fatal("expected persistence error")
	}
	if got := f.provider.calls(); got != 0 {
		t.Errorf("provider calls = %d, want 0", got)
	}
}

func TestCommandMatchingIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)

	d, _ := f.arb.HandleInbound(context.Background(), testChat, "/IA Off")
	if d.Kind != DecisionCommand || d.Command != cmdAIOff {
		t.Fatalf("decision = %+v, want ai-off command", d)
	}
}

func TestUnrecognizedSlashTextFallsThrough(t *testing.T) {
	f := newFixture(t)

	d, _ := f.arb.HandleInbound(context.Background(), testChat, "/informes")
	if d.Kind != DecisionAutomatedReply {
		t.Fatalf("decision = %+v, want automated reply for unrecognized command", d)
	}
}

func TestToggleAI(t *testing.T) {
	f := newFixture(t)

	st := f.arb.ToggleAI(testChat)
	if st.AIActive {
		t.Error("first toggle should deactivate")
	}
	st = f.arb.ToggleAI(testChat)
	if !st.AIActive {
		t.Error("second toggle should reactivate")
	}
}

func TestChatsAreIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := "whatsapp:+5215599999999"

	f.arb.HandleInbound(ctx, testChat, "/ia off")

	d, _ := f.arb.HandleInbound(ctx, other, "hola")
	if d.Kind != DecisionAutomatedReply {
		t.Fatalf("decision for untouched chat = %+v, want automated reply", d)
	}
}
