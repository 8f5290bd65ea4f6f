package http

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rincondev/warelay/internal/bus"
	"github.com/rincondev/warelay/internal/config"
	"github.com/rincondev/warelay/internal/store"
)

func TestWebSocketReceivesBusEvents(t *testing.T) {
	events := bus.New()
	cfg := config.Default()
	cfg.Server.WebhookRPM = 0
	server := NewServer(cfg, newFakeArb(), &fakeMessages{}, events)
	ts := httptest.NewServer(server.BuildMux())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Subscription is registered during the upgrade handler; poll the
	// broadcast until the client sees it or the deadline passes.
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			events.Broadcast(bus.Event{
				Name:    bus.EventMessageCreated,
				Payload: bus.MessagePayload{Message: store.Message{ID: 1, ChatID: "whatsapp:+1555", Sender: store.SenderUser, Body: "hola"}},
			})
			time.Sleep(20 * time.Millisecond)
		}
	}()

	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var event struct {
		Name    string `json:"name"`
		Payload struct {
			Message store.Message `json:"message"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	if event.Name != bus.EventMessageCreated || event.Payload.Message.Body != "hola" {
		t.Errorf("event = %+v", event)
	}
}

func TestWebSocketOriginRejected(t *testing.T) {
	cfg := config.Default()
	cfg.Server.AllowedOrigins = []string{"https://panel.example.com"}
	server := NewServer(cfg, newFakeArb(), &fakeMessages{}, bus.New())
	ts := httptest.NewServer(server.BuildMux())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	header := map[string][]string{"Origin": {"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Fatal("dial from rejected origin succeeded")
	}
	if resp == nil || resp.StatusCode != 403 {
		t.Errorf("handshake response = %+v", resp)
	}
}
