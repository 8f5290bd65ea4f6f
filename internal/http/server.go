package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rincondev/warelay/internal/arbiter"
	"github.com/rincondev/warelay/internal/bus"
	"github.com/rincondev/warelay/internal/config"
	"github.com/rincondev/warelay/internal/store"
	"github.com/rincondev/warelay/internal/telemetry"
)

// Arbiter is the response-arbitration surface the HTTP layer drives.
// Implemented by *arbiter.Arbitrator.
type Arbiter interface {
	HandleInbound(ctx context.Context, chatID, text string) (arbiter.Decision, error)
	OperatorSend(ctx context.Context, chatID, text string) (store.Message, error)
	ToggleAI(chatID string) arbiter.ChatState
	State(chatID string) arbiter.ChatState
}

// Server hosts the carrier webhook, the panel API, and the panel
// websocket event stream.
type Server struct {
	cfg      *config.Config
	arb      Arbiter
	messages store.MessageStore
	events   bus.EventPublisher

	upgrader       websocket.Upgrader
	webhookLimiter *KeyedLimiter

	mu      sync.RWMutex
	clients map[string]*wsClient

	// inflight tracks webhook handling that outlives the request so
	// shutdown can wait for replies already in progress.
	inflight sync.WaitGroup

	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates the HTTP server. The arbiter handles inbound
// decisions, the message store backs the panel read API, and the event
// publisher feeds the websocket stream.
func NewServer(cfg *config.Config, arb Arbiter, messages store.MessageStore, events bus.EventPublisher) *Server {
	s := &Server{
		cfg:      cfg,
		arb:      arb,
		messages: messages,
		events:   events,
		clients:  make(map[string]*wsClient),
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	// webhook_rpm > 0 rate-limits inbound webhooks per sender address;
	// anything else disables the limiter.
	s.webhookLimiter = NewKeyedLimiter(cfg.Server.WebhookRPM, 5)

	return s
}

// checkOrigin validates a websocket Origin against the allowed origins
// whitelist. No configured origins, or an empty Origin header
// (non-browser clients), allows the connection.
func (s *Server) checkOrigin(r *http.Request) bool {
	allowed := s.cfg.Server.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if origin == a || a == "*" {
			return true
		}
	}
	slog.Warn("security.cors_rejected", "origin", origin)
	return false
}

// BuildMux creates and caches the HTTP mux with all routes registered.
// Call this before Start() if you need the mux for additional listeners
// (e.g. Tailscale).
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("GET /api/events", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	mux.HandleFunc("GET /api/chats", s.cors(s.auth(s.handleListChats)))
	mux.HandleFunc("GET /api/chats/{chatID}/messages", s.cors(s.auth(s.handleListMessages)))
	mux.HandleFunc("GET /api/chats/{chatID}/estado", s.cors(s.auth(s.handleChatState)))
	mux.HandleFunc("POST /api/chats/{chatID}/send", s.cors(s.auth(s.handleOperatorSend)))
	mux.HandleFunc("POST /api/chats/{chatID}/comando", s.cors(s.auth(s.handleOperatorCommand)))
	mux.HandleFunc("OPTIONS /api/", s.cors(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	s.mux = mux
	return mux
}

// Start listens until ctx is cancelled, then shuts down gracefully and
// waits for in-flight webhook replies.
func (s *Server) Start(ctx context.Context) error {
	mux := s.BuildMux()

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: telemetry.Middleware(mux),
	}

	slog.Info("server starting", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	err := s.httpServer.ListenAndServe()
	s.inflight.Wait()
	if err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}

// auth gates panel routes behind the bearer token when one is
// configured. The webhook and health routes stay open.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if token := s.cfg.Server.PanelToken; token != "" {
			if extractBearerToken(r) != token {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
		}
		next(w, r)
	}
}

// cors mirrors the panel origin back when it is whitelisted. With no
// whitelist configured every origin is allowed, matching dev setups
// where the panel runs off a file:// page or a local dev server.
func (s *Server) cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		}
		next(w, r)
	}
}

func (s *Server) originAllowed(origin string) bool {
	allowed := s.cfg.Server.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if origin == a || a == "*" {
			return true
		}
	}
	return false
}

func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// StartTestServer creates a listener on :0 (random port) and returns
// the actual address and a start function. Used for integration tests.
func StartTestServer(s *Server, ctx context.Context) (addr string, start func()) {
	mux := s.BuildMux()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic("listen: " + err.Error())
	}

	s.httpServer = &http.Server{Handler: mux}
	addr = ln.Addr().String()

	start = func() {
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			s.httpServer.Shutdown(shutdownCtx)
		}()
		s.httpServer.Serve(ln)
	}

	return addr, start
}
