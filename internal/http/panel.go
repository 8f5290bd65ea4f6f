package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Panel API: the read/control surface the operator front-end talks to.
// Route shapes and response payloads stay compatible with the original
// panel, Spanish field names included.

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.messages.ListChats(r.Context())
	if err != nil {
		slog.Error("panel.chats.list", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list chats"})
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("chatID")
	if chatID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "chatID is required"})
		return
	}

	msgs, err := s.messages.ListMessages(r.Context(), chatID)
	if err != nil {
		slog.Error("panel.messages.list", "chat", chatID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list messages"})
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleChatState(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("chatID")
	if chatID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "chatID is required"})
		return
	}
	writeJSON(w, http.StatusOK, s.arb.State(chatID))
}

// handleOperatorSend delivers a message typed by the operator. The
// message is recorded as sender "human" but deliberately does not pause
// automation for the chat.
func (s *Server) handleOperatorSend(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("chatID")
	if chatID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "chatID is required"})
		return
	}

	var req struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Body == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "body is required"})
		return
	}

	if _, err := s.arb.OperatorSend(r.Context(), chatID, req.Body); err != nil {
		slog.Error("panel.send", "chat", chatID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Error al enviar el mensaje"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Mensaje enviado"})
}

// handleOperatorCommand executes a panel control command. The only
// recognized command is "toggle-ia", which flips automated replies and
// clears any pending human pause when landing on active.
func (s *Server) handleOperatorCommand(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("chatID")
	if chatID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "chatID is required"})
		return
	}

	var req struct {
		Comando string `json:"comando"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	if req.Comando != "toggle-ia" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "comando no reconocido"})
		return
	}

	st := s.arb.ToggleAI(chatID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "Comando ejecutado",
		"newState": st,
	})
}
