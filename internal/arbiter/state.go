package arbiter

import (
	"sync"
	"time"
)

// ChatState is the per-chat arbitration record. The zero
// LastHumanInterventionAt means no human has intervened.
type ChatState struct {
	ChatID                  string    `json:"chatId"`
	AIActive                bool      `json:"aiActive"`
	LastHumanInterventionAt time.Time `json:"lastHumanInterventionAt,omitzero"`
}

// Paused reports whether the human-takeover pause window is active at now.
func (s ChatState) Paused(now time.Time, window time.Duration) bool {
	if s.LastHumanInterventionAt.IsZero() {
		return false
	}
	return now.Sub(s.LastHumanInterventionAt) <= window
}

// StateStore owns one ChatState per chat id. States are created lazily
// on first reference and live for the process lifetime.
//
// Mutations for the same chat are serialized: Update holds a per-chat
// lock for the whole read-decide-mutate section, so a command racing a
// concurrent message cannot both observe the pre-mutation state.
type StateStore struct {
	mu    sync.Mutex
	chats map[string]*chatEntry
}

type chatEntry struct {
	mu    sync.Mutex
	state ChatState
}

func NewStateStore() *StateStore {
	return &StateStore{chats: make(map[string]*chatEntry)}
}

func (s *StateStore) entry(chatID string) *chatEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.chats[chatID]
	if !ok {
		e = &chatEntry{state: ChatState{ChatID: chatID, AIActive: true}}
		s.chats[chatID] = e
	}
	return e
}

// Snapshot returns a read-only copy of the chat's state, creating the
// default state on first reference. It never evaluates pause expiry.
func (s *StateStore) Snapshot(chatID string) ChatState {
	e := s.entry(chatID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Update runs fn with exclusive access to the chat's state and returns
// the resulting snapshot. fn must not block.
func (s *StateStore) Update(chatID string, fn func(*ChatState)) ChatState {
	e := s.entry(chatID)
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.state)
	return e.state
}

// setAIActive flips aiActive and clears the intervention timestamp when
// landing on true (re-activation overrides any pending pause).
func setAIActive(st *ChatState, active bool) {
	st.AIActive = active
	if active {
		st.LastHumanInterventionAt = time.Time{}
	}
}
