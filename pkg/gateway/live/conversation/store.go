// Package conversation keeps per-session chat history and the
// single-flight guard that serializes pipeline runs for a session.
package conversation

import (
	"log/slog"
	"sync"
)

// DefaultMaxMessages bounds how much history is replayed to the model.
// Older messages are dropped oldest-first once the limit is exceeded.
const DefaultMaxMessages = 10

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string
	Content string
}

type conversationState struct {
	messages    []Message
	lastUserMsg string
	processing  bool
}

// Store holds conversation contexts keyed by session id.
type Store struct {
	maxMessages int
	logger      *slog.Logger

	mu       sync.Mutex
	contexts map[string]*conversationState
}

type Option func(*Store)

func WithMaxMessages(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxMessages = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		maxMessages: DefaultMaxMessages,
		logger:      slog.Default(),
		contexts:    make(map[string]*conversationState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) state(sessionID string) *conversationState {
	st := s.contexts[sessionID]
	if st == nil {
		st = &conversationState{}
		s.contexts[sessionID] = st
	}
	return st
}

// Append records a turn and trims history to the configured limit.
func (s *Store) Append(sessionID, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(sessionID)
	st.messages = append(st.messages, Message{Role: role, Content: content})
	if role == RoleUser {
		st.lastUserMsg = content
	}
	if excess := len(st.messages) - s.maxMessages; excess > 0 {
		st.messages = st.messages[excess:]
	}
}

// LastUserMessage returns the most recent user turn, surviving history
// trimming.
func (s *Store) LastUserMessage(sessionID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.contexts[sessionID]
	if st == nil || st.lastUserMsg == "" {
		return "", false
	}
	return st.lastUserMsg, true
}

// History returns a copy of the session's messages, oldest first.
func (s *Store) History(sessionID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.contexts[sessionID]
	if st == nil {
		return nil
	}
	out := make([]Message, len(st.messages))
	copy(out, st.messages)
	return out
}

// TryAcquire takes the session's processing guard. It returns false
// when a pipeline run is already in flight for the session.
func (s *Store) TryAcquire(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(sessionID)
	if st.processing {
		return false
	}
	st.processing = true
	return true
}

// Release frees the session's processing guard.
func (s *Store) Release(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.contexts[sessionID]; st != nil {
		st.processing = false
	}
}

// Close discards the session's context unconditionally.
func (s *Store) Close(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contexts, sessionID)
}

// CloseIdle discards the session's context unless a pipeline run holds
// the guard. The reaper uses it so an in-flight run keeps its history.
func (s *Store) CloseIdle(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.contexts[sessionID]
	if st == nil {
		return
	}
	if st.processing {
		s.logger.Debug("skipping busy conversation", "session_id", sessionID)
		return
	}
	delete(s.contexts, sessionID)
}

// Len returns the number of tracked conversations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contexts)
}
