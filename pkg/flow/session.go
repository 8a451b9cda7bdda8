package flow

import (
	"sync"
)

// Session is the full mutable state for one user identity. A session is
// exclusively owned by one task at a time; field access carries no locking.
// Transports hand ownership over via Acquire and Release when a user
// reconnects on a different connection.
type Session struct {
	UserID   string              `json:"user_id"`
	Messages []Message           `json:"messages"`
	Goals    []Goal              `json:"goals"`
	Routines map[string][]string `json:"routines"`
	Finished bool                `json:"finished"`

	ownerMu sync.Mutex
}

// NewSession creates an empty session for a user.
func NewSession(userID string) *Session {
	return &Session{
		UserID:   userID,
		Routines: make(map[string][]string),
	}
}

// Append adds a message to the transcript. Appends are the only in-turn
// mutation; history trimming happens between turns via ClearHistory.
func (s *Session) Append(msg Message) {
	s.Messages = append(s.Messages, msg)
}

// Last returns the most recent message, if any.
func (s *Session) Last() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// LastAssistantText returns the content of the most recent plain assistant
// message.
func (s *Session) LastAssistantText() (string, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Kind == KindAssistant {
			return s.Messages[i].Content, true
		}
	}
	return "", false
}

// Acquire blocks until the caller owns the session. The owner may run turns
// and trim history freely until it calls Release.
func (s *Session) Acquire() {
	s.ownerMu.Lock()
}

// Release hands session ownership to the next waiting acquirer.
func (s *Session) Release() {
	s.ownerMu.Unlock()
}

// ClearHistory truncates the transcript without touching goals or routines.
func (s *Session) ClearHistory() {
	s.Messages = nil
}

// SessionStore owns per-user session state and lifecycle. Sessions survive
// across turns until deleted; the store hands out exactly one session per
// user identity.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the session for a user, creating it on first use.
func (ss *SessionStore) GetOrCreate(userID string) *Session {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if s, ok := ss.sessions[userID]; ok {
		return s
	}
	s := NewSession(userID)
	ss.sessions[userID] = s
	return s
}

// Get returns the session for a user if one exists.
func (ss *SessionStore) Get(userID string) (*Session, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	s, ok := ss.sessions[userID]
	return s, ok
}

// Delete removes a user's session.
func (ss *SessionStore) Delete(userID string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	delete(ss.sessions, userID)
}

// Count returns the number of live sessions.
func (ss *SessionStore) Count() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	return len(ss.sessions)
}
