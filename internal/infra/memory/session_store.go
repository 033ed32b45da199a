package memory

import (
	"sync"
	"time"

	"trivia-board-service/internal/app"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Get(gameID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[gameID]
	return session, ok
}

func (s *SessionStore) Put(session *app.Session) *app.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[session.ID()]; ok {
		return existing
	}
	s.sessions[session.ID()] = session
	return session
}

func (s *SessionStore) Delete(gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, gameID)
}

// IdleSince checks idleness outside the store lock; Session.Idle takes the session's own lock.
func (s *SessionStore) IdleSince(cutoff time.Time) []string {
	s.mu.RLock()
	sessions := make([]*app.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mu.RUnlock()

	var ids []string
	for _, session := range sessions {
		if session.Idle(cutoff) {
			ids = append(ids, session.ID())
		}
	}
	return ids
}
