package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-board-service/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Sessions live in a local map so broadcasts stay in-process; Redis only carries a
// liveness marker per game so other instances can see which games are hosted here.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
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
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(session.ID()), "1", s.ttl).Err()
	return session
}

func (s *SessionStore) Delete(gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, gameID)
	_ = s.client.Del(context.Background(), s.key(gameID)).Err()
}

// IdleSince also refreshes the liveness marker of every session that is still active.
// Sessions are checked outside the store lock.
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
			continue
		}
		_ = s.client.Expire(context.Background(), s.key(session.ID()), s.ttl).Err()
	}
	return ids
}

func (s *SessionStore) key(gameID string) string {
	return "trivia:session:" + gameID
}
