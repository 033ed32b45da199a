package app

import (
	"sync"
	"time"

	"trivia-board-service/internal/adjudication"
	"trivia-board-service/internal/domain"
)

// Session is the live, in-process copy of one game plus its open question and subscribers.
type Session struct {
	id  string
	now func() time.Time

	mu         sync.RWMutex
	state      domain.GameState
	round      *adjudication.Machine
	generation uint64
	lastActive time.Time

	subMu       sync.Mutex
	subscribers map[chan domain.Update]struct{}
}

// NewSession wraps a game snapshot. Infrastructure layers use it to seed sessions.
func NewSession(state domain.GameState) *Session {
	return NewSessionWithClock(state, time.Now)
}

// NewSessionWithClock stamps activity with now instead of the wall clock.
func NewSessionWithClock(state domain.GameState, now func() time.Time) *Session {
	return &Session{
		id:          state.ID,
		now:         now,
		state:       state,
		lastActive:  now(),
		subscribers: make(map[chan domain.Update]struct{}),
	}
}

func (s *Session) ID() string { return s.id }

// Idle reports whether nobody is watching the session and it has not changed since cutoff.
func (s *Session) Idle(cutoff time.Time) bool {
	s.subMu.Lock()
	watched := len(s.subscribers) > 0
	s.subMu.Unlock()
	if watched {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive.Before(cutoff)
}

func (s *Session) touchLocked() {
	s.lastActive = s.now()
	s.state.UpdatedAt = s.lastActive
}

func (s *Session) viewLocked() domain.GameView {
	state := s.state.Clone()
	view := domain.GameView{
		Game:  state,
		Board: domain.BuildBoard(state.Categories, state.Questions),
	}
	if s.round != nil {
		view.Round = s.roundViewLocked()
	}
	return view
}

func (s *Session) roundViewLocked() *domain.RoundView {
	q := s.round.Question()
	rv := &domain.RoundView{
		Category:  q.Category,
		Points:    q.Points,
		Question:  q.Question,
		ImageURL:  q.ImageURL,
		State:     s.round.State().String(),
		Current:   s.round.Current(),
		Available: make([]domain.Team, 0),
		Attempted: s.round.Attempted(),
	}
	if s.round.Done() {
		rv.Answer = q.Answer
	}
	for _, id := range s.round.Available() {
		if i := s.state.FindTeam(id); i >= 0 {
			rv.Available = append(rv.Available, s.state.Teams[i])
		}
	}
	return rv
}

func (s *Session) subscribe() (<-chan domain.Update, func()) {
	ch := make(chan domain.Update, 8)

	// commits publish under mu, so no update can slip between the first view and registration
	s.mu.RLock()
	view := s.viewLocked()
	ch <- domain.Update{View: &view}
	s.subMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subMu.Unlock()
	s.mu.RUnlock()

	cancel := func() {
		s.subMu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.subMu.Unlock()
		s.mu.Lock()
		s.lastActive = s.now()
		s.mu.Unlock()
	}
	return ch, cancel
}

// publish fans an update out to subscribers. A full buffer drops its oldest entry
// so slow clients never block the game.
func (s *Session) publish(update domain.Update) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- update:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- update
		}
	}
}

func (s *Session) closeSubscribers() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}
