package memory

import (
	"context"
	"sync"

	"trivia-board-service/internal/domain"
)

// GameStore keeps snapshots in process memory. Snapshots are lost on restart.
type GameStore struct {
	mu    sync.RWMutex
	games map[string]domain.GameState
}

func NewGameStore() *GameStore {
	return &GameStore{games: make(map[string]domain.GameState)}
}

func (s *GameStore) Load(_ context.Context, gameID string) (domain.GameState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.games[gameID]
	if !ok {
		return domain.GameState{}, domain.ErrGameNotFound
	}
	return state.Clone(), nil
}

func (s *GameStore) Save(_ context.Context, state domain.GameState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[state.ID] = state.Clone()
	return nil
}

func (s *GameStore) Delete(_ context.Context, gameID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.games, gameID)
	return nil
}
