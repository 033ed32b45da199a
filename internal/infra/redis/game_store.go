package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-board-service/internal/domain"
)

// GameStore keeps one JSON snapshot per game:
//
//	SET trivia:game:{gameID} {json} EX ttl
//
// A zero ttl keeps snapshots forever.
type GameStore struct {
	client *redis.Client
	ttl    time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewGameStore(client *redis.Client, ttl time.Duration) *GameStore {
	return &GameStore{
		client: client,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *GameStore) Load(ctx context.Context, gameID string) (domain.GameState, error) {
	raw, err := s.client.Get(ctx, s.key(gameID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.GameState{}, domain.ErrGameNotFound
	}
	if err != nil {
		return domain.GameState{}, fmt.Errorf("load game: %w", err)
	}

	var state domain.GameState
	if err := json.Unmarshal(raw, &state); err != nil {
		return domain.GameState{}, fmt.Errorf("decode game %s: %w", gameID, err)
	}
	return state, nil
}

func (s *GameStore) Save(ctx context.Context, state domain.GameState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode game %s: %w", state.ID, err)
	}
	if err := s.client.Set(ctx, s.key(state.ID), raw, s.ttlWithJitter()).Err(); err != nil {
		return fmt.Errorf("save game: %w", err)
	}
	return nil
}

func (s *GameStore) Delete(ctx context.Context, gameID string) error {
	if err := s.client.Del(ctx, s.key(gameID)).Err(); err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	return nil
}

func (s *GameStore) key(gameID string) string {
	return "trivia:game:" + gameID
}

func (s *GameStore) ttlWithJitter() time.Duration {
	if s.ttl <= 0 {
		return 0
	}
	jitterMax := int64(s.ttl) / 10
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttl + time.Duration(s.rnd.Int63n(jitterMax+1))
}
