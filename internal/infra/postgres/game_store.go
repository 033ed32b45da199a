package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"trivia-board-service/internal/domain"
)

// GameStore keeps game snapshots as JSONB rows in the games table.
type GameStore struct {
	pool *pgxpool.Pool
}

func NewGameStore(pool *pgxpool.Pool) *GameStore {
	return &GameStore{pool: pool}
}

func (s *GameStore) Load(ctx context.Context, gameID string) (domain.GameState, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM games WHERE id=$1`, gameID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.GameState{}, domain.ErrGameNotFound
	}
	if err != nil {
		return domain.GameState{}, fmt.Errorf("load game: %w", err)
	}
	var state domain.GameState
	if err := json.Unmarshal(raw, &state); err != nil {
		return domain.GameState{}, fmt.Errorf("unmarshal game: %w", err)
	}
	return state, nil
}

func (s *GameStore) Save(ctx context.Context, state domain.GameState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal game: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO games (id, data, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		state.ID, raw)
	if err != nil {
		return fmt.Errorf("save game: %w", err)
	}
	return nil
}

func (s *GameStore) Delete(ctx context.Context, gameID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM games WHERE id=$1`, gameID); err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	return nil
}
