// Package sqlite keeps game snapshots in a single embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"trivia-board-service/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS games (
	id         TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// GameStore persists snapshots as JSON text rows.
type GameStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema exists.
func Open(path string) (*GameStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &GameStore{db: db}, nil
}

func (s *GameStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *GameStore) Load(ctx context.Context, gameID string) (domain.GameState, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM games WHERE id = ?`, gameID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.GameState{}, domain.ErrGameNotFound
	}
	if err != nil {
		return domain.GameState{}, fmt.Errorf("load game: %w", err)
	}
	var state domain.GameState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return domain.GameState{}, fmt.Errorf("unmarshal game: %w", err)
	}
	return state, nil
}

func (s *GameStore) Save(ctx context.Context, state domain.GameState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal game: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO games (id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		state.ID, string(raw), time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("save game: %w", err)
	}
	return nil
}

func (s *GameStore) Delete(ctx context.Context, gameID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM games WHERE id = ?`, gameID); err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	return nil
}
