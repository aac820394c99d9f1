package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/park285/goban-state/internal/domain"
	"github.com/park285/goban-state/internal/sgf"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS app_state (
    slot TEXT PRIMARY KEY,
    snapshot JSONB NOT NULL,
    move_log TEXT NOT NULL,
    saved_at TIMESTAMPTZ NOT NULL
)`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) WriteSnapshot(ctx context.Context, snap *domain.GameSnapshot) error {
	raw, log, err := encode(snap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO app_state (slot, snapshot, move_log, saved_at)
        VALUES ($1, $2::jsonb, $3, now())
        ON CONFLICT (slot) DO UPDATE SET
            snapshot=EXCLUDED.snapshot,
            move_log=EXCLUDED.move_log,
            saved_at=EXCLUDED.saved_at`,
		currentSlot, string(raw), string(log))
	if err != nil {
		return fmt.Errorf("upsert app_state: %w", err)
	}
	return nil
}

func (s *PostgresStore) ReadSnapshot(ctx context.Context) (*domain.GameSnapshot, error) {
	raw, err := s.column(ctx, "snapshot::text")
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(raw)
}

func (s *PostgresStore) ReadMoveLog(ctx context.Context) (*sgf.Record, error) {
	raw, err := s.column(ctx, "move_log")
	if err != nil {
		return nil, err
	}
	return decodeMoveLog(raw)
}

func (s *PostgresStore) column(ctx context.Context, expr string) ([]byte, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT `+expr+` FROM app_state WHERE slot = $1`, currentSlot).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query app_state: %w", err)
	}
	return []byte(raw), nil
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
