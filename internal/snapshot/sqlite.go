package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/park285/goban-state/internal/domain"
	"github.com/park285/goban-state/internal/sgf"
	_ "modernc.org/sqlite"
)

const currentSlot = "current"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS app_state (
    slot TEXT PRIMARY KEY,
    snapshot TEXT NOT NULL,
    move_log TEXT NOT NULL,
    saved_at INTEGER NOT NULL
);
`

// SQLiteStore keeps both formats in one row of app_state.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; WAL lets the restore path read without blocking it.
	db.SetMaxOpenConns(1)
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) WriteSnapshot(ctx context.Context, snap *domain.GameSnapshot) error {
	raw, log, err := encode(snap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO app_state (slot, snapshot, move_log, saved_at)
        VALUES (?, ?, ?, strftime('%s', 'now'))
        ON CONFLICT(slot) DO UPDATE SET
            snapshot=excluded.snapshot,
            move_log=excluded.move_log,
            saved_at=excluded.saved_at`,
		currentSlot, string(raw), string(log))
	if err != nil {
		return fmt.Errorf("upsert app_state: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ReadSnapshot(ctx context.Context) (*domain.GameSnapshot, error) {
	raw, err := s.column(ctx, "snapshot")
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(raw)
}

func (s *SQLiteStore) ReadMoveLog(ctx context.Context) (*sgf.Record, error) {
	raw, err := s.column(ctx, "move_log")
	if err != nil {
		return nil, err
	}
	return decodeMoveLog(raw)
}

func (s *SQLiteStore) column(ctx context.Context, name string) ([]byte, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT `+name+` FROM app_state WHERE slot = ?`, currentSlot).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query app_state.%s: %w", name, err)
	}
	return []byte(raw), nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
