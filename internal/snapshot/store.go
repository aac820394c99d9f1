// Package snapshot persists the game in two formats: a structured JSON
// snapshot and an SGF move log kept as the fallback when the snapshot cannot
// be read.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/park285/goban-state/internal/domain"
	"github.com/park285/goban-state/internal/sgf"
)

var (
	ErrNotFound = errors.New("no saved state")
	ErrCorrupt  = errors.New("saved state is corrupt")
)

// Store is implemented by every backend. WriteSnapshot replaces both formats.
type Store interface {
	WriteSnapshot(ctx context.Context, s *domain.GameSnapshot) error
	ReadSnapshot(ctx context.Context) (*domain.GameSnapshot, error)
	ReadMoveLog(ctx context.Context) (*sgf.Record, error)
	Close() error
}

// encode renders both formats for a write.
func encode(s *domain.GameSnapshot) (snapshot []byte, moveLog []byte, err error) {
	if err := s.Validate(); err != nil {
		return nil, nil, err
	}
	snapshot, err = json.Marshal(s)
	if err != nil {
		return nil, nil, fmt.Errorf("encode snapshot: %w", err)
	}
	moveLog, err = sgf.Encode(sgf.FromSnapshot(s))
	if err != nil {
		return nil, nil, fmt.Errorf("encode move log: %w", err)
	}
	return snapshot, moveLog, nil
}

func decodeSnapshot(raw []byte) (*domain.GameSnapshot, error) {
	if len(raw) == 0 {
		return nil, ErrNotFound
	}
	var s domain.GameSnapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &s, nil
}

func decodeMoveLog(raw []byte) (*sgf.Record, error) {
	if len(raw) == 0 {
		return nil, ErrNotFound
	}
	r, err := sgf.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return r, nil
}
