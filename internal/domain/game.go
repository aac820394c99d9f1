package domain

import (
	"errors"
	"fmt"
	"time"
)

// SnapshotFormatVersion is written into every GameSnapshot.
const SnapshotFormatVersion = 1

const (
	MinBoardSize = 7
	MaxBoardSize = 19
)

var (
	ErrInvalidSnapshot = errors.New("invalid game snapshot")
	ErrBadBoardSize    = errors.New("unsupported board size")
)

type Color string

const (
	Black Color = "B"
	White Color = "W"
)

func (c Color) Opponent() Color {
	if c == Black {
		return White
	}
	return Black
}

func (c Color) Valid() bool { return c == Black || c == White }

// Move is one entry of the move log. Vertex is a GTP vertex such as "D4", or
// PassVertex.
type Move struct {
	Color  Color  `json:"color"`
	Vertex string `json:"vertex"`
}

const PassVertex = "pass"

func (m Move) IsPass() bool { return m.Vertex == PassVertex }

// GameSnapshot is the structured save format of the in-memory game.
type GameSnapshot struct {
	ID              string    `json:"id"`
	FormatVersion   int       `json:"format_version"`
	BoardSize       int       `json:"board_size"`
	Komi            float64   `json:"komi"`
	Handicap        []string  `json:"handicap,omitempty"`
	BlackPlayerUUID string    `json:"black_player_uuid,omitempty"`
	WhitePlayerUUID string    `json:"white_player_uuid,omitempty"`
	Moves           []Move    `json:"moves"`
	SavedAt         time.Time `json:"saved_at"`
}

// Validate checks structural consistency. It does not replay the moves.
func (s *GameSnapshot) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil snapshot", ErrInvalidSnapshot)
	}
	if s.FormatVersion != SnapshotFormatVersion {
		return fmt.Errorf("%w: format version %d", ErrInvalidSnapshot, s.FormatVersion)
	}
	if err := ValidateBoardSize(s.BoardSize); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	for _, v := range s.Handicap {
		if _, err := ParseVertex(v, s.BoardSize); err != nil {
			return fmt.Errorf("%w: handicap %v", ErrInvalidSnapshot, err)
		}
	}
	for i, m := range s.Moves {
		if !m.Color.Valid() {
			return fmt.Errorf("%w: move %d has color %q", ErrInvalidSnapshot, i+1, m.Color)
		}
		if m.IsPass() {
			continue
		}
		if _, err := ParseVertex(m.Vertex, s.BoardSize); err != nil {
			return fmt.Errorf("%w: move %d: %v", ErrInvalidSnapshot, i+1, err)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (s *GameSnapshot) Clone() *GameSnapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Handicap = append([]string(nil), s.Handicap...)
	out.Moves = append([]Move(nil), s.Moves...)
	return &out
}

func ValidateBoardSize(size int) error {
	if size < MinBoardSize || size > MaxBoardSize || size%2 == 0 {
		return fmt.Errorf("%w: %d", ErrBadBoardSize, size)
	}
	return nil
}
