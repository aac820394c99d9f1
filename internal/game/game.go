// Package game holds the in-memory Go game. Every mutation runs inside a save
// point so the coordinator can persist the result once it is consistent.
package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/goban-state/internal/domain"
	"github.com/park285/goban-state/internal/sgf"
	"go.uber.org/zap"
)

var (
	ErrNotYourTurn   = errors.New("not your turn")
	ErrNothingToUndo = errors.New("no moves to undo")
	ErrBadHandicap   = errors.New("handicap must be 0 or 2..9")
)

// Bracket is the save-point side of the coordinator.
type Bracket interface {
	BeginSavePoint()
	CommitSavePoint(ctx context.Context) error
	MarkDirty()
}

type Settings struct {
	BoardSize       int
	Komi            float64
	Handicap        int
	BlackPlayerUUID string
	WhitePlayerUUID string
}

type Game struct {
	bracket  Bracket
	defaults Settings
	logger   *zap.Logger

	mu       sync.RWMutex
	id       string
	size     int
	komi     float64
	handicap []string
	black    string
	white    string
	moves    []domain.Move
	board    *board
}

// New returns a game in the default fresh state. Mutations are bracketed
// through b.
func New(b Bracket, defaults Settings, logger *zap.Logger) (*Game, error) {
	if b == nil {
		return nil, fmt.Errorf("game: bracket required")
	}
	if err := domain.ValidateBoardSize(defaults.BoardSize); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Game{bracket: b, defaults: defaults, logger: logger}
	if err := g.resetLocked(defaults); err != nil {
		return nil, err
	}
	return g, nil
}

// mutate runs fn inside a save point. A failed save does not undo fn; it is
// only logged.
func (g *Game) mutate(ctx context.Context, op string, fn func() error) error {
	g.bracket.BeginSavePoint()
	g.mu.Lock()
	err := fn()
	g.mu.Unlock()
	// MarkDirty and the commit run without g.mu: saving reads the game.
	if err == nil {
		g.bracket.MarkDirty()
	}
	if cerr := g.bracket.CommitSavePoint(ctx); cerr != nil {
		g.logger.Warn("game_save_point_failed", zap.String("op", op), zap.Error(cerr))
	}
	return err
}

func (g *Game) NewGame(ctx context.Context, s Settings) error {
	if s.BoardSize == 0 {
		s.BoardSize = g.defaults.BoardSize
	}
	if err := domain.ValidateBoardSize(s.BoardSize); err != nil {
		return err
	}
	if _, err := handicapPoints(s.BoardSize, s.Handicap); err != nil {
		return err
	}
	return g.mutate(ctx, "new_game", func() error { return g.resetLocked(s) })
}

func (g *Game) Play(ctx context.Context, color domain.Color, vertex string) error {
	if strings.EqualFold(strings.TrimSpace(vertex), domain.PassVertex) {
		return g.Pass(ctx, color)
	}
	return g.mutate(ctx, "play", func() error {
		if err := g.checkTurnLocked(color); err != nil {
			return err
		}
		p, err := domain.ParseVertex(vertex, g.size)
		if err != nil {
			return err
		}
		if err := g.board.play(color, p); err != nil {
			return fmt.Errorf("%s %s: %w", color, p.Vertex(), err)
		}
		g.moves = append(g.moves, domain.Move{Color: color, Vertex: p.Vertex()})
		return nil
	})
}

func (g *Game) Pass(ctx context.Context, color domain.Color) error {
	return g.mutate(ctx, "pass", func() error {
		if err := g.checkTurnLocked(color); err != nil {
			return err
		}
		g.moves = append(g.moves, domain.Move{Color: color, Vertex: domain.PassVertex})
		return nil
	})
}

func (g *Game) Undo(ctx context.Context) error {
	return g.mutate(ctx, "undo", func() error {
		if len(g.moves) == 0 {
			return ErrNothingToUndo
		}
		moves := g.moves[:len(g.moves)-1]
		b, err := replay(g.size, g.handicap, moves)
		if err != nil {
			return err
		}
		g.moves, g.board = moves, b
		return nil
	})
}

func (g *Game) checkTurnLocked(color domain.Color) error {
	if !color.Valid() {
		return fmt.Errorf("%w: color %q", domain.ErrIllegalVertex, color)
	}
	if next := g.nextLocked(); color != next {
		return fmt.Errorf("%w: %s to play", ErrNotYourTurn, next)
	}
	return nil
}

func (g *Game) nextLocked() domain.Color {
	if n := len(g.moves); n > 0 {
		return g.moves[n-1].Color.Opponent()
	}
	if len(g.handicap) >= 2 {
		return domain.White
	}
	return domain.Black
}

// Snapshot copies the current state. It takes no save point.
func (g *Game) Snapshot() *domain.GameSnapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return &domain.GameSnapshot{
		ID:              g.id,
		FormatVersion:   domain.SnapshotFormatVersion,
		BoardSize:       g.size,
		Komi:            g.komi,
		Handicap:        append([]string(nil), g.handicap...),
		BlackPlayerUUID: g.black,
		WhitePlayerUUID: g.white,
		Moves:           append([]domain.Move(nil), g.moves...),
		SavedAt:         time.Now().UTC(),
	}
}

// Restore replaces the state with s after replaying it for legality.
func (g *Game) Restore(s *domain.GameSnapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}
	b, err := replay(s.BoardSize, s.Handicap, s.Moves)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.id = s.ID
	if g.id == "" {
		g.id = uuid.NewString()
	}
	g.size, g.komi = s.BoardSize, s.Komi
	g.handicap = append([]string(nil), s.Handicap...)
	g.black, g.white = s.BlackPlayerUUID, s.WhitePlayerUUID
	g.moves = append([]domain.Move(nil), s.Moves...)
	g.board = b
	return nil
}

// ReplayMoveLog rebuilds the game from the move-log backup. Player identities
// are not part of the log and are lost.
func (g *Game) ReplayMoveLog(r *sgf.Record) error {
	if r == nil {
		return fmt.Errorf("%w: nil move log", domain.ErrInvalidSnapshot)
	}
	return g.Restore(&domain.GameSnapshot{
		FormatVersion: domain.SnapshotFormatVersion,
		BoardSize:     r.BoardSize,
		Komi:          r.Komi,
		Handicap:      r.Handicap,
		Moves:         r.Moves,
	})
}

// Reset starts a fresh game with the default settings.
func (g *Game) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.resetLocked(g.defaults); err != nil {
		g.logger.Error("game_reset_failed", zap.Error(err))
	}
}

func (g *Game) resetLocked(s Settings) error {
	stones, err := handicapPoints(s.BoardSize, s.Handicap)
	if err != nil {
		return err
	}
	b, err := replay(s.BoardSize, stones, nil)
	if err != nil {
		return err
	}
	g.id = uuid.NewString()
	g.size, g.komi = s.BoardSize, s.Komi
	g.handicap = stones
	g.black, g.white = s.BlackPlayerUUID, s.WhitePlayerUUID
	g.moves = nil
	g.board = b
	return nil
}

func replay(size int, handicap []string, moves []domain.Move) (*board, error) {
	b := newBoard(size)
	for _, v := range handicap {
		p, err := domain.ParseVertex(v, size)
		if err != nil {
			return nil, err
		}
		if err := b.play(domain.Black, p); err != nil {
			return nil, fmt.Errorf("handicap %s: %w", v, err)
		}
	}
	for i, m := range moves {
		if m.IsPass() {
			continue
		}
		p, err := domain.ParseVertex(m.Vertex, size)
		if err != nil {
			return nil, err
		}
		if err := b.play(m.Color, p); err != nil {
			return nil, fmt.Errorf("move %d %s %s: %w", i+1, m.Color, m.Vertex, err)
		}
	}
	return b, nil
}

// View is a read-only picture of the game for the control API.
type View struct {
	ID        string
	BoardSize int
	Komi      float64
	Handicap  []string
	Next      domain.Color
	Moves     []domain.Move
	Rows      []string
	Captured  map[domain.Color]int
}

func (g *Game) View() View {
	g.mu.RLock()
	defer g.mu.RUnlock()
	captured := make(map[domain.Color]int, len(g.board.captured))
	for k, v := range g.board.captured {
		captured[k] = v
	}
	return View{
		ID:        g.id,
		BoardSize: g.size,
		Komi:      g.komi,
		Handicap:  append([]string(nil), g.handicap...),
		Next:      g.nextLocked(),
		Moves:     append([]domain.Move(nil), g.moves...),
		Rows:      g.board.rows(),
		Captured:  captured,
	}
}
