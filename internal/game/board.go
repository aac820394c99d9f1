package game

import (
	"errors"
	"strings"

	"github.com/park285/goban-state/internal/domain"
)

var (
	ErrOccupied = errors.New("point already occupied")
	ErrSuicide  = errors.New("suicide is not allowed")
)

// board tracks stones and prisoners. It does not detect ko.
type board struct {
	size     int
	grid     []domain.Color
	captured map[domain.Color]int
}

func newBoard(size int) *board {
	return &board{
		size:     size,
		grid:     make([]domain.Color, size*size),
		captured: map[domain.Color]int{domain.Black: 0, domain.White: 0},
	}
}

func (b *board) at(p domain.Point) domain.Color { return b.grid[p.Row*b.size+p.Col] }

func (b *board) set(p domain.Point, c domain.Color) { b.grid[p.Row*b.size+p.Col] = c }

// play places a stone and removes captured opponent groups. The board is left
// unchanged on error.
func (b *board) play(c domain.Color, p domain.Point) error {
	if b.at(p) != "" {
		return ErrOccupied
	}
	b.set(p, c)

	var removed []domain.Point
	for _, n := range p.Neighbors(b.size) {
		if b.at(n) != c.Opponent() {
			continue
		}
		group, libs := b.group(n)
		if libs == 0 {
			for _, s := range group {
				b.set(s, "")
			}
			removed = append(removed, group...)
		}
	}
	if len(removed) == 0 {
		if _, libs := b.group(p); libs == 0 {
			b.set(p, "")
			return ErrSuicide
		}
	}
	// Prisoners are credited to the capturing colour.
	b.captured[c] += len(removed)
	return nil
}

// group returns the chain containing p and its liberty count.
func (b *board) group(p domain.Point) ([]domain.Point, int) {
	color := b.at(p)
	seen := map[domain.Point]bool{p: true}
	libs := map[domain.Point]bool{}
	stack := []domain.Point{p}
	var chain []domain.Point
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		chain = append(chain, cur)
		for _, n := range cur.Neighbors(b.size) {
			switch b.at(n) {
			case "":
				libs[n] = true
			case color:
				if !seen[n] {
					seen[n] = true
					stack = append(stack, n)
				}
			}
		}
	}
	return chain, len(libs)
}

// rows renders the board top row first: "X" black, "O" white, "." empty.
func (b *board) rows() []string {
	out := make([]string, 0, b.size)
	for row := b.size - 1; row >= 0; row-- {
		var sb strings.Builder
		for col := 0; col < b.size; col++ {
			switch b.at(domain.Point{Col: col, Row: row}) {
			case domain.Black:
				sb.WriteByte('X')
			case domain.White:
				sb.WriteByte('O')
			default:
				sb.WriteByte('.')
			}
		}
		out = append(out, sb.String())
	}
	return out
}

// handicapPoints returns the fixed handicap placement for n stones.
func handicapPoints(size, n int) ([]string, error) {
	if n == 0 {
		return nil, nil
	}
	if n < 2 || n > 9 {
		return nil, ErrBadHandicap
	}
	edge := 2
	if size >= 13 {
		edge = 3
	}
	lo, hi, mid := edge, size-1-edge, size/2
	pt := func(col, row int) string { return domain.Point{Col: col, Row: row}.Vertex() }

	corners := []string{pt(lo, lo), pt(hi, hi), pt(hi, lo), pt(lo, hi)}
	sides := []string{pt(lo, mid), pt(hi, mid), pt(mid, lo), pt(mid, hi)}
	center := pt(mid, mid)

	switch n {
	case 2, 3, 4:
		return corners[:n], nil
	case 5:
		return append(corners[:4:4], center), nil
	case 6:
		return append(corners[:4:4], sides[:2]...), nil
	case 7:
		return append(append(corners[:4:4], sides[:2]...), center), nil
	case 8:
		return append(corners[:4:4], sides...), nil
	default:
		return append(append(corners[:4:4], sides...), center), nil
	}
}
