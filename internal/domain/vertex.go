package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrIllegalVertex = errors.New("illegal vertex")

// gtpColumns skips "I" as GTP does.
const gtpColumns = "ABCDEFGHJKLMNOPQRST"

// Point is a zero-based board coordinate; Row 0 is the bottom line.
type Point struct {
	Col int
	Row int
}

// ParseVertex converts a GTP vertex ("D4", "q16") to a Point on a board of the
// given size.
func ParseVertex(vertex string, size int) (Point, error) {
	v := strings.ToUpper(strings.TrimSpace(vertex))
	if len(v) < 2 {
		return Point{}, fmt.Errorf("%w: %q", ErrIllegalVertex, vertex)
	}
	col := strings.IndexByte(gtpColumns, v[0])
	if col < 0 {
		return Point{}, fmt.Errorf("%w: %q", ErrIllegalVertex, vertex)
	}
	row, err := strconv.Atoi(v[1:])
	if err != nil {
		return Point{}, fmt.Errorf("%w: %q", ErrIllegalVertex, vertex)
	}
	p := Point{Col: col, Row: row - 1}
	if !p.OnBoard(size) {
		return Point{}, fmt.Errorf("%w: %q outside %dx%d board", ErrIllegalVertex, vertex, size, size)
	}
	return p, nil
}

func (p Point) OnBoard(size int) bool {
	return p.Col >= 0 && p.Row >= 0 && p.Col < size && p.Row < size
}

// Vertex renders the point in GTP notation.
func (p Point) Vertex() string {
	if p.Col < 0 || p.Col >= len(gtpColumns) {
		return ""
	}
	return fmt.Sprintf("%c%d", gtpColumns[p.Col], p.Row+1)
}

func (p Point) Neighbors(size int) []Point {
	out := make([]Point, 0, 4)
	for _, n := range []Point{{p.Col - 1, p.Row}, {p.Col + 1, p.Row}, {p.Col, p.Row - 1}, {p.Col, p.Row + 1}} {
		if n.OnBoard(size) {
			out = append(out, n)
		}
	}
	return out
}
