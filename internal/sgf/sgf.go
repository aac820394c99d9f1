// Package sgf reads and writes the move-log backup: a single-variation subset
// of Smart Game Format carrying board setup and the move sequence.
package sgf

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/park285/goban-state/internal/domain"
)

var ErrMalformed = errors.New("malformed sgf")

// Record is everything the move log can give back: no player identities, no
// timestamps.
type Record struct {
	BoardSize int
	Komi      float64
	Handicap  []string
	Moves     []domain.Move
}

func FromSnapshot(s *domain.GameSnapshot) *Record {
	if s == nil {
		return nil
	}
	return &Record{
		BoardSize: s.BoardSize,
		Komi:      s.Komi,
		Handicap:  append([]string(nil), s.Handicap...),
		Moves:     append([]domain.Move(nil), s.Moves...),
	}
}

// Encode renders r. Vertices that do not fit the board are reported rather
// than silently dropped.
func Encode(r *Record) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil record", ErrMalformed)
	}
	if err := domain.ValidateBoardSize(r.BoardSize); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var b strings.Builder
	b.WriteString("(;FF[4]GM[1]")
	fmt.Fprintf(&b, "SZ[%d]KM[%s]", r.BoardSize, strconv.FormatFloat(r.Komi, 'f', -1, 64))
	if len(r.Handicap) > 0 {
		fmt.Fprintf(&b, "HA[%d]AB", len(r.Handicap))
		for _, v := range r.Handicap {
			c, err := toCoord(v, r.BoardSize)
			if err != nil {
				return nil, err
			}
			b.WriteString("[" + c + "]")
		}
	}
	for _, m := range r.Moves {
		if !m.Color.Valid() {
			return nil, fmt.Errorf("%w: color %q", ErrMalformed, m.Color)
		}
		c := ""
		if !m.IsPass() {
			var err error
			if c, err = toCoord(m.Vertex, r.BoardSize); err != nil {
				return nil, err
			}
		}
		fmt.Fprintf(&b, ";%s[%s]", m.Color, c)
	}
	b.WriteString(")\n")
	return []byte(b.String()), nil
}

func toCoord(vertex string, size int) (string, error) {
	p, err := domain.ParseVertex(vertex, size)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return string([]byte{byte('a' + p.Col), byte('a' + size - 1 - p.Row)}), nil
}

func fromCoord(c string, size int) (string, error) {
	if c == "" || (c == "tt" && size <= 19) {
		return domain.PassVertex, nil
	}
	if len(c) != 2 {
		return "", fmt.Errorf("%w: coordinate %q", ErrMalformed, c)
	}
	p := domain.Point{Col: int(c[0] - 'a'), Row: size - 1 - int(c[1]-'a')}
	if !p.OnBoard(size) {
		return "", fmt.Errorf("%w: coordinate %q outside %dx%d board", ErrMalformed, c, size, size)
	}
	return p.Vertex(), nil
}

type property struct {
	ident  string
	values []string
}

// Decode parses the main variation of data. Properties other than SZ, KM, AB,
// B and W are skipped; the first variation wins when the tree branches.
func Decode(data []byte) (*Record, error) {
	nodes, err := parse(string(data))
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: no nodes", ErrMalformed)
	}

	r := &Record{BoardSize: 19}
	root := nodes[0]
	for _, p := range root {
		switch p.ident {
		case "SZ":
			n, err := strconv.Atoi(strings.TrimSpace(p.values[0]))
			if err != nil {
				return nil, fmt.Errorf("%w: SZ %q", ErrMalformed, p.values[0])
			}
			r.BoardSize = n
		case "KM":
			k, err := strconv.ParseFloat(strings.TrimSpace(p.values[0]), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: KM %q", ErrMalformed, p.values[0])
			}
			r.Komi = k
		}
	}
	if err := domain.ValidateBoardSize(r.BoardSize); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for _, p := range root {
		if p.ident != "AB" {
			continue
		}
		for _, c := range p.values {
			v, err := fromCoord(c, r.BoardSize)
			if err != nil {
				return nil, err
			}
			if v == domain.PassVertex {
				return nil, fmt.Errorf("%w: empty handicap point", ErrMalformed)
			}
			r.Handicap = append(r.Handicap, v)
		}
	}

	for _, node := range nodes {
		for _, p := range node {
			if p.ident != "B" && p.ident != "W" {
				continue
			}
			v, err := fromCoord(p.values[0], r.BoardSize)
			if err != nil {
				return nil, err
			}
			r.Moves = append(r.Moves, domain.Move{Color: domain.Color(p.ident), Vertex: v})
		}
	}
	return r, nil
}

// parse returns the nodes of the main variation.
func parse(s string) ([][]property, error) {
	i := skipSpace(s, 0)
	if i >= len(s) || s[i] != '(' {
		return nil, fmt.Errorf("%w: missing '('", ErrMalformed)
	}
	i++

	var nodes [][]property
	depth := 1
	inMain := true
	for {
		i = skipSpace(s, i)
		if i >= len(s) {
			return nil, fmt.Errorf("%w: unterminated game tree", ErrMalformed)
		}
		switch c := s[i]; {
		case c == ';':
			i++
			var node []property
			for {
				i = skipSpace(s, i)
				if i >= len(s) || !isUpper(s[i]) {
					break
				}
				start := i
				for i < len(s) && isUpper(s[i]) {
					i++
				}
				p := property{ident: s[start:i]}
				for {
					i = skipSpace(s, i)
					if i >= len(s) || s[i] != '[' {
						break
					}
					v, next, err := readValue(s, i+1)
					if err != nil {
						return nil, err
					}
					p.values = append(p.values, v)
					i = next
				}
				if len(p.values) == 0 {
					return nil, fmt.Errorf("%w: property %s without value", ErrMalformed, p.ident)
				}
				node = append(node, p)
			}
			if inMain {
				nodes = append(nodes, node)
			}
		case c == '(':
			depth++
			i++
		case c == ')':
			depth--
			i++
			if depth == 0 {
				return nodes, nil
			}
			// Closing the first sub-variation ends the main line.
			inMain = false
		default:
			return nil, fmt.Errorf("%w: unexpected %q at offset %d", ErrMalformed, c, i)
		}
	}
}

func readValue(s string, i int) (string, int, error) {
	var b strings.Builder
	for i < len(s) {
		switch s[i] {
		case '\\':
			if i+1 < len(s) {
				b.WriteByte(s[i+1])
			}
			i += 2
		case ']':
			return b.String(), i + 1, nil
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return "", i, fmt.Errorf("%w: unterminated property value", ErrMalformed)
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\n' || s[i] == '\r' || s[i] == '\t') {
		i++
	}
	return i
}

func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }
