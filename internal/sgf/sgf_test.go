package sgf

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/park285/goban-state/internal/domain"
)

func TestEncodeDecode(t *testing.T) {
	in := &Record{
		BoardSize: 9,
		Komi:      0.5,
		Handicap:  []string{"C3", "G7"},
		Moves: []domain.Move{
			{Color: domain.White, Vertex: "E5"},
			{Color: domain.Black, Vertex: domain.PassVertex},
			{Color: domain.White, Vertex: "J9"},
		},
	}
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := "(;FF[4]GM[1]SZ[9]KM[0.5]HA[2]AB[cg][gc];W[ee];B[];W[ia])\n"
	if string(data) != want {
		t.Fatalf("Encode = %q, want %q", data, want)
	}

	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("Decode = %+v, want %+v", out, in)
	}
}

func TestDecodeFollowsMainVariation(t *testing.T) {
	src := `(;GM[1]SZ[9]C[comment with \] bracket]
		;B[ee];W[cc]
		(;B[gg];W[gc])
		(;B[aa]))`
	r, err := Decode([]byte(src))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	var got []string
	for _, m := range r.Moves {
		got = append(got, string(m.Color)+m.Vertex)
	}
	if strings.Join(got, " ") != "BE5 WC7 BG3 WG7" {
		t.Fatalf("moves = %v", got)
	}
	if r.BoardSize != 9 || r.Komi != 0 {
		t.Fatalf("setup = %d/%v", r.BoardSize, r.Komi)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	for _, src := range []string{
		"",
		"garbage",
		"(;SZ[9];B[ee]",
		"(;SZ[10])",
		"(;SZ[9];B[zz])",
		"(;SZ[9];B)",
		"(;SZ[x])",
	} {
		if _, err := Decode([]byte(src)); !errors.Is(err, ErrMalformed) {
			t.Errorf("Decode(%q) err = %v, want ErrMalformed", src, err)
		}
	}
}

func TestFromSnapshot(t *testing.T) {
	s := &domain.GameSnapshot{BoardSize: 13, Komi: 6.5, Moves: []domain.Move{{Color: domain.Black, Vertex: "D4"}}}
	r := FromSnapshot(s)
	s.Moves[0].Vertex = "E5"
	if r.Moves[0].Vertex != "D4" {
		t.Fatalf("FromSnapshot shares the move slice")
	}
}
