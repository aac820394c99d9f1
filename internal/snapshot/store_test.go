package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/park285/goban-state/internal/domain"
	"github.com/redis/go-redis/v9"
)

func sampleSnapshot() *domain.GameSnapshot {
	return &domain.GameSnapshot{
		ID:              "g-1",
		FormatVersion:   domain.SnapshotFormatVersion,
		BoardSize:       9,
		Komi:            5.5,
		Handicap:        []string{"C3", "G7"},
		BlackPlayerUUID: "human",
		WhitePlayerUUID: "fuego",
		Moves: []domain.Move{
			{Color: domain.White, Vertex: "E5"},
			{Color: domain.Black, Vertex: "D4"},
			{Color: domain.White, Vertex: domain.PassVertex},
		},
		SavedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// exerciseStore runs the behaviour every backend shares.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.ReadSnapshot(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty ReadSnapshot err = %v, want ErrNotFound", err)
	}
	if _, err := s.ReadMoveLog(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty ReadMoveLog err = %v, want ErrNotFound", err)
	}

	want := sampleSnapshot()
	if err := s.WriteSnapshot(ctx, want); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	got, err := s.ReadSnapshot(ctx)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if got.ID != want.ID || len(got.Moves) != 3 || got.WhitePlayerUUID != "fuego" || !got.SavedAt.Equal(want.SavedAt) {
		t.Fatalf("ReadSnapshot = %+v", got)
	}
	rec, err := s.ReadMoveLog(ctx)
	if err != nil {
		t.Fatalf("ReadMoveLog: %v", err)
	}
	if rec.BoardSize != 9 || len(rec.Handicap) != 2 || len(rec.Moves) != 3 || !rec.Moves[2].IsPass() {
		t.Fatalf("ReadMoveLog = %+v", rec)
	}

	next := sampleSnapshot()
	next.Moves = next.Moves[:1]
	if err := s.WriteSnapshot(ctx, next); err != nil {
		t.Fatalf("second WriteSnapshot: %v", err)
	}
	if got, _ := s.ReadSnapshot(ctx); len(got.Moves) != 1 {
		t.Fatalf("overwrite not visible: %d moves", len(got.Moves))
	}

	bad := sampleSnapshot()
	bad.BoardSize = 8
	if err := s.WriteSnapshot(ctx, bad); !errors.Is(err, domain.ErrInvalidSnapshot) {
		t.Fatalf("invalid snapshot err = %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	exerciseStore(t, s)
	if s.Writes() != 2 {
		t.Fatalf("Writes = %d, want 2", s.Writes())
	}

	s.SetRaw([]byte("{not json"), []byte("(;SZ[9];B[ee])"))
	if _, err := s.ReadSnapshot(context.Background()); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
	if rec, err := s.ReadMoveLog(context.Background()); err != nil || len(rec.Moves) != 1 {
		t.Fatalf("move log fallback: %v %+v", err, rec)
	}
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(filepath.Join(dir, "state"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	exerciseStore(t, s)

	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("state dir holds %d entries, temp files left behind?", len(entries))
	}

	if err := os.WriteFile(filepath.Join(s.Dir(), snapshotFile), []byte(`{"format_version":99}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := s.ReadSnapshot(context.Background()); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
	if err := os.WriteFile(filepath.Join(s.Dir(), moveLogFile), []byte("(;SZ[9]"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := s.ReadMoveLog(context.Background()); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	exerciseStore(t, s)
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := NewRedisStore(rdb)
	exerciseStore(t, s)

	if !mr.Exists(keySnapshot) || !mr.Exists(keyMoveLog) {
		t.Fatalf("expected both keys in redis")
	}
	mr.Set(keySnapshot, "garbage")
	if _, err := s.ReadSnapshot(context.Background()); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, url)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	wipe := func() {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM app_state WHERE slot = $1`, currentSlot); err != nil {
			t.Fatalf("clear app_state: %v", err)
		}
	}
	wipe()
	t.Cleanup(wipe)
	exerciseStore(t, s)
}
