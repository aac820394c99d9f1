package prefs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestDictCoercion(t *testing.T) {
	d := Dict{
		"yamlInt":   3,
		"jsonFloat": float64(4),
		"fraction":  0.5,
		"flag":      true,
		"name":      "x",
		"sub":       map[string]any{"k": 1},
	}
	if n, ok := d.Int("yamlInt"); !ok || n != 3 {
		t.Fatalf("Int(yamlInt) = %d, %v", n, ok)
	}
	if n, ok := d.Int("jsonFloat"); !ok || n != 4 {
		t.Fatalf("Int(jsonFloat) = %d, %v", n, ok)
	}
	if _, ok := d.Int("fraction"); ok {
		t.Fatalf("Int accepted a fraction")
	}
	if f, ok := d.Float("yamlInt"); !ok || f != 3 {
		t.Fatalf("Float(yamlInt) = %v, %v", f, ok)
	}
	if _, ok := d.Int("missing"); ok {
		t.Fatalf("Int(missing) reported ok")
	}
	sub, ok := d.Sub("sub")
	if !ok || sub["k"] != 1 {
		t.Fatalf("Sub = %v, %v", sub, ok)
	}
	if _, ok := d.Sub("name"); ok {
		t.Fatalf("Sub accepted a string")
	}
}

func TestCloneIsDeep(t *testing.T) {
	d := Dict{"a": map[string]any{"b": []any{map[string]any{"c": 1}}}}
	c := d.Clone()
	inner, _ := c.Sub("a")
	inner.Records("b")[0]["c"] = 2
	orig, _ := d.Sub("a")
	if orig.Records("b")[0]["c"] != 1 {
		t.Fatalf("Clone shares nested records")
	}
}

func TestEqualAcrossNumericTypes(t *testing.T) {
	a := Dict{"n": 1, "list": []any{map[string]any{"f": 2.0}}}
	b := Dict{"n": float64(1), "list": []any{Dict{"f": 2}}}
	if !Equal(a, b) {
		t.Fatalf("expected equal")
	}
	b["n"] = 1.5
	if Equal(a, b) {
		t.Fatalf("expected different")
	}
}

func TestDeepMerge(t *testing.T) {
	weak := Dict{"BoardView": map[string]any{"A": 1, "B": 2}, "Keep": "weak"}
	strong := Dict{"BoardView": map[string]any{"B": 20, "C": 30}, "New": true}
	got := DeepMerge(strong, weak)
	bv, _ := got.Sub("BoardView")
	if bv["A"] != 1 || bv["B"] != 20 || bv["C"] != 30 {
		t.Fatalf("BoardView = %v", bv)
	}
	if got["Keep"] != "weak" || got["New"] != true {
		t.Fatalf("merged = %v", got)
	}
	if w, _ := weak.Sub("BoardView"); w["B"] != 2 {
		t.Fatalf("DeepMerge modified its input")
	}
}

// exerciseStore runs the behaviour every backend shares.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	d, err := s.Load(ctx)
	if err != nil || len(d) != 0 {
		t.Fatalf("empty Load = %v, %v", d, err)
	}
	in := Dict{
		"PreferencesVersion": 5,
		"BoardView":          map[string]any{"StoneDistanceFromFingertip": 0.5, "MarkLastMove": true},
		"Players":            []any{map[string]any{"UUID": "p1", "Name": "Human"}},
	}
	if err := s.Replace(ctx, in); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !Equal(got, in) {
		t.Fatalf("Load = %v, want %v", got, in)
	}
	if v, ok := got.Int("PreferencesVersion"); !ok || v != 5 {
		t.Fatalf("version = %v, %v", v, ok)
	}

	if err := s.Set(ctx, "PreferencesVersion", 6); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get(ctx, "PreferencesVersion")
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v, %v", v, ok, err)
	}
	if n, _ := ToInt(v); n != 6 {
		t.Fatalf("Get = %v", v)
	}
	if err := s.Remove(ctx, "BoardView"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "BoardView"); ok {
		t.Fatalf("BoardView still present")
	}
	if err := s.Remove(ctx, "NeverSet"); err != nil {
		t.Fatalf("Remove missing key: %v", err)
	}

	if err := s.Replace(ctx, Dict{"Only": "this"}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	got, _ = s.Load(ctx)
	if len(got) != 1 || got["Only"] != "this" {
		t.Fatalf("Replace kept old keys: %v", got)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(nil))
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "preferences.yaml")
	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	exerciseStore(t, s)

	if err := os.WriteFile(path, []byte("a: [unterminated"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := s.Load(context.Background()); err == nil {
		t.Fatalf("expected error for malformed YAML")
	}
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	exerciseStore(t, NewRedisStore(rdb))

	mr.HSet(keyPrefs, "Broken", "{")
	if _, err := NewRedisStore(rdb).Load(context.Background()); err == nil {
		t.Fatalf("expected error for malformed field")
	}
}

func TestPreferencesLayering(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(Dict{"BoardView": map[string]any{"A": 1}})
	p := New(store)
	p.RegisterDefaults(Dict{"BoardView": map[string]any{"A": 0, "B": 2}, "Sound": map[string]any{"On": true}})
	p.RegisterDefaults(Dict{"Sound": map[string]any{"Volume": 3}})

	v, ok, err := p.Get(ctx, "BoardView")
	if err != nil || !ok {
		t.Fatalf("Get = %v %v %v", v, ok, err)
	}
	// The persisted dictionary shadows the registered one.
	if bv, _ := AsDict(v); bv["A"] != 1 || bv.Has("B") {
		t.Fatalf("BoardView = %v", v)
	}
	v, ok, _ = p.Get(ctx, "Sound")
	if sd, _ := AsDict(v); !ok || sd["On"] != true || sd["Volume"] != 3 {
		t.Fatalf("Sound = %v", v)
	}

	eff, err := p.Effective(ctx)
	if err != nil {
		t.Fatalf("Effective: %v", err)
	}
	if !eff.Has("Sound") || !eff.Has("BoardView") {
		t.Fatalf("Effective = %v", eff)
	}
	if got := p.Registered(); !got.Has("Sound") {
		t.Fatalf("Registered = %v", got)
	}
	if d, _ := store.Load(ctx); d.Has("Sound") {
		t.Fatalf("registration domain leaked into the store")
	}
}
