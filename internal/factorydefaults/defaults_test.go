package factorydefaults

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/park285/goban-state/internal/domain"
)

func TestEmbeddedDefaults(t *testing.T) {
	d, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d.Version() != 12 {
		t.Fatalf("Version = %d, want 12", d.Version())
	}
	data := d.Dict()
	bv, ok := data.Sub("BoardView")
	if !ok {
		t.Fatalf("BoardView missing")
	}
	for _, k := range []string{"StoneDistanceFromFingertip~iphone", "StoneDistanceFromFingertip~ipad"} {
		if !bv.Has(k) {
			t.Fatalf("BoardView lacks %s", k)
		}
	}

	// The shipped records already satisfy the profile invariant.
	refs := map[string]int{}
	for _, p := range data.Records("Players") {
		if ref := domain.PlayerFromMap(p).ProfileUUID; ref != "" {
			refs[ref]++
		}
	}
	for _, p := range data.Records("GtpEngineProfiles") {
		uuid := domain.ProfileFromMap(p).UUID
		want := 1
		if uuid == domain.SharedProfileUUID {
			want = 0
		}
		if refs[uuid] != want {
			t.Fatalf("profile %s referenced %d times, want %d", uuid, refs[uuid], want)
		}
	}

	// Dict hands out copies.
	data["PreferencesVersion"] = 1
	if d.Version() != 12 {
		t.Fatalf("Dict aliased the defaults")
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	write("10-board.yaml", "BoardView:\n  MarkLastMove: false\n")
	write("20-sound.yml", "Sound:\n  Vibrate: true\n")
	write("notes.txt", "ignored")

	d, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	data := d.Dict()
	bv, _ := data.Sub("BoardView")
	if bv["MarkLastMove"] != false || bv["DisplayCoordinates"] != true {
		t.Fatalf("BoardView = %v", bv)
	}
	snd, _ := data.Sub("Sound")
	if snd["Vibrate"] != true || snd["PlayStoneSound"] != true {
		t.Fatalf("Sound = %v", snd)
	}

	out, err := d.YAML()
	if err != nil || !strings.Contains(string(out), "PreferencesVersion: 12") {
		t.Fatalf("YAML = %s, %v", out, err)
	}
}

func TestOverrideDuplicateKey(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yaml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("Sound:\n  Vibrate: true\n"), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "duplicate override key") {
		t.Fatalf("err = %v, want duplicate override key", err)
	}
}

func TestMissingOverrideDir(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatalf("expected error for missing override dir")
	}
}
