package migrate

import (
	"context"
	"strings"
	"testing"

	"github.com/park285/goban-state/internal/domain"
	"github.com/park285/goban-state/internal/factorydefaults"
	"github.com/park285/goban-state/internal/prefs"
)

func TestVerifyAfterLaunch(t *testing.T) {
	ctx := context.Background()
	defaults, err := factorydefaults.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	store := prefs.NewMemoryStore(nil)
	if _, err := New(Config{NewUUID: seqUUID()}).Launch(ctx, defaults.Dict(), prefs.New(store)); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	// A fresh install persists only the version; records come from the
	// registered defaults.
	data, _ := store.Load(ctx)
	r := Verify(prefs.DeepMerge(data, defaults.Dict()), defaults.Version())
	if !r.OK() {
		t.Fatalf("problems: %v", r.Problems)
	}
	if r.Stored != 12 || r.Profiles != 2 || r.Players != 2 {
		t.Fatalf("report = %+v", r)
	}
}

func TestVerifyFindsProblems(t *testing.T) {
	d := prefs.Dict{
		prefs.VersionKey: 9,
		"GtpEngineProfiles": []any{
			map[string]any{"UUID": domain.SharedProfileUUID, "Name": "Default"},
			map[string]any{"UUID": "p1", "Name": "Orphan"},
		},
		"Players": []any{
			map[string]any{"UUID": "a", "Name": "A", "IsHuman": false, "GtpEngineProfileUUID": domain.SharedProfileUUID},
			map[string]any{"UUID": "b", "Name": "B", "IsHuman": false, "GtpEngineProfileUUID": "gone"},
		},
		"NewGame": map[string]any{"HumanPlayerUUID": "nobody"},
	}
	r := Verify(d, 12)
	want := []string{
		"stored version 9, shipped version 12",
		`player b references unknown profile "gone"`,
		"profile " + domain.SharedProfileUUID + " has 1 players, want 0",
		"profile p1 has 0 players, want 1",
		"NewGame.HumanPlayerUUID references unknown player nobody",
	}
	if len(r.Problems) != len(want) {
		t.Fatalf("problems = %q", r.Problems)
	}
	for i, w := range want {
		if !strings.Contains(r.Problems[i], w) {
			t.Fatalf("problem %d = %q, want %q", i, r.Problems[i], w)
		}
	}
}
