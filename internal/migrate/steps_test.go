package migrate

import (
	"context"
	"testing"

	"github.com/park285/goban-state/internal/domain"
	"github.com/park285/goban-state/internal/factorydefaults"
	"github.com/park285/goban-state/internal/prefs"
)

func TestFanOut(t *testing.T) {
	tests := []struct {
		name    string
		d       prefs.Dict
		factory prefs.Dict
		upgrade string
		want    prefs.Dict
	}{
		{
			name:    "preserve under nominated suffix, backfill the rest",
			d:       prefs.Dict{"Foo": 3},
			factory: prefs.Dict{"Foo~A": 1, "Foo~B": 2},
			upgrade: "~A",
			want:    prefs.Dict{"Foo~A": 3, "Foo~B": 2},
		},
		{
			name:    "factory lacks a variant",
			d:       prefs.Dict{"Foo": 3},
			factory: prefs.Dict{},
			upgrade: "~A",
			want:    prefs.Dict{"Foo~A": 3},
		},
		{
			name:    "discard",
			d:       prefs.Dict{"Foo": 3},
			factory: prefs.Dict{"Foo~A": 1, "Foo~B": 2},
			upgrade: "",
			want:    prefs.Dict{"Foo~A": 1, "Foo~B": 2},
		},
		{
			name:    "existing variants are kept",
			d:       prefs.Dict{"Foo": 3, "Foo~A": 7, "Foo~B": 8},
			factory: prefs.Dict{"Foo~A": 1, "Foo~B": 2},
			upgrade: "~A",
			want:    prefs.Dict{"Foo~A": 7, "Foo~B": 8},
		},
		{
			name:    "no agnostic key",
			d:       prefs.Dict{"Other": true},
			factory: prefs.Dict{"Foo~B": 2},
			upgrade: "~A",
			want:    prefs.Dict{"Other": true, "Foo~B": 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fanOut(tt.d, tt.factory, "Foo", []string{"~A", "~B"}, tt.upgrade)
			if !prefs.Equal(tt.d, tt.want) {
				t.Fatalf("got %v, want %v", tt.d, tt.want)
			}
		})
	}
}

func TestRenameKey(t *testing.T) {
	d := prefs.Dict{"Old": 1}
	renameKey(d, "Old", "New")
	if d.Has("Old") || d["New"] != 1 {
		t.Fatalf("d = %v", d)
	}
	renameKey(d, "Missing", "Other")
	if d.Has("Other") {
		t.Fatalf("rename of a missing key created %v", d)
	}
	d["Old"] = 2
	renameKey(d, "Old", "New")
	if d["New"] != 1 || d.Has("Old") {
		t.Fatalf("rename overwrote an existing value: %v", d)
	}
}

func TestStoneDistance(t *testing.T) {
	for _, tt := range []struct {
		under bool
		want  float64
	}{{true, 0.0}, {false, 1.0}} {
		d := prefs.Dict{"BoardView": map[string]any{"PlaceStoneUnderFinger": tt.under}}
		if err := stoneDistance(d, nil); err != nil {
			t.Fatalf("stoneDistance: %v", err)
		}
		bv, _ := d.Sub("BoardView")
		if got, _ := bv.Float("StoneDistanceFromFingertip"); got != tt.want || bv.Has("PlaceStoneUnderFinger") {
			t.Fatalf("under=%v: BoardView = %v", tt.under, bv)
		}
	}
}

func TestMemoryMegabytes(t *testing.T) {
	d := prefs.Dict{"GtpEngineProfiles": []any{
		map[string]any{"UUID": "a", "FuegoMaxMemory": 64 * megabyte},
		map[string]any{"UUID": "b", "FuegoMaxMemory": 1000},
		map[string]any{"UUID": "c"},
	}}
	if err := memoryMegabytes(d, nil); err != nil {
		t.Fatalf("memoryMegabytes: %v", err)
	}
	recs := d.Records("GtpEngineProfiles")
	if recs[0]["MaxMemoryMegabytes"] != 64 || recs[0].Has("FuegoMaxMemory") {
		t.Fatalf("profile a = %v", recs[0])
	}
	if recs[1]["MaxMemoryMegabytes"] != 1 {
		t.Fatalf("profile b = %v", recs[1])
	}
	if recs[2].Has("MaxMemoryMegabytes") {
		t.Fatalf("profile c = %v", recs[2])
	}
}

// TestLadderFromFirstRelease walks preferences written by the first release
// through every step.
func TestLadderFromFirstRelease(t *testing.T) {
	ctx := context.Background()
	defaults, err := factorydefaults.Load("")
	if err != nil {
		t.Fatalf("Load defaults: %v", err)
	}
	store := prefs.NewMemoryStore(prefs.Dict{
		"NewGame": map[string]any{"BoardSize": 1, "Handicap": 2},
		"PlayView": map[string]any{
			"BoardOuterMargin":       10,
			"MarkLastMove":           false,
			"PlaceStoneUnderFinger":  true,
			"InfoViewLayout":         0,
			"DisplayPlayerInfluence": true,
		},
		"BoardView": map[string]any{"BoardInnerMargin": 4, "MarkLastMove": true},
		"Scoring":   map[string]any{"InconsistentTerritoryMarkupType": 0},
		"Sound":     map[string]any{"PlaySound": false},
		"Players": []any{
			map[string]any{"UUID": "p1", "Name": "Weak", "IsHuman": false, "GtpEngineProfileUUID": domain.SharedProfileUUID, "IsOnlyForTesting": true},
		},
		"GtpEngineProfiles": []any{
			map[string]any{"UUID": domain.SharedProfileUUID, "Name": "Default profile", "FuegoMaxMemory": 32 * megabyte},
		},
	})
	e := New(Config{NewUUID: seqUUID()})
	res, err := e.Migrate(ctx, 0, defaults.Version(), defaults.Dict(), prefs.New(store))
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if res.Applied != 10 {
		t.Fatalf("Applied = %d, want 10", res.Applied)
	}

	d, _ := store.Load(ctx)
	ng, _ := d.Sub("NewGame")
	if ng["BoardSize"] != 9 || ng["HandicapStones"] != 2 || ng.Has("Handicap") {
		t.Fatalf("NewGame = %v", ng)
	}
	if d.Has("PlayView") {
		t.Fatalf("PlayView survived")
	}
	bv, _ := d.Sub("BoardView")
	if bv["MarkLastMove"] != true || bv.Has("BoardOuterMargin") || bv.Has("BoardInnerMargin") {
		t.Fatalf("BoardView = %v", bv)
	}
	if v, _ := bv.Float("StoneDistanceFromFingertip~iphone"); v != 0 {
		t.Fatalf("iphone distance = %v", bv["StoneDistanceFromFingertip~iphone"])
	}
	if !bv.Has("StoneDistanceFromFingertip~ipad") || bv.Has("StoneDistanceFromFingertip") {
		t.Fatalf("BoardView = %v", bv)
	}
	if bv.Has("InfoViewLayout") || bv["InfoViewLayout~iphone"] != 0 || bv["InfoViewLayout~ipad"] != 1 {
		t.Fatalf("InfoViewLayout variants = %v", bv)
	}
	if an, _ := d.Sub("Analysis"); an["DisplayPlayerInfluence"] != true || bv.Has("DisplayPlayerInfluence") {
		t.Fatalf("Analysis = %v", an)
	}
	if sc, _ := d.Sub("Scoring"); sc["InconsistentTerritoryMarkupType"] != 1 {
		t.Fatalf("Scoring = %v", sc)
	}
	if snd, _ := d.Sub("Sound"); snd["PlayStoneSound"] != false || snd.Has("PlaySound") {
		t.Fatalf("Sound = %v", snd)
	}

	players := playersOf(d)
	profiles := profilesOf(d)
	if len(players) != 1 || len(profiles) != 2 {
		t.Fatalf("players = %v, profiles = %v", players, profiles)
	}
	if _, ok := players[0].Extra["IsOnlyForTesting"]; ok {
		t.Fatalf("IsOnlyForTesting survived")
	}
	if players[0].ProfileUUID == domain.SharedProfileUUID || players[0].ProfileUUID != profiles[1].UUID {
		t.Fatalf("player still shares the default profile: %+v", players[0])
	}
	if profiles[1].Extra["MaxMemoryMegabytes"] != 32 {
		t.Fatalf("copied profile = %+v", profiles[1])
	}
	if v := storedVersion(t, store); v != defaults.Version() {
		t.Fatalf("stored version = %d", v)
	}
}
