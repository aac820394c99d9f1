package migrate

import (
	"fmt"

	"github.com/park285/goban-state/internal/domain"
	"github.com/park285/goban-state/internal/prefs"
)

// Report is what Verify found in a preferences dictionary.
type Report struct {
	Stored     int
	HasVersion bool
	Target     int
	Profiles   int
	Players    int
	Problems   []string
}

func (r Report) OK() bool { return len(r.Problems) == 0 }

// Verify checks persisted preferences against target: the stored version,
// unique record UUIDs, one computer player per profile (none for the shared
// default profile) and NewGame player references that resolve.
func Verify(d prefs.Dict, target int) Report {
	r := Report{Target: target}
	r.Stored, r.HasVersion = d.Int(prefs.VersionKey)
	switch {
	case !r.HasVersion:
		r.Problems = append(r.Problems, "no stored preferences version")
	case r.Stored != target:
		r.Problems = append(r.Problems, fmt.Sprintf("stored version %d, shipped version %d", r.Stored, target))
	}

	profiles, players := profilesOf(d), playersOf(d)
	r.Profiles, r.Players = len(profiles), len(players)

	known := make(map[string]bool, len(profiles))
	for _, p := range profiles {
		if known[p.UUID] {
			r.Problems = append(r.Problems, fmt.Sprintf("duplicate profile UUID %s", p.UUID))
		}
		known[p.UUID] = true
	}
	refs := map[string]int{}
	seen := make(map[string]bool, len(players))
	for _, p := range players {
		if seen[p.UUID] {
			r.Problems = append(r.Problems, fmt.Sprintf("duplicate player UUID %s", p.UUID))
		}
		seen[p.UUID] = true
		if p.IsHuman {
			continue
		}
		if !known[p.ProfileUUID] {
			r.Problems = append(r.Problems, fmt.Sprintf("player %s references unknown profile %q", p.UUID, p.ProfileUUID))
			continue
		}
		refs[p.ProfileUUID]++
	}
	for _, p := range profiles {
		want := 1
		if p.UUID == domain.SharedProfileUUID {
			want = 0
		}
		if refs[p.UUID] != want {
			r.Problems = append(r.Problems, fmt.Sprintf("profile %s has %d players, want %d", p.UUID, refs[p.UUID], want))
		}
	}

	if ng, ok := d.Sub("NewGame"); ok && len(players) > 0 {
		for _, key := range playerRefKeys {
			if id, ok := ng.String(key); ok && id != "" && !seen[id] {
				r.Problems = append(r.Problems, fmt.Sprintf("NewGame.%s references unknown player %s", key, id))
			}
		}
	}
	return r
}
