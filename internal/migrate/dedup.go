package migrate

import (
	"fmt"

	"github.com/park285/goban-state/internal/domain"
	"github.com/park285/goban-state/internal/prefs"
)

// DeduplicateProfiles makes every engine profile except the shared one
// belong to exactly one player, and leaves the shared profile unreferenced.
//
// Players of the shared profile each get a copy of it. Extra players of any
// other profile get a copy too, the first referencing player keeps the
// original. A profile nobody references gets a new computer player. Copies
// and new players are appended in profile order; the inputs are not modified.
func DeduplicateProfiles(profiles []domain.Profile, players []domain.Player, newUUID func() string) ([]domain.Profile, []domain.Player) {
	outProfiles := make([]domain.Profile, len(profiles), len(profiles)+len(players))
	copy(outProfiles, profiles)
	outPlayers := make([]domain.Player, len(players), len(players)+len(profiles))
	copy(outPlayers, players)

	refs := make(map[string][]int, len(profiles))
	for i, p := range players {
		if p.IsHuman || p.ProfileUUID == "" {
			continue
		}
		refs[p.ProfileUUID] = append(refs[p.ProfileUUID], i)
	}

	for _, prof := range profiles {
		users := refs[prof.UUID]
		switch {
		case prof.UUID == domain.SharedProfileUUID:
			for _, i := range users {
				c := copyProfile(prof, newUUID())
				outProfiles = append(outProfiles, c)
				outPlayers[i].ProfileUUID = c.UUID
			}
		case len(users) > 1:
			for _, i := range users[1:] {
				c := copyProfile(prof, newUUID())
				outProfiles = append(outProfiles, c)
				outPlayers[i].ProfileUUID = c.UUID
			}
		case len(users) == 0:
			outPlayers = append(outPlayers, playerFor(prof, newUUID()))
		}
	}
	return outProfiles, outPlayers
}

func copyProfile(p domain.Profile, id string) domain.Profile {
	return domain.Profile{
		UUID:        id,
		Description: fmt.Sprintf("Copied from profile %q", p.Name),
		Extra:       prefs.Dict(p.Extra).Clone(),
	}
}

func playerFor(p domain.Profile, id string) domain.Player {
	name := p.Name
	if name == "" {
		name = "Computer player"
	}
	return domain.Player{
		UUID:        id,
		Name:        name,
		ProfileUUID: p.UUID,
		Extra:       map[string]any{},
	}
}
