package migrate

import (
	"github.com/park285/goban-state/internal/domain"
	"github.com/park285/goban-state/internal/prefs"
)

// Preference sections touched by the ladder.
const (
	sectionNewGame   = "NewGame"
	sectionBoardView = "BoardView"
	sectionPlayView  = "PlayView"
	sectionScoring   = "Scoring"
	sectionSound     = "Sound"
	sectionAnalysis  = "Analysis"
	sectionPlayers   = "Players"
	sectionProfiles  = "GtpEngineProfiles"
)

const megabyte = 1 << 20

// Ladder returns the steps that bring preferences up to the current format.
// Versions 7 and 11 changed only the shipped defaults and have no step.
func Ladder(newUUID func() string) *Ledger {
	l := NewLedger()
	l.Register(1, "drop_board_margins", dropBoardMargins)
	l.Register(2, "natural_enumerations", naturalEnumerations)
	l.Register(3, "merge_play_view", mergePlayView)
	l.Register(4, "stone_distance", stoneDistance)
	l.Register(5, "device_fan_out", deviceFanOut)
	l.Register(6, "handicap_stones", handicapStones)
	l.Register(8, "memory_megabytes", memoryMegabytes)
	l.Register(9, "drop_testing_flag", dropTestingFlag)
	l.Register(10, "analysis_section", analysisSection)
	l.Register(12, "deduplicate_profiles", func(d, _ prefs.Dict) error {
		profiles, players := DeduplicateProfiles(profilesOf(d), playersOf(d), newUUID)
		if d.Has(sectionProfiles) || len(profiles) > 0 {
			setProfiles(d, profiles)
		}
		if d.Has(sectionPlayers) || len(players) > 0 {
			setPlayers(d, players)
		}
		return nil
	})
	return l
}

// dropBoardMargins runs before PlayView is merged into BoardView, so both
// sections may hold the margins.
func dropBoardMargins(d, _ prefs.Dict) error {
	for _, section := range []string{sectionPlayView, sectionBoardView} {
		if sub, ok := d.Sub(section); ok {
			removeKeys(sub, "BoardOuterMargin", "BoardInnerMargin")
		}
	}
	return nil
}

// naturalEnumerations stores the board size and the territory markup style
// as the values they mean instead of their list index.
func naturalEnumerations(d, _ prefs.Dict) error {
	if ng, ok := d.Sub(sectionNewGame); ok {
		if i, ok := ng.Int("BoardSize"); ok {
			ng["BoardSize"] = domain.MinBoardSize + 2*i
		}
	}
	if sc, ok := d.Sub(sectionScoring); ok {
		if i, ok := sc.Int("InconsistentTerritoryMarkupType"); ok {
			sc["InconsistentTerritoryMarkupType"] = i + 1
		}
	}
	return nil
}

func mergePlayView(d, _ prefs.Dict) error {
	if pv, ok := d.Sub(sectionPlayView); ok {
		bv, ok := d.Sub(sectionBoardView)
		if !ok {
			bv = prefs.Dict{}
		}
		for k, v := range pv {
			if !bv.Has(k) {
				bv[k] = v
			}
		}
		d[sectionBoardView] = map[string]any(bv)
		delete(d, sectionPlayView)
	}
	if snd, ok := d.Sub(sectionSound); ok {
		renameKey(snd, "PlaySound", "PlayStoneSound")
	}
	return nil
}

func stoneDistance(d, _ prefs.Dict) error {
	bv, ok := d.Sub(sectionBoardView)
	if !ok {
		return nil
	}
	under, ok := bv.Bool("PlaceStoneUnderFinger")
	delete(bv, "PlaceStoneUnderFinger")
	if !ok || bv.Has("StoneDistanceFromFingertip") {
		return nil
	}
	if under {
		bv["StoneDistanceFromFingertip"] = 0.0
	} else {
		bv["StoneDistanceFromFingertip"] = 1.0
	}
	return nil
}

func deviceFanOut(d, factory prefs.Dict) error {
	bv, fbv, ok := subDicts(d, factory, sectionBoardView)
	if !ok {
		return nil
	}
	fanOut(bv, fbv, "StoneDistanceFromFingertip", deviceSuffixes, SuffixPhone)
	fanOut(bv, fbv, "InfoViewLayout", deviceSuffixes, "")
	return nil
}

func handicapStones(d, _ prefs.Dict) error {
	if ng, ok := d.Sub(sectionNewGame); ok {
		renameKey(ng, "Handicap", "HandicapStones")
	}
	return nil
}

func memoryMegabytes(d, _ prefs.Dict) error {
	for _, p := range d.Records(sectionProfiles) {
		bytes, ok := p.Int("FuegoMaxMemory")
		if !ok {
			continue
		}
		delete(p, "FuegoMaxMemory")
		mb := bytes / megabyte
		if mb < 1 {
			mb = 1
		}
		p["MaxMemoryMegabytes"] = mb
	}
	return nil
}

func dropTestingFlag(d, _ prefs.Dict) error {
	for _, p := range d.Records(sectionPlayers) {
		delete(p, "IsOnlyForTesting")
	}
	return nil
}

func analysisSection(d, _ prefs.Dict) error {
	bv, ok := d.Sub(sectionBoardView)
	if !ok {
		return nil
	}
	v, ok := bv["DisplayPlayerInfluence"]
	if !ok {
		return nil
	}
	delete(bv, "DisplayPlayerInfluence")
	an, ok := d.Sub(sectionAnalysis)
	if !ok {
		an = prefs.Dict{}
		d[sectionAnalysis] = map[string]any(an)
	}
	if !an.Has("DisplayPlayerInfluence") {
		an["DisplayPlayerInfluence"] = v
	}
	return nil
}

func profilesOf(d prefs.Dict) []domain.Profile {
	recs := d.Records(sectionProfiles)
	out := make([]domain.Profile, 0, len(recs))
	for _, r := range recs {
		out = append(out, domain.ProfileFromMap(r))
	}
	return out
}

func playersOf(d prefs.Dict) []domain.Player {
	recs := d.Records(sectionPlayers)
	out := make([]domain.Player, 0, len(recs))
	for _, r := range recs {
		out = append(out, domain.PlayerFromMap(r))
	}
	return out
}

func setProfiles(d prefs.Dict, profiles []domain.Profile) {
	recs := make([]prefs.Dict, len(profiles))
	for i, p := range profiles {
		recs[i] = prefs.Dict(p.Map())
	}
	d.SetRecords(sectionProfiles, recs)
}

func setPlayers(d prefs.Dict, players []domain.Player) {
	recs := make([]prefs.Dict, len(players))
	for i, p := range players {
		recs[i] = prefs.Dict(p.Map())
	}
	d.SetRecords(sectionPlayers, recs)
}
