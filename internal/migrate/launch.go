package migrate

import (
	"context"
	"errors"
	"fmt"

	"github.com/park285/goban-state/internal/domain"
	"github.com/park285/goban-state/internal/prefs"
	"go.uber.org/zap"
)

var ErrNoTargetVersion = errors.New("factory defaults carry no preferences version")

// Keys of NewGame that reference player records.
var playerRefKeys = []string{"HumanPlayerUUID", "ComputerPlayerUUID"}

type LaunchResult struct {
	Migration      Result
	ProfileBackups int
	PlayerBackups  int
}

// Launch runs the preferences part of application start-up: migrate the
// persisted preferences to the version of factory, merge the shipped player
// and profile records into the user's, then register factory as the
// registration domain of p.
//
// Empty preferences are a fresh install; they are stamped with the target
// version and nothing is migrated. Shipped records are merged only when an
// upgrade ran, so edits to shipped records survive later launches of the same
// build. After a downgrade the persisted records are left untouched.
func (e *Engine) Launch(ctx context.Context, factory prefs.Dict, p *prefs.Preferences) (LaunchResult, error) {
	var out LaunchResult
	target, ok := factory.Int(prefs.VersionKey)
	if !ok {
		return out, ErrNoTargetVersion
	}

	store := p.Store()
	data, err := store.Load(ctx)
	if err != nil {
		return out, fmt.Errorf("load preferences: %w", err)
	}
	stored, ok := data.Int(prefs.VersionKey)
	switch {
	case len(data) == 0:
		stored = target
		if err := store.Set(ctx, prefs.VersionKey, target); err != nil {
			return out, fmt.Errorf("stamp preferences version: %w", err)
		}
		e.logger.Info("prefs_fresh_install", zap.Int("version", target))
	case !ok:
		stored = 0
	}

	res, err := e.Migrate(ctx, stored, target, factory, p)
	out.Migration = res
	if err != nil {
		return out, err
	}

	if res.Kind == ResultUpgraded {
		if out.ProfileBackups, out.PlayerBackups, err = e.reconcile(ctx, factory, store); err != nil {
			return out, err
		}
	}

	p.RegisterDefaults(factory)
	return out, nil
}

func (e *Engine) reconcile(ctx context.Context, factory prefs.Dict, store prefs.Store) (int, int, error) {
	data, err := store.Load(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("load preferences: %w", err)
	}

	changed := false
	var profileBackups, playerBackups int
	if data.Has(sectionProfiles) {
		r := ReconcileRecords(data.Records(sectionProfiles), factory.Records(sectionProfiles), e.newUUID)
		data.SetRecords(sectionProfiles, r.Records)
		repoint(data.Records(sectionPlayers), domain.PlayerProfileUUIDKey, r.Remap)
		profileBackups = r.Backups
		changed = true
	}
	if data.Has(sectionPlayers) {
		r := ReconcileRecords(data.Records(sectionPlayers), factory.Records(sectionPlayers), e.newUUID)
		data.SetRecords(sectionPlayers, r.Records)
		if ng, ok := data.Sub(sectionNewGame); ok {
			for _, k := range playerRefKeys {
				repoint([]prefs.Dict{ng}, k, r.Remap)
			}
		}
		playerBackups = r.Backups
		changed = true
	}
	if !changed {
		return 0, 0, nil
	}
	// A backup player keeps the profile of the shipped player that displaced it.
	if profileBackups+playerBackups > 0 && data.Has(sectionProfiles) && data.Has(sectionPlayers) {
		profiles, players := DeduplicateProfiles(profilesOf(data), playersOf(data), e.newUUID)
		setProfiles(data, profiles)
		setPlayers(data, players)
	}
	if err := store.Replace(ctx, data); err != nil {
		return 0, 0, fmt.Errorf("write reconciled records: %w", err)
	}
	if profileBackups+playerBackups > 0 {
		e.logger.Info("prefs_records_backed_up",
			zap.Int("profiles", profileBackups),
			zap.Int("players", playerBackups),
		)
	}
	return profileBackups, playerBackups, nil
}
