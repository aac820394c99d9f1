package migrate

import (
	"github.com/park285/goban-state/internal/domain"
	"github.com/park285/goban-state/internal/prefs"
)

// BackupSuffix marks user records displaced by a shipped record.
const BackupSuffix = " (backup)"

// Reconciled is the outcome of merging shipped records into the user's.
// Remap maps each displaced UUID to the UUID of its backup.
type Reconciled struct {
	Records []prefs.Dict
	Remap   map[string]string
	Backups int
}

// ReconcileRecords merges shipped into user by UUID.
//
// The output holds the user's records in their order, with a shipped record
// taking the place of the user record that has its UUID. When the two differ
// the user record is kept as a backup: fresh UUID, name suffixed with
// BackupSuffix. Shipped records the user lacks follow, then all backups.
// Records without a UUID are kept as they are.
func ReconcileRecords(user, shipped []prefs.Dict, newUUID func() string) Reconciled {
	byUUID := make(map[string]prefs.Dict, len(shipped))
	for _, s := range shipped {
		if id, _ := s.String(domain.RecordUUIDKey); id != "" {
			byUUID[id] = s
		}
	}

	res := Reconciled{Remap: map[string]string{}}
	used := make(map[string]bool, len(shipped))
	var backups []prefs.Dict
	for _, u := range user {
		id, _ := u.String(domain.RecordUUIDKey)
		s, ok := byUUID[id]
		if id == "" || !ok {
			res.Records = append(res.Records, u.Clone())
			continue
		}
		used[id] = true
		res.Records = append(res.Records, s.Clone())
		if prefs.Equal(u, s) {
			continue
		}
		b := u.Clone()
		newID := newUUID()
		b[domain.RecordUUIDKey] = newID
		name, _ := b.String(domain.RecordNameKey)
		b[domain.RecordNameKey] = name + BackupSuffix
		backups = append(backups, b)
		res.Remap[id] = newID
	}
	for _, s := range shipped {
		id, _ := s.String(domain.RecordUUIDKey)
		if id == "" || used[id] {
			continue
		}
		used[id] = true
		res.Records = append(res.Records, s.Clone())
	}
	res.Records = append(res.Records, backups...)
	res.Backups = len(backups)
	return res
}

// repoint rewrites the string value under key in every record whose current
// value was remapped.
func repoint(records []prefs.Dict, key string, remap map[string]string) {
	if len(remap) == 0 {
		return
	}
	for _, r := range records {
		old, ok := r.String(key)
		if !ok {
			continue
		}
		if to, ok := remap[old]; ok {
			r[key] = to
		}
	}
}
