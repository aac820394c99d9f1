package shelldto

import "time"

type SavePointStatus struct {
	Outstanding int64      `json:"outstanding"`
	Dirty       bool       `json:"dirty"`
	Saving      bool       `json:"saving"`
	Restoring   bool       `json:"restoring"`
	Suspended   bool       `json:"suspended"`
	LastSave    *time.Time `json:"last_save,omitempty"`
}

type PrefsStatus struct {
	Version        int    `json:"version"`
	Migration      string `json:"migration"`
	Applied        int    `json:"applied"`
	Downgraded     bool   `json:"prefs_downgraded"`
	ProfileBackups int    `json:"profile_backups"`
	PlayerBackups  int    `json:"player_backups"`
}

type StatusResponse struct {
	Version     string          `json:"version"`
	StartedAt   time.Time       `json:"started_at"`
	RestoreTier string          `json:"restore_tier"`
	SavePoint   SavePointStatus `json:"savepoint"`
	Prefs       PrefsStatus     `json:"prefs"`
}
