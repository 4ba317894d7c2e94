package state

import "path/filepath"

// Paths is the on-disk layout under the configured database directory.
type Paths struct {
	DB        string
	Store     string
	State     string
	Retention string
	Tmp       string
	Logs      string
}

func PathsFor(dbPath string) Paths {
	statePath := filepath.Join(dbPath, "state")
	return Paths{
		DB:        dbPath,
		Store:     filepath.Join(dbPath, "store"),
		State:     statePath,
		Retention: filepath.Join(statePath, "retention"),
		Tmp:       filepath.Join(statePath, "tmp"),
		Logs:      filepath.Join(statePath, "logs"),
	}
}

func (p Paths) all() []string {
	return []string{p.Store, p.Retention, p.Tmp, p.Logs}
}
