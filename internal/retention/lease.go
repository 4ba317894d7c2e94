package retention

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"chatzalo/pkg/logger"
	"chatzalo/pkg/timeutil"
)

var ErrNotOwner = errors.New("retention: lease held by another owner")

// fileLease is a cross-process lock on a single file. A holder must renew
// before the expiry it wrote or another process may take over.
type fileLease struct {
	path string
	now  timeutil.Clock
}

type leaseFile struct {
	Owner   string    `json:"owner"`
	Expires time.Time `json:"expires"`
}

func newFileLease(dir string, clock timeutil.Clock) *fileLease {
	return &fileLease{path: filepath.Join(dir, "retention.lock"), now: clock.OrNow()}
}

func (l *fileLease) read() (leaseFile, error) {
	var lf leaseFile
	data, err := os.ReadFile(l.path)
	if err != nil {
		return lf, err
	}
	return lf, json.Unmarshal(data, &lf)
}

// write replaces the lease file through a temp file and rename.
func (l *fileLease) write(lf leaseFile) (string, error) {
	b, err := json.Marshal(lf)
	if err != nil {
		return "", err
	}
	tmp := l.path + "." + lf.Owner + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return "", err
	}
	return tmp, nil
}

// Acquire takes the lease if it is free or expired.
func (l *fileLease) Acquire(owner string, ttl time.Duration) (bool, error) {
	now := l.now()
	tmp, err := l.write(leaseFile{Owner: owner, Expires: now.Add(ttl)})
	if err != nil {
		logger.Error("lease_tmp_write_failed", "path", l.path, "error", err)
		return false, err
	}
	defer os.Remove(tmp)

	// hard link fails when the lock file already exists
	if err := os.Link(tmp, l.path); err == nil {
		logger.Debug("lease_acquired", "path", l.path, "owner", owner)
		return true, nil
	}
	existing, err := l.read()
	if err != nil {
		return false, err
	}
	if existing.Expires.After(now) {
		logger.Info("lease_currently_held", "path", l.path, "owner", existing.Owner, "expires", existing.Expires)
		return false, nil
	}
	if err := os.Rename(tmp, l.path); err != nil {
		logger.Error("lease_replace_failed", "path", l.path, "error", err)
		return false, err
	}
	logger.Info("lease_taken_over", "path", l.path, "owner", owner, "previous", existing.Owner)
	return true, nil
}

func (l *fileLease) Renew(owner string, ttl time.Duration) error {
	existing, err := l.read()
	if err != nil {
		return err
	}
	if existing.Owner != owner {
		return ErrNotOwner
	}
	tmp, err := l.write(leaseFile{Owner: owner, Expires: l.now().Add(ttl)})
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, l.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (l *fileLease) Release(owner string) error {
	existing, err := l.read()
	if err != nil {
		return err
	}
	if existing.Owner != owner {
		return ErrNotOwner
	}
	return os.Remove(l.path)
}
