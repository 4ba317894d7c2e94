// Package progressor stamps the on-disk schema version and runs the data
// migrations needed to bring an older database up to it.
package progressor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"chatzalo/pkg/logger"
	"chatzalo/pkg/models"
	"chatzalo/pkg/store"
	"chatzalo/pkg/timeutil"
	"chatzalo/pkg/utils"
)

const (
	versionKey    = "schema_version"
	inProgressKey = "migration_in_progress"
)

// CurrentVersion is the schema this binary reads and writes.
const CurrentVersion = 2

// ErrNewerSchema is returned when the database was written by a newer binary.
var ErrNewerSchema = errors.New("database schema is newer than this binary")

type migration struct {
	to   int
	name string
	run  func(ctx context.Context, st *store.Store) error
}

var migrations = []migration{
	{to: 2, name: "normalize_friend_lists", run: normalizeFriendLists},
}

// Run brings st up to CurrentVersion and reports how many migrations ran.
// An empty database is stamped directly.
func Run(ctx context.Context, st *store.Store, clock timeutil.Clock) (int, error) {
	stored, err := storedVersion(st)
	if err != nil {
		return 0, err
	}
	if stored > CurrentVersion {
		return 0, fmt.Errorf("%w: stored %d, supported %d", ErrNewerSchema, stored, CurrentVersion)
	}
	if stored == CurrentVersion {
		return 0, nil
	}

	applied := 0
	for _, m := range migrations {
		if m.to <= stored {
			continue
		}
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		if err := startMigration(st, stored, m, clock.OrNow()()); err != nil {
			return applied, err
		}
		if err := m.run(ctx, st); err != nil {
			logger.Error("progressor_migration_failed", "migration", m.name, "from", stored, "to", m.to, "error", err)
			return applied, err
		}
		if err := finishMigration(st, m.to); err != nil {
			return applied, err
		}
		stored = m.to
		applied++
	}
	if stored != CurrentVersion {
		if err := st.PutSystem(versionKey, strconv.Itoa(CurrentVersion)); err != nil {
			return applied, err
		}
	}
	return applied, nil
}

// storedVersion treats a missing stamp as version 1 unless the database
// holds no users at all.
func storedVersion(st *store.Store) (int, error) {
	raw, err := st.GetSystem(versionKey)
	if errors.Is(err, store.ErrNotFound) {
		n, cerr := st.CountPrefix(store.UserPrefix)
		if cerr != nil {
			return 0, cerr
		}
		if n == 0 {
			if err := st.PutSystem(versionKey, strconv.Itoa(CurrentVersion)); err != nil {
				return 0, err
			}
			return CurrentVersion, nil
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("corrupt schema version %q: %w", raw, err)
	}
	return v, nil
}

func startMigration(st *store.Store, from int, m migration, now time.Time) error {
	marker, _ := json.Marshal(map[string]any{
		"from":       from,
		"to":         m.to,
		"name":       m.name,
		"started_at": now.Format(time.RFC3339),
	})
	if err := st.PutSystem(inProgressKey, string(marker)); err != nil {
		logger.Error("progressor_write_inprogress_failed", "error", err)
		return fmt.Errorf("failed to write in-progress marker: %w", err)
	}
	logger.Info("progressor_migration_start", "migration", m.name, "from", from, "to", m.to)
	return nil
}

func finishMigration(st *store.Store, to int) error {
	if err := st.PutSystem(versionKey, strconv.Itoa(to)); err != nil {
		logger.Error("progressor_persist_version_failed", "version", to, "error", err)
		return fmt.Errorf("failed to persist new version: %w", err)
	}
	if err := st.DeleteSystem(inProgressKey); err != nil {
		logger.Error("progressor_delete_inprogress_failed", "error", err)
	}
	logger.Info("progressor_version_persisted", "version", to)
	return nil
}

// normalizeFriendLists dedupes friend lists, drops self links and blank
// entries, and sorts them.
func normalizeFriendLists(_ context.Context, st *store.Store) error {
	users, err := st.ScanUsers(nil)
	if err != nil {
		return err
	}
	var changed []*models.User
	for _, u := range users {
		friends, _ := utils.Remove(utils.Dedupe(u.Friends), u.Email)
		slices.Sort(friends)
		if !slices.Equal(friends, u.Friends) {
			u.Friends = friends
			changed = append(changed, u)
		}
	}
	if len(changed) == 0 {
		return nil
	}
	logger.Info("progressor_friend_lists_normalized", "users", len(changed))
	return st.PutUsers(changed...)
}
