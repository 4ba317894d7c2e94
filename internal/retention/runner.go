package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatzalo/pkg/config"
	"chatzalo/pkg/logger"
	"chatzalo/pkg/metrics"
	"chatzalo/pkg/models"
	"chatzalo/pkg/store"
	"chatzalo/pkg/utils"
)

const (
	defaultLockTTL           = 5 * time.Minute
	maxConsecutiveRenewFails = 3
)

var errRunAborted = errors.New("retention: run aborted, lease lost")

// Report summarizes one run. Skipped is set when another process held the
// lease.
type Report struct {
	RunID    string
	Skipped  bool
	DryRun   bool
	Scanned  int
	Eligible int
	Purged   int
	Failed   int
	Messages int
}

// RunOnce takes the lease, purges every group tombstoned before the cutoff
// and writes one audit line per group.
func (m *Manager) RunOnce(ctx context.Context) (Report, error) {
	rep := Report{RunID: utils.GenID(), DryRun: m.cfg.DryRun}
	period, err := config.ParsePeriod(m.cfg.Period)
	if err != nil {
		return rep, fmt.Errorf("retention period: %w", err)
	}
	ttl := m.cfg.LockTTL.Duration()
	if ttl <= 0 {
		ttl = defaultLockTTL
	}

	owner := rep.RunID
	ok, err := m.lease.Acquire(owner, ttl)
	if err != nil {
		return rep, fmt.Errorf("lease acquire: %w", err)
	}
	if !ok {
		rep.Skipped = true
		return rep, nil
	}
	defer func() {
		if err := m.lease.Release(owner); err != nil {
			logger.Error("retention_lease_release_failed", "owner", owner, "error", err)
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go m.heartbeat(runCtx, cancel, owner, ttl)

	cutoff := m.now().Add(-period)
	logger.Info("retention_run_start", "run_id", rep.RunID, "cutoff", cutoff, "dry_run", rep.DryRun)

	groups, err := m.store.ScanGroups(func(g *models.Group) bool {
		rep.Scanned++
		return g.Deleted() && g.DeletedAt.Before(cutoff)
	})
	if err != nil {
		return rep, fmt.Errorf("scan groups: %w", err)
	}
	rep.Eligible = len(groups)

	for _, g := range groups {
		if runCtx.Err() != nil {
			if ctx.Err() != nil {
				return rep, ctx.Err()
			}
			return rep, errRunAborted
		}
		if rep.DryRun {
			m.audit(rep.RunID, g, "dry_run", 0, nil)
			continue
		}
		n, err := m.purge(g.ID, cutoff)
		if err != nil {
			rep.Failed++
			m.audit(rep.RunID, g, "failed", 0, err)
			continue
		}
		rep.Purged++
		rep.Messages += n
		metrics.RetentionPurged.Inc()
		m.audit(rep.RunID, g, "purged", n, nil)
	}

	logger.Info("retention_run_complete", "run_id", rep.RunID, "scanned", rep.Scanned,
		"eligible", rep.Eligible, "purged", rep.Purged, "failed", rep.Failed)
	return rep, nil
}

// purge removes the group under its owner lock after re-checking that it is
// still a tombstone past the cutoff.
func (m *Manager) purge(groupID string, cutoff time.Time) (int, error) {
	release := m.locker.LockOwner(models.GroupOwner(groupID))
	defer release()

	g, err := m.store.GetGroup(groupID)
	if store.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !g.Deleted() || !g.DeletedAt.Before(cutoff) {
		return 0, fmt.Errorf("group %s is no longer eligible", groupID)
	}
	return m.store.PurgeGroup(groupID)
}

func (m *Manager) heartbeat(ctx context.Context, abort context.CancelFunc, owner string, ttl time.Duration) {
	t := time.NewTicker(ttl / 3)
	defer t.Stop()
	fails := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if err := m.lease.Renew(owner, ttl); err != nil {
			fails++
			logger.Warn("retention_lease_renew_failed", "owner", owner, "count", fails, "error", err)
			if fails >= maxConsecutiveRenewFails || errors.Is(err, ErrNotOwner) {
				logger.Error("retention_lease_lost", "owner", owner)
				abort()
				return
			}
			continue
		}
		fails = 0
	}
}

func (m *Manager) audit(runID string, g *models.Group, status string, messages int, err error) {
	args := []any{"run_id", runID, "group", g.ID, "deleted_at", g.DeletedAt, "status", status, "messages", messages}
	if err != nil {
		args = append(args, "error", err)
	}
	logger.Info("retention_audit_item", args...)
}
