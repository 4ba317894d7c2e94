// Package retention purges tombstoned groups once they are older than the
// configured period. Runs are scheduled by a cron expression and guarded by
// a file lease so only one process purges at a time.
package retention

import (
	"context"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"chatzalo/pkg/config"
	"chatzalo/pkg/logger"
	"chatzalo/pkg/models"
	"chatzalo/pkg/store"
	"chatzalo/pkg/timeutil"
)

// OwnerLocker serializes the purge of a group with its message mutations.
type OwnerLocker interface {
	LockOwner(owner models.Owner) func()
}

type Manager struct {
	cfg    config.RetentionConfig
	store  *store.Store
	locker OwnerLocker
	lease  *fileLease
	now    timeutil.Clock

	mu      sync.Mutex
	running bool
}

// New builds a manager that keeps its lease file in dir.
func New(cfg config.RetentionConfig, st *store.Store, locker OwnerLocker, dir string, clock timeutil.Clock) *Manager {
	clock = clock.OrNow()
	return &Manager{
		cfg:    cfg,
		store:  st,
		locker: locker,
		lease:  newFileLease(dir, clock),
		now:    clock,
	}
}

// Start runs the schedule until the returned cancel is called or ctx ends.
// A disabled manager returns a no-op cancel.
func (m *Manager) Start(ctx context.Context) context.CancelFunc {
	if !m.cfg.Enabled {
		logger.Info("retention_disabled")
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	logger.Info("retention_enabled", "cron", m.cfg.Cron, "period", m.cfg.Period, "dry_run", m.cfg.DryRun)
	go m.scheduleLoop(ctx)
	return cancel
}

func (m *Manager) scheduleLoop(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(m.cfg.Cron, m.now(), false)
		wait := 30 * time.Second
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", m.cfg.Cron, "error", err)
		} else {
			wait = next.Sub(m.now())
		}
		if wait < time.Second {
			wait = time.Second
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		if err == nil {
			m.runJob(ctx)
		}
	}
}

// runJob skips a tick while the previous run is still going.
func (m *Manager) runJob(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	if _, err := m.RunOnce(ctx); err != nil {
		logger.Error("retention_run_error", "error", err)
	}
}
