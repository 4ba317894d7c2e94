// Package sensor watches the filesystem that holds the database and
// publishes its usage as a gauge, warning once when it crosses the high
// water mark.
package sensor

import (
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"chatzalo/pkg/logger"
	"chatzalo/pkg/metrics"
)

// Usage is one filesystem sample.
type Usage struct {
	Total uint64
	Avail uint64
}

func (u Usage) UsedRatio() float64 {
	if u.Total == 0 {
		return 0
	}
	return float64(u.Total-u.Avail) / float64(u.Total)
}

// StatFunc samples the filesystem at path.
type StatFunc func(path string) (Usage, error)

// Statfs reads usage with statfs(2).
func Statfs(path string) (Usage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Usage{}, err
	}
	bsize := uint64(st.Bsize)
	return Usage{Total: st.Blocks * bsize, Avail: st.Bavail * bsize}, nil
}

type Config struct {
	Path         string
	PollInterval time.Duration
	// HighPct triggers the warning; it clears 5 points below.
	HighPct int
	Stat    StatFunc
}

type Sensor struct {
	cfg      Config
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu    sync.Mutex
	alert bool
}

func New(cfg Config) *Sensor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.HighPct <= 0 {
		cfg.HighPct = 85
	}
	if cfg.Stat == nil {
		cfg.Stat = Statfs
	}
	return &Sensor{cfg: cfg, stopCh: make(chan struct{})}
}

func (s *Sensor) Start() {
	s.wg.Add(1)
	go s.run()
}

func (s *Sensor) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Sensor) run() {
	defer s.wg.Done()
	s.Check()
	t := time.NewTicker(s.cfg.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.Check()
		case <-s.stopCh:
			return
		}
	}
}

// Check takes one sample, updates the gauge and reports whether the disk
// is above the high mark.
func (s *Sensor) Check() bool {
	u, err := s.cfg.Stat(s.cfg.Path)
	if err != nil {
		logger.Warn("disk_stat_failed", "path", s.cfg.Path, "error", err)
		return false
	}
	ratio := u.UsedRatio()
	metrics.DiskUsedRatio.Set(ratio)
	pct := ratio * 100

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case pct >= float64(s.cfg.HighPct) && !s.alert:
		s.alert = true
		logger.Warn("disk_usage_high", "path", s.cfg.Path, "used_pct", pct,
			"free", humanize.IBytes(u.Avail), "threshold_pct", s.cfg.HighPct)
	case pct < float64(s.cfg.HighPct-5) && s.alert:
		s.alert = false
		logger.Info("disk_usage_recovered", "path", s.cfg.Path, "used_pct", pct, "free", humanize.IBytes(u.Avail))
	}
	return s.alert
}
