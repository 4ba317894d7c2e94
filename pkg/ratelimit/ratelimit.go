// Package ratelimit keeps one token bucket per key (user email or client
// IP) and forgets keys that went quiet.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"chatzalo/pkg/metrics"
	"chatzalo/pkg/timeutil"
)

const (
	defaultTTL           = 10 * time.Minute
	defaultCleanupPeriod = time.Minute
)

type entry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

// Pool is a per-key limiter pool. The zero value is not usable; use New.
type Pool struct {
	surface string
	rps     rate.Limit
	burst   int
	ttl     time.Duration
	now     timeutil.Clock

	mu sync.Mutex
	m  map[string]*entry

	startCleanup sync.Once
	stopOnce     sync.Once
	stopCh       chan struct{}
}

// New returns a pool allowing rps events per second with the given burst for
// each key. surface labels the rate_limited metric ("rest", "realtime").
func New(surface string, rps float64, burst int) *Pool {
	return &Pool{
		surface: surface,
		rps:     rate.Limit(rps),
		burst:   burst,
		ttl:     defaultTTL,
		now:     timeutil.Now,
		m:       make(map[string]*entry),
		stopCh:  make(chan struct{}),
	}
}

func (p *Pool) get(key string) *rate.Limiter {
	p.startCleanup.Do(func() { go p.cleanupLoop(defaultCleanupPeriod) })

	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.m[key]; ok {
		e.lastSeen = p.now()
		return e.l
	}
	l := rate.NewLimiter(p.rps, p.burst)
	p.m[key] = &entry{l: l, lastSeen: p.now()}
	return l
}

// Allow reports whether one more event for key fits in its bucket.
func (p *Pool) Allow(key string) bool {
	if p.get(key).Allow() {
		return true
	}
	metrics.RateLimited.WithLabelValues(p.surface).Inc()
	return false
}

// Forget drops key's bucket, e.g. when the user's last connection closes.
func (p *Pool) Forget(key string) {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

// Close stops the cleanup goroutine.
func (p *Pool) Close() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

func (p *Pool) sweep() {
	cutoff := p.now().Add(-p.ttl)
	p.mu.Lock()
	for k, e := range p.m {
		if e.lastSeen.Before(cutoff) {
			delete(p.m, k)
		}
	}
	p.mu.Unlock()
}

func (p *Pool) cleanupLoop(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.sweep()
		case <-p.stopCh:
			return
		}
	}
}
