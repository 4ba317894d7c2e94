package metrics

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chatzalo",
		Name:      "ws_connections",
		Help:      "Authenticated realtime connections currently open.",
	})

	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chatzalo",
		Name:      "online_users",
		Help:      "Users with at least one open connection.",
	})

	FramesDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatzalo",
		Name:      "frames_delivered_total",
		Help:      "Outbound frames enqueued on a connection.",
	}, []string{"event"})

	FramesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatzalo",
		Name:      "frames_dropped_total",
		Help:      "Outbound frames dropped because the connection queue was full or closed.",
	}, []string{"event"})

	HandshakeRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatzalo",
		Name:      "handshake_rejected_total",
		Help:      "Realtime handshakes rejected, by reason.",
	}, []string{"reason"})

	Mutations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatzalo",
		Name:      "mutations_total",
		Help:      "Message list mutations by operation and result code.",
	}, []string{"op", "result"})

	RateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatzalo",
		Name:      "rate_limited_total",
		Help:      "Requests or events rejected by a rate limiter.",
	}, []string{"surface"})

	StoreOpSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chatzalo",
		Name:      "store_op_seconds",
		Help:      "Latency of persistence operations.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
	}, []string{"op"})

	DiskUsedRatio = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chatzalo",
		Name:      "disk_used_ratio",
		Help:      "Used fraction of the filesystem holding the database.",
	})

	RetentionPurged = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chatzalo",
		Name:      "retention_groups_purged_total",
		Help:      "Tombstoned groups removed by the retention runner.",
	})

	gcPauseTotal = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "go_gc_pause_total_ns",
			Help: "Total GC pause time in nanoseconds.",
		},
		func() float64 {
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			return float64(stats.PauseTotalNs)
		},
	)

	heapAlloc = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "go_heap_alloc_bytes",
			Help: "Current heap allocation in bytes.",
		},
		func() float64 {
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			return float64(stats.HeapAlloc)
		},
	)
)

func init() {
	prometheus.MustRegister(
		Connections,
		OnlineUsers,
		FramesDelivered,
		FramesDropped,
		HandshakeRejected,
		Mutations,
		RateLimited,
		StoreOpSeconds,
		DiskUsedRatio,
		RetentionPurged,
		gcPauseTotal,
		heapAlloc,
	)
}

// Observer receives every finished trace, e.g. a slow-operation log.
type Observer func(op string, took time.Duration)

var observer atomic.Pointer[Observer]

// SetObserver installs o; nil removes it.
func SetObserver(o Observer) {
	if o == nil {
		observer.Store(nil)
		return
	}
	observer.Store(&o)
}

// Trace times one operation into StoreOpSeconds.
type Trace struct {
	op    string
	start time.Time
}

// Track starts timing op; call Finish when done.
func Track(op string) *Trace {
	return &Trace{op: op, start: time.Now()}
}

func (t *Trace) Finish() {
	if t == nil {
		return
	}
	took := time.Since(t.start)
	StoreOpSeconds.WithLabelValues(t.op).Observe(took.Seconds())
	if o := observer.Load(); o != nil {
		(*o)(t.op, took)
	}
}
