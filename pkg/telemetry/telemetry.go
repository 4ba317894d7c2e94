// Package telemetry writes slow operations to per-op JSON lines files
// from a background writer.
package telemetry

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"chatzalo/pkg/logger"
	"chatzalo/pkg/timeutil"
)

// Record is one slow operation.
type Record struct {
	Op     string    `json:"op"`
	At     time.Time `json:"at"`
	TookMS float64   `json:"took_ms"`
}

type Options struct {
	// Threshold is the minimum duration recorded.
	Threshold     time.Duration
	QueueSize     int
	FlushInterval time.Duration
	// MaxFileSize truncates an op file once it grows past this many bytes.
	MaxFileSize int64
	Clock       timeutil.Clock
}

// Telemetry manages async writing of slow-op records to per-op files.
type Telemetry struct {
	dir     string
	opts    Options
	now     timeutil.Clock
	mu      sync.Mutex
	files   map[string]*os.File
	buffers map[string]*bufio.Writer
	records chan Record
	dropped atomic.Int64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates dir and starts the writer.
func New(dir string, opts Options) (*Telemetry, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	if opts.Threshold <= 0 {
		opts.Threshold = 250 * time.Millisecond
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = 16 << 20
	}
	t := &Telemetry{
		dir:     dir,
		opts:    opts,
		now:     opts.Clock.OrNow(),
		files:   make(map[string]*os.File),
		buffers: make(map[string]*bufio.Writer),
		records: make(chan Record, opts.QueueSize),
		stopCh:  make(chan struct{}),
	}
	t.wg.Add(1)
	go t.writerLoop()
	return t, nil
}

// Observe queues op when it took at least the threshold. A full queue
// drops the record.
func (t *Telemetry) Observe(op string, took time.Duration) {
	if took < t.opts.Threshold {
		return
	}
	rec := Record{Op: op, At: t.now().Add(-took), TookMS: float64(took.Microseconds()) / 1000}
	select {
	case t.records <- rec:
	case <-t.stopCh:
	default:
		t.dropped.Add(1)
	}
}

// Dropped reports records lost to a full queue.
func (t *Telemetry) Dropped() int64 { return t.dropped.Load() }

func (t *Telemetry) writerLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case rec := <-t.records:
			t.write(rec)
		case <-ticker.C:
			t.flush()
		case <-t.stopCh:
			t.drain()
			t.closeFiles()
			return
		}
	}
}

func (t *Telemetry) drain() {
	for {
		select {
		case rec := <-t.records:
			t.write(rec)
		default:
			return
		}
	}
}

func (t *Telemetry) write(rec Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.bufferFor(rec.Op)
	if b == nil {
		return
	}
	_, _ = b.Write(data)
	_ = b.WriteByte('\n')
}

func (t *Telemetry) flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for op, b := range t.buffers {
		_ = b.Flush()
		f := t.files[op]
		fi, err := f.Stat()
		if err != nil || fi.Size() <= t.opts.MaxFileSize {
			continue
		}
		if err := f.Truncate(0); err != nil {
			logger.Warn("telemetry_truncate_failed", "op", op, "error", err)
			continue
		}
		logger.Info("telemetry_truncated", "op", op, "max_bytes", t.opts.MaxFileSize)
	}
}

func (t *Telemetry) closeFiles() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for op, b := range t.buffers {
		_ = b.Flush()
		f := t.files[op]
		_ = f.Sync()
		_ = f.Close()
	}
	t.buffers = map[string]*bufio.Writer{}
	t.files = map[string]*os.File{}
}

// bufferFor opens <dir>/<op>.jsonl on first use. Callers hold mu.
func (t *Telemetry) bufferFor(op string) *bufio.Writer {
	if b, ok := t.buffers[op]; ok {
		return b
	}
	name := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, op)
	path := filepath.Join(t.dir, name+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		logger.Warn("telemetry_open_failed", "path", path, "error", err)
		return nil
	}
	b := bufio.NewWriter(f)
	t.files[op] = f
	t.buffers[op] = b
	return b
}

// Close stops the writer after draining queued records.
func (t *Telemetry) Close() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
		t.wg.Wait()
	})
}
