package store

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"chatzalo/pkg/logger"
	"chatzalo/pkg/metrics"
	"chatzalo/pkg/timeutil"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// Options tunes Open. The zero value opens an on-disk database.
type Options struct {
	// FS overrides the filesystem, e.g. vfs.NewMem() in tests.
	FS         vfs.FS
	DisableWAL bool
	Clock      timeutil.Clock
}

// Store is the pebble-backed persistence service for users, conversations,
// groups and the message-location index.
type Store struct {
	db          *pebble.DB
	path        string
	walDisabled bool
	now         timeutil.Clock

	// mu serializes read-modify-write sequences so revision checks and
	// index updates are atomic with respect to each other.
	mu sync.Mutex
}

// opens/creates pebble DB at path
func Open(path string, opts Options) (*Store, error) {
	popts := &pebble.Options{DisableWAL: opts.DisableWAL}
	if opts.FS != nil {
		popts.FS = opts.FS
	} else if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	if opts.DisableWAL {
		logger.Warn("durability_disabled", "durability", "no WAL enabled")
	}
	db, err := pebble.Open(path, popts)
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	return &Store{db: db, path: path, walDisabled: opts.DisableWAL, now: opts.Clock.OrNow()}, nil
}

// OpenMem opens a throwaway in-memory store.
func OpenMem() (*Store, error) {
	return Open("mem", Options{FS: vfs.NewMem()})
}

// closes opened pebble DB
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	s.db = nil
	return nil
}

// returns true if DB is opened
func (s *Store) Ready() bool {
	return s != nil && s.db != nil
}

func (s *Store) Path() string { return s.path }

// DB exposes the underlying pebble handle so sibling stores (blobs) can
// share one database.
func (s *Store) DB() *pebble.DB { return s.db }

// chooses sync/no-sync WriteOptions, always disables sync if WAL disabled
func (s *Store) writeOpt(requestSync bool) *pebble.WriteOptions {
	if requestSync && !s.walDisabled {
		return pebble.Sync
	}
	return pebble.NoSync
}

func (s *Store) checkOpen() error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	return nil
}

// get returns a copy of the value at key.
func (s *Store) get(key string) ([]byte, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	v, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		logger.Error("get_key_failed", "key", key, "error", err)
		return nil, err
	}
	defer closer.Close()
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *Store) has(key string) (bool, error) {
	_, err := s.get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// applies batch with fsync
func (s *Store) apply(b *pebble.Batch) error {
	if err := s.db.Apply(b, s.writeOpt(true)); err != nil {
		logger.Error("pebble_apply_batch_failed", "error", err)
		return err
	}
	return nil
}

// iterPrefix calls fn for every key with prefix, in key order. Stops early
// when fn returns false.
func (s *Store) iterPrefix(prefix string, fn func(key, value []byte) (bool, error)) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	pfx := []byte(prefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: pfx,
		UpperBound: prefixUpperBound(pfx),
	})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		cont, err := fn(iter.Key(), iter.Value())
		if err != nil {
			return err
		}
		if !cont {
			break
		}
	}
	return iter.Error()
}

// lists all keys for prefix; returns all if prefix empty
func (s *Store) ListKeys(prefix string) ([]string, error) {
	tr := metrics.Track("store.list_keys")
	defer tr.Finish()

	var out []string
	err := s.iterPrefix(prefix, func(k, _ []byte) (bool, error) {
		out = append(out, string(k))
		return true, nil
	})
	return out, err
}

// CountPrefix returns how many keys start with prefix.
func (s *Store) CountPrefix(prefix string) (int, error) {
	n := 0
	err := s.iterPrefix(prefix, func(_, _ []byte) (bool, error) {
		n++
		return true, nil
	})
	return n, err
}

func prefixUpperBound(prefix []byte) []byte {
	if len(prefix) == 0 {
		return nil
	}
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
