package store

import (
	"github.com/cockroachdb/pebble"
)

// SystemPrefix namespaces bookkeeping keys such as the schema version.
const SystemPrefix = "sys:"

// GetSystem reads sys:<name>; ErrNotFound when unset.
func (s *Store) GetSystem(name string) (string, error) {
	v, err := s.get(SystemPrefix + name)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// PutSystem writes sys:<name> durably.
func (s *Store) PutSystem(name, value string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set([]byte(SystemPrefix+name), []byte(value), nil); err != nil {
		return err
	}
	return s.apply(b)
}

// DeleteSystem removes sys:<name>.
func (s *Store) DeleteSystem(name string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.Delete([]byte(SystemPrefix+name), pebble.Sync)
}
