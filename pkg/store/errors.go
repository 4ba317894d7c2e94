package store

import "errors"

var (
	ErrNotFound = errors.New("store: not found")
	ErrExists   = errors.New("store: already exists")
	// ErrConflict reports a write whose expected revision is stale.
	ErrConflict = errors.New("store: revision conflict")
	ErrClosed   = errors.New("store: database not open")
)

// IsNotFound reports whether err is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
