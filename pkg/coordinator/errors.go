package coordinator

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrMessageNotFound     = errors.New("message not found")
	ErrForbidden           = errors.New("forbidden")
	ErrRecallWindowExpired = errors.New("recall window expired")
	ErrValidation          = errors.New("validation failed")
	ErrPersistence         = errors.New("persistence failure")
)

// Result codes shared by realtime error replies and metrics.
const (
	CodeOK                  = "ok"
	CodeNotFound            = "not_found"
	CodeMessageNotFound     = "message_not_found"
	CodeForbidden           = "forbidden"
	CodeRecallWindowExpired = "recall_window_expired"
	CodeValidation          = "validation_failed"
	CodePersistence         = "persistence_failure"
)

// ValidationError names the offending input. It matches ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// PersistenceError wraps a store failure. It matches ErrPersistence and
// unwraps to the store error.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// Code maps an error from this package to its wire code.
func Code(err error) string {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrMessageNotFound):
		return CodeMessageNotFound
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrRecallWindowExpired):
		return CodeRecallWindowExpired
	case errors.Is(err, ErrValidation):
		return CodeValidation
	default:
		return CodePersistence
	}
}
