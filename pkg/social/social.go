// Package social owns the friend graph and group administration. Message
// list edits go through the coordinator; this package edits the records
// around them and emits the matching notices.
package social

import (
	"chatzalo/pkg/coordinator"
	"chatzalo/pkg/logger"
	"chatzalo/pkg/metrics"
	"chatzalo/pkg/models"
	"chatzalo/pkg/store"
	"chatzalo/pkg/store/locks"
	"chatzalo/pkg/timeutil"
	"chatzalo/pkg/utils"
)

// Notifier is the subset of the event router this package emits through.
type Notifier interface {
	EmitToUser(userID, event string, payload any) int
	EmitToUsers(userIDs []string, event string, payload any, excludeConnID string) int
	EmitToRoom(roomID, event string, payload any, excludeConnID string) int
	EvictFromRoom(roomID, userID string) int
}

type Service struct {
	store  *store.Store
	locks  *locks.Keyed
	coord  *coordinator.Coordinator
	notify Notifier
	now    timeutil.Clock
}

// New builds the service. lk must be the same lock set the coordinator was
// built with.
func New(st *store.Store, lk *locks.Keyed, coord *coordinator.Coordinator, n Notifier, clock timeutil.Clock) *Service {
	return &Service{store: st, locks: lk, coord: coord, notify: n, now: clock.OrNow()}
}

func userLockKey(email string) string { return store.GenUserKey(email) }

func (s *Service) observe(op string, err error) error {
	metrics.Mutations.WithLabelValues(op, coordinator.Code(err)).Inc()
	if err != nil && coordinator.Code(err) == coordinator.CodePersistence {
		logger.Error("social_op_failed", "op", op, "error", err)
	}
	return err
}

func invalid(field, reason string) error {
	return &coordinator.ValidationError{Field: field, Reason: reason}
}

func persist(op string, err error) error {
	if err == nil {
		return nil
	}
	return &coordinator.PersistenceError{Op: op, Err: err}
}

// loadUser maps a missing user to coordinator.ErrNotFound.
func (s *Service) loadUser(email string) (*models.User, error) {
	u, err := s.store.GetUser(email)
	if store.IsNotFound(err) {
		return nil, coordinator.ErrNotFound
	}
	if err != nil {
		return nil, persist("load_user", err)
	}
	return u, nil
}

func normalizeTarget(field, email string) (string, error) {
	email = utils.NormalizeEmail(email)
	if email == "" {
		return "", invalid(field, "is required")
	}
	return email, nil
}
