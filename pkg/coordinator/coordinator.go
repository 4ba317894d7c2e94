// Package coordinator applies message-level mutations to the lists owned by
// conversations and groups and fans out the results.
//
// Every mutation follows one shape: lock the owner, fetch its record, locate
// the message, mutate a copy of the list, write the whole list back guarded
// by the record revision, emit, unlock. Holding the per-owner lock across
// the emit keeps fan-out in mutation order for a given owner.
package coordinator

import (
	"context"
	"errors"
	"sort"
	"time"

	"chatzalo/pkg/logger"
	"chatzalo/pkg/metrics"
	"chatzalo/pkg/models"
	"chatzalo/pkg/store"
	"chatzalo/pkg/store/locks"
	"chatzalo/pkg/timeutil"
)

const (
	DefaultRecallWindow = 2 * time.Minute
	DefaultMaxTextBytes = 64 * 1024
	maxMessageIDLen     = 128
)

// Notifier is the fan-out surface the coordinator pushes results through.
type Notifier interface {
	EmitToUserExcept(userID, event string, payload any, excludeConnID string) int
	EmitToRoom(roomID, event string, payload any, excludeConnID string) int
}

type Options struct {
	RecallWindow time.Duration
	MaxTextBytes int
	Clock        timeutil.Clock
}

// Actor is who performs a mutation and, for realtime requests, the
// connection it came from (excluded from echo fan-out).
type Actor struct {
	Email  string
	ConnID string
}

type Coordinator struct {
	store  *store.Store
	locks  *locks.Keyed
	notify Notifier

	recallWindow time.Duration
	maxText      int
	now          timeutil.Clock
}

func New(st *store.Store, lk *locks.Keyed, n Notifier, opts Options) *Coordinator {
	if opts.RecallWindow <= 0 {
		opts.RecallWindow = DefaultRecallWindow
	}
	if opts.MaxTextBytes <= 0 {
		opts.MaxTextBytes = DefaultMaxTextBytes
	}
	return &Coordinator{
		store:        st,
		locks:        lk,
		notify:       n,
		recallWindow: opts.RecallWindow,
		maxText:      opts.MaxTextBytes,
		now:          opts.Clock.OrNow(),
	}
}

// LockOwner serializes with every mutation of owner. Used by group
// administration so metadata edits and message edits never interleave.
func (c *Coordinator) LockOwner(owner models.Owner) func() {
	return c.locks.Lock(owner.String())
}

func (c *Coordinator) observe(op string, err error) error {
	metrics.Mutations.WithLabelValues(op, Code(err)).Inc()
	if err != nil && errors.Is(err, ErrPersistence) {
		logger.Error("mutation_failed", "op", op, "error", err)
	}
	return err
}

func persist(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

func (c *Coordinator) locate(messageID string) (models.Owner, error) {
	if messageID == "" {
		return models.Owner{}, invalid("messageId", "is required")
	}
	owner, err := c.store.LocateMessage(messageID)
	if store.IsNotFound(err) {
		return models.Owner{}, ErrMessageNotFound
	}
	return owner, persist("locate", err)
}

func (c *Coordinator) load(owner models.Owner) (*store.MessageList, error) {
	list, err := c.store.LoadMessages(owner)
	if store.IsNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persist("load", err)
	}
	return list, nil
}

func (c *Coordinator) save(op string, list *store.MessageList, msgs []models.Message) error {
	rev, err := c.store.ReplaceMessages(list.Owner, list.Rev, msgs)
	if err != nil {
		return persist(op, err)
	}
	list.Messages = msgs
	list.Rev = rev
	return nil
}

func cloneMessages(msgs []models.Message) []models.Message {
	out := make([]models.Message, len(msgs))
	for i := range msgs {
		out[i] = msgs[i].Clone()
	}
	return out
}

// mutateMessage runs the shared mutation shape for messageID. fn edits m in
// place and reports whether anything changed; after runs only when the list
// was written, still under the owner lock.
func (c *Coordinator) mutateMessage(
	op string,
	actor Actor,
	messageID string,
	fn func(list *store.MessageList, m *models.Message) (bool, error),
	after func(list *store.MessageList, m models.Message),
) (models.Message, models.Owner, error) {
	owner, err := c.locate(messageID)
	if err != nil {
		return models.Message{}, owner, err
	}
	release := c.locks.Lock(owner.String())
	defer release()

	list, err := c.load(owner)
	if err != nil {
		return models.Message{}, owner, err
	}
	idx := list.Index(messageID)
	if idx < 0 {
		return models.Message{}, owner, ErrMessageNotFound
	}
	if !list.CanRead(actor.Email) {
		return models.Message{}, owner, ErrForbidden
	}

	msgs := cloneMessages(list.Messages)
	m := &msgs[idx]
	changed, err := fn(list, m)
	if err != nil {
		return models.Message{}, owner, err
	}
	if !changed {
		return *m, owner, nil
	}
	m.UpdatedAt = c.now()
	if err := c.save(op, list, msgs); err != nil {
		return models.Message{}, owner, err
	}
	if after != nil {
		after(list, *m)
	}
	return *m, owner, nil
}

// ReadListFiltered returns the owner's messages in creation order, without
// the ones viewer soft-deleted. Recalled messages are included; readers must
// suppress their content.
func (c *Coordinator) ReadListFiltered(ctx context.Context, owner models.Owner, viewer string) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	list, err := c.load(owner)
	if err != nil {
		return nil, err
	}
	if !list.CanRead(viewer) {
		return nil, ErrForbidden
	}
	out := make([]models.Message, 0, len(list.Messages))
	for i := range list.Messages {
		if list.Messages[i].IsHiddenFor(viewer) {
			continue
		}
		out = append(out, list.Messages[i].Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
