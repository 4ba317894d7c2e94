package coordinator

import (
	"context"
	"errors"
	"strings"

	"chatzalo/pkg/events"
	"chatzalo/pkg/models"
	"chatzalo/pkg/store"
	"chatzalo/pkg/utils"
)

// Append adds msg to the end of owner's list. For conversations the list is
// created on first use and msg.ReceiverEmail names the peer. The message id
// is caller-supplied (generated when empty) and must be unique.
func (c *Coordinator) Append(ctx context.Context, actor Actor, owner models.Owner, msg models.Message) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	if msg.Content.Kind() == models.KindSystem {
		return models.Message{}, c.observe("append", invalid("content", "system messages cannot be sent by clients"))
	}
	msg.Forwarded = false
	msg.OriginalMessageID, msg.OriginalOwner, msg.OriginalSenderEmail = "", "", ""
	out, err := c.appendMessage(actor, owner, msg, c.emitNew(actor))
	return out, c.observe("append", err)
}

// AppendSystem records a membership event (join, leave, ...) in a group and
// emits it under event to the room, excluding the actor's connection.
func (c *Coordinator) AppendSystem(ctx context.Context, actor Actor, groupID string, action models.SystemAction, subject, event string) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	msg := models.Message{Content: models.System(action, subject)}
	out, err := c.appendMessage(actor, models.GroupOwner(groupID), msg, func(m models.Message) {
		c.notify.EmitToRoom(groupID, event, events.GroupSystemPayload{GroupID: groupID, Message: m}, actor.ConnID)
	})
	return out, c.observe("append_system", err)
}

func (c *Coordinator) validateAppend(actor Actor, owner models.Owner, msg models.Message) error {
	if actor.Email == "" {
		return invalid("sender", "is required")
	}
	if err := msg.Content.Validate(); err != nil {
		return invalid("content", strings.TrimPrefix(err.Error(), models.ErrInvalidContent.Error()+": "))
	}
	if tc, ok := msg.Content.Content.(models.TextContent); ok && len(tc.Body) > c.maxText {
		return invalid("content", "text is too long")
	}
	if len(msg.ID) > maxMessageIDLen {
		return invalid("id", "is too long")
	}
	switch owner.Kind {
	case models.OwnerConversation:
		if msg.ReceiverEmail == "" {
			return invalid("receiverEmail", "is required")
		}
		if msg.ReceiverEmail == actor.Email {
			return invalid("receiverEmail", "must differ from sender")
		}
		if models.ConversationID(actor.Email, msg.ReceiverEmail) != owner.ID {
			return invalid("receiverEmail", "does not match conversation")
		}
	case models.OwnerGroup:
		if owner.ID == "" {
			return invalid("groupId", "is required")
		}
	default:
		return invalid("owner", "unknown kind")
	}
	return nil
}

func (c *Coordinator) appendMessage(actor Actor, owner models.Owner, msg models.Message, emit func(models.Message)) (models.Message, error) {
	if err := c.validateAppend(actor, owner, msg); err != nil {
		return models.Message{}, err
	}

	now := c.now()
	if msg.ID == "" {
		msg.ID = utils.GenID()
	}
	msg.SenderEmail = actor.Email
	msg.CreatedAt = now
	msg.UpdatedAt = now
	msg.Status = models.StatusSent
	msg.Recalled = false
	msg.HiddenFor = nil
	msg.Reactions = nil
	if owner.IsGroup() {
		msg.GroupID = owner.ID
		msg.ReceiverEmail = ""
	}

	release := c.locks.Lock(owner.String())
	defer release()

	if owner.IsGroup() {
		g, err := c.store.GetGroup(owner.ID)
		if store.IsNotFound(err) || (err == nil && g.Deleted()) {
			return models.Message{}, ErrNotFound
		}
		if err != nil {
			return models.Message{}, persist("append", err)
		}
		if !g.IsMember(actor.Email) {
			return models.Message{}, ErrForbidden
		}
	} else {
		ok, err := c.store.UserExists(msg.ReceiverEmail)
		if err != nil {
			return models.Message{}, persist("append", err)
		}
		if !ok {
			return models.Message{}, ErrNotFound
		}
	}

	if _, err := c.store.AppendMessage(owner, msg); err != nil {
		switch {
		case errors.Is(err, store.ErrExists):
			return models.Message{}, invalid("id", "already exists")
		case store.IsNotFound(err):
			return models.Message{}, ErrNotFound
		default:
			return models.Message{}, persist("append", err)
		}
	}
	if emit != nil {
		emit(msg)
	}
	return msg, nil
}

// emitNew fans a freshly appended message out: to the peer and the sender's
// other devices for conversations, to the whole room for groups.
func (c *Coordinator) emitNew(actor Actor) func(models.Message) {
	return func(m models.Message) {
		if m.GroupID != "" {
			c.notify.EmitToRoom(m.GroupID, events.NewGroupMessage, events.MessagePayload{GroupID: m.GroupID, Message: m}, "")
			return
		}
		p := events.MessagePayload{
			ConversationID: models.ConversationID(m.SenderEmail, m.ReceiverEmail),
			SenderEmail:    m.SenderEmail,
			Message:        m,
		}
		c.notify.EmitToUserExcept(m.ReceiverEmail, events.NewMessage, p, "")
		c.notify.EmitToUserExcept(m.SenderEmail, events.NewMessage, p, actor.ConnID)
	}
}

// emitToOwner sends a change notice to everyone watching the owner except
// the originating connection.
func (c *Coordinator) emitToOwner(list *store.MessageList, actor Actor, convEvent, groupEvent string, payload any) {
	if list.Group != nil {
		c.notify.EmitToRoom(list.Owner.ID, groupEvent, payload, actor.ConnID)
		return
	}
	for _, p := range list.Conversation.Participants {
		c.notify.EmitToUserExcept(p, convEvent, payload, actor.ConnID)
	}
}

// Recall marks a message recalled. The sender may recall within the recall
// window; a group admin may recall any message at any time. Content stays
// stored.
func (c *Coordinator) Recall(ctx context.Context, actor Actor, messageID string) (models.Message, models.Owner, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, models.Owner{}, err
	}
	m, owner, err := c.mutateMessage("recall", actor, messageID,
		func(list *store.MessageList, m *models.Message) (bool, error) {
			isAdmin := list.Group != nil && list.Group.IsAdmin(actor.Email)
			if !isAdmin {
				if m.SenderEmail != actor.Email {
					return false, ErrForbidden
				}
				if c.now().Sub(m.CreatedAt) > c.recallWindow {
					return false, ErrRecallWindowExpired
				}
			}
			if m.Recalled {
				return false, nil
			}
			m.Recalled = true
			return true, nil
		},
		func(list *store.MessageList, m models.Message) {
			p := events.RecallPayload{MessageRef: events.RefFor(list.Owner, m.ID), RecalledBy: actor.Email}
			c.emitToOwner(list, actor, events.MessageRecalled, events.RecallGroupMessage, p)
		})
	return m, owner, c.observe("recall", err)
}

// React toggles reactor's reaction: the same symbol twice removes it, a
// different symbol replaces the previous one. Returns whether symbol is now
// active.
func (c *Coordinator) React(ctx context.Context, actor Actor, messageID, symbol string) (models.Message, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, false, err
	}
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return models.Message{}, false, c.observe("react", invalid("reaction", "is required"))
	}
	var active bool
	m, _, err := c.mutateMessage("react", actor, messageID,
		func(list *store.MessageList, m *models.Message) (bool, error) {
			if m.IsHiddenFor(actor.Email) {
				return false, ErrMessageNotFound
			}
			active = m.ToggleReaction(actor.Email, symbol, c.now())
			return true, nil
		},
		func(list *store.MessageList, m models.Message) {
			p := events.ReactionPayload{
				MessageRef:   events.RefFor(list.Owner, m.ID),
				ReactorEmail: actor.Email,
				Reaction:     symbol,
				Active:       active,
				Reactions:    m.Reactions,
			}
			c.emitToOwner(list, actor, events.MessageReaction, events.GroupMessageReaction, p)
		})
	return m, active, c.observe("react", err)
}

// SoftDeleteForUser hides a message for actor only. Repeating it is a no-op.
func (c *Coordinator) SoftDeleteForUser(ctx context.Context, actor Actor, messageID string) (models.Owner, error) {
	if err := ctx.Err(); err != nil {
		return models.Owner{}, err
	}
	_, owner, err := c.mutateMessage("soft_delete", actor, messageID,
		func(_ *store.MessageList, m *models.Message) (bool, error) {
			return m.HideFor(actor.Email), nil
		},
		func(list *store.MessageList, m models.Message) {
			c.notify.EmitToUserExcept(actor.Email, events.MessageDeleted, events.RefFor(list.Owner, m.ID), actor.ConnID)
		})
	return owner, c.observe("soft_delete", err)
}

// MarkRead flags a conversation message as read by its receiver and tells
// the sender.
func (c *Coordinator) MarkRead(ctx context.Context, actor Actor, messageID string) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	m, _, err := c.mutateMessage("mark_read", actor, messageID,
		func(list *store.MessageList, m *models.Message) (bool, error) {
			if list.Group != nil {
				return false, invalid("messageId", "read receipts apply to conversations only")
			}
			if m.ReceiverEmail != actor.Email {
				return false, ErrForbidden
			}
			if m.Status == models.StatusRead {
				return false, nil
			}
			m.Status = models.StatusRead
			return true, nil
		},
		func(list *store.MessageList, m models.Message) {
			p := events.ReadPayload{MessageRef: events.RefFor(list.Owner, m.ID), ReaderEmail: actor.Email}
			c.notify.EmitToUserExcept(m.SenderEmail, events.MessageRead, p, "")
		})
	return m, c.observe("mark_read", err)
}

// ForwardTarget names where a forwarded copy goes: a group or a user's
// conversation with the forwarder. Exactly one must be set.
type ForwardTarget struct {
	GroupID string
	Email   string
}

func (t ForwardTarget) owner(actor string) (models.Owner, error) {
	switch {
	case t.GroupID != "" && t.Email != "":
		return models.Owner{}, invalid("target", "set either a group or an email")
	case t.GroupID != "":
		return models.GroupOwner(t.GroupID), nil
	case t.Email != "":
		return models.ConversationOwner(actor, t.Email), nil
	default:
		return models.Owner{}, invalid("target", "is required")
	}
}

// Forward copies a message the actor can see into target under a new id,
// stamping where it came from. Recalled sources are refused.
func (c *Coordinator) Forward(ctx context.Context, actor Actor, messageID string, target ForwardTarget) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	out, err := c.forward(actor, messageID, target)
	return out, c.observe("forward", err)
}

func (c *Coordinator) forward(actor Actor, messageID string, target ForwardTarget) (models.Message, error) {
	targetOwner, err := target.owner(actor.Email)
	if err != nil {
		return models.Message{}, err
	}
	src, srcOwner, err := c.snapshot(actor, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if src.Recalled {
		return models.Message{}, ErrForbidden
	}

	msg := models.Message{
		Content:             src.Content,
		ReceiverEmail:       target.Email,
		Forwarded:           true,
		OriginalMessageID:   src.ID,
		OriginalOwner:       srcOwner.String(),
		OriginalSenderEmail: src.SenderEmail,
	}
	return c.appendMessage(actor, targetOwner, msg, c.emitNew(actor))
}

// snapshot reads one message visible to actor under its owner's lock.
func (c *Coordinator) snapshot(actor Actor, messageID string) (models.Message, models.Owner, error) {
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
	m := list.Messages[idx].Clone()
	if m.IsHiddenFor(actor.Email) {
		return models.Message{}, owner, ErrMessageNotFound
	}
	return m, owner, nil
}

// HideAllForUser soft-deletes every message of owner for actor and returns
// how many were newly hidden.
func (c *Coordinator) HideAllForUser(ctx context.Context, actor Actor, owner models.Owner) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := c.hideAll(actor, owner)
	return n, c.observe("hide_all", err)
}

func (c *Coordinator) hideAll(actor Actor, owner models.Owner) (int, error) {
	release := c.locks.Lock(owner.String())
	defer release()

	list, err := c.load(owner)
	if err != nil {
		return 0, err
	}
	if !list.CanRead(actor.Email) {
		return 0, ErrForbidden
	}
	msgs := cloneMessages(list.Messages)
	n := 0
	for i := range msgs {
		if msgs[i].HideFor(actor.Email) {
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return n, c.save("hide_all", list, msgs)
}

// PurgeConversation permanently removes the conversation between a and b.
// Used when a friendship ends. Returns the number of messages removed.
func (c *Coordinator) PurgeConversation(ctx context.Context, a, b string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	owner := models.ConversationOwner(a, b)
	release := c.locks.Lock(owner.String())
	defer release()
	n, err := c.store.DeleteConversation(owner.ID)
	return n, c.observe("purge_conversation", persist("purge_conversation", err))
}
