package store

import (
	"encoding/json"
	"fmt"

	"chatzalo/pkg/metrics"
	"chatzalo/pkg/models"
)

// MessageList is a snapshot of the message list owned by a conversation or
// group, along with the revision it was read at.
type MessageList struct {
	Owner    models.Owner
	Messages []models.Message
	Rev      uint64

	// exactly one is set, matching Owner.Kind
	Conversation *models.Conversation
	Group        *models.Group
}

// Participants returns who may read the list: conversation participants or
// group members.
func (l *MessageList) Participants() []string {
	if l.Group != nil {
		return l.Group.Members
	}
	return l.Conversation.Participants
}

// CanRead reports whether email participates in the owner.
func (l *MessageList) CanRead(email string) bool {
	if l.Group != nil {
		return l.Group.IsMember(email)
	}
	return l.Conversation.HasParticipant(email)
}

// Index returns the position of msgID in the list, or -1.
func (l *MessageList) Index(msgID string) int {
	for i := range l.Messages {
		if l.Messages[i].ID == msgID {
			return i
		}
	}
	return -1
}

// LoadMessages fetches the owner's record. Tombstoned groups read as
// ErrNotFound.
func (s *Store) LoadMessages(owner models.Owner) (*MessageList, error) {
	tr := metrics.Track("store.load_messages")
	defer tr.Finish()

	switch owner.Kind {
	case models.OwnerConversation:
		c, err := s.GetConversation(owner.ID)
		if err != nil {
			return nil, err
		}
		return &MessageList{Owner: owner, Messages: c.Messages, Rev: c.Rev, Conversation: c}, nil
	case models.OwnerGroup:
		g, err := s.GetGroup(owner.ID)
		if err != nil {
			return nil, err
		}
		if g.Deleted() {
			return nil, ErrNotFound
		}
		return &MessageList{Owner: owner, Messages: g.Messages, Rev: g.Rev, Group: g}, nil
	default:
		return nil, fmt.Errorf("unknown owner kind %q", owner.Kind)
	}
}

// LocateMessage resolves a message id to the owner holding it.
func (s *Store) LocateMessage(msgID string) (models.Owner, error) {
	b, err := s.get(GenMessageIndexKey(msgID))
	if err != nil {
		return models.Owner{}, err
	}
	return models.ParseOwner(string(b))
}

// AppendMessage appends msg to the owner's list in one batch together with
// its index entry. A missing conversation is created from the message's
// sender and receiver; a missing group is ErrNotFound. Message ids must be
// unique system-wide (ErrExists otherwise). Returns the new revision.
func (s *Store) AppendMessage(owner models.Owner, msg models.Message) (uint64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	tr := metrics.Track("store.append_message")
	defer tr.Finish()

	s.mu.Lock()
	defer s.mu.Unlock()

	idxKey := GenMessageIndexKey(msg.ID)
	taken, err := s.has(idxKey)
	if err != nil {
		return 0, err
	}
	if taken {
		return 0, fmt.Errorf("message %s: %w", msg.ID, ErrExists)
	}

	var (
		recordKey string
		record    any
		rev       uint64
	)
	switch owner.Kind {
	case models.OwnerConversation:
		c, err := s.GetConversation(owner.ID)
		if IsNotFound(err) {
			if models.ConversationID(msg.SenderEmail, msg.ReceiverEmail) != owner.ID {
				return 0, fmt.Errorf("message %s does not belong to conversation %s", msg.ID, owner.ID)
			}
			c = models.NewConversation(msg.SenderEmail, msg.ReceiverEmail, s.now())
		} else if err != nil {
			return 0, err
		}
		c.Messages = append(c.Messages, msg)
		c.Rev++
		c.UpdatedAt = msg.CreatedAt
		recordKey, record, rev = GenConversationKey(c.ID), c, c.Rev
	case models.OwnerGroup:
		g, err := s.GetGroup(owner.ID)
		if err != nil {
			return 0, err
		}
		if g.Deleted() {
			return 0, ErrNotFound
		}
		g.Messages = append(g.Messages, msg)
		g.Touch(msg)
		g.Rev++
		recordKey, record, rev = GenGroupKey(g.ID), g, g.Rev
	default:
		return 0, fmt.Errorf("unknown owner kind %q", owner.Kind)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", recordKey, err)
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set([]byte(recordKey), data, nil); err != nil {
		return 0, err
	}
	if err := b.Set([]byte(idxKey), []byte(owner.String()), nil); err != nil {
		return 0, err
	}
	if err := s.apply(b); err != nil {
		return 0, err
	}
	return rev, nil
}

// ReplaceMessages overwrites the owner's whole list when the stored revision
// equals expectedRev; otherwise it fails with ErrConflict. Returns the new
// revision.
func (s *Store) ReplaceMessages(owner models.Owner, expectedRev uint64, msgs []models.Message) (uint64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	tr := metrics.Track("store.replace_messages")
	defer tr.Finish()

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.LoadMessages(owner)
	if err != nil {
		return 0, err
	}
	if cur.Rev != expectedRev {
		return 0, fmt.Errorf("%s at rev %d, expected %d: %w", owner, cur.Rev, expectedRev, ErrConflict)
	}

	var (
		recordKey string
		record    any
		rev       = cur.Rev + 1
	)
	if cur.Group != nil {
		cur.Group.Messages = msgs
		cur.Group.Rev = rev
		cur.Group.RefreshPreview()
		recordKey, record = GenGroupKey(owner.ID), cur.Group
	} else {
		cur.Conversation.Messages = msgs
		cur.Conversation.Rev = rev
		cur.Conversation.UpdatedAt = s.now()
		recordKey, record = GenConversationKey(owner.ID), cur.Conversation
	}
	data, err := json.Marshal(record)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", recordKey, err)
	}
	if err := s.db.Set([]byte(recordKey), data, s.writeOpt(true)); err != nil {
		return 0, err
	}
	return rev, nil
}
