package store

import (
	"encoding/json"
	"fmt"

	"chatzalo/pkg/metrics"
	"chatzalo/pkg/models"

	"github.com/cockroachdb/pebble"
)

// GetConversation loads the conversation by id.
func (s *Store) GetConversation(id string) (*models.Conversation, error) {
	tr := metrics.Track("store.get_conversation")
	defer tr.Finish()

	b, err := s.get(GenConversationKey(id))
	if err != nil {
		return nil, err
	}
	var c models.Conversation
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("decode conversation %s: %w", id, err)
	}
	return &c, nil
}

// ListConversationsFor returns the conversations email participates in,
// without their message lists.
func (s *Store) ListConversationsFor(email string) ([]*models.Conversation, error) {
	tr := metrics.Track("store.list_conversations")
	defer tr.Finish()

	var out []*models.Conversation
	err := s.iterPrefix(ConversationPrefix, func(k, v []byte) (bool, error) {
		var c models.Conversation
		if err := json.Unmarshal(v, &c); err != nil {
			return false, fmt.Errorf("decode %s: %w", k, err)
		}
		if c.HasParticipant(email) {
			c.Messages = nil
			out = append(out, &c)
		}
		return true, nil
	})
	return out, err
}

// DeleteConversation removes the conversation and the index entries of its
// messages. Missing conversations are not an error.
func (s *Store) DeleteConversation(id string) (int, error) {
	tr := metrics.Track("store.delete_conversation")
	defer tr.Finish()

	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.GetConversation(id)
	if IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := stageDelete(b, GenConversationKey(id), c.Messages); err != nil {
		return 0, err
	}
	if err := s.apply(b); err != nil {
		return 0, err
	}
	return len(c.Messages), nil
}

func stageDelete(b *pebble.Batch, recordKey string, msgs []models.Message) error {
	if err := b.Delete([]byte(recordKey), nil); err != nil {
		return err
	}
	for _, m := range msgs {
		if err := b.Delete([]byte(GenMessageIndexKey(m.ID)), nil); err != nil {
			return err
		}
	}
	return nil
}
