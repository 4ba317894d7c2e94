package models

import "time"

// Conversation is the 1:1 message list between two users.
type Conversation struct {
	ID           string    `json:"id"`
	Participants []string  `json:"participants"`
	Messages     []Message `json:"messages"`
	// Rev increments on every write and guards whole-list replaces.
	Rev       uint64    `json:"rev"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func NewConversation(a, b string, now time.Time) *Conversation {
	return &Conversation{
		ID:           ConversationID(a, b),
		Participants: []string{a, b},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (c *Conversation) HasParticipant(email string) bool {
	for _, p := range c.Participants {
		if p == email {
			return true
		}
	}
	return false
}

// Peer returns the participant that is not email.
func (c *Conversation) Peer(email string) string {
	for _, p := range c.Participants {
		if p != email {
			return p
		}
	}
	return email
}
