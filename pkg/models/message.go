package models

import (
	"time"

	"chatzalo/pkg/utils"
)

type MessageStatus string

const (
	StatusSent MessageStatus = "sent"
	StatusRead MessageStatus = "read"
)

// Reaction is one reactor's active reaction on a message.
type Reaction struct {
	ReactorEmail string    `json:"reactorEmail"`
	Symbol       string    `json:"symbol"`
	At           time.Time `json:"at"`
}

// Message is one element of a conversation or group message list.
type Message struct {
	ID            string         `json:"id"`
	SenderEmail   string         `json:"senderEmail"`
	ReceiverEmail string         `json:"receiverEmail,omitempty"`
	GroupID       string         `json:"groupId,omitempty"`
	Content       MessageContent `json:"content"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	Status        MessageStatus  `json:"status"`
	Recalled      bool           `json:"recalled"`
	// HiddenFor holds the emails that soft-deleted this message.
	HiddenFor []string   `json:"hiddenFor,omitempty"`
	Reactions []Reaction `json:"reactions,omitempty"`

	Forwarded           bool   `json:"forwarded,omitempty"`
	OriginalMessageID   string `json:"originalMessageId,omitempty"`
	OriginalOwner       string `json:"originalOwner,omitempty"`
	OriginalSenderEmail string `json:"originalSenderEmail,omitempty"`
}

func (m *Message) IsHiddenFor(email string) bool {
	return utils.Contains(m.HiddenFor, email)
}

// HideFor adds email to the hidden set and reports whether it was added.
func (m *Message) HideFor(email string) bool {
	var changed bool
	m.HiddenFor, changed = utils.AddUnique(m.HiddenFor, email)
	return changed
}

// ReactionOf returns the active reaction of reactor, if any.
func (m *Message) ReactionOf(reactor string) (Reaction, bool) {
	for _, r := range m.Reactions {
		if r.ReactorEmail == reactor {
			return r, true
		}
	}
	return Reaction{}, false
}

// ToggleReaction removes reactor's reaction when it equals symbol; otherwise
// it replaces any reaction reactor had with symbol. Reports whether symbol is
// active afterwards.
func (m *Message) ToggleReaction(reactor, symbol string, at time.Time) bool {
	prev, had := m.ReactionOf(reactor)
	kept := m.Reactions[:0:0]
	for _, r := range m.Reactions {
		if r.ReactorEmail != reactor {
			kept = append(kept, r)
		}
	}
	if had && prev.Symbol == symbol {
		m.Reactions = kept
		return false
	}
	m.Reactions = append(kept, Reaction{ReactorEmail: reactor, Symbol: symbol, At: at})
	return true
}

// Clone returns a deep copy so callers can mutate without aliasing stored lists.
func (m Message) Clone() Message {
	out := m
	if m.HiddenFor != nil {
		out.HiddenFor = append([]string(nil), m.HiddenFor...)
	}
	if m.Reactions != nil {
		out.Reactions = append([]Reaction(nil), m.Reactions...)
	}
	return out
}
