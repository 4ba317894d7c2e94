package events

import "chatzalo/pkg/models"

// MessagePayload carries a new or forwarded message. newMessage sets
// ConversationID and SenderEmail; newGroupMessage sets GroupID.
type MessagePayload struct {
	ConversationID string         `json:"conversationId,omitempty"`
	GroupID        string         `json:"groupId,omitempty"`
	SenderEmail    string         `json:"senderEmail,omitempty"`
	Message        models.Message `json:"message"`
}

// MessageRef identifies a message and where it lives.
type MessageRef struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId,omitempty"`
	GroupID        string `json:"groupId,omitempty"`
}

func RefFor(owner models.Owner, messageID string) MessageRef {
	ref := MessageRef{MessageID: messageID}
	if owner.IsGroup() {
		ref.GroupID = owner.ID
	} else {
		ref.ConversationID = owner.ID
	}
	return ref
}

type RecallPayload struct {
	MessageRef
	RecalledBy string `json:"recalledBy"`
}

type ReactionPayload struct {
	MessageRef
	ReactorEmail string            `json:"reactorEmail"`
	Reaction     string            `json:"reaction"`
	Active       bool              `json:"active"`
	Reactions    []models.Reaction `json:"reactions"`
}

type ReadPayload struct {
	MessageRef
	ReaderEmail string `json:"readerEmail"`
}

// AckPayload confirms a client request on the originating connection.
type AckPayload struct {
	MessageRef
	Message *models.Message `json:"message,omitempty"`
}

type TypingPayload struct {
	SenderEmail string `json:"senderEmail"`
}

type StatusPayload struct {
	Email  string `json:"email"`
	Online bool   `json:"online"`
}

type InitialStatusesPayload struct {
	Friends       []string `json:"friends"`
	OnlineFriends []string `json:"onlineFriends"`
}

type GroupSystemPayload struct {
	GroupID string         `json:"groupId"`
	Message models.Message `json:"message"`
}

type GroupPayload struct {
	Group models.Group `json:"group"`
}

type FriendRequestPayload struct {
	Type   string         `json:"type"`
	Sender models.Profile `json:"sender"`
}

type WithdrawnPayload struct {
	SenderEmail string `json:"senderEmail"`
}

// FriendListPayload is sent as friendListUpdate; Type is "newFriend" or
// "profileUpdated" (with Friend) or "unfriend" (with Email).
type FriendListPayload struct {
	Type   string          `json:"type"`
	Friend *models.Profile `json:"friend,omitempty"`
	Email  string          `json:"email,omitempty"`
}

type CallPayload struct {
	FromUserID string `json:"fromUserId"`
	ToUserID   string `json:"toUserId,omitempty"`
	RoomID     string `json:"roomId,omitempty"`
}

type ErrorPayload struct {
	Event   string `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
