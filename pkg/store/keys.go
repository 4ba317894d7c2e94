package store

import (
	"fmt"
	"strings"
)

const (
	// notation dictionary for key formats:
	// u   = user (by email)
	// c   = conversation
	// g   = group
	// idx = index
	// m   = message
	// All segments are separated by ":"

	UserKey         = "u:%s"     // u:<email>
	ConversationKey = "c:%s"     // c:<conversation_id>
	GroupKey        = "g:%s"     // g:<group_id>
	MessageIndexKey = "idx:m:%s" // idx:m:<message_id> -> owner ("c:<id>" or "g:<id>")

	UserPrefix         = "u:"
	ConversationPrefix = "c:"
	GroupPrefix        = "g:"
	MessageIndexPrefix = "idx:m:"
)

func GenUserKey(email string) string        { return fmt.Sprintf(UserKey, email) }
func GenConversationKey(id string) string    { return fmt.Sprintf(ConversationKey, id) }
func GenGroupKey(id string) string           { return fmt.Sprintf(GroupKey, id) }
func GenMessageIndexKey(msgID string) string { return fmt.Sprintf(MessageIndexKey, msgID) }

// KeyKind classifies a raw key by its prefix; used by inspection tooling.
func KeyKind(key string) string {
	switch {
	case strings.HasPrefix(key, MessageIndexPrefix):
		return "message_index"
	case strings.HasPrefix(key, UserPrefix):
		return "user"
	case strings.HasPrefix(key, ConversationPrefix):
		return "conversation"
	case strings.HasPrefix(key, GroupPrefix):
		return "group"
	case strings.HasPrefix(key, "b:"):
		return "blob"
	case strings.HasPrefix(key, SystemPrefix):
		return "system"
	default:
		return "other"
	}
}
