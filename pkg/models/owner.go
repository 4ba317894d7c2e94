package models

import (
	"fmt"
	"sort"
	"strings"
)

// OwnerKind distinguishes the two records that own message lists.
type OwnerKind string

const (
	OwnerConversation OwnerKind = "c"
	OwnerGroup        OwnerKind = "g"
)

// Owner addresses a conversation or group message list.
type Owner struct {
	Kind OwnerKind `json:"kind"`
	ID   string    `json:"id"`
}

// ConversationID derives the id of the 1:1 conversation between a and b. The
// result does not depend on argument order.
func ConversationID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0] + "_" + pair[1]
}

func ConversationOwner(a, b string) Owner {
	return Owner{Kind: OwnerConversation, ID: ConversationID(a, b)}
}

func GroupOwner(groupID string) Owner {
	return Owner{Kind: OwnerGroup, ID: groupID}
}

func (o Owner) IsGroup() bool { return o.Kind == OwnerGroup }

// String renders the owner as "<kind>:<id>", which is also its storage key.
func (o Owner) String() string {
	return string(o.Kind) + ":" + o.ID
}

func ParseOwner(s string) (Owner, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return Owner{}, fmt.Errorf("invalid owner %q", s)
	}
	switch OwnerKind(kind) {
	case OwnerConversation, OwnerGroup:
		return Owner{Kind: OwnerKind(kind), ID: id}, nil
	default:
		return Owner{}, fmt.Errorf("invalid owner kind %q", kind)
	}
}
