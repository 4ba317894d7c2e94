package models

import (
	"time"

	"chatzalo/pkg/utils"
)

// LastMessage is the denormalized preview kept on a group. A recalled
// message previews with empty content.
type LastMessage struct {
	Content     string    `json:"content"`
	SenderEmail string    `json:"senderEmail"`
	At          time.Time `json:"at"`
	Recalled    bool      `json:"recalled,omitempty"`
}

// PreviewOf builds the list preview for msg.
func PreviewOf(msg Message) *LastMessage {
	p := &LastMessage{SenderEmail: msg.SenderEmail, At: msg.CreatedAt, Recalled: msg.Recalled}
	if !msg.Recalled {
		p.Content = msg.Content.Summary()
	}
	return p
}

type Group struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	Description       string       `json:"description,omitempty"`
	Avatar            string       `json:"avatar,omitempty"`
	Creator           string       `json:"creator"`
	Members           []string     `json:"members"`
	Admins            []string     `json:"admins"`
	Deputies          []string     `json:"deputies,omitempty"`
	AllowMemberInvite bool         `json:"allowMemberInvite"`
	Messages          []Message    `json:"messages"`
	LastMessage       *LastMessage `json:"lastMessage,omitempty"`
	Rev               uint64       `json:"rev"`
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`
	// DeletedAt marks a tombstoned group awaiting purge.
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

func (g *Group) IsMember(email string) bool { return utils.Contains(g.Members, email) }
func (g *Group) IsAdmin(email string) bool  { return utils.Contains(g.Admins, email) }
func (g *Group) IsDeputy(email string) bool { return utils.Contains(g.Deputies, email) }
func (g *Group) Deleted() bool              { return g.DeletedAt != nil }

// CanInvite reports whether email may add members to the group.
func (g *Group) CanInvite(email string) bool {
	if g.IsAdmin(email) || g.IsDeputy(email) {
		return true
	}
	return g.AllowMemberInvite && g.IsMember(email)
}

// RemoveMember drops email from members and strips any role it held.
func (g *Group) RemoveMember(email string) bool {
	var changed bool
	g.Members, changed = utils.Remove(g.Members, email)
	g.Admins, _ = utils.Remove(g.Admins, email)
	g.Deputies, _ = utils.Remove(g.Deputies, email)
	return changed
}

// Touch records msg as the group's latest activity.
func (g *Group) Touch(msg Message) {
	g.LastMessage = PreviewOf(msg)
	g.UpdatedAt = msg.CreatedAt
}

// RefreshPreview rebuilds LastMessage from the stored list after an in-place
// change such as a recall. Activity time is left alone.
func (g *Group) RefreshPreview() {
	if len(g.Messages) == 0 {
		g.LastMessage = nil
		return
	}
	g.LastMessage = PreviewOf(g.Messages[len(g.Messages)-1])
}

// Summary is the group without its message list, used in listings.
func (g *Group) Summary() Group {
	out := *g
	out.Messages = nil
	return out
}
