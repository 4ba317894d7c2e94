package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationIDIsSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"alice@example.com", "bob@example.com"},
		{"zed@example.com", "amy@example.com"},
		{"same@example.com", "same@example.com"},
	}
	for _, p := range pairs {
		assert.Equal(t, ConversationID(p[0], p[1]), ConversationID(p[1], p[0]))
	}
	assert.Equal(t, "alice@example.com_bob@example.com", ConversationID("bob@example.com", "alice@example.com"))
}

func TestOwnerRoundTrip(t *testing.T) {
	o := GroupOwner("g1")
	parsed, err := ParseOwner(o.String())
	require.NoError(t, err)
	assert.Equal(t, o, parsed)
	assert.True(t, parsed.IsGroup())

	_, err = ParseOwner("x:1")
	assert.Error(t, err)
	_, err = ParseOwner("c:")
	assert.Error(t, err)
}

func TestContentValidation(t *testing.T) {
	tests := []struct {
		name    string
		content MessageContent
		wantErr bool
	}{
		{name: "text", content: Text("hi")},
		{name: "blank text", content: Text("   "), wantErr: true},
		{name: "file", content: File("https://cdn/x.png", "image/png", 10, "x.png")},
		{name: "file without url", content: File("", "image/png", 10, ""), wantErr: true},
		{name: "file negative size", content: File("u", "image/png", -1, ""), wantErr: true},
		{name: "system", content: System(ActionJoin, "Alice")},
		{name: "system unknown", content: System("dance", "Alice"), wantErr: true},
		{name: "empty", content: MessageContent{}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.content.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidContent), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestContentWireShape(t *testing.T) {
	b, err := json.Marshal(File("https://cdn/a.pdf", "application/pdf", 42, "a.pdf"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"file","url":"https://cdn/a.pdf","mimeType":"application/pdf","size":42,"name":"a.pdf"}`, string(b))

	var mc MessageContent
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"system","action":"leave","subject":"Bob"}`), &mc))
	sys, ok := mc.Content.(SystemContent)
	require.True(t, ok)
	assert.Equal(t, ActionLeave, sys.Action)
	assert.Equal(t, "Bob leave", mc.Summary())

	assert.Error(t, json.Unmarshal([]byte(`{"kind":"sticker"}`), &mc))
}

func TestToggleReaction(t *testing.T) {
	now := time.Unix(100, 0)
	m := &Message{ID: "m1"}

	assert.True(t, m.ToggleReaction("a", "👍", now))
	assert.True(t, m.ToggleReaction("b", "❤️", now))
	// switching symbol replaces the previous one
	assert.True(t, m.ToggleReaction("a", "😂", now))
	r, ok := m.ReactionOf("a")
	require.True(t, ok)
	assert.Equal(t, "😂", r.Symbol)
	assert.Len(t, m.Reactions, 2)

	// same symbol twice removes it
	assert.False(t, m.ToggleReaction("a", "😂", now))
	_, ok = m.ReactionOf("a")
	assert.False(t, ok)
	assert.Len(t, m.Reactions, 1)
}

func TestHideForIsIdempotent(t *testing.T) {
	m := &Message{}
	assert.True(t, m.HideFor("a"))
	assert.False(t, m.HideFor("a"))
	assert.True(t, m.IsHiddenFor("a"))
	assert.False(t, m.IsHiddenFor("b"))
}

func TestCloneDoesNotAlias(t *testing.T) {
	m := Message{HiddenFor: []string{"a"}, Reactions: []Reaction{{ReactorEmail: "a", Symbol: "x"}}}
	c := m.Clone()
	c.HiddenFor[0] = "b"
	c.Reactions[0].Symbol = "y"
	assert.Equal(t, "a", m.HiddenFor[0])
	assert.Equal(t, "x", m.Reactions[0].Symbol)
}

func TestGroupRoles(t *testing.T) {
	g := &Group{
		Members:  []string{"a", "b", "c"},
		Admins:   []string{"a", "b"},
		Deputies: []string{"c"},
	}
	assert.True(t, g.CanInvite("c"))
	assert.False(t, (&Group{Members: []string{"x"}}).CanInvite("x"))
	assert.True(t, (&Group{Members: []string{"x"}, AllowMemberInvite: true}).CanInvite("x"))

	assert.True(t, g.RemoveMember("b"))
	assert.False(t, g.IsAdmin("b"))
	assert.True(t, g.RemoveMember("c"))
	assert.False(t, g.IsDeputy("c"))
	assert.False(t, g.RemoveMember("zzz"))

	g.Touch(Message{SenderEmail: "a", Content: Text("hello"), CreatedAt: time.Unix(5, 0)})
	require.NotNil(t, g.LastMessage)
	assert.Equal(t, "hello", g.LastMessage.Content)
}

func TestUserRequests(t *testing.T) {
	u := &User{Email: "a", SentRequests: []FriendRequest{{Email: "b"}}, RecvRequests: []FriendRequest{{Email: "c"}}}
	assert.True(t, u.HasSentTo("b"))
	assert.True(t, u.HasReceivedFrom("c"))
	u.DropRequests("b")
	assert.False(t, u.HasSentTo("b"))
	assert.Equal(t, "a", u.Profile().FullName)
}

func TestPage(t *testing.T) {
	msgs := []Message{{ID: "1"}, {ID: "2"}, {ID: "3"}, {ID: "4"}}

	out, resp := Page(msgs, PaginationRequest{Limit: 2})
	assert.Equal(t, []string{"3", "4"}, ids(out))
	assert.True(t, resp.HasMore)
	assert.Equal(t, "3", resp.NextCursor)

	out, resp = Page(msgs, PaginationRequest{Limit: 2, Cursor: resp.NextCursor})
	assert.Equal(t, []string{"1", "2"}, ids(out))
	assert.False(t, resp.HasMore)

	out, _ = Page(msgs, PaginationRequest{})
	assert.Len(t, out, 4)
}

func ids(msgs []Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}
