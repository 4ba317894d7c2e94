package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"chatzalo/pkg/events"
	"chatzalo/pkg/models"
	"chatzalo/pkg/store"
	"chatzalo/pkg/store/locks"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emitted struct {
	target  string
	room    bool
	event   string
	payload any
	exclude string
}

type recorder struct {
	mu  sync.Mutex
	out []emitted
}

func (r *recorder) EmitToUserExcept(userID, event string, payload any, exclude string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = append(r.out, emitted{target: userID, event: event, payload: payload, exclude: exclude})
	return 1
}

func (r *recorder) EmitToRoom(roomID, event string, payload any, exclude string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = append(r.out, emitted{target: roomID, room: true, event: event, payload: payload, exclude: exclude})
	return 1
}

func (r *recorder) take() []emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.out
	r.out = nil
	return out
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	st    *store.Store
	coord *Coordinator
	rec   *recorder
	clock *testClock
}

const (
	alice = "alice@x.io"
	bob   = "bob@x.io"
	carol = "carol@x.io"
)

var (
	actA = Actor{Email: alice, ConnID: "conn-a"}
	actB = Actor{Email: bob, ConnID: "conn-b"}
	actC = Actor{Email: carol, ConnID: "conn-c"}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &testClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	st, err := store.Open("mem", store.Options{FS: vfs.NewMem(), Clock: clk.now})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	for _, e := range []string{alice, bob, carol} {
		require.NoError(t, st.CreateUser(&models.User{ID: e, Email: e}))
	}
	rec := &recorder{}
	c := New(st, locks.NewKeyed(), rec, Options{Clock: clk.now})
	return &fixture{st: st, coord: c, rec: rec, clock: clk}
}

func (f *fixture) group(t *testing.T, id string, admins []string, members ...string) {
	t.Helper()
	require.NoError(t, f.st.CreateGroup(&models.Group{
		ID:      id,
		Name:    id,
		Creator: admins[0],
		Admins:  admins,
		Members: members,
	}))
}

func (f *fixture) send(t *testing.T, from Actor, to, body string) models.Message {
	t.Helper()
	m, err := f.coord.Append(context.Background(), from, models.ConversationOwner(from.Email, to),
		models.Message{ReceiverEmail: to, Content: models.Text(body)})
	require.NoError(t, err)
	return m
}

func TestConversationIDIsSymmetric(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.send(t, actA, bob, "one")
	f.send(t, actB, alice, "two")

	ab, err := f.coord.ReadListFiltered(ctx, models.ConversationOwner(alice, bob), alice)
	require.NoError(t, err)
	ba, err := f.coord.ReadListFiltered(ctx, models.ConversationOwner(bob, alice), bob)
	require.NoError(t, err)
	require.Len(t, ab, 2)
	assert.Equal(t, ab, ba)
	assert.Equal(t, "one", ab[0].Content.Summary())
	assert.Equal(t, "two", ab[1].Content.Summary())
}

func TestAppendConversationEmits(t *testing.T) {
	f := newFixture(t)
	m := f.send(t, actA, bob, "hello")
	assert.Equal(t, alice, m.SenderEmail)
	assert.Equal(t, models.StatusSent, m.Status)
	assert.NotEmpty(t, m.ID)

	out := f.rec.take()
	require.Len(t, out, 2)
	assert.Equal(t, bob, out[0].target)
	assert.Equal(t, events.NewMessage, out[0].event)
	assert.Empty(t, out[0].exclude)
	assert.Equal(t, alice, out[1].target)
	assert.Equal(t, "conn-a", out[1].exclude)

	p := out[0].payload.(events.MessagePayload)
	assert.Equal(t, models.ConversationID(alice, bob), p.ConversationID)
	assert.Equal(t, m.ID, p.Message.ID)
}

func TestAppendValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := models.ConversationOwner(alice, bob)

	cases := []struct {
		name  string
		owner models.Owner
		msg   models.Message
		want  error
	}{
		{"empty text", owner, models.Message{ReceiverEmail: bob, Content: models.Text("  ")}, ErrValidation},
		{"no content", owner, models.Message{ReceiverEmail: bob}, ErrValidation},
		{"system from client", owner, models.Message{ReceiverEmail: bob, Content: models.System(models.ActionJoin, "x")}, ErrValidation},
		{"no receiver", owner, models.Message{Content: models.Text("x")}, ErrValidation},
		{"self", models.ConversationOwner(alice, alice), models.Message{ReceiverEmail: alice, Content: models.Text("x")}, ErrValidation},
		{"owner mismatch", models.ConversationOwner(alice, carol), models.Message{ReceiverEmail: bob, Content: models.Text("x")}, ErrValidation},
		{"unknown receiver", models.ConversationOwner(alice, "ghost@x.io"), models.Message{ReceiverEmail: "ghost@x.io", Content: models.Text("x")}, ErrNotFound},
		{"unknown group", models.GroupOwner("nope"), models.Message{Content: models.Text("x")}, ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.coord.Append(ctx, actA, tc.owner, tc.msg)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	long := make([]byte, DefaultMaxTextBytes+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err := f.coord.Append(ctx, actA, owner, models.Message{ReceiverEmail: bob, Content: models.Text(string(long))})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, f.rec.take())
}

func TestAppendDuplicateID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := models.ConversationOwner(alice, bob)
	_, err := f.coord.Append(ctx, actA, owner, models.Message{ID: "m1", ReceiverEmail: bob, Content: models.Text("x")})
	require.NoError(t, err)
	_, err = f.coord.Append(ctx, actA, owner, models.Message{ID: "m1", ReceiverEmail: bob, Content: models.Text("y")})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "id", verr.Field)
}

func TestAppendGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.group(t, "g1", []string{alice}, alice, bob)

	m, err := f.coord.Append(ctx, actB, models.GroupOwner("g1"), models.Message{Content: models.Text("hey all")})
	require.NoError(t, err)
	assert.Equal(t, "g1", m.GroupID)

	out := f.rec.take()
	require.Len(t, out, 1)
	assert.True(t, out[0].room)
	assert.Equal(t, events.NewGroupMessage, out[0].event)

	g, err := f.st.GetGroup("g1")
	require.NoError(t, err)
	require.NotNil(t, g.LastMessage)
	assert.Equal(t, "hey all", g.LastMessage.Content)

	_, err = f.coord.Append(ctx, actC, models.GroupOwner("g1"), models.Message{Content: models.Text("let me in")})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAppendKeepsOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.group(t, "g1", []string{alice}, alice, bob, carol)

	var wg sync.WaitGroup
	for _, a := range []Actor{actA, actB, actC} {
		wg.Add(1)
		go func(a Actor) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				_, err := f.coord.Append(ctx, a, models.GroupOwner("g1"), models.Message{Content: models.Text("x")})
				assert.NoError(t, err)
			}
		}(a)
	}
	wg.Wait()

	list, err := f.coord.ReadListFiltered(ctx, models.GroupOwner("g1"), alice)
	require.NoError(t, err)
	assert.Len(t, list, 30)

	emittedIDs := []string{}
	for _, e := range f.rec.take() {
		emittedIDs = append(emittedIDs, e.payload.(events.MessagePayload).Message.ID)
	}
	storedIDs := []string{}
	for _, m := range list {
		storedIDs = append(storedIDs, m.ID)
	}
	assert.Equal(t, storedIDs, emittedIDs)
}

func TestReactToggle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.send(t, actA, bob, "nice")
	f.rec.take()

	got, active, err := f.coord.React(ctx, actB, m.ID, "👍")
	require.NoError(t, err)
	assert.True(t, active)
	require.Len(t, got.Reactions, 1)

	got, active, err = f.coord.React(ctx, actB, m.ID, "❤️")
	require.NoError(t, err)
	assert.True(t, active)
	require.Len(t, got.Reactions, 1)
	assert.Equal(t, "❤️", got.Reactions[0].Symbol)

	got, active, err = f.coord.React(ctx, actB, m.ID, "❤️")
	require.NoError(t, err)
	assert.False(t, active)
	assert.Empty(t, got.Reactions)

	out := f.rec.take()
	require.Len(t, out, 6)
	for _, e := range out {
		assert.Equal(t, events.MessageReaction, e.event)
		assert.Equal(t, "conn-b", e.exclude)
	}

	_, _, err = f.coord.React(ctx, actC, m.ID, "👍")
	assert.ErrorIs(t, err, ErrForbidden)
	_, _, err = f.coord.React(ctx, actB, m.ID, " ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRecallWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.send(t, actA, bob, "oops")

	_, _, err := f.coord.Recall(ctx, actB, m.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	f.clock.advance(DefaultRecallWindow)
	got, owner, err := f.coord.Recall(ctx, actA, m.ID)
	require.NoError(t, err)
	assert.True(t, got.Recalled)
	assert.Equal(t, models.ConversationOwner(alice, bob), owner)

	m2 := f.send(t, actA, bob, "late")
	f.clock.advance(DefaultRecallWindow + time.Second)
	_, _, err = f.coord.Recall(ctx, actA, m2.ID)
	assert.ErrorIs(t, err, ErrRecallWindowExpired)

	_, _, err = f.coord.Recall(ctx, actA, "missing")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestRecallKeepsMessageInList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.send(t, actA, bob, "secret")
	f.rec.take()

	_, _, err := f.coord.Recall(ctx, actA, m.ID)
	require.NoError(t, err)
	out := f.rec.take()
	require.Len(t, out, 2)
	assert.Equal(t, events.MessageRecalled, out[0].event)

	// idempotent
	_, _, err = f.coord.Recall(ctx, actA, m.ID)
	require.NoError(t, err)
	assert.Empty(t, f.rec.take())

	list, err := f.coord.ReadListFiltered(ctx, models.ConversationOwner(alice, bob), bob)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Recalled)
	assert.Equal(t, "secret", list[0].Content.Summary())
}

func TestGroupAdminRecallsAnyTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.group(t, "g1", []string{alice}, alice, bob, carol)
	m, err := f.coord.Append(ctx, actB, models.GroupOwner("g1"), models.Message{Content: models.Text("spam")})
	require.NoError(t, err)
	f.rec.take()

	f.clock.advance(time.Hour)
	_, _, err = f.coord.Recall(ctx, actC, m.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, _, err = f.coord.Recall(ctx, actB, m.ID)
	assert.ErrorIs(t, err, ErrRecallWindowExpired)

	g, err := f.st.GetGroup("g1")
	require.NoError(t, err)
	require.NotNil(t, g.LastMessage)
	assert.Equal(t, "spam", g.LastMessage.Content)
	active := g.UpdatedAt

	got, _, err := f.coord.Recall(ctx, actA, m.ID)
	require.NoError(t, err)
	assert.True(t, got.Recalled)

	g, err = f.st.GetGroup("g1")
	require.NoError(t, err)
	require.NotNil(t, g.LastMessage)
	assert.True(t, g.LastMessage.Recalled)
	assert.Empty(t, g.LastMessage.Content)
	assert.Equal(t, bob, g.LastMessage.SenderEmail)
	assert.Equal(t, active, g.UpdatedAt)

	out := f.rec.take()
	require.Len(t, out, 1)
	assert.Equal(t, events.RecallGroupMessage, out[0].event)
	assert.Equal(t, "conn-a", out[0].exclude)
	assert.Equal(t, alice, out[0].payload.(events.RecallPayload).RecalledBy)
}

func TestSoftDeleteIsPerUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.send(t, actA, bob, "mine")
	f.rec.take()

	_, err := f.coord.SoftDeleteForUser(ctx, actA, m.ID)
	require.NoError(t, err)
	out := f.rec.take()
	require.Len(t, out, 1)
	assert.Equal(t, events.MessageDeleted, out[0].event)
	assert.Equal(t, alice, out[0].target)

	_, err = f.coord.SoftDeleteForUser(ctx, actA, m.ID)
	require.NoError(t, err)
	assert.Empty(t, f.rec.take())

	owner := models.ConversationOwner(alice, bob)
	forA, err := f.coord.ReadListFiltered(ctx, owner, alice)
	require.NoError(t, err)
	assert.Empty(t, forA)
	forB, err := f.coord.ReadListFiltered(ctx, owner, bob)
	require.NoError(t, err)
	assert.Len(t, forB, 1)

	_, _, err = f.coord.React(ctx, actA, m.ID, "👍")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.send(t, actA, bob, "ping")
	f.rec.take()

	_, err := f.coord.MarkRead(ctx, actA, m.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := f.coord.MarkRead(ctx, actB, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRead, got.Status)
	out := f.rec.take()
	require.Len(t, out, 1)
	assert.Equal(t, alice, out[0].target)
	assert.Equal(t, events.MessageRead, out[0].event)

	_, err = f.coord.MarkRead(ctx, actB, m.ID)
	require.NoError(t, err)
	assert.Empty(t, f.rec.take())
}

func TestForward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.group(t, "g1", []string{alice}, alice, carol)
	src := f.send(t, actB, alice, "worth sharing")
	f.rec.take()

	fw, err := f.coord.Forward(ctx, actA, src.ID, ForwardTarget{GroupID: "g1"})
	require.NoError(t, err)
	assert.NotEqual(t, src.ID, fw.ID)
	assert.True(t, fw.Forwarded)
	assert.Equal(t, src.ID, fw.OriginalMessageID)
	assert.Equal(t, bob, fw.OriginalSenderEmail)
	assert.Equal(t, models.ConversationOwner(alice, bob).String(), fw.OriginalOwner)
	assert.Equal(t, alice, fw.SenderEmail)

	fw2, err := f.coord.Forward(ctx, actA, src.ID, ForwardTarget{Email: carol})
	require.NoError(t, err)
	assert.Equal(t, carol, fw2.ReceiverEmail)

	_, err = f.coord.Forward(ctx, actC, src.ID, ForwardTarget{GroupID: "g1"})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.coord.Forward(ctx, actA, src.ID, ForwardTarget{})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.coord.Forward(ctx, actA, src.ID, ForwardTarget{GroupID: "g1", Email: carol})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.coord.Forward(ctx, actB, src.ID, ForwardTarget{GroupID: "g1"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.coord.SoftDeleteForUser(ctx, actA, src.ID)
	require.NoError(t, err)
	_, err = f.coord.Forward(ctx, actA, src.ID, ForwardTarget{GroupID: "g1"})
	assert.ErrorIs(t, err, ErrMessageNotFound)

	_, _, err = f.coord.Recall(ctx, actB, src.ID)
	require.NoError(t, err)
	_, err = f.coord.Forward(ctx, actB, src.ID, ForwardTarget{Email: carol})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAppendSystem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.group(t, "g1", []string{alice}, alice, bob)

	m, err := f.coord.AppendSystem(ctx, actB, "g1", models.ActionJoin, "Bob", events.GroupMessageJoin)
	require.NoError(t, err)
	assert.Equal(t, models.KindSystem, m.Content.Kind())
	out := f.rec.take()
	require.Len(t, out, 1)
	assert.Equal(t, events.GroupMessageJoin, out[0].event)
	assert.Equal(t, "conn-b", out[0].exclude)
}

func TestHideAllAndPurge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.send(t, actA, bob, "1")
	f.send(t, actB, alice, "2")
	owner := models.ConversationOwner(alice, bob)

	n, err := f.coord.HideAllForUser(ctx, actA, owner)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = f.coord.HideAllForUser(ctx, actA, owner)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = f.coord.HideAllForUser(ctx, actC, owner)
	assert.ErrorIs(t, err, ErrForbidden)

	n, err = f.coord.PurgeConversation(ctx, bob, alice)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = f.coord.ReadListFiltered(ctx, owner, alice)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCode(t *testing.T) {
	assert.Equal(t, CodeOK, Code(nil))
	assert.Equal(t, CodeValidation, Code(invalid("x", "y")))
	assert.Equal(t, CodePersistence, Code(persist("op", store.ErrConflict)))
	assert.Equal(t, CodeMessageNotFound, Code(ErrMessageNotFound))
	assert.Equal(t, CodeRecallWindowExpired, Code(ErrRecallWindowExpired))
}
