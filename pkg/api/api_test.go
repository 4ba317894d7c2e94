package api

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"
	"golang.org/x/crypto/bcrypt"

	"chatzalo/pkg/auth"
	"chatzalo/pkg/blob"
	"chatzalo/pkg/coordinator"
	"chatzalo/pkg/fanout"
	"chatzalo/pkg/presence"
	"chatzalo/pkg/rooms"
	"chatzalo/pkg/social"
	"chatzalo/pkg/store"
	"chatzalo/pkg/store/locks"
)

type harness struct {
	t       *testing.T
	handler fasthttp.RequestHandler
	server  *Server
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	st, err := store.OpenMem()
	require.NoError(t, err)

	router := fanout.NewRouter(presence.NewRegistry(), rooms.NewTracker())
	lk := locks.NewKeyed()
	coord := coordinator.New(st, lk, router, coordinator.Options{})
	tokens := auth.NewTokens("api-test-secret-0123456789abcdef", 0, nil)
	srv := New(Deps{
		Store:       st,
		Accounts:    auth.NewAccounts(st, tokens, bcrypt.MinCost, nil),
		Coordinator: coord,
		Social:      social.New(st, lk, coord, router, nil),
		Blobs:       blob.New(st.DB(), 1024, "http://files.test", nil),
	}, opts)
	t.Cleanup(func() {
		srv.Close()
		_ = st.Close()
	})
	return &harness{t: t, handler: srv.Handler(), server: srv}
}

func (h *harness) do(method, path, token string, body any) *fasthttp.RequestCtx {
	h.t.Helper()
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(path)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	switch b := body.(type) {
	case nil:
	case []byte:
		req.SetBody(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(h.t, err)
		req.Header.SetContentType("application/json")
		req.SetBody(raw)
	}
	var ctx fasthttp.RequestCtx
	ctx.Init(&req, nil, nil)
	h.handler(&ctx)
	return &ctx
}

// signup registers and logs in, returning the session token.
func (h *harness) signup(email string) string {
	h.t.Helper()
	ctx := h.do("POST", "/v1/users", "", map[string]string{"email": email, "fullName": email, "password": "secret123"})
	require.Equal(h.t, fasthttp.StatusCreated, ctx.Response.StatusCode(), string(ctx.Response.Body()))
	ctx = h.do("POST", "/v1/sessions", "", map[string]string{"email": email, "password": "secret123"})
	require.Equal(h.t, fasthttp.StatusOK, ctx.Response.StatusCode(), string(ctx.Response.Body()))
	return gjson.GetBytes(ctx.Response.Body(), "token").String()
}

func body(ctx *fasthttp.RequestCtx) gjson.Result {
	return gjson.ParseBytes(ctx.Response.Body())
}

func text(s string) map[string]any {
	return map[string]any{"content": map[string]string{"kind": "text", "body": s}}
}

func fastOpts() Options { return Options{RPS: 1000, Burst: 1000} }

func TestHealthEndpoints(t *testing.T) {
	h := newHarness(t, fastOpts())
	assert.Equal(t, fasthttp.StatusOK, h.do("GET", "/healthz", "", nil).Response.StatusCode())
	assert.Equal(t, fasthttp.StatusOK, h.do("GET", "/readyz", "", nil).Response.StatusCode())

	ctx := h.do("GET", "/metrics", "", nil)
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), "chatzalo_ws_connections")

	ctx = h.do("GET", "/nope", "", nil)
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
	assert.Equal(t, "not found", body(ctx).Get("error").String())
}

func TestAccounts(t *testing.T) {
	h := newHarness(t, fastOpts())
	token := h.signup("Ann@X.io")

	ctx := h.do("GET", "/v1/me", token, nil)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "ann@x.io", body(ctx).Get("email").String())

	ctx = h.do("POST", "/v1/users", "", map[string]string{"email": "ann@x.io", "password": "secret123"})
	assert.Equal(t, fasthttp.StatusConflict, ctx.Response.StatusCode())

	ctx = h.do("POST", "/v1/users", "", map[string]string{"email": "not-an-email", "password": "secret123"})
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())

	ctx = h.do("POST", "/v1/sessions", "", map[string]string{"email": "ann@x.io", "password": "wrong"})
	assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())

	ctx = h.do("POST", "/v1/sessions", "", nil)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
}

func TestAuthRequired(t *testing.T) {
	h := newHarness(t, fastOpts())
	ctx := h.do("GET", "/v1/groups", "", nil)
	assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())

	ctx = h.do("GET", "/v1/groups", "forged", nil)
	assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
	assert.Equal(t, auth.ErrTokenInvalid.Error(), body(ctx).Get("error").String())
}

func TestConversationFlow(t *testing.T) {
	h := newHarness(t, fastOpts())
	ann, ben, cat := h.signup("ann@x.io"), h.signup("ben@x.io"), h.signup("cat@x.io")

	ctx := h.do("GET", "/v1/conversations/ben@x.io/messages", ann, nil)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Empty(t, body(ctx).Get("messages").Array())

	for _, s := range []string{"one", "two", "three"} {
		ctx = h.do("POST", "/v1/conversations/ben@x.io/messages", ann, text(s))
		require.Equal(t, fasthttp.StatusCreated, ctx.Response.StatusCode(), string(ctx.Response.Body()))
	}
	first := h.do("GET", "/v1/conversations/ann@x.io/messages?limit=3", ben, nil)
	msgs := body(first).Get("messages").Array()
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Get("content.body").String())
	id := msgs[0].Get("id").String()

	ctx = h.do("GET", "/v1/conversations/ann@x.io/messages?limit=2", ben, nil)
	page := body(ctx)
	assert.Len(t, page.Get("messages").Array(), 2)
	assert.True(t, page.Get("pagination.has_more").Bool())
	cursor := page.Get("pagination.next_cursor").String()
	ctx = h.do("GET", "/v1/conversations/ann@x.io/messages?limit=2&cursor="+cursor, ben, nil)
	assert.Equal(t, id, body(ctx).Get("messages.0.id").String())

	ctx = h.do("GET", "/v1/conversations/ann@x.io/messages?limit=zero", ben, nil)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())

	ctx = h.do("POST", "/v1/messages/"+id+"/reactions", ben, map[string]string{"reaction": "❤️"})
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.True(t, body(ctx).Get("active").Bool())

	ctx = h.do("POST", "/v1/messages/"+id+"/read", ben, nil)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "read", body(ctx).Get("status").String())

	ctx = h.do("POST", "/v1/messages/"+id+"/recall", ben, nil)
	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())
	ctx = h.do("POST", "/v1/messages/"+id+"/recall", ann, nil)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.True(t, body(ctx).Get("recalled").Bool())

	ctx = h.do("POST", "/v1/messages/"+id+"/forward", ann, map[string]string{"targetEmail": "cat@x.io"})
	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())

	ctx = h.do("DELETE", "/v1/messages/"+id, ben, nil)
	assert.Equal(t, fasthttp.StatusNoContent, ctx.Response.StatusCode())
	ctx = h.do("GET", "/v1/conversations/ann@x.io/messages", ben, nil)
	assert.Len(t, body(ctx).Get("messages").Array(), 2)
	ctx = h.do("GET", "/v1/conversations/ben@x.io/messages", ann, nil)
	assert.Len(t, body(ctx).Get("messages").Array(), 3)

	ctx = h.do("DELETE", "/v1/conversations/ben@x.io/messages", ann, nil)
	assert.EqualValues(t, 3, body(ctx).Get("hidden").Int())

	ctx = h.do("GET", "/v1/conversations", ben, nil)
	convs := body(ctx).Get("conversations").Array()
	require.Len(t, convs, 1)
	assert.Equal(t, "ann@x.io", convs[0].Get("peer").String())
	assert.Equal(t, "three", convs[0].Get("lastMessage.content").String())

	ctx = h.do("POST", "/v1/conversations/ann@x.io/messages", ben, text("oops"))
	require.Equal(t, fasthttp.StatusCreated, ctx.Response.StatusCode())
	ctx = h.do("POST", "/v1/messages/"+body(ctx).Get("id").String()+"/recall", ben, nil)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	ctx = h.do("GET", "/v1/conversations", ann, nil)
	last := body(ctx).Get("conversations.0.lastMessage")
	assert.True(t, last.Get("recalled").Bool())
	assert.Empty(t, last.Get("content").String())
	assert.NotContains(t, string(ctx.Response.Body()), "oops")

	ctx = h.do("POST", "/v1/messages/missing/recall", cat, nil)
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
}

func TestGroupAdministration(t *testing.T) {
	h := newHarness(t, fastOpts())
	ann, ben := h.signup("ann@x.io"), h.signup("ben@x.io")
	cat := h.signup("cat@x.io")

	ctx := h.do("POST", "/v1/groups", ann, map[string]any{"name": "team", "members": []string{"ben@x.io"}})
	require.Equal(t, fasthttp.StatusCreated, ctx.Response.StatusCode(), string(ctx.Response.Body()))
	gid := body(ctx).Get("id").String()
	base := "/v1/groups/" + gid

	ctx = h.do("GET", base, cat, nil)
	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())

	ctx = h.do("POST", base+"/members", ben, map[string]any{"members": []string{"cat@x.io"}})
	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())
	ctx = h.do("PUT", base+"/invite", ann, map[string]any{"allow": true})
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	ctx = h.do("POST", base+"/members", ben, map[string]any{"members": []string{"cat@x.io"}})
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Len(t, body(ctx).Get("members").Array(), 3)

	ctx = h.do("POST", base+"/deputies", ann, map[string]string{"email": "ben@x.io"})
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "ben@x.io", body(ctx).Get("deputies.0").String())

	ctx = h.do("PATCH", base, ben, map[string]string{"name": "renamed"})
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "renamed", body(ctx).Get("name").String())

	ctx = h.do("POST", base+"/messages", cat, text("hi all"))
	require.Equal(t, fasthttp.StatusCreated, ctx.Response.StatusCode())
	ctx = h.do("GET", base+"/messages", ben, nil)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.NotEmpty(t, body(ctx).Get("messages").Array())

	ctx = h.do("DELETE", base+"/members/cat@x.io", ben, nil)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	ctx = h.do("GET", base+"/messages", cat, nil)
	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())

	ctx = h.do("POST", base+"/transfer", ann, map[string]string{"email": "ben@x.io"})
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	admins := body(ctx).Get("admins").Array()
	require.Len(t, admins, 1)
	assert.Equal(t, "ben@x.io", admins[0].String())

	ctx = h.do("POST", base+"/admins", ann, map[string]string{"email": "ann@x.io"})
	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())
	ctx = h.do("POST", base+"/admins", ben, map[string]string{})
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())

	ctx = h.do("POST", base+"/leave", ann, nil)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	ctx = h.do("GET", "/v1/groups", ann, nil)
	assert.Empty(t, body(ctx).Get("groups").Array())

	ctx = h.do("DELETE", base, ben, nil)
	assert.Equal(t, fasthttp.StatusNoContent, ctx.Response.StatusCode())
	ctx = h.do("GET", base, ben, nil)
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
}

func TestFriends(t *testing.T) {
	h := newHarness(t, fastOpts())
	ann, ben := h.signup("ann@x.io"), h.signup("ben@x.io")

	ctx := h.do("POST", "/v1/friends/requests", ann, map[string]string{"email": "ben@x.io"})
	require.Equal(t, fasthttp.StatusCreated, ctx.Response.StatusCode(), string(ctx.Response.Body()))

	ctx = h.do("GET", "/v1/friends/requests", ben, nil)
	received := body(ctx).Get("received").Array()
	require.Len(t, received, 1)
	assert.Equal(t, "ann@x.io", received[0].Get("email").String())

	ctx = h.do("POST", "/v1/friends/requests/ann@x.io/accept", ben, nil)
	require.Equal(t, fasthttp.StatusNoContent, ctx.Response.StatusCode())

	ctx = h.do("GET", "/v1/friends", ann, nil)
	friends := body(ctx).Get("friends").Array()
	require.Len(t, friends, 1)
	assert.Equal(t, "ben@x.io", friends[0].Get("email").String())

	h.do("POST", "/v1/conversations/ben@x.io/messages", ann, text("hey"))
	ctx = h.do("DELETE", "/v1/friends/ben@x.io", ann, nil)
	require.Equal(t, fasthttp.StatusNoContent, ctx.Response.StatusCode())
	ctx = h.do("GET", "/v1/friends", ben, nil)
	assert.Empty(t, body(ctx).Get("friends").Array())
	ctx = h.do("GET", "/v1/conversations/ann@x.io/messages", ben, nil)
	assert.Empty(t, body(ctx).Get("messages").Array())

	ctx = h.do("POST", "/v1/friends/requests/ann@x.io/reject", ben, nil)
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
}

func TestBlobs(t *testing.T) {
	h := newHarness(t, fastOpts())
	ann := h.signup("ann@x.io")

	var req fasthttp.Request
	req.Header.SetMethod("POST")
	req.SetRequestURI("/v1/blobs")
	req.Header.Set("Authorization", "Bearer "+ann)
	req.Header.SetContentType("image/png")
	req.SetBody([]byte("\x89PNG fake"))
	var ctx fasthttp.RequestCtx
	ctx.Init(&req, nil, nil)
	h.handler(&ctx)
	require.Equal(t, fasthttp.StatusCreated, ctx.Response.StatusCode(), string(ctx.Response.Body()))
	key := body(&ctx).Get("key").String()
	assert.Equal(t, "http://files.test/v1/blobs/"+key, body(&ctx).Get("url").String())

	got := h.do("GET", "/v1/blobs/"+key, "", nil)
	require.Equal(t, fasthttp.StatusOK, got.Response.StatusCode())
	assert.Equal(t, "image/png", string(got.Response.Header.ContentType()))
	assert.Equal(t, "\x89PNG fake", string(got.Response.Body()))

	assert.Equal(t, fasthttp.StatusNotFound, h.do("GET", "/v1/blobs/missing", "", nil).Response.StatusCode())
	assert.Equal(t, fasthttp.StatusBadRequest, h.do("POST", "/v1/blobs", ann, []byte{}).Response.StatusCode())
	big := make([]byte, 2048)
	assert.Equal(t, fasthttp.StatusRequestEntityTooLarge, h.do("POST", "/v1/blobs", ann, big).Response.StatusCode())
}

func TestProfilesAndSearch(t *testing.T) {
	h := newHarness(t, fastOpts())
	ann, ben := h.signup("ann@x.io"), h.signup("ben@x.io")

	ctx := h.do("PUT", "/v1/me", ann, map[string]string{"fullName": "Ann Tran", "phoneNumber": "+84 912 345 678"})
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode(), string(ctx.Response.Body()))
	assert.Equal(t, "Ann Tran", body(ctx).Get("fullName").String())
	assert.Equal(t, "+84912345678", body(ctx).Get("phoneNumber").String())

	ctx = h.do("PUT", "/v1/me", ben, map[string]string{"phoneNumber": "+84912345678"})
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	ctx = h.do("PUT", "/v1/me", ben, map[string]string{"fullName": "  "})
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())

	ctx = h.do("GET", "/v1/users/search?phoneNumber=%2B84-912-345-678", ben, nil)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode(), string(ctx.Response.Body()))
	assert.Equal(t, "ann@x.io", body(ctx).Get("email").String())
	assert.False(t, body(ctx).Get("passwordHash").Exists())

	ctx = h.do("GET", "/v1/users/search?email=ANN@x.io", ben, nil)
	assert.Equal(t, "Ann Tran", body(ctx).Get("fullName").String())
	assert.Equal(t, fasthttp.StatusBadRequest, h.do("GET", "/v1/users/search", ben, nil).Response.StatusCode())
	assert.Equal(t, fasthttp.StatusNotFound, h.do("GET", "/v1/users/search?email=nobody@x.io", ben, nil).Response.StatusCode())
	assert.Equal(t, fasthttp.StatusUnauthorized, h.do("GET", "/v1/users/search?email=ann@x.io", "", nil).Response.StatusCode())

	ctx = h.do("GET", "/v1/users/ann@x.io", ben, nil)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "Ann Tran", body(ctx).Get("fullName").String())
	assert.Equal(t, fasthttp.StatusNotFound, h.do("GET", "/v1/users/nobody@x.io", ben, nil).Response.StatusCode())

	var req fasthttp.Request
	req.Header.SetMethod("PUT")
	req.SetRequestURI("/v1/me/avatar")
	req.Header.Set("Authorization", "Bearer "+ann)
	req.Header.SetContentType("image/gif")
	req.SetBody([]byte("GIF89a"))
	var up fasthttp.RequestCtx
	up.Init(&req, nil, nil)
	h.handler(&up)
	require.Equal(t, fasthttp.StatusOK, up.Response.StatusCode(), string(up.Response.Body()))
	avatar := body(&up).Get("avatar").String()
	assert.True(t, strings.HasPrefix(avatar, "http://files.test/v1/blobs/"))

	ctx = h.do("GET", "/v1/me", ann, nil)
	assert.Equal(t, avatar, body(ctx).Get("avatar").String())
	got := h.do("GET", strings.TrimPrefix(avatar, "http://files.test"), "", nil)
	assert.Equal(t, "GIF89a", string(got.Response.Body()))

	ctx = h.do("PUT", "/v1/me/avatar", ann, []byte("not an image"))
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
}

func TestRateLimitAndCORS(t *testing.T) {
	h := newHarness(t, Options{RPS: 0.001, Burst: 2, AllowedOrigins: []string{"https://app.test"}})

	var req fasthttp.Request
	req.Header.SetMethod("OPTIONS")
	req.SetRequestURI("/v1/groups")
	req.Header.Set("Origin", "https://app.test")
	var ctx fasthttp.RequestCtx
	ctx.Init(&req, nil, nil)
	h.handler(&ctx)
	assert.Equal(t, fasthttp.StatusNoContent, ctx.Response.StatusCode())
	assert.Equal(t, "https://app.test", string(ctx.Response.Header.Peek("Access-Control-Allow-Origin")))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, h.do("GET", "/v1/groups", "", nil).Response.StatusCode())
	}
	assert.Equal(t, []int{fasthttp.StatusUnauthorized, fasthttp.StatusUnauthorized, fasthttp.StatusTooManyRequests}, codes)
	assert.Equal(t, fasthttp.StatusOK, h.do("GET", "/healthz", "", nil).Response.StatusCode())
}
