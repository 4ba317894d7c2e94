// Package api serves the REST surface: accounts, message history and
// mutations, group administration, friends, blobs and the ops endpoints.
// Every mutation goes through the same coordinator and social services as
// the realtime gateway, so connected clients see REST changes live.
package api

import (
	"github.com/valyala/fasthttp"

	respond "chatzalo/pkg/api/router"
	"chatzalo/pkg/auth"
	"chatzalo/pkg/blob"
	"chatzalo/pkg/coordinator"
	"chatzalo/pkg/ratelimit"
	"chatzalo/pkg/router"
	"chatzalo/pkg/social"
	"chatzalo/pkg/store"
)

type Deps struct {
	Store       *store.Store
	Accounts    *auth.Accounts
	Coordinator *coordinator.Coordinator
	Social      *social.Service
	Blobs       *blob.Store
}

type Options struct {
	AllowedOrigins []string
	// RPS and Burst bound requests per client IP.
	RPS   float64
	Burst int
}

type Server struct {
	store    *store.Store
	accounts *auth.Accounts
	coord    *coordinator.Coordinator
	social   *social.Service
	blobs    *blob.Store
	limiter  *ratelimit.Pool
	opts     Options
}

func New(d Deps, opts Options) *Server {
	if opts.RPS <= 0 {
		opts.RPS = 10
	}
	if opts.Burst <= 0 {
		opts.Burst = 20
	}
	return &Server{
		store:    d.Store,
		accounts: d.Accounts,
		coord:    d.Coordinator,
		social:   d.Social,
		blobs:    d.Blobs,
		limiter:  ratelimit.New("rest", opts.RPS, opts.Burst),
		opts:     opts,
	}
}

// Close stops the limiter's cleanup loop.
func (s *Server) Close() { s.limiter.Close() }

// Handler builds the routed handler. CORS and request logging wrap the
// router so preflights and unmatched paths pass through them too.
func (s *Server) Handler() fasthttp.RequestHandler {
	r := router.New()
	r.Use(s.rateLimit)
	s.routes(r)
	r.NotFound(notFound)
	return s.logRequests(s.cors(r.Handler))
}

func (s *Server) routes(r *router.Router) {
	r.GET("/healthz", s.healthz)
	r.GET("/readyz", s.readyz)
	r.GET("/metrics", metricsHandler)

	r.POST("/v1/users", s.register)
	r.POST("/v1/sessions", s.login)
	r.GET("/v1/me", s.authed(s.me))
	r.PUT("/v1/me", s.authed(s.updateProfile))
	r.PUT("/v1/me/avatar", s.authed(s.uploadAvatar))
	r.GET("/v1/users/search", s.authed(s.searchUsers))
	r.GET("/v1/users/{email}", s.authed(s.userProfile))

	r.GET("/v1/conversations", s.authed(s.listConversations))
	r.GET("/v1/conversations/{email}/messages", s.authed(s.conversationMessages))
	r.POST("/v1/conversations/{email}/messages", s.authed(s.sendDirect))
	r.DELETE("/v1/conversations/{email}/messages", s.authed(s.hideConversation))

	r.POST("/v1/messages/{id}/recall", s.authed(s.recall))
	r.POST("/v1/messages/{id}/reactions", s.authed(s.react))
	r.POST("/v1/messages/{id}/forward", s.authed(s.forward))
	r.POST("/v1/messages/{id}/read", s.authed(s.markRead))
	r.DELETE("/v1/messages/{id}", s.authed(s.softDelete))

	r.POST("/v1/groups", s.authed(s.createGroup))
	r.GET("/v1/groups", s.authed(s.listGroups))
	r.GET("/v1/groups/{id}", s.authed(s.getGroup))
	r.PATCH("/v1/groups/{id}", s.authed(s.editGroup(s.updateGroup)))
	r.DELETE("/v1/groups/{id}", s.authed(s.deleteGroup))
	r.GET("/v1/groups/{id}/messages", s.authed(s.groupMessages))
	r.POST("/v1/groups/{id}/messages", s.authed(s.sendGroup))
	r.DELETE("/v1/groups/{id}/messages", s.authed(s.hideGroup))
	r.POST("/v1/groups/{id}/members", s.authed(s.editGroup(s.addMembers)))
	r.DELETE("/v1/groups/{id}/members/{email}", s.authed(s.editGroup(withTarget(s.social.RemoveMember))))
	r.POST("/v1/groups/{id}/admins", s.authed(s.editGroup(withTarget(s.social.AddAdmin))))
	r.DELETE("/v1/groups/{id}/admins/{email}", s.authed(s.editGroup(withTarget(s.social.RemoveAdmin))))
	r.POST("/v1/groups/{id}/transfer", s.authed(s.editGroup(withTarget(s.social.TransferSoleAdmin))))
	r.POST("/v1/groups/{id}/deputies", s.authed(s.editGroup(withTarget(s.social.AddDeputy))))
	r.DELETE("/v1/groups/{id}/deputies/{email}", s.authed(s.editGroup(withTarget(s.social.RemoveDeputy))))
	r.PUT("/v1/groups/{id}/invite", s.authed(s.editGroup(s.setInvite)))
	r.POST("/v1/groups/{id}/leave", s.authed(s.editGroup(s.leaveGroup)))

	r.GET("/v1/friends", s.authed(s.listFriends))
	r.DELETE("/v1/friends/{email}", s.authed(friendAction(s.social.Unfriend)))
	r.GET("/v1/friends/requests", s.authed(s.listRequests))
	r.POST("/v1/friends/requests", s.authed(s.sendRequest))
	r.DELETE("/v1/friends/requests/{email}", s.authed(friendAction(s.social.WithdrawFriendRequest)))
	r.POST("/v1/friends/requests/{email}/accept", s.authed(friendAction(s.social.AcceptFriendRequest)))
	r.POST("/v1/friends/requests/{email}/reject", s.authed(friendAction(s.social.RejectFriendRequest)))

	r.POST("/v1/blobs", s.authed(s.uploadBlob))
	r.GET("/v1/blobs/{key}", s.downloadBlob)
}

func notFound(ctx *fasthttp.RequestCtx) {
	respond.WriteJSONError(ctx, fasthttp.StatusNotFound, "not found")
}
