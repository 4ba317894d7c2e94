package api

import (
	"context"

	"github.com/valyala/fasthttp"

	respond "chatzalo/pkg/api/router"
	"chatzalo/pkg/coordinator"
	"chatzalo/pkg/models"
	"chatzalo/pkg/router"
)

type friendOp func(ctx context.Context, actor, other string) error

// friendAction runs op against the {email} path segment and answers 204.
func friendAction(op friendOp) authedHandler {
	return func(ctx *fasthttp.RequestCtx, me coordinator.Actor) {
		if err := op(ctx, me.Email, router.Param(ctx, "email")); err != nil {
			respond.WriteError(ctx, err)
			return
		}
		ctx.SetStatusCode(fasthttp.StatusNoContent)
	}
}

func (s *Server) listFriends(ctx *fasthttp.RequestCtx, me coordinator.Actor) {
	friends, err := s.social.Friends(ctx, me.Email)
	if err != nil {
		respond.WriteError(ctx, err)
		return
	}
	respond.WriteJSON(ctx, fasthttp.StatusOK, map[string]any{"friends": friends})
}

func (s *Server) listRequests(ctx *fasthttp.RequestCtx, me coordinator.Actor) {
	received, sent, err := s.social.Requests(ctx, me.Email)
	if err != nil {
		respond.WriteError(ctx, err)
		return
	}
	if received == nil {
		received = []models.FriendRequest{}
	}
	if sent == nil {
		sent = []models.FriendRequest{}
	}
	respond.WriteJSON(ctx, fasthttp.StatusOK, map[string]any{"received": received, "sent": sent})
}

func (s *Server) sendRequest(ctx *fasthttp.RequestCtx, me coordinator.Actor) {
	to, err := target(ctx)
	if err == nil {
		err = s.social.SendFriendRequest(ctx, me.Email, to)
	}
	if err != nil {
		respond.WriteError(ctx, err)
		return
	}
	respond.WriteJSON(ctx, fasthttp.StatusCreated, map[string]string{"email": to, "status": "pending"})
}
