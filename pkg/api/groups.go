package api

import (
	"context"

	"github.com/valyala/fasthttp"

	respond "chatzalo/pkg/api/router"
	"chatzalo/pkg/coordinator"
	"chatzalo/pkg/models"
	"chatzalo/pkg/router"
	"chatzalo/pkg/social"
)

type membersRequest struct {
	Members []string `json:"members"`
}

type targetRequest struct {
	Email string `json:"email"`
}

type inviteRequest struct {
	Allow *bool `json:"allow"`
}

type groupEdit func(ctx *fasthttp.RequestCtx, me coordinator.Actor, groupID string) (models.Group, error)

// editGroup runs fn and answers with the updated group.
func (s *Server) editGroup(fn groupEdit) authedHandler {
	return func(ctx *fasthttp.RequestCtx, me coordinator.Actor) {
		g, err := fn(ctx, me, router.Param(ctx, "id"))
		if err != nil {
			respond.WriteError(ctx, err)
			return
		}
		respond.WriteJSON(ctx, fasthttp.StatusOK, g)
	}
}

// target reads the acting-on email from the body, or from the {email}
// path segment when the route has one.
func target(ctx *fasthttp.RequestCtx) (string, error) {
	if v := router.Param(ctx, "email"); v != "" {
		return v, nil
	}
	var in targetRequest
	if err := respond.Bind(ctx, &in); err != nil {
		return "", err
	}
	if in.Email == "" {
		return "", &coordinator.ValidationError{Field: "email", Reason: "is required"}
	}
	return in.Email, nil
}

type targetOp func(ctx context.Context, actor coordinator.Actor, groupID, email string) (models.Group, error)

// withTarget adapts a social operation on (group, email) to a groupEdit.
func withTarget(op targetOp) groupEdit {
	return func(ctx *fasthttp.RequestCtx, me coordinator.Actor, groupID string) (models.Group, error) {
		email, err := target(ctx)
		if err != nil {
			return models.Group{}, err
		}
		return op(ctx, me, groupID, email)
	}
}

func (s *Server) createGroup(ctx *fasthttp.RequestCtx, me coordinator.Actor) {
	var in social.GroupInput
	if err := respond.Bind(ctx, &in); err != nil {
		respond.WriteError(ctx, err)
		return
	}
	g, err := s.social.CreateGroup(ctx, me, in)
	if err != nil {
		respond.WriteError(ctx, err)
		return
	}
	respond.WriteJSON(ctx, fasthttp.StatusCreated, g)
}

func (s *Server) listGroups(ctx *fasthttp.RequestCtx, me coordinator.Actor) {
	groups, err := s.social.GroupsFor(ctx, me.Email)
	if err != nil {
		respond.WriteError(ctx, err)
		return
	}
	respond.WriteJSON(ctx, fasthttp.StatusOK, map[string]any{"groups": groups})
}

func (s *Server) getGroup(ctx *fasthttp.RequestCtx, me coordinator.Actor) {
	g, err := s.social.Group(ctx, me.Email, router.Param(ctx, "id"))
	if err != nil {
		respond.WriteError(ctx, err)
		return
	}
	respond.WriteJSON(ctx, fasthttp.StatusOK, g)
}

func (s *Server) deleteGroup(ctx *fasthttp.RequestCtx, me coordinator.Actor) {
	if err := s.social.Delete(ctx, me, router.Param(ctx, "id")); err != nil {
		respond.WriteError(ctx, err)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func (s *Server) updateGroup(ctx *fasthttp.RequestCtx, me coordinator.Actor, id string) (models.Group, error) {
	var in social.GroupInfo
	if err := respond.Bind(ctx, &in); err != nil {
		return models.Group{}, err
	}
	return s.social.UpdateInfo(ctx, me, id, in)
}

func (s *Server) addMembers(ctx *fasthttp.RequestCtx, me coordinator.Actor, id string) (models.Group, error) {
	var in membersRequest
	if err := respond.Bind(ctx, &in); err != nil {
		return models.Group{}, err
	}
	if len(in.Members) == 0 {
		return models.Group{}, &coordinator.ValidationError{Field: "members", Reason: "is required"}
	}
	return s.social.AddMembers(ctx, me, id, in.Members)
}

func (s *Server) setInvite(ctx *fasthttp.RequestCtx, me coordinator.Actor, id string) (models.Group, error) {
	var in inviteRequest
	if err := respond.Bind(ctx, &in); err != nil {
		return models.Group{}, err
	}
	if in.Allow == nil {
		return models.Group{}, &coordinator.ValidationError{Field: "allow", Reason: "is required"}
	}
	return s.social.SetAllowMemberInvite(ctx, me, id, *in.Allow)
}

func (s *Server) leaveGroup(ctx *fasthttp.RequestCtx, me coordinator.Actor, id string) (models.Group, error) {
	return s.social.Leave(ctx, me, id)
}
