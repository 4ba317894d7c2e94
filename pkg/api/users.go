package api

import (
	"strings"

	"github.com/valyala/fasthttp"

	respond "chatzalo/pkg/api/router"
	"chatzalo/pkg/coordinator"
	"chatzalo/pkg/router"
	"chatzalo/pkg/social"
)

var avatarTypes = map[string]bool{"image/jpeg": true, "image/png": true, "image/gif": true, "image/webp": true}

func (s *Server) searchUsers(ctx *fasthttp.RequestCtx, _ coordinator.Actor) {
	p, err := s.social.SearchUsers(ctx, social.UserQuery{
		Email: respond.Query(ctx, "email"),
		Phone: respond.Query(ctx, "phoneNumber"),
	})
	if err != nil {
		respond.WriteError(ctx, err)
		return
	}
	respond.WriteJSON(ctx, fasthttp.StatusOK, p)
}

func (s *Server) userProfile(ctx *fasthttp.RequestCtx, _ coordinator.Actor) {
	p, err := s.social.Profile(ctx, router.Param(ctx, "email"))
	if err != nil {
		respond.WriteError(ctx, err)
		return
	}
	respond.WriteJSON(ctx, fasthttp.StatusOK, p)
}

func (s *Server) updateProfile(ctx *fasthttp.RequestCtx, me coordinator.Actor) {
	var in social.ProfileUpdate
	if err := respond.Bind(ctx, &in); err != nil {
		respond.WriteError(ctx, err)
		return
	}
	p, err := s.social.UpdateProfile(ctx, me.Email, in)
	if err != nil {
		respond.WriteError(ctx, err)
		return
	}
	respond.WriteJSON(ctx, fasthttp.StatusOK, p)
}

// uploadAvatar stores the raw image body as a blob and points the caller's
// avatar at it.
func (s *Server) uploadAvatar(ctx *fasthttp.RequestCtx, me coordinator.Actor) {
	ct := strings.TrimSpace(strings.SplitN(string(ctx.Request.Header.ContentType()), ";", 2)[0])
	if !avatarTypes[ct] {
		respond.WriteError(ctx, &coordinator.ValidationError{Field: "Content-Type", Reason: "must be a JPEG, PNG, GIF or WebP image"})
		return
	}
	obj, err := s.blobs.Upload(ctx, ctx.PostBody(), ct)
	if err != nil {
		writeBlobError(ctx, err)
		return
	}
	p, err := s.social.UpdateProfile(ctx, me.Email, social.ProfileUpdate{Avatar: &obj.URL})
	if err != nil {
		respond.WriteError(ctx, err)
		return
	}
	respond.WriteJSON(ctx, fasthttp.StatusOK, p)
}
