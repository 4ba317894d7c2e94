package api

import (
	"errors"

	"github.com/valyala/fasthttp"

	respond "chatzalo/pkg/api/router"
	"chatzalo/pkg/auth"
	"chatzalo/pkg/coordinator"
	"chatzalo/pkg/store"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func writeAuthError(ctx *fasthttp.RequestCtx, err error) {
	switch {
	case errors.Is(err, auth.ErrBadCredentials):
		respond.WriteJSONError(ctx, fasthttp.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrEmailTaken):
		respond.WriteJSONError(ctx, fasthttp.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidInput):
		respond.WriteJSONError(ctx, fasthttp.StatusBadRequest, err.Error())
	default:
		respond.WriteError(ctx, err)
	}
}

func (s *Server) register(ctx *fasthttp.RequestCtx) {
	var in auth.Registration
	if err := respond.Bind(ctx, &in); err != nil {
		respond.WriteError(ctx, err)
		return
	}
	profile, err := s.accounts.Register(ctx, in)
	if err != nil {
		writeAuthError(ctx, err)
		return
	}
	respond.WriteJSON(ctx, fasthttp.StatusCreated, profile)
}

func (s *Server) login(ctx *fasthttp.RequestCtx) {
	var in loginRequest
	if err := respond.Bind(ctx, &in); err != nil {
		respond.WriteError(ctx, err)
		return
	}
	sess, err := s.accounts.Login(ctx, in.Email, in.Password)
	if err != nil {
		writeAuthError(ctx, err)
		return
	}
	respond.WriteJSON(ctx, fasthttp.StatusOK, sess)
}

func (s *Server) me(ctx *fasthttp.RequestCtx, me coordinator.Actor) {
	u, err := s.store.GetUser(me.Email)
	if store.IsNotFound(err) {
		respond.WriteError(ctx, coordinator.ErrNotFound)
		return
	}
	if err != nil {
		respond.WriteError(ctx, &coordinator.PersistenceError{Op: "get_user", Err: err})
		return
	}
	respond.WriteJSON(ctx, fasthttp.StatusOK, u.Profile())
}
