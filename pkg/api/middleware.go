package api

import (
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	respond "chatzalo/pkg/api/router"
	"chatzalo/pkg/auth"
	"chatzalo/pkg/coordinator"
	"chatzalo/pkg/logger"
)

type authedHandler func(ctx *fasthttp.RequestCtx, me coordinator.Actor)

func (s *Server) logRequests(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		next(ctx)
		logger.LogRequestFast(ctx, time.Since(start))
	}
}

func (s *Server) cors(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		origin := string(ctx.Request.Header.Peek("Origin"))
		if origin != "" && originAllowed(origin, s.opts.AllowedOrigins) {
			h := &ctx.Response.Header
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization,Content-Type")
			h.Set("Access-Control-Max-Age", "600")
		}
		if ctx.IsOptions() {
			ctx.SetStatusCode(fasthttp.StatusNoContent)
			return
		}
		next(ctx)
	}
}

// rateLimit bounds requests per client IP. Health checks are exempt.
func (s *Server) rateLimit(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/healthz", "/readyz", "/metrics":
			next(ctx)
			return
		}
		if !s.limiter.Allow(ctx.RemoteIP().String()) {
			respond.WriteJSONError(ctx, fasthttp.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(ctx)
	}
}

// authed resolves the bearer token to the acting user.
func (s *Server) authed(h authedHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		token := auth.BearerToken(string(ctx.Request.Header.Peek("Authorization")))
		if token == "" {
			respond.WriteJSONError(ctx, fasthttp.StatusUnauthorized, auth.ErrTokenMissing.Error())
			return
		}
		id, err := s.accounts.Authenticate(token)
		if err != nil {
			logger.Warn("request_unauthorized", "path", string(ctx.Path()), "remote", ctx.RemoteIP().String(), "error", err)
			respond.WriteJSONError(ctx, fasthttp.StatusUnauthorized, auth.ErrTokenInvalid.Error())
			return
		}
		h(ctx, coordinator.Actor{Email: id.Email})
	}
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}
