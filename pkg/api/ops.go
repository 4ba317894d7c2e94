package api

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	respond "chatzalo/pkg/api/router"
)

var metricsHandler = fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())

func (s *Server) healthz(ctx *fasthttp.RequestCtx) {
	respond.WriteJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
}

// readyz reports 503 until the store is open.
func (s *Server) readyz(ctx *fasthttp.RequestCtx) {
	if s.store == nil || !s.store.Ready() {
		respond.WriteJSON(ctx, fasthttp.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	respond.WriteJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ready"})
}
