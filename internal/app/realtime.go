package app

import (
	"errors"
	"net/http"
	"time"

	"chatzalo/pkg/config"
	"chatzalo/pkg/gateway"
	"chatzalo/pkg/logger"
	"chatzalo/pkg/transport"
)

func newGateway(cfg *config.Config, deps gateway.Deps) *gateway.Manager {
	rt := cfg.Realtime
	return gateway.NewManager(deps, gateway.Options{
		HandshakeTimeout: rt.HandshakeTimeout.Duration(),
		EventRPS:         rt.EventRPS,
		EventBurst:       rt.EventBurst,
		AllowedOrigins:   cfg.Server.CORS.AllowedOrigins,
		Transport: transport.Config{
			SendBuffer:   rt.SendBuffer,
			WriteTimeout: rt.WriteTimeout.Duration(),
			PingInterval: rt.PingInterval.Duration(),
			ReadLimit:    rt.ReadLimit.Int64(),
		},
	})
}

// startRealtime serves the websocket gateway on its own listener.
func (a *App) startRealtime(errCh chan<- error) {
	cfg := a.eff.Config
	mux := http.NewServeMux()
	mux.Handle(cfg.Realtime.Path, a.gateway)

	a.srvWS = &http.Server{
		Addr:              cfg.RealtimeAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		err := a.srvWS.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("realtime_listen_failed", "addr", a.srvWS.Addr, "error", err)
			errCh <- err
		}
	}()
}
