package app

import (
	"time"

	"github.com/valyala/fasthttp"

	"chatzalo/pkg/config/banner"
	"chatzalo/pkg/logger"
)

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "none" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "unknown" {
		verStr += " @ " + a.buildDate
	}
	banner.PrintWithEff(a.eff, verStr)
}

// startHTTP starts the REST server and reports a listen failure on errCh.
func (a *App) startHTTP(errCh chan<- error) {
	const (
		readBufferSize       = 64 * 1024
		concurrency          = 0 // unlimited
		readTimeout          = 10 * time.Second
		writeTimeout         = 10 * time.Second
		idleTimeout          = 30 * time.Second
		maxKeepaliveDuration = 2 * time.Minute
	)
	// blob uploads are the largest bodies
	maxBody := int(a.eff.Config.Blobs.MaxSize.Int64()) + 64*1024

	a.srvFast = &fasthttp.Server{
		Handler:              a.api.Handler(),
		Name:                 "chatzalo",
		ReadBufferSize:       readBufferSize,
		MaxRequestBodySize:   maxBody,
		Concurrency:          concurrency,
		ReduceMemoryUsage:    true,
		ReadTimeout:          readTimeout,
		WriteTimeout:         writeTimeout,
		IdleTimeout:          idleTimeout,
		MaxKeepaliveDuration: maxKeepaliveDuration,
	}

	addr := a.eff.Config.Addr()
	go func() {
		// plain TCP; terminate TLS at a proxy
		if err := a.srvFast.ListenAndServe(addr); err != nil {
			logger.Error("rest_listen_failed", "addr", addr, "error", err)
			errCh <- err
		}
	}()
}
