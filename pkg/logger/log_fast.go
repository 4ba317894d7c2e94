package logger

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

var sensitiveHeaders = map[string]struct{}{
	"authorization": {},
	"cookie":        {},
	"set-cookie":    {},
}

func redactHeaderValue(key, val string) string {
	if _, ok := sensitiveHeaders[strings.ToLower(key)]; ok && val != "" {
		return "[redacted]"
	}
	return val
}

// SafeHeadersFast renders the request headers with credentials redacted.
func SafeHeadersFast(ctx *fasthttp.RequestCtx) string {
	parts := make([]string, 0, ctx.Request.Header.Len())
	ctx.Request.Header.VisitAll(func(k, v []byte) {
		parts = append(parts, string(k)+"="+redactHeaderValue(string(k), string(v)))
	})
	return strings.Join(parts, "; ")
}

// LogRequestFast logs a finished request. Headers are included only when
// debug logging is on.
func LogRequestFast(ctx *fasthttp.RequestCtx, took time.Duration) {
	if Log == nil {
		return
	}
	args := []any{
		"method", string(ctx.Method()),
		"path", string(ctx.Path()),
		"status", ctx.Response.StatusCode(),
		"remote", ctx.RemoteIP().String(),
		"took", took,
	}
	if Log.Enabled(context.Background(), slog.LevelDebug) {
		Debug("http_request", append(args, "headers", SafeHeadersFast(ctx))...)
		return
	}
	Info("http_request", args...)
}
