// Package router holds the JSON request and response helpers shared by the
// REST handlers.
package router

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"

	"chatzalo/pkg/coordinator"
	"chatzalo/pkg/logger"
	"chatzalo/pkg/models"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// WriteJSON writes v with the given status.
func WriteJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	if err := json.NewEncoder(ctx).Encode(v); err != nil {
		logger.Error("http_encode_failed", "path", string(ctx.Path()), "error", err)
	}
}

// WriteJSONError writes {"error": message}.
func WriteJSONError(ctx *fasthttp.RequestCtx, status int, message string) {
	WriteJSON(ctx, status, map[string]string{"error": message})
}

// StatusFor maps a domain error to an HTTP status.
func StatusFor(err error) int {
	switch coordinator.Code(err) {
	case coordinator.CodeOK:
		return fasthttp.StatusOK
	case coordinator.CodeNotFound, coordinator.CodeMessageNotFound:
		return fasthttp.StatusNotFound
	case coordinator.CodeForbidden, coordinator.CodeRecallWindowExpired:
		return fasthttp.StatusForbidden
	case coordinator.CodeValidation:
		return fasthttp.StatusBadRequest
	default:
		return fasthttp.StatusInternalServerError
	}
}

// WriteError maps err to a status and writes it. Internal failures are
// logged and not echoed to the client.
func WriteError(ctx *fasthttp.RequestCtx, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == fasthttp.StatusInternalServerError {
		logger.Error("http_request_failed", "method", string(ctx.Method()), "path", string(ctx.Path()), "error", err)
		msg = "internal error"
	}
	WriteJSONError(ctx, status, msg)
}

var ErrEmptyBody = errors.New("request body is required")

// Bind decodes the JSON body into v. Decode failures are validation errors.
func Bind(ctx *fasthttp.RequestCtx, v any) error {
	body := ctx.PostBody()
	if len(body) == 0 {
		return &coordinator.ValidationError{Field: "body", Reason: ErrEmptyBody.Error()}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &coordinator.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}

// Query returns a trimmed query parameter.
func Query(ctx *fasthttp.RequestCtx, key string) string {
	return strings.TrimSpace(string(ctx.QueryArgs().Peek(key)))
}

// ParsePagination reads limit and cursor from the query string. The limit
// defaults to 50 and is capped at 500.
func ParsePagination(ctx *fasthttp.RequestCtx) (models.PaginationRequest, error) {
	req := models.PaginationRequest{Limit: defaultLimit, Cursor: Query(ctx, "cursor")}
	if raw := Query(ctx, "limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return req, &coordinator.ValidationError{Field: "limit", Reason: "must be a positive integer"}
		}
		req.Limit = n
	}
	if req.Limit > maxLimit {
		req.Limit = maxLimit
	}
	return req, nil
}
