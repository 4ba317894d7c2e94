package api

import (
	"errors"

	"github.com/valyala/fasthttp"

	respond "chatzalo/pkg/api/router"
	"chatzalo/pkg/blob"
	"chatzalo/pkg/coordinator"
	"chatzalo/pkg/router"
)

func writeBlobError(ctx *fasthttp.RequestCtx, err error) {
	switch {
	case errors.Is(err, blob.ErrNotFound):
		respond.WriteJSONError(ctx, fasthttp.StatusNotFound, "blob not found")
	case errors.Is(err, blob.ErrTooLarge):
		respond.WriteJSONError(ctx, fasthttp.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, blob.ErrEmpty):
		respond.WriteJSONError(ctx, fasthttp.StatusBadRequest, err.Error())
	default:
		respond.WriteError(ctx, &coordinator.PersistenceError{Op: "blob", Err: err})
	}
}

// uploadBlob stores the raw request body under its Content-Type.
func (s *Server) uploadBlob(ctx *fasthttp.RequestCtx, _ coordinator.Actor) {
	obj, err := s.blobs.Upload(ctx, ctx.PostBody(), string(ctx.Request.Header.ContentType()))
	if err != nil {
		writeBlobError(ctx, err)
		return
	}
	respond.WriteJSON(ctx, fasthttp.StatusCreated, obj)
}

func (s *Server) downloadBlob(ctx *fasthttp.RequestCtx) {
	obj, data, err := s.blobs.Download(ctx, router.Param(ctx, "key"))
	if err != nil {
		writeBlobError(ctx, err)
		return
	}
	ctx.SetContentType(obj.ContentType)
	ctx.Response.Header.Set("Cache-Control", "public, max-age=31536000, immutable")
	ctx.SetBody(data)
}
