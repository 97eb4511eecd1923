package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/catalog/api/transport"
	"github.com/fastygo/catalog/domain"
	"github.com/fastygo/catalog/pkg/httpcontext"
	"github.com/fastygo/catalog/pkg/logger"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type baseHandler struct {
	adapter *httpcontext.Adapter
	logger  *zap.Logger
}

func newBaseHandler(adapter *httpcontext.Adapter, logger *zap.Logger) baseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return baseHandler{adapter: adapter, logger: logger}
}

func (h baseHandler) requestContext(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	if h.adapter != nil {
		return h.adapter.Attach(ctx)
	}
	return context.WithCancel(context.Background())
}

func (h baseHandler) respondJSON(ctx *fasthttp.RequestCtx, status int, payload transport.Envelope) {
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	body, _ := json.Marshal(payload)
	ctx.SetBody(body)
}

func (h baseHandler) respondSuccess(ctx *fasthttp.RequestCtx, status int, data interface{}) {
	h.respondJSON(ctx, status, transport.NewSuccess(data, nil))
}

func (h baseHandler) respondList(ctx *fasthttp.RequestCtx, data interface{}, count int) {
	h.respondJSON(ctx, http.StatusOK, transport.NewList(data, count))
}

func (h baseHandler) respondError(ctx *fasthttp.RequestCtx, stdCtx context.Context, err error) {
	status, code := mapError(err)
	if status >= http.StatusInternalServerError {
		logger.WithRequestID(stdCtx, h.logger).Error("request failed",
			zap.ByteString("path", ctx.Path()),
			zap.String("code", code),
			zap.Error(err),
		)
	}
	h.respondJSON(ctx, status, transport.NewError(code, err.Error(), nil))
}

func (h baseHandler) respondInvalid(ctx *fasthttp.RequestCtx, message string) {
	h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), message, nil))
}

// decode unmarshals and validates the body, answering 400 on failure.
func (h baseHandler) decode(ctx *fasthttp.RequestCtx, dst interface{}) bool {
	if err := json.Unmarshal(ctx.PostBody(), dst); err != nil {
		h.respondInvalid(ctx, "invalid payload")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		h.respondInvalid(ctx, err.Error())
		return false
	}
	return true
}

func mapError(err error) (int, string) {
	switch {
	case domain.IsDomainError(err, domain.ErrCodeUnauthorized):
		return http.StatusUnauthorized, string(domain.ErrCodeUnauthorized)
	case domain.IsDomainError(err, domain.ErrCodeForbidden):
		return http.StatusForbidden, string(domain.ErrCodeForbidden)
	case domain.IsDomainError(err, domain.ErrCodeInvalid):
		return http.StatusBadRequest, string(domain.ErrCodeInvalid)
	case domain.IsDomainError(err, domain.ErrCodeNotFound):
		return http.StatusNotFound, string(domain.ErrCodeNotFound)
	case domain.IsDomainError(err, domain.ErrCodeInvalidMove):
		return http.StatusConflict, string(domain.ErrCodeInvalidMove)
	case domain.IsDomainError(err, domain.ErrCodeConflict):
		return http.StatusConflict, string(domain.ErrCodeConflict)
	case domain.IsDomainError(err, domain.ErrCodeStorage):
		return http.StatusServiceUnavailable, string(domain.ErrCodeStorage)
	default:
		return http.StatusInternalServerError, string(domain.ErrCodeInternal)
	}
}

func pathID(ctx *fasthttp.RequestCtx) string {
	id, _ := ctx.UserValue("id").(string)
	return id
}
