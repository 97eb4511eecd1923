package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/catalog/api/transport"
	"github.com/fastygo/catalog/pkg/httpcontext"
	"github.com/fastygo/catalog/usecase"
)

// EventRecorder counts item events by outcome.
type EventRecorder interface {
	RecordItemEvent(event string, err error)
}

type EventHandler struct {
	baseHandler
	dispatcher *usecase.Dispatcher
	recorder   EventRecorder
}

func NewEventHandler(dispatcher *usecase.Dispatcher, recorder EventRecorder, adapter *httpcontext.Adapter, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		baseHandler: newBaseHandler(adapter, logger),
		dispatcher:  dispatcher,
		recorder:    recorder,
	}
}

// @Summary Apply an item lifecycle event to category metrics
// @Tags events
// @Router /api/v1/item-events [post]
func (h *EventHandler) Handle(ctx *fasthttp.RequestCtx) {
	var req transport.ItemEventRequest
	if !h.decode(ctx, &req) {
		return
	}
	event := req.ToEvent()

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	err := h.dispatcher.Dispatch(stdCtx, event)
	if h.recorder != nil {
		h.recorder.RecordItemEvent(event.Name, err)
	}
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusAccepted, map[string]string{
		"event":       event.Name,
		"category_id": event.CategoryID,
		"item_id":     event.ItemID,
	})
}
