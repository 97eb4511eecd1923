package handler

import (
	"net/http"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/catalog/api/transport"
	"github.com/fastygo/catalog/internal/infrastructure/monitor"
	"github.com/fastygo/catalog/pkg/httpcontext"
)

type HealthHandler struct {
	baseHandler
	monitor *monitor.Monitor
}

func NewHealthHandler(mon *monitor.Monitor, adapter *httpcontext.Adapter, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		baseHandler: newBaseHandler(adapter, logger),
		monitor:     mon,
	}
}

// @Summary Health check
// @Tags health
// @Router /health [get]
func (h *HealthHandler) Check(ctx *fasthttp.RequestCtx) {
	status := h.monitor.GetStatus()
	services := map[string]interface{}{
		"store": map[string]interface{}{
			"driver": status.StoreDriver,
			"online": status.Store,
		},
	}
	if status.RedisEnabled {
		services["redis"] = status.Redis
	}
	payload := map[string]interface{}{
		"timestamp":  time.Now().UTC(),
		"last_check": status.LastCheck,
		"services":   services,
	}

	if status.Store {
		h.respondSuccess(ctx, http.StatusOK, payload)
		return
	}
	h.respondJSON(ctx, http.StatusServiceUnavailable, transport.NewError("DEGRADED", "dependencies unhealthy", payload))
}
