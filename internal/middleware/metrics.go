package middleware

import (
	"time"

	"github.com/valyala/fasthttp"
)

// RequestObserver receives one observation per served request.
type RequestObserver interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
}

// Instrument reports the request under the route pattern, not the raw path,
// to keep label cardinality bounded.
func Instrument(observer RequestObserver, route string, next fasthttp.RequestHandler) fasthttp.RequestHandler {
	if observer == nil {
		return next
	}
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		next(ctx)
		observer.ObserveRequest(string(ctx.Method()), route, ctx.Response.StatusCode(), time.Since(start))
	}
}
