package router

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/fastygo/catalog/api/handler"
	"github.com/fastygo/catalog/internal/middleware"
)

type Handlers struct {
	Category *apiHandler.CategoryHandler
	Events   *apiHandler.EventHandler
	Health   *apiHandler.HealthHandler
	Metrics  fasthttp.RequestHandler
}

// Middleware wraps a handler; Admin guards catalog mutations and Collaborator
// guards the item event intake.
type Middleware func(fasthttp.RequestHandler) fasthttp.RequestHandler

type Options struct {
	Admin        Middleware
	Collaborator Middleware
	Observer     middleware.RequestObserver
}

func New(handlers Handlers, opts Options) *router.Router {
	r := router.New()

	admin := orPass(opts.Admin)
	collaborator := orPass(opts.Collaborator)
	route := func(method, path string, h fasthttp.RequestHandler) {
		r.Handle(method, path, middleware.Instrument(opts.Observer, path, h))
	}

	route(fasthttp.MethodGet, "/health", handlers.Health.Check)
	if handlers.Metrics != nil {
		r.GET("/metrics", handlers.Metrics)
	}

	// Public reads
	route(fasthttp.MethodGet, "/api/v1/categories", handlers.Category.ListCategories)
	route(fasthttp.MethodGet, "/api/v1/categories/featured", handlers.Category.ListFeatured)
	route(fasthttp.MethodGet, "/api/v1/categories/tree", handlers.Category.GetTree)
	route(fasthttp.MethodGet, "/api/v1/categories/{id}", handlers.Category.GetCategory)
	route(fasthttp.MethodGet, "/api/v1/categories/{id}/children", handlers.Category.GetChildren)
	route(fasthttp.MethodGet, "/api/v1/settings", handlers.Category.Settings)

	// Admin
	route(fasthttp.MethodPost, "/api/v1/categories", admin(handlers.Category.CreateCategory))
	route(fasthttp.MethodPut, "/api/v1/categories/order", admin(handlers.Category.Reorder))
	route(fasthttp.MethodPut, "/api/v1/categories/{id}/parent", admin(handlers.Category.MoveCategory))
	route(fasthttp.MethodPut, "/api/v1/categories/{id}/featured", admin(handlers.Category.SetFeatured))
	route(fasthttp.MethodPut, "/api/v1/categories/{id}/active", admin(handlers.Category.SetActive))

	// Catalog collaborator
	route(fasthttp.MethodPost, "/api/v1/item-events", collaborator(handlers.Events.Handle))

	return r
}

func orPass(m Middleware) Middleware {
	if m == nil {
		return func(next fasthttp.RequestHandler) fasthttp.RequestHandler { return next }
	}
	return m
}
