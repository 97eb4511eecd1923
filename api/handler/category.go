package handler

import (
	"net/http"
	"strconv"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/catalog/api/transport"
	"github.com/fastygo/catalog/domain"
	"github.com/fastygo/catalog/pkg/httpcontext"
	categoryUC "github.com/fastygo/catalog/usecase/category"
)

type CategoryHandler struct {
	baseHandler
	uc *categoryUC.UseCase
}

func NewCategoryHandler(uc *categoryUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *CategoryHandler {
	return &CategoryHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary List categories of one tier (roots by default)
// @Tags categories
// @Router /api/v1/categories [get]
func (h *CategoryHandler) ListCategories(ctx *fasthttp.RequestCtx) {
	tier := 0
	if raw := string(ctx.QueryArgs().Peek("tier")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.respondInvalid(ctx, "tier must be a non-negative integer")
			return
		}
		tier = parsed
	}
	activeOnly := parseBool(string(ctx.QueryArgs().Peek("active")), false)

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	list, err := h.uc.GetCategoriesByTier(stdCtx, tier, activeOnly)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondList(ctx, list, len(list))
}

// @Summary Featured categories by priority
// @Tags categories
// @Router /api/v1/categories/featured [get]
func (h *CategoryHandler) ListFeatured(ctx *fasthttp.RequestCtx) {
	limit := parseInt(string(ctx.QueryArgs().Peek("limit")), 0)

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	list, err := h.uc.GetFeaturedCategories(stdCtx, limit)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondList(ctx, list, len(list))
}

// @Summary Category tree
// @Tags categories
// @Router /api/v1/categories/tree [get]
func (h *CategoryHandler) GetTree(ctx *fasthttp.RequestCtx) {
	rootID := string(ctx.QueryArgs().Peek("root"))

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	tree, err := h.uc.BuildTree(stdCtx, rootID)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondList(ctx, tree, len(tree))
}

// @Summary Get category
// @Tags categories
// @Router /api/v1/categories/{id} [get]
func (h *CategoryHandler) GetCategory(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	c, err := h.uc.GetCategory(stdCtx, pathID(ctx))
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, c)
}

// @Summary Direct children
// @Tags categories
// @Router /api/v1/categories/{id}/children [get]
func (h *CategoryHandler) GetChildren(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	list, err := h.uc.GetChildren(stdCtx, pathID(ctx))
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondList(ctx, list, len(list))
}

// @Summary Create category
// @Tags categories
// @Router /api/v1/categories [post]
func (h *CategoryHandler) CreateCategory(ctx *fasthttp.RequestCtx) {
	var req transport.CreateCategoryRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	created, err := h.uc.CreateCategory(stdCtx, categoryUC.CreateInput{
		ID:               req.ID,
		Name:             req.Name,
		Slug:             req.Slug,
		ParentID:         req.ParentID,
		IsActive:         req.IsActive,
		Order:            req.Order,
		FeaturedPriority: req.FeaturedPriority,
	})
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, created)
}

// @Summary Move category
// @Tags categories
// @Router /api/v1/categories/{id}/parent [put]
func (h *CategoryHandler) MoveCategory(ctx *fasthttp.RequestCtx) {
	var req transport.MoveCategoryRequest
	if !h.decode(ctx, &req) {
		return
	}
	newParentID := ""
	if req.ParentID != nil {
		newParentID = *req.ParentID
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	moved, err := h.uc.MoveCategory(stdCtx, pathID(ctx), newParentID)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, moved)
}

// @Summary Feature or unfeature a category
// @Tags categories
// @Router /api/v1/categories/{id}/featured [put]
func (h *CategoryHandler) SetFeatured(ctx *fasthttp.RequestCtx) {
	var req transport.FeaturedRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	updated, err := h.uc.ToggleFeatured(stdCtx, pathID(ctx), *req.Featured)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, updated)
}

// @Summary Activate or deactivate a category
// @Tags categories
// @Router /api/v1/categories/{id}/active [put]
func (h *CategoryHandler) SetActive(ctx *fasthttp.RequestCtx) {
	var req transport.ActiveRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	updated, err := h.uc.SetActive(stdCtx, pathID(ctx), *req.Active)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, updated)
}

// @Summary Reorder siblings
// @Tags categories
// @Router /api/v1/categories/order [put]
func (h *CategoryHandler) Reorder(ctx *fasthttp.RequestCtx) {
	var req transport.ReorderRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.uc.ReorderSiblings(stdCtx, req.Items); err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, map[string]int{"updated": len(req.Items)})
}

// Settings exposes the featuring threshold to admin tooling.
func (h *CategoryHandler) Settings(ctx *fasthttp.RequestCtx) {
	h.respondSuccess(ctx, http.StatusOK, map[string]interface{}{
		"min_items_for_featured": h.uc.MinItemsForFeatured(),
		"item_kinds":             []domain.ItemKind{domain.ItemKindProduct, domain.ItemKindAuction},
	})
}

func parseInt(value string, fallback int) int {
	if v, err := strconv.Atoi(value); err == nil {
		return v
	}
	return fallback
}

func parseBool(value string, fallback bool) bool {
	if v, err := strconv.ParseBool(value); err == nil {
		return v
	}
	return fallback
}
