package app

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/fastygo/catalog/domain"
	"github.com/fastygo/catalog/internal/config"
	"github.com/fastygo/catalog/internal/middleware"
	"github.com/fastygo/catalog/internal/services/lifecycle"
	"github.com/fastygo/catalog/repository"
)

const secret = "test-secret"

type envelope struct {
	Status string          `json:"status"`
	Code   string          `json:"code"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error"`
	Meta   map[string]int  `json:"meta"`
}

type harness struct {
	t      *testing.T
	app    *App
	admin  string
	collab string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := &config.Config{
		AppName: "catalog",
		HTTP:    config.HTTPConfig{EnableMetrics: true},
		Store:   config.StoreConfig{Driver: config.StoreDriverMemory},
		JWT:     config.JWTConfig{Secret: secret, Issuer: "catalog"},
		Catalog: config.CatalogConfig{MinItemsForFeatured: 5, HealthInterval: 10 * time.Millisecond},
		Audit:   config.AuditConfig{Enabled: true, Schedule: "@every 1h"},
		Context: config.ContextConfig{RequestTimeout: time.Second},
	}
	manager := lifecycle.New(time.Second, nil)
	application, err := Build(context.Background(), cfg, manager, nil)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, manager.Shutdown(context.Background())) })

	return &harness{
		t:      t,
		app:    application,
		admin:  token(t, middleware.RoleAdmin),
		collab: token(t, middleware.RoleCollaborator),
	}
}

func token(t *testing.T, role string) string {
	t.Helper()
	claims := middleware.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   role + "-1",
			Issuer:    "catalog",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func (h *harness) do(method, path, bearer string, body interface{}) (int, envelope, []byte) {
	h.t.Helper()
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	if bearer != "" {
		ctx.Request.Header.Set("Authorization", "Bearer "+bearer)
	}
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		ctx.Request.SetBody(raw)
		ctx.Request.Header.SetContentType("application/json")
	}

	h.app.Router.Handler(ctx)

	raw := append([]byte(nil), ctx.Response.Body()...)
	var env envelope
	_ = json.Unmarshal(raw, &env)
	return ctx.Response.StatusCode(), env, raw
}

func (h *harness) category(id string) domain.Category {
	h.t.Helper()
	status, env, _ := h.do(fasthttp.MethodGet, "/api/v1/categories/"+id, "", nil)
	require.Equal(h.t, fasthttp.StatusOK, status)
	var c domain.Category
	require.NoError(h.t, json.Unmarshal(env.Data, &c))
	return c
}

func TestCatalogOverHTTP(t *testing.T) {
	h := newHarness(t)

	status, env, _ := h.do(fasthttp.MethodPost, "/api/v1/categories", "", map[string]string{"name": "Electronics"})
	assert.Equal(t, fasthttp.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", env.Code)

	status, _, _ = h.do(fasthttp.MethodPost, "/api/v1/categories", h.collab, map[string]string{"name": "Electronics"})
	assert.Equal(t, fasthttp.StatusForbidden, status)

	status, _, _ = h.do(fasthttp.MethodPost, "/api/v1/categories", h.admin, map[string]string{"name": "Electronics"})
	require.Equal(t, fasthttp.StatusCreated, status)
	status, _, _ = h.do(fasthttp.MethodPost, "/api/v1/categories", h.admin, map[string]string{"name": "Phones", "parent_id": "electronics"})
	require.Equal(t, fasthttp.StatusCreated, status)

	status, env, _ = h.do(fasthttp.MethodPost, "/api/v1/categories", h.admin, map[string]string{"name": "Electronics"})
	assert.Equal(t, fasthttp.StatusConflict, status)
	assert.Equal(t, "CONFLICT", env.Code)

	status, _, _ = h.do(fasthttp.MethodPost, "/api/v1/item-events", h.collab, map[string]string{
		"event": domain.EventItemAssigned, "category_id": "electronics-phones", "kind": "product", "item_id": "prod1",
	})
	require.Equal(t, fasthttp.StatusAccepted, status)
	assert.EqualValues(t, 1, h.category("electronics").Metrics.TotalItemCount)
	assert.EqualValues(t, 0, h.category("electronics").Metrics.ProductCount)

	status, env, _ = h.do(fasthttp.MethodPost, "/api/v1/item-events", h.collab, map[string]string{
		"event": domain.EventItemAssigned, "category_id": "electronics-phones", "kind": "service", "item_id": "x",
	})
	assert.Equal(t, fasthttp.StatusBadRequest, status)
	assert.Equal(t, "INVALID", env.Code)

	status, env, _ = h.do(fasthttp.MethodPut, "/api/v1/categories/electronics-phones/featured", h.admin, map[string]bool{"featured": true})
	assert.Equal(t, fasthttp.StatusBadRequest, status)
	assert.Equal(t, "INVALID", env.Code)

	for i := 2; i <= 5; i++ {
		status, _, _ = h.do(fasthttp.MethodPost, "/api/v1/item-events", h.collab, map[string]string{
			"event": domain.EventItemAssigned, "category_id": "electronics-phones", "kind": "product", "item_id": fmt.Sprintf("prod%d", i),
		})
		require.Equal(t, fasthttp.StatusAccepted, status)
	}
	status, _, _ = h.do(fasthttp.MethodPut, "/api/v1/categories/electronics-phones/featured", h.admin, map[string]bool{"featured": true})
	assert.Equal(t, fasthttp.StatusOK, status)

	status, env, _ = h.do(fasthttp.MethodGet, "/api/v1/categories/featured", "", nil)
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.Equal(t, 1, env.Meta["count"])

	status, _, _ = h.do(fasthttp.MethodPost, "/api/v1/categories", h.admin, map[string]string{"name": "Smartphones", "parent_id": "electronics-phones"})
	require.Equal(t, fasthttp.StatusCreated, status)
	status, env, _ = h.do(fasthttp.MethodPut, "/api/v1/categories/electronics-phones/parent", h.admin, map[string]string{"parent_id": "electronics-phones-smartphones"})
	assert.Equal(t, fasthttp.StatusConflict, status)
	assert.Equal(t, "INVALID_MOVE", env.Code)

	status, env, _ = h.do(fasthttp.MethodGet, "/api/v1/categories/tree?root=electronics", "", nil)
	require.Equal(t, fasthttp.StatusOK, status)
	var tree []*domain.TreeNode
	require.NoError(t, json.Unmarshal(env.Data, &tree))
	require.Len(t, tree, 1)
	require.Len(t, tree[0].Children, 1)
	assert.Equal(t, "electronics-phones-smartphones", tree[0].Children[0].Children[0].ID)

	status, env, _ = h.do(fasthttp.MethodGet, "/api/v1/categories/electronics/children", "", nil)
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.Equal(t, 1, env.Meta["count"])

	status, env, _ = h.do(fasthttp.MethodGet, "/api/v1/categories/missing", "", nil)
	assert.Equal(t, fasthttp.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Code)

	status, _, _ = h.do(fasthttp.MethodGet, "/api/v1/categories?tier=x", "", nil)
	assert.Equal(t, fasthttp.StatusBadRequest, status)

	all, err := h.app.Store.List(context.Background(), repository.CategoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, domain.CheckInvariants(all, 5))
}

func TestReorderAndActiveOverHTTP(t *testing.T) {
	h := newHarness(t)
	for _, name := range []string{"Home", "Auto"} {
		status, _, _ := h.do(fasthttp.MethodPost, "/api/v1/categories", h.admin, map[string]string{"name": name})
		require.Equal(t, fasthttp.StatusCreated, status)
	}

	status, _, _ := h.do(fasthttp.MethodPut, "/api/v1/categories/order", h.admin, map[string]interface{}{
		"items": []domain.OrderPair{{ID: "home", Order: 1}, {ID: "auto", Order: 2}},
	})
	require.Equal(t, fasthttp.StatusOK, status)

	status, _, _ = h.do(fasthttp.MethodPut, "/api/v1/categories/auto/active", h.admin, map[string]bool{"active": false})
	require.Equal(t, fasthttp.StatusOK, status)

	status, env, _ := h.do(fasthttp.MethodGet, "/api/v1/categories?active=true", "", nil)
	require.Equal(t, fasthttp.StatusOK, status)
	var roots []domain.Category
	require.NoError(t, json.Unmarshal(env.Data, &roots))
	require.Len(t, roots, 1)
	assert.Equal(t, "home", roots[0].ID)

	status, _, _ = h.do(fasthttp.MethodPut, "/api/v1/categories/order", h.admin, map[string]interface{}{"items": []domain.OrderPair{}})
	assert.Equal(t, fasthttp.StatusBadRequest, status)

	status, _, _ = h.do(fasthttp.MethodPut, "/api/v1/categories/home/active", h.admin, map[string]string{})
	assert.Equal(t, fasthttp.StatusBadRequest, status)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	h := newHarness(t)

	assert.Eventually(t, func() bool {
		status, _, _ := h.do(fasthttp.MethodGet, "/health", "", nil)
		return status == fasthttp.StatusOK
	}, time.Second, 10*time.Millisecond)

	status, _, _ := h.do(fasthttp.MethodPost, "/api/v1/categories", h.admin, map[string]string{"name": "Garden"})
	require.Equal(t, fasthttp.StatusCreated, status)

	status, _, body := h.do(fasthttp.MethodGet, "/metrics", "", nil)
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.Contains(t, string(body), `catalog_category_mutations_total{operation="create_category",status="ok"} 1`)
	assert.Contains(t, string(body), `catalog_http_requests_total`)
}
