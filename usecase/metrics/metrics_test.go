package metrics

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/catalog/domain"
	"github.com/fastygo/catalog/repository"
	"github.com/fastygo/catalog/repository/memory"
	"github.com/fastygo/catalog/repository/storetest"
	"github.com/fastygo/catalog/usecase"
)

const minItems = 5

type countingRecorder struct {
	ops    []string
	failed int
}

func (r *countingRecorder) RecordMutation(operation string, err error) {
	r.ops = append(r.ops, operation)
	if err != nil {
		r.failed++
	}
}

// seedChain creates root > mid > leaf.
func seedChain(t *testing.T, store repository.CategoryStore) (root, mid, leaf *domain.Category) {
	t.Helper()
	root = storetest.Seed(t, store, "Root", nil)
	mid = storetest.Seed(t, store, "Mid", root)
	leaf = storetest.Seed(t, store, "Leaf", mid)
	return root, mid, leaf
}

func get(t *testing.T, store repository.CategoryStore, id string) *domain.Category {
	t.Helper()
	c, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	return c
}

func TestUpdateMetricsPropagatesToAncestors(t *testing.T) {
	store := memory.NewCategoryStore()
	rec := &countingRecorder{}
	agg := New(store, nil, rec, minItems, nil)
	root, mid, leaf := seedChain(t, store)

	require.NoError(t, agg.UpdateMetrics(context.Background(), leaf.ID, 2, 3, "p1"))

	l := get(t, store, leaf.ID)
	assert.EqualValues(t, 2, l.Metrics.ProductCount)
	assert.EqualValues(t, 3, l.Metrics.AuctionCount)
	assert.EqualValues(t, 5, l.Metrics.TotalItemCount)
	assert.Equal(t, []string{"p1"}, l.Metrics.ProductIDs)

	for _, id := range []string{root.ID, mid.ID} {
		a := get(t, store, id)
		assert.EqualValues(t, 0, a.Metrics.ProductCount, id)
		assert.EqualValues(t, 0, a.Metrics.AuctionCount, id)
		assert.EqualValues(t, 2, a.Metrics.TotalProductCount, id)
		assert.EqualValues(t, 3, a.Metrics.TotalAuctionCount, id)
		assert.EqualValues(t, 5, a.Metrics.TotalItemCount, id)
		assert.Empty(t, a.Metrics.ProductIDs, id)
		assert.False(t, a.Metrics.LastUpdated.IsZero(), id)
	}
	assert.Equal(t, []string{"update_metrics"}, rec.ops)
}

func TestUpdateMetricsRoundTrip(t *testing.T) {
	store := memory.NewCategoryStore()
	agg := New(store, nil, nil, minItems, nil)
	root, _, leaf := seedChain(t, store)
	ctx := context.Background()

	beforeLeaf := get(t, store, leaf.ID).Metrics
	beforeRoot := get(t, store, root.ID).Metrics

	require.NoError(t, agg.UpdateMetrics(ctx, leaf.ID, 1, 0, "p1"))
	assert.True(t, get(t, store, leaf.ID).Metrics.HasProduct("p1"))
	require.NoError(t, agg.UpdateMetrics(ctx, leaf.ID, -1, 0, "p1"))

	afterLeaf := get(t, store, leaf.ID).Metrics
	afterRoot := get(t, store, root.ID).Metrics
	assert.Equal(t, beforeLeaf.ProductCount, afterLeaf.ProductCount)
	assert.Equal(t, beforeLeaf.TotalProductCount, afterLeaf.TotalProductCount)
	assert.Equal(t, beforeLeaf.TotalItemCount, afterLeaf.TotalItemCount)
	assert.False(t, afterLeaf.HasProduct("p1"))
	assert.Equal(t, beforeRoot.TotalItemCount, afterRoot.TotalItemCount)
}

func TestUpdateMetricsUnknownCategory(t *testing.T) {
	store := memory.NewCategoryStore()
	agg := New(store, nil, nil, minItems, nil)

	err := agg.UpdateMetrics(context.Background(), "missing", 1, 0, "")
	assert.ErrorIs(t, err, domain.ErrCategoryNotFound)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeNotFound))
}

func TestRandomDeltasKeepTotalsConsistent(t *testing.T) {
	store := memory.NewCategoryStore()
	agg := New(store, nil, nil, minItems, nil)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	nodes := []*domain.Category{storetest.Seed(t, store, "R0", nil), storetest.Seed(t, store, "R1", nil)}
	for i := 0; i < 15; i++ {
		parent := nodes[rng.Intn(len(nodes))]
		nodes = append(nodes, storetest.Seed(t, store, fmt.Sprintf("N%d", i), parent))
	}

	for i := 0; i < 300; i++ {
		target := nodes[rng.Intn(len(nodes))]
		require.NoError(t, agg.UpdateMetrics(ctx, target.ID, int64(rng.Intn(5)-2), int64(rng.Intn(5)-2), ""))
	}

	all, err := store.List(ctx, repository.CategoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, domain.CheckInvariants(all, minItems))
}

func TestOnItemReassigned(t *testing.T) {
	store := memory.NewCategoryStore()
	agg := New(store, nil, nil, minItems, nil)
	ctx := context.Background()

	root, mid, leaf := seedChain(t, store)
	other := storetest.Seed(t, store, "Other", root)

	require.NoError(t, agg.OnItemAssigned(ctx, leaf.ID, domain.ItemKindProduct, "p1"))
	require.NoError(t, agg.OnItemReassigned(ctx, leaf.ID, other.ID, domain.ItemKindProduct, "p1"))

	assert.False(t, get(t, store, leaf.ID).Metrics.HasProduct("p1"))
	assert.True(t, get(t, store, other.ID).Metrics.HasProduct("p1"))
	assert.EqualValues(t, 0, get(t, store, mid.ID).Metrics.TotalItemCount)
	assert.EqualValues(t, 1, get(t, store, other.ID).Metrics.TotalItemCount)
	assert.EqualValues(t, 1, get(t, store, root.ID).Metrics.TotalItemCount)

	err := agg.OnItemReassigned(ctx, other.ID, "missing", domain.ItemKindProduct, "p1")
	assert.ErrorIs(t, err, domain.ErrCategoryNotFound)
	assert.EqualValues(t, 1, get(t, store, other.ID).Metrics.TotalItemCount)

	all, err := store.List(ctx, repository.CategoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, domain.CheckInvariants(all, minItems))
}

func TestInvalidKindRejected(t *testing.T) {
	agg := New(memory.NewCategoryStore(), nil, nil, minItems, nil)
	err := agg.OnItemAssigned(context.Background(), "x", domain.ItemKind("service"), "s1")
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}

type failingCache struct{ invalidations int }

func (c *failingCache) Load(context.Context, string) ([]*domain.TreeNode, int64, bool, error) {
	return nil, 0, false, nil
}

func (c *failingCache) Store(context.Context, string, int64, []*domain.TreeNode) error { return nil }

func (c *failingCache) Invalidate(context.Context) error {
	c.invalidations++
	return errors.New("cache offline")
}

func TestCacheFailureDoesNotFailUpdate(t *testing.T) {
	store := memory.NewCategoryStore()
	cache := &failingCache{}
	agg := New(store, cache, nil, minItems, nil)
	_, _, leaf := seedChain(t, store)

	require.NoError(t, agg.UpdateMetrics(context.Background(), leaf.ID, 1, 0, ""))
	assert.Equal(t, 1, cache.invalidations)
}

func TestRegisterHandlersRoutesEvents(t *testing.T) {
	store := memory.NewCategoryStore()
	agg := New(store, nil, nil, minItems, nil)
	d := usecase.NewDispatcher()
	agg.RegisterHandlers(d)
	ctx := context.Background()

	root, _, leaf := seedChain(t, store)

	require.NoError(t, d.Dispatch(ctx, domain.ItemEvent{Name: domain.EventItemAssigned, CategoryID: leaf.ID, Kind: domain.ItemKindAuction, ItemID: "a1"}))
	assert.EqualValues(t, 1, get(t, store, root.ID).Metrics.TotalAuctionCount)

	require.NoError(t, d.Dispatch(ctx, domain.ItemEvent{Name: domain.EventItemReassigned, FromCategoryID: leaf.ID, CategoryID: root.ID, Kind: domain.ItemKindAuction, ItemID: "a1"}))
	assert.EqualValues(t, 1, get(t, store, root.ID).Metrics.AuctionCount)
	assert.EqualValues(t, 0, get(t, store, leaf.ID).Metrics.TotalAuctionCount)

	require.NoError(t, d.Dispatch(ctx, domain.ItemEvent{Name: domain.EventItemRemoved, CategoryID: root.ID, Kind: domain.ItemKindAuction, ItemID: "a1"}))
	assert.EqualValues(t, 0, get(t, store, root.ID).Metrics.TotalItemCount)
}

// interleavedStore commits other work right before the next commit.
type interleavedStore struct {
	repository.CategoryStore
	before func()
}

func (s *interleavedStore) Commit(ctx context.Context, uow *repository.UnitOfWork) error {
	if hook := s.before; hook != nil {
		s.before = nil
		hook()
	}
	return s.CategoryStore.Commit(ctx, uow)
}

func TestUpdateMetricsFailsWhenCategoryMoves(t *testing.T) {
	store := &interleavedStore{CategoryStore: memory.NewCategoryStore()}
	agg := New(store, nil, nil, minItems, nil)
	ctx := context.Background()
	root, mid, leaf := seedChain(t, store)

	// leaf is re-parented directly under root between the read and the commit
	store.before = func() {
		require.NoError(t, store.CategoryStore.Commit(ctx, repository.NewUnitOfWork().
			SetHierarchy(leaf.ID, domain.ComputeHierarchy(root, leaf.ID)).
			RemoveMember(mid.ID, repository.SetChildren, leaf.ID).
			AddMember(root.ID, repository.SetChildren, leaf.ID)))
	}

	err := agg.OnItemAssigned(ctx, leaf.ID, domain.ItemKindProduct, "p1")
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeConflict))
	assert.ErrorIs(t, err, domain.ErrConcurrentChange)

	for _, id := range []string{root.ID, mid.ID, leaf.ID} {
		assert.Zero(t, get(t, store, id).Metrics.TotalItemCount, id)
	}
	all, err := store.List(ctx, repository.CategoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, domain.CheckInvariants(all, minItems))

	require.NoError(t, agg.OnItemAssigned(ctx, leaf.ID, domain.ItemKindProduct, "p1"))
	assert.EqualValues(t, 1, get(t, store, root.ID).Metrics.TotalItemCount)
	assert.Zero(t, get(t, store, mid.ID).Metrics.TotalItemCount)
}
