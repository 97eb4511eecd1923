// Package storetest holds the behaviour every repository.CategoryStore must
// show. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/catalog/domain"
	"github.com/fastygo/catalog/repository"
)

// Factory returns an empty store; cleanup is registered on t.
type Factory func(t *testing.T) repository.CategoryStore

const minFeatured = 3

// Run executes the conformance suite against stores produced by factory.
func Run(t *testing.T, factory Factory) {
	t.Run("InsertAndGet", func(t *testing.T) { testInsertAndGet(t, factory(t)) })
	t.Run("InsertDuplicateRollsBack", func(t *testing.T) { testInsertDuplicateRollsBack(t, factory(t)) })
	t.Run("MissingRecordRollsBack", func(t *testing.T) { testMissingRecordRollsBack(t, factory(t)) })
	t.Run("Counters", func(t *testing.T) { testCounters(t, factory(t)) })
	t.Run("Sets", func(t *testing.T) { testSets(t, factory(t)) })
	t.Run("Featured", func(t *testing.T) { testFeatured(t, factory(t)) })
	t.Run("Flags", func(t *testing.T) { testFlags(t, factory(t)) })
	t.Run("ListFilters", func(t *testing.T) { testListFilters(t, factory(t)) })
	t.Run("ConcurrentIncrements", func(t *testing.T) { testConcurrentIncrements(t, factory(t)) })
	t.Run("Guards", func(t *testing.T) { testGuards(t, factory(t)) })
}

// Seed inserts a category under parent (nil for a root) together with the
// parent link, the way the category use case does.
func Seed(t *testing.T, store repository.CategoryStore, name string, parent *domain.Category) *domain.Category {
	t.Helper()
	ctx := context.Background()

	id := domain.NewCategoryID(name, parent)
	c := domain.NewCategory(id, name, domain.Slugify(name), domain.ComputeHierarchy(parent, id), time.Now())
	uow := repository.NewUnitOfWork().Insert(c)
	if parent != nil {
		uow.AddMember(parent.ID, repository.SetChildren, id)
	}
	require.NoError(t, store.Commit(ctx, uow))

	stored, err := store.Get(ctx, id)
	require.NoError(t, err)
	return stored
}

func testInsertAndGet(t *testing.T, store repository.CategoryStore) {
	ctx := context.Background()
	root := Seed(t, store, "Electronics", nil)
	child := Seed(t, store, "Phones", root)

	assert.Equal(t, "electronics", root.ID)
	assert.Equal(t, 0, root.Tier)
	assert.Empty(t, root.ParentIDs)
	assert.Equal(t, root.ID, root.RootID)

	assert.Equal(t, 1, child.Tier)
	assert.Equal(t, []string{root.ID}, child.ParentIDs)
	assert.Equal(t, root.ID, child.RootID)
	assert.True(t, child.IsLeaf)
	assert.True(t, child.IsActive)

	root, err := store.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{child.ID}, root.ChildrenIDs)
	assert.False(t, root.IsLeaf)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrCategoryNotFound)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeNotFound))
}

func testInsertDuplicateRollsBack(t *testing.T, store repository.CategoryStore) {
	ctx := context.Background()
	root := Seed(t, store, "Books", nil)
	Seed(t, store, "Fiction", root)

	dup := domain.NewCategory("books-fiction", "Fiction", "fiction", domain.ComputeHierarchy(root, "books-fiction"), time.Now())
	uow := repository.NewUnitOfWork().
		AddMember(root.ID, repository.SetChildren, "books-poetry").
		Insert(dup)

	err := store.Commit(ctx, uow)
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeConflict))

	root, err = store.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"books-fiction"}, root.ChildrenIDs, "earlier op of a failed unit of work must not persist")
}

func testMissingRecordRollsBack(t *testing.T, store repository.CategoryStore) {
	ctx := context.Background()
	root := Seed(t, store, "Garden", nil)

	uow := repository.NewUnitOfWork().
		IncrementOwn(root.ID, domain.MetricsDelta{Products: 1}, minFeatured).
		IncrementTotals("ghost", domain.MetricsDelta{Products: 1}, minFeatured)

	err := store.Commit(ctx, uow)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCategoryNotFound)

	root, err = store.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.Zero(t, root.Metrics.ProductCount)
	assert.Zero(t, root.Metrics.TotalItemCount)
}

func testCounters(t *testing.T, store repository.CategoryStore) {
	ctx := context.Background()
	root := Seed(t, store, "Toys", nil)

	require.NoError(t, store.IncrementOwn(ctx, root.ID, domain.MetricsDelta{Products: 2, Auctions: 1}, minFeatured))
	require.NoError(t, store.IncrementTotals(ctx, root.ID, domain.MetricsDelta{Products: 1}, minFeatured))

	got, err := store.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Metrics.ProductCount)
	assert.Equal(t, int64(1), got.Metrics.AuctionCount)
	assert.Equal(t, int64(3), got.Metrics.TotalProductCount)
	assert.Equal(t, int64(1), got.Metrics.TotalAuctionCount)
	assert.Equal(t, int64(4), got.Metrics.TotalItemCount)
	assert.False(t, got.Metrics.LastUpdated.IsZero())

	err = store.IncrementOwn(ctx, "ghost", domain.MetricsDelta{Products: 1}, minFeatured)
	assert.ErrorIs(t, err, domain.ErrCategoryNotFound)
}

func testSets(t *testing.T, store repository.CategoryStore) {
	ctx := context.Background()
	root := Seed(t, store, "Music", nil)

	require.NoError(t, store.AddMember(ctx, root.ID, repository.SetProducts, "p1"))
	require.NoError(t, store.AddMember(ctx, root.ID, repository.SetProducts, "p1"))
	require.NoError(t, store.AddMember(ctx, root.ID, repository.SetProducts, "p2"))
	got, err := store.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p1", "p2"}, got.Metrics.ProductIDs)

	require.NoError(t, store.RemoveMember(ctx, root.ID, repository.SetProducts, "p1"))
	require.NoError(t, store.RemoveMember(ctx, root.ID, repository.SetProducts, "absent"))
	got, err = store.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, got.Metrics.ProductIDs)

	require.NoError(t, store.AddMember(ctx, root.ID, repository.SetChildren, "music-jazz"))
	got, err = store.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.False(t, got.IsLeaf)

	require.NoError(t, store.RemoveMember(ctx, root.ID, repository.SetChildren, "music-jazz"))
	got, err = store.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.True(t, got.IsLeaf)
	assert.Empty(t, got.ChildrenIDs)
}

func testFeatured(t *testing.T, store repository.CategoryStore) {
	ctx := context.Background()
	root := Seed(t, store, "Sports", nil)

	err := store.Commit(ctx, repository.NewUnitOfWork().SetFeatured(root.ID, true, minFeatured))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFeaturable)

	require.NoError(t, store.IncrementOwn(ctx, root.ID, domain.MetricsDelta{Products: minFeatured}, minFeatured))
	require.NoError(t, store.Commit(ctx, repository.NewUnitOfWork().SetFeatured(root.ID, true, minFeatured)))

	got, err := store.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.True(t, got.IsFeatured)

	// dropping below the threshold demotes in the same write
	require.NoError(t, store.IncrementOwn(ctx, root.ID, domain.MetricsDelta{Products: -1}, minFeatured))
	got, err = store.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.False(t, got.IsFeatured)

	require.NoError(t, store.Commit(ctx, repository.NewUnitOfWork().SetFeatured(root.ID, false, minFeatured)))

	err = store.Commit(ctx, repository.NewUnitOfWork().SetFeatured("ghost", false, minFeatured))
	assert.ErrorIs(t, err, domain.ErrCategoryNotFound)
}

func testFlags(t *testing.T, store repository.CategoryStore) {
	ctx := context.Background()
	root := Seed(t, store, "Office", nil)

	uow := repository.NewUnitOfWork().
		SetActive(root.ID, false).
		SetOrder(root.ID, 7).
		SetHierarchy(root.ID, domain.Hierarchy{Tier: 0, ParentIDs: []string{}, RootID: root.ID})
	require.NoError(t, store.Commit(ctx, uow))

	got, err := store.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, 7, got.Order)
}

func testListFilters(t *testing.T, store repository.CategoryStore) {
	ctx := context.Background()
	home := Seed(t, store, "Home", nil)
	auto := Seed(t, store, "Auto", nil)
	kitchen := Seed(t, store, "Kitchen", home)
	Seed(t, store, "Bath", home)
	Seed(t, store, "Knives", kitchen)
	Seed(t, store, "Tyres", auto)

	require.NoError(t, store.Commit(ctx, repository.NewUnitOfWork().SetOrder(auto.ID, 1).SetOrder(home.ID, 0)))

	tier := 0
	roots, err := store.List(ctx, repository.CategoryFilter{Tier: &tier})
	require.NoError(t, err)
	assert.Equal(t, []string{"home", "auto"}, ids(roots))

	children, err := store.List(ctx, repository.CategoryFilter{ParentID: home.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"home-bath", "home-kitchen"}, ids(children))

	inRoot, err := store.List(ctx, repository.CategoryFilter{RootID: home.ID})
	require.NoError(t, err)
	assert.Len(t, inRoot, 4)

	descendants, err := store.List(ctx, repository.CategoryFilter{AncestorID: home.ID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"home-kitchen", "home-bath", "home-kitchen-knives"}, ids(descendants))

	leaf := true
	leaves, err := store.List(ctx, repository.CategoryFilter{Leaf: &leaf, RootID: home.ID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"home-bath", "home-kitchen-knives"}, ids(leaves))

	limited, err := store.List(ctx, repository.CategoryFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	for _, id := range []string{home.ID, auto.ID} {
		require.NoError(t, store.IncrementOwn(ctx, id, domain.MetricsDelta{Products: minFeatured}, minFeatured))
		require.NoError(t, store.Commit(ctx, repository.NewUnitOfWork().SetFeatured(id, true, minFeatured)))
	}
	featured := true
	list, err := store.List(ctx, repository.CategoryFilter{Featured: &featured, OrderBy: repository.OrderByFeaturedPriority})
	require.NoError(t, err)
	assert.Equal(t, []string{"home", "auto"}, ids(list))
}

func testConcurrentIncrements(t *testing.T, store repository.CategoryStore) {
	ctx := context.Background()
	root := Seed(t, store, "Pets", nil)
	child := Seed(t, store, "Dogs", root)

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			uow := repository.NewUnitOfWork().
				IncrementOwn(child.ID, domain.MetricsDelta{Products: 1}, minFeatured).
				IncrementTotals(root.ID, domain.MetricsDelta{Products: 1}, minFeatured)
			errs <- store.Commit(ctx, uow)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := store.Get(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(workers), got.Metrics.ProductCount)

	got, err = store.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(workers), got.Metrics.TotalItemCount)
	assert.Zero(t, got.Metrics.ProductCount)
}

func testGuards(t *testing.T, store repository.CategoryStore) {
	ctx := context.Background()
	root := Seed(t, store, "Music", nil)
	child := Seed(t, store, "Vinyl", root)

	require.NoError(t, store.Commit(ctx, repository.NewUnitOfWork().
		ExpectHierarchy(child.ID, []string{root.ID}).
		ExpectChildren(root.ID, []string{child.ID}).
		ExpectTotals(child.ID, domain.MetricsDelta{}).
		IncrementOwn(child.ID, domain.MetricsDelta{Products: 1}, minFeatured)))

	stale := []*repository.UnitOfWork{
		repository.NewUnitOfWork().ExpectHierarchy(child.ID, []string{}),
		repository.NewUnitOfWork().ExpectChildren(root.ID, []string{}),
		repository.NewUnitOfWork().ExpectTotals(child.ID, domain.MetricsDelta{}),
	}
	for _, uow := range stale {
		uow.SetOrder(root.ID, 42)
		err := store.Commit(ctx, uow)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrConcurrentChange)
		assert.True(t, domain.IsDomainError(err, domain.ErrCodeConflict))
	}
	stored, err := store.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.Order, "a failed guard must not let later ops through")

	err = store.Commit(ctx, repository.NewUnitOfWork().ExpectHierarchy("ghost", nil).SetOrder(root.ID, 1))
	assert.ErrorIs(t, err, domain.ErrCategoryNotFound)

	// guards see the stored record, not the unit's own earlier mutations
	require.NoError(t, store.Commit(ctx, repository.NewUnitOfWork().
		SetHierarchy(child.ID, domain.ComputeHierarchy(nil, child.ID)).
		RemoveMember(root.ID, repository.SetChildren, child.ID).
		ExpectHierarchy(child.ID, []string{root.ID})))
	stored, err = store.Get(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Tier)
}

func ids(categories []domain.Category) []string {
	out := make([]string, 0, len(categories))
	for _, c := range categories {
		out = append(out, c.ID)
	}
	return out
}
