package repository

import (
	"cmp"
	"context"
	"slices"

	"github.com/fastygo/catalog/domain"
)

// OrderBy selects the listing order.
type OrderBy string

const (
	OrderBySortOrder        OrderBy = "order"
	OrderByFeaturedPriority OrderBy = "featured_priority"
)

// CategoryFilter narrows category listings. Nil pointers and empty strings match everything.
type CategoryFilter struct {
	Tier       *int
	ParentID   string
	RootID     string
	AncestorID string
	Active     *bool
	Featured   *bool
	Leaf       *bool
	OrderBy    OrderBy
	Limit      int
}

// Match reports whether the category satisfies every set predicate.
func (f CategoryFilter) Match(c *domain.Category) bool {
	switch {
	case f.Tier != nil && c.Tier != *f.Tier:
		return false
	case f.ParentID != "" && c.ParentID() != f.ParentID:
		return false
	case f.RootID != "" && c.RootID != f.RootID:
		return false
	case f.AncestorID != "" && !slices.Contains(c.ParentIDs, f.AncestorID):
		return false
	case f.Active != nil && c.IsActive != *f.Active:
		return false
	case f.Featured != nil && c.IsFeatured != *f.Featured:
		return false
	case f.Leaf != nil && c.IsLeaf != *f.Leaf:
		return false
	}
	return true
}

// SortCategories orders a listing the way every backend must.
func SortCategories(categories []domain.Category, orderBy OrderBy) {
	slices.SortFunc(categories, func(a, b domain.Category) int {
		if orderBy == OrderByFeaturedPriority {
			if c := cmp.Compare(a.FeaturedPriority, b.FeaturedPriority); c != 0 {
				return c
			}
		}
		if c := cmp.Compare(a.Order, b.Order); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// ClampLimit bounds listing sizes; zero means unbounded.
func ClampLimit(limit int) int {
	if limit < 0 || limit > 10_000 {
		return 10_000
	}
	return limit
}

// CategoryReader serves single-record reads and filtered listings.
type CategoryReader interface {
	Get(ctx context.Context, id string) (*domain.Category, error)
	List(ctx context.Context, filter CategoryFilter) ([]domain.Category, error)
}

// AtomicCounterStore increments metric counters of one record without reading it first.
type AtomicCounterStore interface {
	IncrementOwn(ctx context.Context, id string, delta domain.MetricsDelta, minFeatured int) error
	IncrementTotals(ctx context.Context, id string, delta domain.MetricsDelta, minFeatured int) error
}

// AtomicSetStore adds and removes set members of one record without reading it first.
type AtomicSetStore interface {
	AddMember(ctx context.Context, id string, set SetName, member string) error
	RemoveMember(ctx context.Context, id string, set SetName, member string) error
}

// UnitOfWorkCommitter applies every operation of a unit of work or none of them.
type UnitOfWorkCommitter interface {
	Commit(ctx context.Context, uow *UnitOfWork) error
}

// CategoryStore is the capability set a persistence backend must provide.
type CategoryStore interface {
	CategoryReader
	AtomicCounterStore
	AtomicSetStore
	UnitOfWorkCommitter
	Ping(ctx context.Context) error
	Close() error
}
