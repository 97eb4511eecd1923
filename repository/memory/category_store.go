// Package memory keeps categories in process memory. It backs tests and the
// "memory" store driver; commits are serialized by a single mutex.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/fastygo/catalog/domain"
	"github.com/fastygo/catalog/repository"
)

type categoryStore struct {
	mu      sync.RWMutex
	records map[string]*domain.Category
	now     func() time.Time
}

// NewCategoryStore returns an empty in-memory CategoryStore.
func NewCategoryStore() repository.CategoryStore {
	return &categoryStore{
		records: make(map[string]*domain.Category),
		now:     time.Now,
	}
}

func (s *categoryStore) Get(ctx context.Context, id string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.records[id]
	if !ok {
		return nil, domain.CategoryNotFound(id)
	}
	return c.Clone(), nil
}

func (s *categoryStore) List(ctx context.Context, filter repository.CategoryFilter) ([]domain.Category, error) {
	s.mu.RLock()
	out := make([]domain.Category, 0, len(s.records))
	for _, c := range s.records {
		if filter.Match(c) {
			out = append(out, *c.Clone())
		}
	}
	s.mu.RUnlock()

	repository.SortCategories(out, filter.OrderBy)
	if limit := repository.ClampLimit(filter.Limit); limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Commit checks the guards, stages every touched record as a copy and only
// publishes the copies once all operations succeeded.
func (s *categoryStore) Commit(ctx context.Context, uow *repository.UnitOfWork) error {
	if uow == nil || uow.Len() == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, guard := range uow.Guards() {
		if err := guard.Check(s.records[guard.CategoryID]); err != nil {
			return err
		}
	}

	now := s.now()
	staged := make(map[string]*domain.Category, uow.Len())
	for _, op := range uow.Mutations() {
		current, ok := staged[op.CategoryID]
		if !ok {
			if stored, exists := s.records[op.CategoryID]; exists {
				current = stored.Clone()
			}
		}
		next, err := op.Apply(current, now)
		if err != nil {
			return err
		}
		staged[op.CategoryID] = next
	}

	for id, c := range staged {
		s.records[id] = c
	}
	return nil
}

func (s *categoryStore) IncrementOwn(ctx context.Context, id string, delta domain.MetricsDelta, minFeatured int) error {
	return s.Commit(ctx, repository.NewUnitOfWork().IncrementOwn(id, delta, minFeatured))
}

func (s *categoryStore) IncrementTotals(ctx context.Context, id string, delta domain.MetricsDelta, minFeatured int) error {
	return s.Commit(ctx, repository.NewUnitOfWork().IncrementTotals(id, delta, minFeatured))
}

func (s *categoryStore) AddMember(ctx context.Context, id string, set repository.SetName, member string) error {
	return s.Commit(ctx, repository.NewUnitOfWork().AddMember(id, set, member))
}

func (s *categoryStore) RemoveMember(ctx context.Context, id string, set repository.SetName, member string) error {
	return s.Commit(ctx, repository.NewUnitOfWork().RemoveMember(id, set, member))
}

func (s *categoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *categoryStore) Close() error {
	return nil
}
