// Package bolt stores categories in an embedded BoltDB file. Every unit of
// work runs inside one read-write Bolt transaction, which is all-or-nothing.
package bolt

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/fastygo/catalog/domain"
	"github.com/fastygo/catalog/repository"
)

const defaultBucket = "categories"

type categoryStore struct {
	db     *bolt.DB
	bucket []byte
	now    func() time.Time
}

// Open initializes the BoltDB file and ensures the bucket exists.
func Open(path string, bucket string) (repository.CategoryStore, error) {
	if bucket == "" {
		bucket = defaultBucket
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &categoryStore{
		db:     db,
		bucket: []byte(bucket),
		now:    time.Now,
	}, nil
}

func (s *categoryStore) Get(ctx context.Context, id string) (*domain.Category, error) {
	var c *domain.Category
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		c, err = s.load(tx.Bucket(s.bucket), id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, domain.CategoryNotFound(id)
	}
	return c, nil
}

func (s *categoryStore) List(ctx context.Context, filter repository.CategoryFilter) ([]domain.Category, error) {
	var out []domain.Category
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).ForEach(func(_, v []byte) error {
			var c domain.Category
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			if filter.Match(&c) {
				out = append(out, c)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	repository.SortCategories(out, filter.OrderBy)
	if limit := repository.ClampLimit(filter.Limit); limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *categoryStore) Commit(ctx context.Context, uow *repository.UnitOfWork) error {
	if uow == nil || uow.Len() == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	now := s.now()
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		for _, guard := range uow.Guards() {
			stored, err := s.load(b, guard.CategoryID)
			if err != nil {
				return err
			}
			if err := guard.Check(stored); err != nil {
				return err
			}
		}

		staged := make(map[string]*domain.Category, uow.Len())
		for _, op := range uow.Mutations() {
			current, ok := staged[op.CategoryID]
			if !ok {
				var err error
				if current, err = s.load(b, op.CategoryID); err != nil {
					return err
				}
			}
			next, err := op.Apply(current, now)
			if err != nil {
				return err
			}
			staged[op.CategoryID] = next
		}

		for id, c := range staged {
			payload, err := json.Marshal(c)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(id), payload); err != nil {
				return err
			}
		}
		return nil
	})
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

// Ping verifies the database file is still open.
func (s *categoryStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(s.bucket) == nil {
			return bolt.ErrBucketNotFound
		}
		return nil
	})
}

// Close closes the Bolt database.
func (s *categoryStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *categoryStore) load(b *bolt.Bucket, id string) (*domain.Category, error) {
	raw := b.Get([]byte(id))
	if raw == nil {
		return nil, nil
	}
	var c domain.Category
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
