package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/catalog/domain"
	"github.com/fastygo/catalog/repository"
)

const categoryColumns = `
	id, name, slug, tier, parent_ids, root_id, children_ids, is_leaf, is_active, is_featured,
	featured_priority, sort_order, product_count, auction_count, total_product_count,
	total_auction_count, total_item_count, product_ids, metrics_updated_at, created_at, updated_at`

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type categoryRepository struct {
	pool *pgxpool.Pool
}

// NewCategoryRepository returns a Postgres-backed CategoryStore. Counters and
// sets are changed with in-place UPDATE expressions, never read-modify-write.
func NewCategoryRepository(pool *pgxpool.Pool) repository.CategoryStore {
	return &categoryRepository{pool: pool}
}

func (r *categoryRepository) Get(ctx context.Context, id string) (*domain.Category, error) {
	query := `SELECT` + categoryColumns + ` FROM categories WHERE id = $1`
	c, err := scanCategory(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.CategoryNotFound(id)
	}
	return c, err
}

func (r *categoryRepository) List(ctx context.Context, filter repository.CategoryFilter) ([]domain.Category, error) {
	orderClause := `ORDER BY sort_order, name, id`
	if filter.OrderBy == repository.OrderByFeaturedPriority {
		orderClause = `ORDER BY featured_priority, sort_order, name, id`
	}

	query := `SELECT` + categoryColumns + `
	FROM categories
	WHERE ($1::int IS NULL OR tier = $1)
	  AND ($2 = '' OR (cardinality(parent_ids) > 0 AND parent_ids[cardinality(parent_ids)] = $2))
	  AND ($3 = '' OR root_id = $3)
	  AND ($4 = '' OR $4 = ANY(parent_ids))
	  AND ($5::bool IS NULL OR is_active = $5)
	  AND ($6::bool IS NULL OR is_featured = $6)
	  AND ($7::bool IS NULL OR is_leaf = $7)
	` + orderClause + `
	LIMIT $8`

	var limit any
	if l := repository.ClampLimit(filter.Limit); l > 0 {
		limit = l
	}

	rows, err := r.pool.Query(ctx, query,
		filter.Tier,
		filter.ParentID,
		filter.RootID,
		filter.AncestorID,
		filter.Active,
		filter.Featured,
		filter.Leaf,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []domain.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, *c)
	}
	return categories, rows.Err()
}

// Commit runs every operation inside one transaction. Guarded rows are locked
// with SELECT ... FOR UPDATE before any mutation.
func (r *categoryRepository) Commit(ctx context.Context, uow *repository.UnitOfWork) error {
	if uow == nil || uow.Len() == 0 {
		return nil
	}
	now := time.Now()
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, guard := range uow.Guards() {
			if err := checkGuard(ctx, tx, guard); err != nil {
				return err
			}
		}
		for _, op := range uow.Mutations() {
			if err := applyOp(ctx, tx, op, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *categoryRepository) IncrementOwn(ctx context.Context, id string, delta domain.MetricsDelta, minFeatured int) error {
	return applyOp(ctx, r.pool, repository.Op{Kind: repository.OpIncrementOwn, CategoryID: id, Delta: delta, MinFeatured: minFeatured}, time.Now())
}

func (r *categoryRepository) IncrementTotals(ctx context.Context, id string, delta domain.MetricsDelta, minFeatured int) error {
	return applyOp(ctx, r.pool, repository.Op{Kind: repository.OpIncrementTotals, CategoryID: id, Delta: delta, MinFeatured: minFeatured}, time.Now())
}

func (r *categoryRepository) AddMember(ctx context.Context, id string, set repository.SetName, member string) error {
	return applyOp(ctx, r.pool, repository.Op{Kind: repository.OpAddMember, CategoryID: id, Set: set, Member: member}, time.Now())
}

func (r *categoryRepository) RemoveMember(ctx context.Context, id string, set repository.SetName, member string) error {
	return applyOp(ctx, r.pool, repository.Op{Kind: repository.OpRemoveMember, CategoryID: id, Set: set, Member: member}, time.Now())
}

func (r *categoryRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *categoryRepository) Close() error {
	r.pool.Close()
	return nil
}

func applyOp(ctx context.Context, db execer, op repository.Op, now time.Time) error {
	var (
		tag pgconn.CommandTag
		err error
	)

	switch op.Kind {
	case repository.OpInsert:
		return insertCategory(ctx, db, op.Category, now)

	case repository.OpIncrementOwn:
		const query = `
		UPDATE categories
		SET product_count = product_count + $2,
			auction_count = auction_count + $3,
			total_product_count = total_product_count + $2,
			total_auction_count = total_auction_count + $3,
			total_item_count = total_item_count + $2 + $3,
			is_featured = is_featured AND total_item_count + $2 + $3 >= $4,
			metrics_updated_at = $5,
			updated_at = $5
		WHERE id = $1
		`
		tag, err = db.Exec(ctx, query, op.CategoryID, op.Delta.Products, op.Delta.Auctions, op.MinFeatured, now)

	case repository.OpIncrementTotals:
		const query = `
		UPDATE categories
		SET total_product_count = total_product_count + $2,
			total_auction_count = total_auction_count + $3,
			total_item_count = total_item_count + $2 + $3,
			is_featured = is_featured AND total_item_count + $2 + $3 >= $4,
			metrics_updated_at = $5,
			updated_at = $5
		WHERE id = $1
		`
		tag, err = db.Exec(ctx, query, op.CategoryID, op.Delta.Products, op.Delta.Auctions, op.MinFeatured, now)

	case repository.OpAddMember:
		switch op.Set {
		case repository.SetChildren:
			const query = `
			UPDATE categories
			SET children_ids = CASE WHEN $2 = ANY(children_ids) THEN children_ids ELSE array_append(children_ids, $2) END,
				is_leaf = FALSE,
				updated_at = $3
			WHERE id = $1
			`
			tag, err = db.Exec(ctx, query, op.CategoryID, op.Member, now)
		case repository.SetProducts:
			const query = `
			UPDATE categories
			SET product_ids = CASE WHEN $2 = ANY(product_ids) THEN product_ids ELSE array_append(product_ids, $2) END,
				metrics_updated_at = $3,
				updated_at = $3
			WHERE id = $1
			`
			tag, err = db.Exec(ctx, query, op.CategoryID, op.Member, now)
		default:
			return fmt.Errorf("unknown set %q", op.Set)
		}

	case repository.OpRemoveMember:
		switch op.Set {
		case repository.SetChildren:
			const query = `
			UPDATE categories
			SET children_ids = array_remove(children_ids, $2),
				is_leaf = cardinality(array_remove(children_ids, $2)) = 0,
				updated_at = $3
			WHERE id = $1
			`
			tag, err = db.Exec(ctx, query, op.CategoryID, op.Member, now)
		case repository.SetProducts:
			const query = `
			UPDATE categories
			SET product_ids = array_remove(product_ids, $2),
				metrics_updated_at = $3,
				updated_at = $3
			WHERE id = $1
			`
			tag, err = db.Exec(ctx, query, op.CategoryID, op.Member, now)
		default:
			return fmt.Errorf("unknown set %q", op.Set)
		}

	case repository.OpSetHierarchy:
		const query = `
		UPDATE categories
		SET tier = $2, parent_ids = $3, root_id = $4, updated_at = $5
		WHERE id = $1
		`
		parentIDs := op.Hierarchy.ParentIDs
		if parentIDs == nil {
			parentIDs = []string{}
		}
		tag, err = db.Exec(ctx, query, op.CategoryID, op.Hierarchy.Tier, parentIDs, op.Hierarchy.RootID, now)

	case repository.OpSetFeatured:
		return setFeatured(ctx, db, op, now)

	case repository.OpSetActive:
		const query = `UPDATE categories SET is_active = $2, updated_at = $3 WHERE id = $1`
		tag, err = db.Exec(ctx, query, op.CategoryID, op.Flag, now)

	case repository.OpSetOrder:
		const query = `UPDATE categories SET sort_order = $2, updated_at = $3 WHERE id = $1`
		tag, err = db.Exec(ctx, query, op.CategoryID, op.Value, now)

	default:
		return fmt.Errorf("unsupported operation %s", op.Kind)
	}

	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.CategoryNotFound(op.CategoryID)
	}
	return nil
}

// checkGuard locks the row until the transaction ends and compares it with
// the state the caller read.
func checkGuard(ctx context.Context, db execer, op repository.Op) error {
	const query = `
	SELECT parent_ids, children_ids, total_product_count, total_auction_count
	FROM categories
	WHERE id = $1
	FOR UPDATE
	`
	c := domain.Category{ID: op.CategoryID}
	err := db.QueryRow(ctx, query, op.CategoryID).Scan(
		&c.ParentIDs,
		&c.ChildrenIDs,
		&c.Metrics.TotalProductCount,
		&c.Metrics.TotalAuctionCount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CategoryNotFound(op.CategoryID)
	}
	if err != nil {
		return err
	}
	return op.Check(&c)
}

func insertCategory(ctx context.Context, db execer, c *domain.Category, now time.Time) error {
	if c == nil || c.ID == "" {
		return domain.ErrInvalidPayload
	}

	const query = `
	INSERT INTO categories (
		id, name, slug, tier, parent_ids, root_id, children_ids, is_leaf, is_active, is_featured,
		featured_priority, sort_order, product_ids, created_at, updated_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, $10, $11, '{}', $12, $12)
	ON CONFLICT (id) DO NOTHING
	`
	parentIDs := c.ParentIDs
	if parentIDs == nil {
		parentIDs = []string{}
	}
	childrenIDs := c.ChildrenIDs
	if childrenIDs == nil {
		childrenIDs = []string{}
	}

	tag, err := db.Exec(ctx, query,
		c.ID,
		c.Name,
		c.Slug,
		c.Tier,
		parentIDs,
		c.RootID,
		childrenIDs,
		len(childrenIDs) == 0,
		c.IsActive,
		c.FeaturedPriority,
		c.Order,
		now,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCategoryExists
	}
	return nil
}

// setFeatured writes the flag only when the stored total still qualifies, so
// a concurrent decrement between the caller's check and the write cannot
// leave an under-filled category featured.
func setFeatured(ctx context.Context, db execer, op repository.Op, now time.Time) error {
	const query = `
	UPDATE categories
	SET is_featured = $2, updated_at = $4
	WHERE id = $1 AND (NOT $2 OR total_item_count >= $3)
	`
	tag, err := db.Exec(ctx, query, op.CategoryID, op.Flag, op.MinFeatured, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM categories WHERE id = $1)`, op.CategoryID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.CategoryNotFound(op.CategoryID)
	}
	return domain.ErrNotFeaturable
}

func scanCategory(row interface {
	Scan(dest ...interface{}) error
}) (*domain.Category, error) {
	var (
		c              domain.Category
		metricsUpdated *time.Time
	)

	if err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Slug,
		&c.Tier,
		&c.ParentIDs,
		&c.RootID,
		&c.ChildrenIDs,
		&c.IsLeaf,
		&c.IsActive,
		&c.IsFeatured,
		&c.FeaturedPriority,
		&c.Order,
		&c.Metrics.ProductCount,
		&c.Metrics.AuctionCount,
		&c.Metrics.TotalProductCount,
		&c.Metrics.TotalAuctionCount,
		&c.Metrics.TotalItemCount,
		&c.Metrics.ProductIDs,
		&metricsUpdated,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if metricsUpdated != nil {
		c.Metrics.LastUpdated = *metricsUpdated
	}
	return &c, nil
}
