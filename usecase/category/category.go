package category

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fastygo/catalog/domain"
	"github.com/fastygo/catalog/pkg/logger"
	"github.com/fastygo/catalog/repository"
	"github.com/fastygo/catalog/usecase"
)

// CreateInput describes a new category. ID is derived from the name and the
// parent when left empty.
type CreateInput struct {
	ID               string `json:"id" validate:"omitempty,max=200"`
	Name             string `json:"name" validate:"required,max=120"`
	Slug             string `json:"slug" validate:"omitempty,max=160"`
	ParentID         string `json:"parent_id" validate:"omitempty,max=200"`
	IsActive         *bool  `json:"is_active"`
	Order            int    `json:"order"`
	FeaturedPriority int    `json:"featured_priority"`
}

const treeLoadTimeout = 10 * time.Second

type UseCase struct {
	store       repository.CategoryStore
	cache       usecase.TreeCache
	recorder    usecase.MutationRecorder
	minFeatured int
	validate    *validator.Validate
	trees       singleflight.Group
	now         func() time.Time
	logger      *zap.Logger
}

func New(store repository.CategoryStore, cache usecase.TreeCache, recorder usecase.MutationRecorder, minFeatured int, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = usecase.NopRecorder{}
	}
	if minFeatured <= 0 {
		minFeatured = domain.DefaultMinItemsForFeatured
	}
	return &UseCase{
		store:       store,
		cache:       cache,
		recorder:    recorder,
		minFeatured: minFeatured,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		now:         time.Now,
		logger:      logger,
	}
}

// MinItemsForFeatured returns the configured featuring threshold.
func (uc *UseCase) MinItemsForFeatured() int {
	return uc.minFeatured
}

func (uc *UseCase) CreateCategory(ctx context.Context, input CreateInput) (*domain.Category, error) {
	log := logger.WithRequestID(ctx, uc.logger)

	if err := uc.validate.Struct(input); err != nil {
		return nil, domain.WrapError(domain.ErrCodeInvalid, "invalid category input", err)
	}

	var parent *domain.Category
	if input.ParentID != "" {
		p, err := uc.store.Get(ctx, input.ParentID)
		if err != nil {
			return nil, domain.StorageError("create category", input.ParentID, err)
		}
		parent = p
	}

	id := input.ID
	if id == "" {
		id = domain.NewCategoryID(input.Name, parent)
	}
	if id == "" {
		return nil, domain.NewError(domain.ErrCodeInvalid, "category name yields an empty id")
	}
	slug := input.Slug
	if slug == "" {
		slug = domain.Slugify(input.Name)
	}

	created := domain.NewCategory(id, input.Name, slug, domain.ComputeHierarchy(parent, id), uc.now())
	if input.IsActive != nil {
		created.IsActive = *input.IsActive
	}
	created.Order = input.Order
	created.FeaturedPriority = input.FeaturedPriority

	uow := repository.NewUnitOfWork().Insert(created)
	if parent != nil {
		uow.ExpectHierarchy(parent.ID, parent.ParentIDs).
			AddMember(parent.ID, repository.SetChildren, id)
	}

	err := uc.store.Commit(ctx, uow)
	uc.recorder.RecordMutation("create_category", err)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrCodeConflict) {
			log.Warn("category already exists", zap.String("category_id", id))
		} else {
			log.Error("create category failed", zap.String("category_id", id), zap.Error(err))
		}
		return nil, domain.StorageError("create category", id, err)
	}

	uc.invalidate(ctx, log)
	log.Info("category created", zap.String("category_id", id), zap.Int("tier", created.Tier), zap.String("root_id", created.RootID))
	return uc.reload(ctx, id)
}

// MoveCategory re-parents a category; an empty newParentID detaches it to a
// root. Descendants receive the rebased hierarchy and the subtree totals move
// from the old ancestor chain to the new one in the same commit. A concurrent
// change to the moved subtree or the new parent's chain fails the move with
// CONFLICT and nothing is written.
func (uc *UseCase) MoveCategory(ctx context.Context, id, newParentID string) (*domain.Category, error) {
	log := logger.WithRequestID(ctx, uc.logger)

	moved, err := uc.store.Get(ctx, id)
	if err != nil {
		return nil, domain.StorageError("move category", id, err)
	}
	if moved.ParentID() == newParentID {
		return moved, nil
	}

	var newParent *domain.Category
	if newParentID != "" && newParentID != id {
		newParent, err = uc.store.Get(ctx, newParentID)
		if err != nil {
			return nil, domain.StorageError("move category", newParentID, err)
		}
	}
	if !domain.IsValidMove(id, newParentID, newParent) {
		log.Warn("move rejected", zap.String("category_id", id), zap.String("new_parent_id", newParentID))
		return nil, domain.WrapError(domain.ErrCodeInvalidMove, fmt.Sprintf("move %s under %s", id, newParentID), domain.ErrInvalidMove)
	}

	descendants, err := uc.store.List(ctx, repository.CategoryFilter{AncestorID: id})
	if err != nil {
		return nil, domain.StorageError("move category", id, err)
	}

	totals := moved.Metrics.Totals()
	h := domain.ComputeHierarchy(newParent, id)

	// the checks above and the rebased chains below hold only while the
	// records still look the way they were read
	uow := repository.NewUnitOfWork().
		ExpectHierarchy(id, moved.ParentIDs).
		ExpectChildren(id, moved.ChildrenIDs).
		ExpectTotals(id, totals)
	if newParent != nil {
		uow.ExpectHierarchy(newParent.ID, newParent.ParentIDs)
	}
	for i := range descendants {
		uow.ExpectHierarchy(descendants[i].ID, descendants[i].ParentIDs).
			ExpectChildren(descendants[i].ID, descendants[i].ChildrenIDs)
	}

	uow.SetHierarchy(id, h)
	if oldParentID := moved.ParentID(); oldParentID != "" {
		uow.RemoveMember(oldParentID, repository.SetChildren, id)
	}
	if newParent != nil {
		uow.AddMember(newParent.ID, repository.SetChildren, id)
	}
	for i := range descendants {
		if rebased, ok := domain.RebaseHierarchy(&descendants[i], id, h); ok {
			uow.SetHierarchy(descendants[i].ID, rebased)
		}
	}

	if !totals.IsZero() {
		for _, ancestorID := range h.ParentIDs {
			if !slices.Contains(moved.ParentIDs, ancestorID) {
				uow.IncrementTotals(ancestorID, totals, uc.minFeatured)
			}
		}
		for _, ancestorID := range moved.ParentIDs {
			if !slices.Contains(h.ParentIDs, ancestorID) {
				uow.IncrementTotals(ancestorID, totals.Negate(), uc.minFeatured)
			}
		}
	}

	err = uc.store.Commit(ctx, uow)
	uc.recorder.RecordMutation("move_category", err)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrCodeConflict) {
			log.Warn("move lost a race with a concurrent change", zap.String("category_id", id), zap.Error(err))
		} else {
			log.Error("move category failed", zap.String("category_id", id), zap.Error(err))
		}
		return nil, domain.StorageError("move category", id, err)
	}

	uc.invalidate(ctx, log)
	log.Info("category moved",
		zap.String("category_id", id),
		zap.String("from", moved.ParentID()),
		zap.String("to", newParentID),
		zap.Int("descendants", len(descendants)),
	)
	return uc.reload(ctx, id)
}

// ToggleFeatured promotes or demotes a category. Promotion is checked here and
// again by the store at write time.
func (uc *UseCase) ToggleFeatured(ctx context.Context, id string, featured bool) (*domain.Category, error) {
	log := logger.WithRequestID(ctx, uc.logger)

	if featured {
		current, err := uc.store.Get(ctx, id)
		if err != nil {
			return nil, domain.StorageError("toggle featured", id, err)
		}
		if !domain.CanBeFeatured(current, uc.minFeatured) {
			log.Warn("featuring rejected",
				zap.String("category_id", id),
				zap.Int64("total_item_count", current.Metrics.TotalItemCount),
				zap.Int("min_items", uc.minFeatured),
			)
			return nil, domain.StorageError("toggle featured", id, domain.ErrNotFeaturable)
		}
	}

	err := uc.store.Commit(ctx, repository.NewUnitOfWork().SetFeatured(id, featured, uc.minFeatured))
	uc.recorder.RecordMutation("toggle_featured", err)
	if err != nil {
		return nil, domain.StorageError("toggle featured", id, err)
	}

	uc.invalidate(ctx, log)
	log.Info("featured flag changed", zap.String("category_id", id), zap.Bool("featured", featured))
	return uc.reload(ctx, id)
}

func (uc *UseCase) SetActive(ctx context.Context, id string, active bool) (*domain.Category, error) {
	log := logger.WithRequestID(ctx, uc.logger)

	err := uc.store.Commit(ctx, repository.NewUnitOfWork().SetActive(id, active))
	uc.recorder.RecordMutation("set_active", err)
	if err != nil {
		return nil, domain.StorageError("set active", id, err)
	}

	uc.invalidate(ctx, log)
	log.Info("active flag changed", zap.String("category_id", id), zap.Bool("active", active))
	return uc.reload(ctx, id)
}

// ReorderSiblings writes every display order in one commit.
func (uc *UseCase) ReorderSiblings(ctx context.Context, pairs []domain.OrderPair) error {
	if len(pairs) == 0 {
		return nil
	}
	log := logger.WithRequestID(ctx, uc.logger)

	seen := make(map[string]struct{}, len(pairs))
	uow := repository.NewUnitOfWork()
	for _, p := range pairs {
		if p.ID == "" {
			return domain.NewError(domain.ErrCodeInvalid, "order pair without id")
		}
		if _, dup := seen[p.ID]; dup {
			return domain.NewError(domain.ErrCodeInvalid, fmt.Sprintf("category %s listed twice", p.ID))
		}
		seen[p.ID] = struct{}{}
		uow.SetOrder(p.ID, p.Order)
	}

	err := uc.store.Commit(ctx, uow)
	uc.recorder.RecordMutation("reorder_siblings", err)
	if err != nil {
		return domain.StorageError("reorder siblings", pairs[0].ID, err)
	}

	uc.invalidate(ctx, log)
	log.Info("siblings reordered", zap.Int("count", len(pairs)))
	return nil
}

func (uc *UseCase) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	c, err := uc.store.Get(ctx, id)
	if err != nil {
		return nil, domain.StorageError("get category", id, err)
	}
	return c, nil
}

func (uc *UseCase) GetRootCategories(ctx context.Context, activeOnly bool) ([]domain.Category, error) {
	return uc.GetCategoriesByTier(ctx, 0, activeOnly)
}

func (uc *UseCase) GetCategoriesByTier(ctx context.Context, tier int, activeOnly bool) ([]domain.Category, error) {
	if tier < 0 {
		return nil, domain.NewError(domain.ErrCodeInvalid, "tier must not be negative")
	}
	filter := repository.CategoryFilter{Tier: &tier, OrderBy: repository.OrderBySortOrder}
	if activeOnly {
		filter.Active = boolPtr(true)
	}
	list, err := uc.store.List(ctx, filter)
	if err != nil {
		return nil, domain.StorageError("list by tier", fmt.Sprint(tier), err)
	}
	return list, nil
}

// GetChildren lists the direct children of an existing category.
func (uc *UseCase) GetChildren(ctx context.Context, parentID string) ([]domain.Category, error) {
	if _, err := uc.store.Get(ctx, parentID); err != nil {
		return nil, domain.StorageError("list children", parentID, err)
	}
	list, err := uc.store.List(ctx, repository.CategoryFilter{ParentID: parentID, OrderBy: repository.OrderBySortOrder})
	if err != nil {
		return nil, domain.StorageError("list children", parentID, err)
	}
	return list, nil
}

// GetFeaturedCategories lists active featured categories by ascending priority.
func (uc *UseCase) GetFeaturedCategories(ctx context.Context, limit int) ([]domain.Category, error) {
	list, err := uc.store.List(ctx, repository.CategoryFilter{
		Active:   boolPtr(true),
		Featured: boolPtr(true),
		OrderBy:  repository.OrderByFeaturedPriority,
		Limit:    limit,
	})
	if err != nil {
		return nil, domain.StorageError("list featured", "", err)
	}
	return list, nil
}

// BuildTree nests the whole forest, or one root's subtree when rootID is set.
// Results are cached and concurrent fills for the same root share one load.
func (uc *UseCase) BuildTree(ctx context.Context, rootID string) ([]*domain.TreeNode, error) {
	log := logger.WithRequestID(ctx, uc.logger)

	var version int64
	if uc.cache != nil {
		tree, v, found, err := uc.cache.Load(ctx, rootID)
		switch {
		case err != nil:
			log.Warn("tree cache read failed", zap.String("root_id", rootID), zap.Error(err))
		case found:
			return tree, nil
		default:
			version = v
		}
	}

	// callers share a load only when they saw the same cache version
	key := fmt.Sprintf("%s@%d", rootID, version)
	result, err, _ := uc.trees.Do(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), treeLoadTimeout)
		defer cancel()
		return uc.loadTree(loadCtx, rootID)
	})
	if err != nil {
		return nil, err
	}
	tree := result.([]*domain.TreeNode)

	if uc.cache != nil {
		if err := uc.cache.Store(ctx, rootID, version, tree); err != nil {
			log.Warn("tree cache write failed", zap.String("root_id", rootID), zap.Error(err))
		}
	}
	return tree, nil
}

func (uc *UseCase) loadTree(ctx context.Context, rootID string) ([]*domain.TreeNode, error) {
	if rootID != "" {
		root, err := uc.store.Get(ctx, rootID)
		if err != nil {
			return nil, domain.StorageError("build tree", rootID, err)
		}
		if !root.IsRoot() {
			return nil, domain.NewError(domain.ErrCodeInvalid, fmt.Sprintf("category %s is not a root", rootID))
		}
	}
	list, err := uc.store.List(ctx, repository.CategoryFilter{RootID: rootID})
	if err != nil {
		return nil, domain.StorageError("build tree", rootID, err)
	}
	return domain.BuildTree(list, rootID), nil
}

func (uc *UseCase) reload(ctx context.Context, id string) (*domain.Category, error) {
	c, err := uc.store.Get(ctx, id)
	if err != nil {
		return nil, domain.StorageError("reload category", id, err)
	}
	return c, nil
}

func (uc *UseCase) invalidate(ctx context.Context, log *zap.Logger) {
	if uc.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := uc.cache.Invalidate(ctx); err != nil {
		log.Warn("tree cache invalidation failed", zap.Error(err))
	}
}

func boolPtr(v bool) *bool {
	return &v
}
