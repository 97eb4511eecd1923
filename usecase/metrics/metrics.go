package metrics

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/catalog/domain"
	"github.com/fastygo/catalog/pkg/logger"
	"github.com/fastygo/catalog/repository"
	"github.com/fastygo/catalog/usecase"
)

// Aggregator keeps own counts and subtree totals in step with item events.
type Aggregator struct {
	store       repository.CategoryStore
	cache       usecase.TreeCache
	recorder    usecase.MutationRecorder
	minFeatured int
	logger      *zap.Logger
}

func New(store repository.CategoryStore, cache usecase.TreeCache, recorder usecase.MutationRecorder, minFeatured int, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = usecase.NopRecorder{}
	}
	if minFeatured <= 0 {
		minFeatured = domain.DefaultMinItemsForFeatured
	}
	return &Aggregator{
		store:       store,
		cache:       cache,
		recorder:    recorder,
		minFeatured: minFeatured,
		logger:      logger,
	}
}

// RegisterHandlers binds the item events to the aggregator.
func (a *Aggregator) RegisterHandlers(d *usecase.Dispatcher) {
	d.Register(domain.EventItemAssigned, func(ctx context.Context, e domain.ItemEvent) error {
		return a.OnItemAssigned(ctx, e.CategoryID, e.Kind, e.ItemID)
	})
	d.Register(domain.EventItemRemoved, func(ctx context.Context, e domain.ItemEvent) error {
		return a.OnItemRemoved(ctx, e.CategoryID, e.Kind, e.ItemID)
	})
	d.Register(domain.EventItemReassigned, func(ctx context.Context, e domain.ItemEvent) error {
		return a.OnItemReassigned(ctx, e.FromCategoryID, e.CategoryID, e.Kind, e.ItemID)
	})
}

// UpdateMetrics applies a signed delta to the category's own counts and to the
// totals of the category and every ancestor in one commit. The commit is
// guarded by the ancestor chain that was read, so a concurrent move of the
// category fails the update with CONFLICT instead of counting on the old chain.
func (a *Aggregator) UpdateMetrics(ctx context.Context, categoryID string, productDelta, auctionDelta int64, productID string) error {
	log := logger.WithRequestID(ctx, a.logger)

	target, err := a.store.Get(ctx, categoryID)
	if err != nil {
		return domain.StorageError("update metrics", categoryID, err)
	}

	uow := repository.NewUnitOfWork()
	a.stage(uow, target, domain.MetricsDelta{Products: productDelta, Auctions: auctionDelta}, productID)

	err = a.store.Commit(ctx, uow)
	a.recorder.RecordMutation("update_metrics", err)
	if err != nil {
		log.Error("metrics commit failed", zap.String("category_id", categoryID), zap.Error(err))
		return domain.StorageError("update metrics", categoryID, err)
	}

	a.invalidate(ctx, log)
	log.Debug("metrics updated",
		zap.String("category_id", categoryID),
		zap.Int64("product_delta", productDelta),
		zap.Int64("auction_delta", auctionDelta),
		zap.Int("ancestors", len(target.ParentIDs)),
	)
	return nil
}

func (a *Aggregator) OnItemAssigned(ctx context.Context, categoryID string, kind domain.ItemKind, itemID string) error {
	if !kind.Valid() {
		return domain.WrapError(domain.ErrCodeInvalid, "unknown item kind "+string(kind), domain.ErrInvalidPayload)
	}
	d := domain.DeltaFor(kind, 1)
	return a.UpdateMetrics(ctx, categoryID, d.Products, d.Auctions, itemID)
}

func (a *Aggregator) OnItemRemoved(ctx context.Context, categoryID string, kind domain.ItemKind, itemID string) error {
	if !kind.Valid() {
		return domain.WrapError(domain.ErrCodeInvalid, "unknown item kind "+string(kind), domain.ErrInvalidPayload)
	}
	d := domain.DeltaFor(kind, -1)
	return a.UpdateMetrics(ctx, categoryID, d.Products, d.Auctions, itemID)
}

// OnItemReassigned moves one item between categories. Both chains change in
// the same commit, so no reader sees the item counted twice or not at all.
func (a *Aggregator) OnItemReassigned(ctx context.Context, fromID, toID string, kind domain.ItemKind, itemID string) error {
	if !kind.Valid() {
		return domain.WrapError(domain.ErrCodeInvalid, "unknown item kind "+string(kind), domain.ErrInvalidPayload)
	}
	if fromID == toID {
		return nil
	}
	log := logger.WithRequestID(ctx, a.logger)

	from, err := a.store.Get(ctx, fromID)
	if err != nil {
		return domain.StorageError("reassign item", fromID, err)
	}
	to, err := a.store.Get(ctx, toID)
	if err != nil {
		return domain.StorageError("reassign item", toID, err)
	}

	uow := repository.NewUnitOfWork()
	// additions go first so shared ancestors never dip below the featuring threshold
	a.stage(uow, to, domain.DeltaFor(kind, 1), itemID)
	a.stage(uow, from, domain.DeltaFor(kind, -1), itemID)

	err = a.store.Commit(ctx, uow)
	a.recorder.RecordMutation("reassign_item", err)
	if err != nil {
		log.Error("item reassignment failed", zap.String("from", fromID), zap.String("to", toID), zap.Error(err))
		return domain.StorageError("reassign item", toID, err)
	}

	a.invalidate(ctx, log)
	log.Info("item reassigned", zap.String("item_id", itemID), zap.String("from", fromID), zap.String("to", toID))
	return nil
}

func (a *Aggregator) stage(uow *repository.UnitOfWork, target *domain.Category, delta domain.MetricsDelta, productID string) {
	uow.ExpectHierarchy(target.ID, target.ParentIDs)
	uow.IncrementOwn(target.ID, delta, a.minFeatured)
	if productID != "" {
		switch {
		case delta.Products > 0:
			uow.AddMember(target.ID, repository.SetProducts, productID)
		case delta.Products < 0:
			uow.RemoveMember(target.ID, repository.SetProducts, productID)
		}
	}
	for _, ancestorID := range target.ParentIDs {
		uow.IncrementTotals(ancestorID, delta, a.minFeatured)
	}
}

func (a *Aggregator) invalidate(ctx context.Context, log *zap.Logger) {
	if a.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := a.cache.Invalidate(ctx); err != nil {
		log.Warn("tree cache invalidation failed", zap.Error(err))
	}
}
