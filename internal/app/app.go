package app

import (
	"context"
	"fmt"

	fastRouter "github.com/fasthttp/router"
	"go.uber.org/zap"

	apiHandler "github.com/fastygo/catalog/api/handler"
	"github.com/fastygo/catalog/internal/config"
	"github.com/fastygo/catalog/internal/infrastructure/monitor"
	pgInfra "github.com/fastygo/catalog/internal/infrastructure/postgres"
	redisInfra "github.com/fastygo/catalog/internal/infrastructure/redis"
	"github.com/fastygo/catalog/internal/middleware"
	"github.com/fastygo/catalog/internal/observability"
	"github.com/fastygo/catalog/internal/router"
	"github.com/fastygo/catalog/internal/services"
	"github.com/fastygo/catalog/internal/services/lifecycle"
	"github.com/fastygo/catalog/pkg/httpcontext"
	"github.com/fastygo/catalog/repository"
	boltRepo "github.com/fastygo/catalog/repository/bolt"
	"github.com/fastygo/catalog/repository/memory"
	"github.com/fastygo/catalog/repository/postgres"
	redisRepo "github.com/fastygo/catalog/repository/redis"
	"github.com/fastygo/catalog/usecase"
	categoryUC "github.com/fastygo/catalog/usecase/category"
	metricsUC "github.com/fastygo/catalog/usecase/metrics"
)

// App is the assembled service.
type App struct {
	Router     *fastRouter.Router
	Store      repository.CategoryStore
	Categories *categoryUC.UseCase
	Metrics    *metricsUC.Aggregator
	Dispatcher *usecase.Dispatcher
	Monitor    *monitor.Monitor
	Collector  *observability.Collector
}

// Build connects the configured backends and wires the HTTP surface. Every
// started component is registered with manager, including on failure, so the
// caller can always run manager.Shutdown.
func Build(ctx context.Context, cfg *config.Config, manager *lifecycle.Manager, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	manager.RegisterCloser("category_store", store)

	redisClient, err := redisInfra.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	var cache usecase.TreeCache
	if redisClient != nil {
		manager.RegisterCloser("redis", redisClient)
		cache = redisRepo.NewTreeCache(redisClient, cfg.Redis.TreeCacheTTL)
	}

	mon := monitor.New(store, cfg.Store.Driver, redisClient, cfg.Catalog.HealthInterval, logger)
	mon.Start()
	manager.Register("monitor", func(context.Context) error {
		mon.Stop()
		return nil
	})

	var (
		collector *observability.Collector
		recorder  usecase.MutationRecorder
		observer  middleware.RequestObserver
		events    apiHandler.EventRecorder
		reporter  services.AuditReporter
	)
	if cfg.HTTP.EnableMetrics {
		collector = observability.NewCollector("catalog")
		recorder, observer, events, reporter = collector, collector, collector, collector
	}

	minItems := cfg.Catalog.MinItemsForFeatured
	categories := categoryUC.New(store, cache, recorder, minItems, logger.Named("category"))
	aggregator := metricsUC.New(store, cache, recorder, minItems, logger.Named("metrics"))
	dispatcher := usecase.NewDispatcher()
	aggregator.RegisterHandlers(dispatcher)

	if cfg.Audit.Enabled {
		auditor, err := services.NewAuditor(store, mon, reporter, logger.Named("audit"), services.AuditorConfig{
			Schedule:            cfg.Audit.Schedule,
			MinItemsForFeatured: minItems,
		})
		if err != nil {
			return nil, err
		}
		auditor.Start()
		manager.Register("auditor", auditor.Stop)
	}

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)
	handlers := router.Handlers{
		Category: apiHandler.NewCategoryHandler(categories, ctxAdapter, logger),
		Events:   apiHandler.NewEventHandler(dispatcher, events, ctxAdapter, logger),
		Health:   apiHandler.NewHealthHandler(mon, ctxAdapter, logger),
	}
	if collector != nil {
		handlers.Metrics = collector.Handler()
	}

	auth := middleware.JWTAuth(cfg.JWT.Secret, cfg.JWT.Issuer, logger)
	r := router.New(handlers, router.Options{
		Admin:        auth(middleware.RoleAdmin),
		Collaborator: auth(middleware.RoleAdmin, middleware.RoleCollaborator),
		Observer:     observer,
	})

	return &App{
		Router:     r,
		Store:      store,
		Categories: categories,
		Metrics:    aggregator,
		Dispatcher: dispatcher,
		Monitor:    mon,
		Collector:  collector,
	}, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.CategoryStore, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		logger.Warn("using in-memory category store; data is lost on restart")
		return memory.NewCategoryStore(), nil
	case config.StoreDriverBolt:
		store, err := boltRepo.Open(cfg.Store.BoltPath, cfg.Store.BoltBucket)
		if err != nil {
			return nil, fmt.Errorf("open bolt store: %w", err)
		}
		logger.Info("bolt category store opened", zap.String("path", cfg.Store.BoltPath))
		return store, nil
	case config.StoreDriverPostgres:
		if err := pgInfra.RunMigrations(cfg.Database, cfg.Migrations, logger); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
		pool, err := pgInfra.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return postgres.NewCategoryRepository(pool), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
