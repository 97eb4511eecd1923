package main

import (
	"context"
	"log"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/catalog/internal/app"
	"github.com/fastygo/catalog/internal/config"
	"github.com/fastygo/catalog/internal/services/lifecycle"
	"github.com/fastygo/catalog/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
		Service:  cfg.AppName,
		Env:      cfg.Environment,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	manager.Listen(cancel)

	application, err := app.Build(appCtx, cfg, manager, zapLogger)
	if err != nil {
		zapLogger.Error("startup failed", zap.Error(err))
		if shutdownErr := manager.Shutdown(context.Background()); shutdownErr != nil {
			zapLogger.Error("cleanup after failed startup", zap.Error(shutdownErr))
		}
		return
	}

	server := &fasthttp.Server{
		Handler:      application.Router.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Concurrency:  cfg.HTTP.MaxConn,
		Name:         cfg.AppName,
	}

	go func() {
		zapLogger.Info("server started",
			zap.String("address", cfg.Address()),
			zap.String("store_driver", cfg.Store.Driver),
		)
		if err := server.ListenAndServe(cfg.Address()); err != nil {
			zapLogger.Error("server stopped", zap.Error(err))
			cancel()
		}
	}()

	manager.Register("http_server", func(ctx context.Context) error {
		return server.ShutdownWithContext(ctx)
	})

	<-appCtx.Done()

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Context.ShutdownTimeout+time.Second)
	defer stop()
	if err := manager.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}
