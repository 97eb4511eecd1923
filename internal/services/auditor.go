package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fastygo/catalog/domain"
	"github.com/fastygo/catalog/repository"
)

// ConnectionHealth abstracts the connection monitor functionality.
type ConnectionHealth interface {
	IsOnline() bool
}

// AuditReporter receives per-rule violation counts after each audit.
type AuditReporter interface {
	RecordAudit(byRule map[string]int)
}

// AuditorConfig controls when and how the invariant audit runs.
type AuditorConfig struct {
	Schedule            string
	Timeout             time.Duration
	MinItemsForFeatured int
	MaxLogged           int
}

// Auditor periodically checks the stored forest against the category
// invariants. It only reports drift; counters are never rewritten.
type Auditor struct {
	store    repository.CategoryReader
	monitor  ConnectionHealth
	reporter AuditReporter
	logger   *zap.Logger
	cron     *cron.Cron
	cfg      AuditorConfig
}

func NewAuditor(
	store repository.CategoryReader,
	monitor ConnectionHealth,
	reporter AuditReporter,
	logger *zap.Logger,
	cfg AuditorConfig,
) (*Auditor, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1h"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	if cfg.MinItemsForFeatured <= 0 {
		cfg.MinItemsForFeatured = domain.DefaultMinItemsForFeatured
	}
	if cfg.MaxLogged <= 0 {
		cfg.MaxLogged = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &Auditor{
		store:    store,
		monitor:  monitor,
		reporter: reporter,
		logger:   logger,
		cfg:      cfg,
		cron:     cron.New(),
	}

	_, err := a.cron.AddFunc(cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
		defer cancel()
		if _, err := a.Run(ctx); err != nil {
			a.logger.Error("category audit failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid audit schedule %q: %w", cfg.Schedule, err)
	}
	return a, nil
}

// Start launches the cron scheduler.
func (a *Auditor) Start() {
	if a == nil || a.cron == nil {
		return
	}
	a.cron.Start()
	a.logger.Info("category auditor started", zap.String("schedule", a.cfg.Schedule))
}

// Stop waits for a running audit to finish or ctx to expire.
func (a *Auditor) Stop(ctx context.Context) error {
	if a == nil || a.cron == nil {
		return nil
	}
	stopCtx := a.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	a.logger.Info("category auditor stopped")
	return nil
}

// Run audits the full listing once and returns the violations found.
func (a *Auditor) Run(ctx context.Context) ([]domain.Violation, error) {
	if a.monitor != nil && !a.monitor.IsOnline() {
		a.logger.Debug("skipping category audit (store offline)")
		return nil, nil
	}

	start := time.Now()
	categories, err := a.store.List(ctx, repository.CategoryFilter{})
	if err != nil {
		return nil, domain.StorageError("audit", "", err)
	}

	violations := domain.CheckInvariants(categories, a.cfg.MinItemsForFeatured)
	byRule := make(map[string]int)
	for _, v := range violations {
		byRule[v.Rule]++
	}
	if a.reporter != nil {
		a.reporter.RecordAudit(byRule)
	}

	for i, v := range violations {
		if i == a.cfg.MaxLogged {
			a.logger.Warn("further violations omitted", zap.Int("omitted", len(violations)-i))
			break
		}
		a.logger.Warn("category invariant violated",
			zap.String("category_id", v.CategoryID),
			zap.String("rule", v.Rule),
			zap.String("detail", v.Detail),
		)
	}

	a.logger.Info("category audit finished",
		zap.Int("categories", len(categories)),
		zap.Int("violations", len(violations)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return violations, nil
}
