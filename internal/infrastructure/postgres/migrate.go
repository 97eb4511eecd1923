package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	_ "github.com/lib/pq"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"

	"github.com/fastygo/catalog/internal/config"
)

// RunMigrations brings the categories schema up to date when enabled.
func RunMigrations(dbCfg config.DatabaseConfig, migCfg config.MigrationsConfig, logger *zap.Logger) error {
	if !migCfg.Enabled {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sqlDB, err := sql.Open("postgres", DSN(dbCfg))
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("ping for migrations: %w", err)
	}

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return err
	}

	sourceURL := fmt.Sprintf("file://%s", filepath.ToSlash(migCfg.Path))
	m, err := migrate.NewWithDatabaseInstance(sourceURL, dbCfg.Name, driver)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return err
	}
	if dirty {
		return fmt.Errorf("schema version %d is dirty", version)
	}

	logger.Info("database migrations applied", zap.Uint("version", version))
	return nil
}
