package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-quality/migrations"
)

// MigrationResult reports the catalog schema version after RunMigrations.
type MigrationResult struct {
	Version uint
	Applied bool // false when the schema was already current
}

// RunMigrations brings the catalog schema up to the latest embedded version.
// Running it against a current schema is a no-op.
func RunMigrations(db *sql.DB, logger *zap.Logger) (*MigrationResult, error) {
	m, err := newMigrator(db)
	if err != nil {
		return nil, err
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if err := errors.Join(srcErr, dbErr); err != nil {
			logger.Warn("Failed to close migrator", zap.Error(err))
		}
	}()

	before, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return nil, fmt.Errorf("failed to read schema version: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	after, dirty, err := m.Version()
	if err != nil {
		return nil, fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return nil, fmt.Errorf("catalog schema version %d is dirty", after)
	}

	result := &MigrationResult{Version: after, Applied: after != before}
	if result.Applied {
		logger.Info("Applied catalog migrations", zap.Uint("from", before), zap.Uint("to", after))
	} else {
		logger.Info("Catalog schema up to date", zap.Uint("version", after))
	}
	return result, nil
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to open migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}
