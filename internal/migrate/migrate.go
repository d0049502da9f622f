// Package migrate provides database migration functionality using Goose.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/scribehq/scribe/internal/config"
	"github.com/scribehq/scribe/migrations"
)

// Module runs pending migrations at startup so the schema exists on first
// start. DB_AUTO_MIGRATE=false opts out (run cmd/migrate instead).
var Module = fx.Module("migrate",
	fx.Invoke(runStartupMigrations),
)

func runStartupMigrations(db *bun.DB, cfg *config.Config, log *slog.Logger) error {
	if !cfg.Database.AutoMigrate {
		return nil
	}
	if err := RunWithDB(context.Background(), db.DB, cfg.Database.GooseDialect()); err != nil {
		return err
	}
	log.Info("database schema up to date")
	return nil
}

// Migrator handles database migrations. It backs the cmd/migrate CLI.
type Migrator struct {
	db      *bun.DB
	dialect string
	logger  *zap.Logger
}

// NewMigrator creates a new Migrator instance.
func NewMigrator(db *bun.DB, dialect string, logger *zap.Logger) *Migrator {
	return &Migrator{
		db:      db,
		dialect: dialect,
		logger:  logger.Named("migrator"),
	}
}

func setup(dialect string) error {
	goose.SetBaseFS(migrations.FS)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	return nil
}

// Up runs all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	m.logger.Info("running database migrations")

	if err := setup(m.dialect); err != nil {
		return err
	}

	if err := goose.UpContext(ctx, m.db.DB, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	m.logger.Info("migrations completed successfully")
	return nil
}

// Down rolls back the last migration.
func (m *Migrator) Down(ctx context.Context) error {
	m.logger.Info("rolling back last migration")

	if err := setup(m.dialect); err != nil {
		return err
	}

	if err := goose.DownContext(ctx, m.db.DB, "."); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	m.logger.Info("rollback completed successfully")
	return nil
}

// Status returns the current migration status.
func (m *Migrator) Status(ctx context.Context) error {
	if err := setup(m.dialect); err != nil {
		return err
	}

	if err := goose.StatusContext(ctx, m.db.DB, "."); err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}

	return nil
}

// Version returns the current database version.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	if err := setup(m.dialect); err != nil {
		return 0, err
	}

	version, err := goose.GetDBVersionContext(ctx, m.db.DB)
	if err != nil {
		return 0, fmt.Errorf("failed to get version: %w", err)
	}

	return version, nil
}

// RunWithDB runs all pending migrations over a raw *sql.DB connection.
func RunWithDB(ctx context.Context, db *sql.DB, dialect string) error {
	if err := setup(dialect); err != nil {
		return err
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
