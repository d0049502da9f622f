// Command migrate manages the database schema from the command line.
//
// Usage:
//
//	migrate up       run all pending migrations
//	migrate down     roll back the last migration
//	migrate status   print migration status
//	migrate version  print the current schema version
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"go.uber.org/zap"

	"github.com/scribehq/scribe/internal/config"
	"github.com/scribehq/scribe/internal/migrate"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg := &config.Config{}
	if err := env.Parse(cfg); err != nil {
		logger.Fatal("failed to parse config", zap.Error(err))
	}

	db, err := openDB(&cfg.Database)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	migrator := migrate.NewMigrator(db, cfg.Database.GooseDialect(), logger)
	ctx := context.Background()

	switch os.Args[1] {
	case "up":
		err = migrator.Up(ctx)
	case "down":
		err = migrator.Down(ctx)
	case "status":
		err = migrator.Status(ctx)
	case "version":
		var version int64
		version, err = migrator.Version(ctx)
		if err == nil {
			fmt.Printf("database version: %d\n", version)
		}
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		logger.Fatal("migration command failed",
			zap.String("command", os.Args[1]), zap.Error(err))
	}
}

func openDB(cfg *config.DatabaseConfig) (*bun.DB, error) {
	if cfg.IsSQLite() {
		sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DSN())
		if err != nil {
			return nil, err
		}
		sqldb.SetMaxOpenConns(1)
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	}

	sqldb, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, err
	}
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: migrate <up|down|status|version>")
}
