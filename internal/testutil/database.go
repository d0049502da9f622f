// Package testutil provides helpers for tests that need a real database.
package testutil

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/scribehq/scribe/internal/migrate"
)

// OpenTestDB opens an in-memory SQLite database with the full schema applied.
// Every call returns an isolated database that is closed when the test ends.
func OpenTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	require.NoError(t, err)

	// The single connection keeps the in-memory database alive and
	// serializes concurrent writers.
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)
	sqldb.SetConnMaxLifetime(0)

	_, err = sqldb.Exec("PRAGMA foreign_keys = ON")
	require.NoError(t, err)

	require.NoError(t, migrate.RunWithDB(context.Background(), sqldb, "sqlite3"))

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	return db
}
