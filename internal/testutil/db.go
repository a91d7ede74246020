// Package testutil provides a migrated SQLite database for package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"

	"retailpos/m/internal/database"
	"retailpos/m/internal/migrations"
)

// OpenDB creates a fresh database file under t.TempDir(), applies the
// schema and closes it when the test ends.
func OpenDB(t *testing.T) *sqlx.DB {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "test.db")
	db, err := database.Connect(context.Background(), "sqlite", dsn)
	if err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := migrations.Run(context.Background(), db); err != nil {
		t.Fatalf("migrations.Run() failed: %v", err)
	}
	return db
}

// Count returns the number of rows in table. table must be a trusted name.
func Count(t *testing.T, db *sqlx.DB, table string) int {
	t.Helper()
	var n int
	if err := db.Get(&n, "SELECT COUNT(*) FROM "+table); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
