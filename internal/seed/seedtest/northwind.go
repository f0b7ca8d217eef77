// Package seedtest opens an in-memory DuckDB loaded with the Northwind sample.
package seedtest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/asksql/asksql/internal/database"
	"github.com/asksql/asksql/internal/seed"
)

func OpenNorthwind(t testing.TB) *sql.DB {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Dialect: database.DuckDB})
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := seed.NewRunner(database.DuckDB).Up(ctx, db, 0); err != nil {
		t.Fatalf("seed northwind: %v", err)
	}
	return db
}
