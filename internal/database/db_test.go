package database

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/asksql/asksql/internal/query"
)

func TestParseDialect(t *testing.T) {
	tests := map[string]Dialect{
		"postgres":   Postgres,
		"PostgreSQL": Postgres,
		" mysql ":    MySQL,
		"duckdb":     DuckDB,
	}
	for raw, want := range tests {
		got, err := ParseDialect(raw)
		if err != nil {
			t.Fatalf("ParseDialect(%q) error = %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseDialect(%q) = %q, want %q", raw, got, want)
		}
	}
	if _, err := ParseDialect("oracle"); err == nil {
		t.Fatal("expected error for unsupported dialect")
	}
}

func TestDialectHelpers(t *testing.T) {
	if Postgres.Placeholder(2) != "$2" || MySQL.Placeholder(2) != "?" || DuckDB.Placeholder(1) != "?" {
		t.Fatal("unexpected placeholders")
	}
	if got := MySQL.QuoteIdent("order`details"); got != "`order``details`" {
		t.Fatalf("MySQL.QuoteIdent() = %q", got)
	}
	if got := Postgres.QuoteIdent(`odd"name`); got != `"odd""name"` {
		t.Fatalf("Postgres.QuoteIdent() = %q", got)
	}
	if MySQL.DefaultSchema("northwind") != "northwind" || Postgres.DefaultSchema("x") != "public" || DuckDB.DefaultSchema("") != "main" {
		t.Fatal("unexpected default schemas")
	}
	if DuckDB.SupportsReadOnlyTx() || !Postgres.SupportsReadOnlyTx() {
		t.Fatal("unexpected read-only support")
	}
}

func TestDataSourceName(t *testing.T) {
	dsn, err := Config{Dialect: Postgres, Host: "db", User: "u", Password: "p@ss", Name: "northwind"}.DataSourceName()
	if err != nil {
		t.Fatalf("DataSourceName() error = %v", err)
	}
	if dsn != "postgres://u:p%40ss@db:5432/northwind?sslmode=disable" {
		t.Fatalf("postgres DSN = %q", dsn)
	}

	dsn, err = Config{Dialect: MySQL, Host: "db", Port: 3307, User: "u", Password: "p", Name: "northwind"}.DataSourceName()
	if err != nil {
		t.Fatalf("DataSourceName() error = %v", err)
	}
	if !strings.HasPrefix(dsn, "u:p@tcp(db:3307)/northwind") || !strings.Contains(dsn, "parseTime=true") {
		t.Fatalf("mysql DSN = %q", dsn)
	}

	dsn, err = Config{Dialect: Postgres, DSN: "postgres://explicit"}.DataSourceName()
	if err != nil || dsn != "postgres://explicit" {
		t.Fatalf("explicit DSN = %q err = %v", dsn, err)
	}

	if _, err := (Config{Dialect: Postgres}).DataSourceName(); err == nil {
		t.Fatal("expected error for missing host")
	}
}

func TestOpenRequiresKnownDialect(t *testing.T) {
	if _, err := Open(context.Background(), Config{Dialect: "oracle"}); err == nil {
		t.Fatal("expected error for unsupported dialect")
	}
}

func TestOpenInMemoryDuckDB(t *testing.T) {
	db, err := Open(context.Background(), Config{Dialect: DuckDB})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	var one int
	if err := db.QueryRowContext(context.Background(), "SELECT 1").Scan(&one); err != nil {
		t.Fatalf("QueryRow() error = %v", err)
	}
	if one != 1 {
		t.Fatalf("SELECT 1 = %d", one)
	}
}

func TestOpenReportsUnreachableServerAsConnectionError(t *testing.T) {
	_, err := Open(context.Background(), Config{
		Dialect:  Postgres,
		Host:     "127.0.0.1",
		Port:     1,
		User:     "nobody",
		Password: "x",
		Name:     "none",
	})
	if err == nil {
		t.Fatal("expected connection error")
	}
	if !errors.Is(err, query.ErrConnection) {
		t.Fatalf("Open() error = %v, want ErrConnection", err)
	}
}
