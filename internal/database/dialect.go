package database

import (
	"fmt"
	"strconv"
	"strings"
)

type Dialect string

const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
	DuckDB   Dialect = "duckdb"
)

func ParseDialect(raw string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(raw))); d {
	case Postgres, MySQL, DuckDB:
		return d, nil
	case "postgresql", "pgx":
		return Postgres, nil
	default:
		return "", fmt.Errorf("unsupported database dialect %q", raw)
	}
}

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	switch d {
	case Postgres:
		return "pgx"
	case MySQL:
		return "mysql"
	case DuckDB:
		return "duckdb"
	default:
		return ""
	}
}

// Title is the human readable engine name used in prompts.
func (d Dialect) Title() string {
	switch d {
	case Postgres:
		return "PostgreSQL"
	case MySQL:
		return "MySQL"
	case DuckDB:
		return "DuckDB"
	default:
		return string(d)
	}
}

func (d Dialect) Placeholder(position int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(position)
	}
	return "?"
}

func (d Dialect) QuoteIdent(name string) string {
	if d == MySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// DefaultSchema is the information_schema table_schema holding user tables.
func (d Dialect) DefaultSchema(databaseName string) string {
	switch d {
	case MySQL:
		return databaseName
	case DuckDB:
		return "main"
	default:
		return "public"
	}
}

// SupportsReadOnlyTx reports whether BeginTx honours sql.TxOptions.ReadOnly.
func (d Dialect) SupportsReadOnlyTx() bool {
	return d == Postgres || d == MySQL
}
