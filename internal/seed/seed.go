// Package seed loads the embedded Northwind sample dataset into an empty
// database. Scripts are versioned the same way schema migrations are, so a
// second run only applies what is missing.
package seed

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/asksql/asksql/internal/database"
	"github.com/asksql/asksql/internal/query"
	"github.com/asksql/asksql/internal/sqlguard"
)

//go:embed sql/*.sql
var embeddedFS embed.FS

const versionTable = "asksql_seed_versions"

var scriptNamePattern = regexp.MustCompile(`^([0-9]+)_.+\.(up|down)\.sql$`)

type Runner struct {
	fsys    fs.FS
	dialect database.Dialect
}

func NewRunner(dialect database.Dialect) *Runner {
	return &Runner{fsys: embeddedFS, dialect: dialect}
}

type script struct {
	Version int64
	Name    string
	Up      []string
	Down    []string
}

// Up applies pending scripts in version order. steps <= 0 applies all.
func (r *Runner) Up(ctx context.Context, db *sql.DB, steps int) (int, error) {
	scripts, err := loadScripts(r.fsys)
	if err != nil {
		return 0, err
	}
	if err := ensureVersionTable(ctx, db); err != nil {
		return 0, err
	}
	applied, err := listAppliedVersions(ctx, db, "ASC")
	if err != nil {
		return 0, err
	}

	appliedSet := make(map[int64]struct{}, len(applied))
	for _, version := range applied {
		appliedSet[version] = struct{}{}
	}

	runCount := 0
	for _, item := range scripts {
		if _, ok := appliedSet[item.Version]; ok {
			continue
		}
		if steps > 0 && runCount >= steps {
			break
		}
		insert := `INSERT INTO ` + versionTable + ` (version) VALUES (` + r.dialect.Placeholder(1) + `)`
		if err := runScript(ctx, db, item.Version, item.Up, insert); err != nil {
			return runCount, fmt.Errorf("apply seed %s: %w", item.Name, err)
		}
		runCount++
	}
	return runCount, nil
}

// Down reverts the most recent steps scripts (at least one).
func (r *Runner) Down(ctx context.Context, db *sql.DB, steps int) (int, error) {
	if steps <= 0 {
		steps = 1
	}

	scripts, err := loadScripts(r.fsys)
	if err != nil {
		return 0, err
	}
	if err := ensureVersionTable(ctx, db); err != nil {
		return 0, err
	}
	applied, err := listAppliedVersions(ctx, db, "DESC")
	if err != nil {
		return 0, err
	}

	lookup := make(map[int64]script, len(scripts))
	for _, item := range scripts {
		lookup[item.Version] = item
	}

	runCount := 0
	for _, version := range applied {
		if runCount >= steps {
			break
		}
		item, ok := lookup[version]
		if !ok {
			return runCount, fmt.Errorf("applied seed %d is missing from source", version)
		}
		remove := `DELETE FROM ` + versionTable + ` WHERE version = ` + r.dialect.Placeholder(1)
		if err := runScript(ctx, db, item.Version, item.Down, remove); err != nil {
			return runCount, fmt.Errorf("revert seed %s: %w", item.Name, err)
		}
		runCount++
	}
	return runCount, nil
}

// Applied lists applied versions in ascending order.
func (r *Runner) Applied(ctx context.Context, db *sql.DB) ([]int64, error) {
	if err := ensureVersionTable(ctx, db); err != nil {
		return nil, err
	}
	return listAppliedVersions(ctx, db, "ASC")
}

func ensureVersionTable(ctx context.Context, db *sql.DB) error {
	statement := `
CREATE TABLE IF NOT EXISTS ` + versionTable + ` (
	version BIGINT PRIMARY KEY,
	applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`
	if _, err := db.ExecContext(ctx, statement); err != nil {
		return query.WrapConnectionError("ensure seed version table", err)
	}
	return nil
}

func runScript(ctx context.Context, db *sql.DB, version int64, statements []string, bookkeeping string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return query.WrapConnectionError("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, statement := range statements {
		if _, err := tx.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("statement %d: %w", i+1, err)
		}
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, version); err != nil {
		return fmt.Errorf("record version %d: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit version %d: %w", version, err)
	}
	return nil
}

func listAppliedVersions(ctx context.Context, db *sql.DB, order string) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM `+versionTable+` ORDER BY version `+order)
	if err != nil {
		return nil, fmt.Errorf("query applied versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var versions []int64
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return versions, nil
}

func loadScripts(fsys fs.FS) ([]script, error) {
	entries, err := fs.ReadDir(fsys, "sql")
	if err != nil {
		return nil, fmt.Errorf("read seed dir: %w", err)
	}

	items := map[int64]script{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		base := path.Base(entry.Name())
		matches := scriptNamePattern.FindStringSubmatch(base)
		if len(matches) != 3 {
			continue
		}
		version, err := strconv.ParseInt(matches[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse seed version for %q: %w", base, err)
		}

		raw, err := fs.ReadFile(fsys, path.Join("sql", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read seed %q: %w", entry.Name(), err)
		}
		statements, err := sqlguard.SplitStatements(string(raw))
		if err != nil {
			return nil, fmt.Errorf("split seed %q: %w", entry.Name(), err)
		}

		item := items[version]
		item.Version = version
		item.Name = strings.TrimSuffix(strings.TrimSuffix(base, ".sql"), "."+matches[2])
		switch matches[2] {
		case "up":
			item.Up = statements
		case "down":
			item.Down = statements
		}
		items[version] = item
	}

	versions := make([]int64, 0, len(items))
	for version := range items {
		versions = append(versions, version)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })

	scripts := make([]script, 0, len(versions))
	for _, version := range versions {
		item := items[version]
		if len(item.Up) == 0 {
			return nil, fmt.Errorf("seed %d missing up SQL", version)
		}
		if len(item.Down) == 0 {
			return nil, fmt.Errorf("seed %d missing down SQL", version)
		}
		scripts = append(scripts, item)
	}
	return scripts, nil
}
