package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/marcboeker/go-duckdb/v2"

	"github.com/asksql/asksql/internal/database"
	"github.com/asksql/asksql/internal/observability"
	"github.com/asksql/asksql/internal/query"
)

// Engine executes already validated statements against a database/sql pool.
type Engine struct {
	DB               *sql.DB
	Dialect          database.Dialect
	StatementTimeout time.Duration
}

func NewEngine(db *sql.DB, dialect database.Dialect, statementTimeout time.Duration) *Engine {
	return &Engine{DB: db, Dialect: dialect, StatementTimeout: statementTimeout}
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	if e.DB == nil {
		return query.Result{}, fmt.Errorf("database is required")
	}
	sqlText := StripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	if request.RowLimit > 0 {
		// One extra row tells us whether the limit cut the result.
		sqlText = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, request.RowLimit+1)
	}

	if e.StatementTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.StatementTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := e.run(ctx, sqlText)
	if err != nil {
		return query.Result{}, classify(err)
	}
	if request.RowLimit > 0 && len(result.Rows) > request.RowLimit {
		result.Rows = result.Rows[:request.RowLimit]
		result.Truncated = true
	}
	result.Duration = time.Since(start)
	observability.ObserveQuery(len(result.Rows), result.Duration)
	return result, nil
}

// Ping reports database reachability, tagging failures with query.ErrConnection.
func (e *Engine) Ping(ctx context.Context) error {
	if e.DB == nil {
		return fmt.Errorf("database is required")
	}
	if err := e.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w: %w", e.Dialect, query.ErrConnection, err)
	}
	return nil
}

func (e *Engine) run(ctx context.Context, sqlText string) (query.Result, error) {
	if !e.Dialect.SupportsReadOnlyTx() {
		rows, err := e.DB.QueryContext(ctx, sqlText)
		if err != nil {
			return query.Result{}, fmt.Errorf("execute query: %w", err)
		}
		return collect(rows)
	}

	tx, err := e.DB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return query.Result{}, fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}
	result, err := collect(rows)
	if err != nil {
		return query.Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return query.Result{}, fmt.Errorf("commit read-only transaction: %w", err)
	}
	return result, nil
}

func collect(rows *sql.Rows) (query.Result, error) {
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, NormalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, fmt.Errorf("iterate rows: %w", err)
	}
	return query.Result{Columns: columns, Rows: resultRows}, nil
}

func classify(err error) error {
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || errors.Is(err, mysql.ErrInvalidConn) {
		return fmt.Errorf("%w: %w", query.ErrConnection, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("statement timed out: %w", err)
	}
	if query.IsConnectionFailure(err) {
		return fmt.Errorf("%w: %w", query.ErrConnection, err)
	}
	return err
}

// NormalizeValues makes driver values JSON friendly: byte slices become
// strings, DuckDB decimals become float64 and small big integers int64.
func NormalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		case duckdb.Decimal:
			normalized[i] = typed.Float64()
		case *big.Int:
			if typed != nil && typed.IsInt64() {
				normalized[i] = typed.Int64()
			} else {
				normalized[i] = typed
			}
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func StripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
