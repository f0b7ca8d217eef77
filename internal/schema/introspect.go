package schema

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/asksql/asksql/internal/database"
	"github.com/asksql/asksql/internal/observability"
	"github.com/asksql/asksql/internal/query"
	"github.com/asksql/asksql/internal/query/sqldb"
)

const defaultMaxKnownValues = 10

// ColumnContext is what a Describer sees about one column.
type ColumnContext struct {
	Table        string
	Column       string
	DataType     string
	SampleValues []string
}

type Describer interface {
	DescribeColumn(ctx context.Context, column ColumnContext) (string, error)
}

// Introspector reads table and column metadata from information_schema.
type Introspector struct {
	DB             *sql.DB
	Dialect        database.Dialect
	Schema         string
	MaxKnownValues int
	ExcludeColumns []string
	Describer      Describer
	Logger         *slog.Logger
	Now            func() time.Time
}

func (i *Introspector) Introspect(ctx context.Context) (Metadata, error) {
	if i.DB == nil {
		return Metadata{}, fmt.Errorf("database is required")
	}
	schemaName := i.Schema
	if schemaName == "" {
		schemaName = i.Dialect.DefaultSchema("")
	}
	logger := observability.LoggerWithTrace(ctx, i.Logger)

	tables, err := i.listTables(ctx, schemaName)
	if err != nil {
		return Metadata{}, err
	}

	metadata := Metadata{
		Dialect:     string(i.Dialect),
		Schema:      schemaName,
		GeneratedAt: i.now(),
		Tables:      make([]Table, 0, len(tables)),
	}
	for _, tableName := range tables {
		columns, err := i.listColumns(ctx, schemaName, tableName)
		if err != nil {
			return Metadata{}, err
		}
		columns = slices.DeleteFunc(columns, func(c Column) bool { return i.excluded(tableName, c.Name) })
		for idx := range columns {
			column := &columns[idx]
			var samples []string
			if !isIDLike(column.Name) {
				samples, err = i.distinctValues(ctx, schemaName, tableName, column.Name)
				if err != nil {
					logger.Warn("sample column values failed",
						slog.String("table", tableName),
						slog.String("column", column.Name),
						slog.Any("error", err),
					)
				} else if len(samples) <= i.maxKnownValues() {
					column.KnownValues = samples
				}
			}
			column.Description = i.describe(ctx, logger, ColumnContext{
				Table:        tableName,
				Column:       column.Name,
				DataType:     column.DataType,
				SampleValues: truncateSamples(samples, i.maxKnownValues()),
			})
		}
		metadata.Tables = append(metadata.Tables, Table{Name: tableName, Columns: columns})
	}

	logger.Info("schema introspected",
		slog.String("schema", schemaName),
		slog.Int("tables", len(metadata.Tables)),
	)
	return metadata, nil
}

func (i *Introspector) listTables(ctx context.Context, schemaName string) ([]string, error) {
	rows, err := i.DB.QueryContext(ctx,
		"SELECT table_name FROM information_schema.tables WHERE table_schema = "+i.Dialect.Placeholder(1)+
			" AND table_type = 'BASE TABLE' ORDER BY table_name",
		schemaName,
	)
	if err != nil {
		return nil, query.WrapConnectionError("list tables", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return tables, nil
}

func (i *Introspector) listColumns(ctx context.Context, schemaName, tableName string) ([]Column, error) {
	rows, err := i.DB.QueryContext(ctx,
		"SELECT column_name, data_type, is_nullable FROM information_schema.columns WHERE table_schema = "+
			i.Dialect.Placeholder(1)+" AND table_name = "+i.Dialect.Placeholder(2)+" ORDER BY ordinal_position",
		schemaName, tableName,
	)
	if err != nil {
		return nil, query.WrapConnectionError(fmt.Sprintf("list columns of %s", tableName), err)
	}
	defer func() { _ = rows.Close() }()

	var columns []Column
	for rows.Next() {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("scan column of %s: %w", tableName, err)
		}
		columns = append(columns, Column{
			Name:     name,
			DataType: strings.ToLower(dataType),
			Nullable: strings.EqualFold(nullable, "YES"),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns of %s: %w", tableName, err)
	}
	return columns, nil
}

// distinctValues returns up to MaxKnownValues+1 distinct non-null values so
// callers can tell whether the column is low-cardinality.
func (i *Introspector) distinctValues(ctx context.Context, schemaName, tableName, columnName string) ([]string, error) {
	column := i.Dialect.QuoteIdent(columnName)
	stmt := fmt.Sprintf("SELECT DISTINCT %s FROM %s.%s WHERE %s IS NOT NULL ORDER BY 1 LIMIT %d",
		column,
		i.Dialect.QuoteIdent(schemaName),
		i.Dialect.QuoteIdent(tableName),
		column,
		i.maxKnownValues()+1,
	)
	rows, err := i.DB.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var values []string
	for rows.Next() {
		var value any
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		values = append(values, fmt.Sprint(sqldb.NormalizeValues([]any{value})[0]))
	}
	return values, rows.Err()
}

func (i *Introspector) describe(ctx context.Context, logger *slog.Logger, column ColumnContext) string {
	if i.Describer == nil {
		return ""
	}
	description, err := i.Describer.DescribeColumn(ctx, column)
	if err != nil {
		logger.Warn("describe column failed",
			slog.String("table", column.Table),
			slog.String("column", column.Column),
			slog.Any("error", err),
		)
		return ""
	}
	return description
}

func (i *Introspector) excluded(tableName, columnName string) bool {
	for _, pattern := range i.ExcludeColumns {
		if strings.EqualFold(pattern, columnName) || strings.EqualFold(pattern, tableName+"."+columnName) {
			return true
		}
	}
	return false
}

func (i *Introspector) maxKnownValues() int {
	if i.MaxKnownValues > 0 {
		return i.MaxKnownValues
	}
	return defaultMaxKnownValues
}

func (i *Introspector) now() time.Time {
	if i.Now != nil {
		return i.Now().UTC()
	}
	return time.Now().UTC()
}

func isIDLike(columnName string) bool {
	name := strings.ToLower(columnName)
	return name == "id" || strings.HasSuffix(name, "_id")
}

func truncateSamples(values []string, limit int) []string {
	if len(values) > limit {
		return values[:limit]
	}
	return values
}
