package query

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"
)

// ErrConnection marks failures to reach the database, as opposed to errors
// raised while executing a statement.
var ErrConnection = errors.New("database connection failed")

type Request struct {
	SQL      string
	RowLimit int
}

type Result struct {
	Columns   []string
	Rows      [][]any
	Truncated bool
	Duration  time.Duration
}

// RowMaps returns each row keyed by column name.
func (r Result) RowMaps() []map[string]any {
	out := make([]map[string]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		mapped := make(map[string]any, len(r.Columns))
		for i, column := range r.Columns {
			if i < len(row) {
				mapped[column] = row[i]
			}
		}
		out = append(out, mapped)
	}
	return out
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}

// IsConnectionFailure reports whether err looks like a transport level failure.
func IsConnectionFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConnection) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// WrapConnectionError tags err with ErrConnection when it is a connection failure.
func WrapConnectionError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConnection) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if IsConnectionFailure(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrConnection, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
