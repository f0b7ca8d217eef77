package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/asksql/asksql/internal/query"
)

const pingTimeout = 5 * time.Second

type Config struct {
	Dialect         Dialect
	DSN             string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// DataSourceName returns DSN verbatim or builds one from the discrete fields.
// For DuckDB the name is a database file path; empty means in-memory.
func (c Config) DataSourceName() (string, error) {
	if c.DSN != "" {
		return c.DSN, nil
	}
	switch c.Dialect {
	case Postgres:
		if c.Host == "" {
			return "", fmt.Errorf("postgres host is required")
		}
		dsn := url.URL{
			Scheme:   "postgres",
			Host:     hostPort(c.Host, c.Port, 5432),
			Path:     "/" + c.Name,
			RawQuery: "sslmode=disable",
		}
		if c.User != "" {
			dsn.User = url.UserPassword(c.User, c.Password)
		}
		return dsn.String(), nil
	case MySQL:
		if c.Host == "" {
			return "", fmt.Errorf("mysql host is required")
		}
		cfg := mysql.NewConfig()
		cfg.User = c.User
		cfg.Passwd = c.Password
		cfg.Net = "tcp"
		cfg.Addr = hostPort(c.Host, c.Port, 3306)
		cfg.DBName = c.Name
		cfg.ParseTime = true
		return cfg.FormatDSN(), nil
	case DuckDB:
		return c.Name, nil
	default:
		return "", fmt.Errorf("unsupported database dialect %q", c.Dialect)
	}
}

func hostPort(host string, port, fallback int) string {
	if port <= 0 {
		port = fallback
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Open connects and pings the database. A failed ping is reported as
// query.ErrConnection.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	driverName := cfg.Dialect.DriverName()
	if driverName == "" {
		return nil, fmt.Errorf("unsupported database dialect %q", cfg.Dialect)
	}
	dsn, err := cfg.DataSourceName()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", cfg.Dialect, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w: %w", cfg.Dialect, query.ErrConnection, err)
	}

	return db, nil
}
