// Package store wraps the SQLite asset database. Reads go through a bounded
// pool of read-only connections; loads and uploads go through a Writer.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

type Config struct {
	Logger *slog.Logger
	Path   string

	// MaxOpenConns bounds how many queries may hold a connection at once.
	// Further callers block in Conn until one is released or ctx is done.
	MaxOpenConns int
	MaxIdleTime  time.Duration
	QueryTimeout time.Duration
	BusyTimeout  time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Path == "" {
		return errors.New("database path is required")
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.MaxIdleTime <= 0 {
		cfg.MaxIdleTime = 5 * time.Minute
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 30 * time.Second
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	return nil
}

// Store is the read-only side of the database.
type Store struct {
	log *slog.Logger
	cfg Config
	db  *sql.DB
}

// Open opens a read-only connection pool. The database file must already exist.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate store config: %w", err)
	}

	db, err := sql.Open(driverName, readOnlyDSN(cfg.Path, cfg.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxIdleTime(cfg.MaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.QueryTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.Path, err)
	}

	cfg.Logger.Debug("store: opened read-only pool", "path", cfg.Path, "maxOpenConns", cfg.MaxOpenConns)

	return &Store{log: cfg.Logger, cfg: cfg, db: db}, nil
}

// DB exposes the pool for metadata reads such as schema introspection.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

func readOnlyDSN(path string, busy time.Duration) string {
	return fmt.Sprintf("file:%s?mode=ro&_pragma=query_only(1)&_pragma=busy_timeout(%d)", path, busy.Milliseconds())
}

func readWriteDSN(path string, busy time.Duration) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)", path, busy.Milliseconds())
}
