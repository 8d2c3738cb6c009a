// Copyright 2026 The Agor Authors
// SPDX-License-Identifier: Apache-2.0

package agordb

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Config holds the parameters for opening the database.
type Config struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist; the file is created if absent.
	Path string

	// PoolSize is the number of connections. Defaults to 2 — the
	// engine is a sequential batch tool, so one connection does the
	// work and the spare covers overlapping reads in tests.
	PoolSize int

	// Logger receives operational messages. If nil, logging is
	// discarded.
	Logger *slog.Logger
}

// DB is the open database: a small connection pool with the schema
// applied. Safe for concurrent use; individual connections are not,
// so every operation takes a connection and returns it when done.
type DB struct {
	pool   *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// Open opens (creating if necessary) the database at cfg.Path,
// applies the connection pragmas and the schema, and returns the
// handle. The caller must Close it.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("agordb: Path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 2
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("agordb: opening %s: %w", cfg.Path, err)
	}

	db := &DB{pool: pool, logger: logger, path: cfg.Path}

	// Apply the schema through a borrowed connection. Connections are
	// created lazily, so this also validates that the file is usable.
	conn, err := pool.Take(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("agordb: opening %s: %w", cfg.Path, err)
	}
	schemaErr := sqlitex.ExecuteScript(conn, schema, nil)
	pool.Put(conn)
	if schemaErr != nil {
		pool.Close()
		return nil, fmt.Errorf("agordb: applying schema to %s: %w", cfg.Path, schemaErr)
	}

	logger.Info("database opened", "path", cfg.Path, "pool_size", poolSize)
	return db, nil
}

// Close closes all connections. Blocks until borrowed connections are
// returned.
func (db *DB) Close() error {
	if err := db.pool.Close(); err != nil {
		return fmt.Errorf("agordb: closing %s: %w", db.path, err)
	}
	return nil
}

func (db *DB) take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := db.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("agordb: take connection: %w", err)
	}
	return conn, nil
}

func (db *DB) put(conn *sqlite.Conn) {
	db.pool.Put(conn)
}

// prepareConnection applies the standard pragmas once per pooled
// connection. Foreign keys are ON: the ownership join references both
// users and worktrees and the engine depends on those rows being
// consistent.
func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("agordb: %s: %w", pragma, err)
		}
	}
	return nil
}
