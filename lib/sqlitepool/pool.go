// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/contextstore/lib/schema/contextentry"
)

// DefaultPoolSize is the number of connections opened when
// Config.PoolSize is zero.
const DefaultPoolSize = 10

// Config holds the parameters for opening a pool. Path is required.
type Config struct {
	// Path is the database file. The parent directory must exist.
	Path string

	// PoolSize bounds the number of open connections. Zero or
	// negative means DefaultPoolSize.
	PoolSize int

	// Logger receives open/close and error messages. Nil discards.
	Logger *slog.Logger

	// OnConnect runs once per connection after the standard pragmas,
	// typically to create the schema. An error discards the
	// connection and fails the Take that triggered it.
	OnConnect func(conn *sqlite.Conn) error
}

// Pool is a fixed-size pool of SQLite connections. Safe for concurrent
// use; individual connections are not.
type Pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
	size   int

	inUse  atomic.Int64
	closed atomic.Bool
}

// Open creates the pool. Connections are initialized lazily on first
// use, so schema errors from OnConnect surface on the first Take.
func Open(cfg Config) (*Pool, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlitepool: Path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}

	inner, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			return prepareConnection(conn, cfg.OnConnect)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: opening %s: %w", cfg.Path, err)
	}

	logger.Info("sqlite pool opened",
		"path", cfg.Path,
		"pool_size", poolSize,
	)

	return &Pool{
		inner:  inner,
		logger: logger,
		path:   cfg.Path,
		size:   poolSize,
	}, nil
}

// Take borrows a connection, blocking until one is free or ctx ends.
// The caller must Put it back.
func (p *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	if p.closed.Load() {
		return nil, contextentry.BackendError("sqlite", "take connection", errPoolClosed)
	}
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, contextentry.BackendError("sqlite", "take connection", err)
	}
	p.inUse.Add(1)
	return conn, nil
}

// Put returns a connection to the pool. Nil is a no-op.
func (p *Pool) Put(conn *sqlite.Conn) {
	if conn == nil {
		return
	}
	p.inUse.Add(-1)
	p.inner.Put(conn)
}

// Do borrows a connection for the duration of fn and returns it on
// every exit path. Errors from fn that are not already classified are
// reported as backend failures of operation.
func (p *Pool) Do(ctx context.Context, operation string, fn func(conn *sqlite.Conn) error) error {
	conn, err := p.Take(ctx)
	if err != nil {
		return err
	}
	defer p.Put(conn)

	// Interrupt long statements when the caller gives up.
	conn.SetInterrupt(ctx.Done())
	defer conn.SetInterrupt(nil)

	if err := fn(conn); err != nil {
		if ctx.Err() != nil {
			return contextentry.BackendError("sqlite", operation, ctx.Err())
		}
		return contextentry.BackendError("sqlite", operation, err)
	}
	return nil
}

var errPoolClosed = errors.New("sqlitepool: pool closed")

// Stats reports the pool bound and the number of borrowed connections.
type Stats struct {
	Size  int
	InUse int64
}

// Stats returns a snapshot of pool usage.
func (p *Pool) Stats() Stats {
	return Stats{Size: p.size, InUse: p.inUse.Load()}
}

// Close closes every connection. Blocks until borrowed connections are
// returned. Subsequent calls, and Takes after Close, fail.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return errPoolClosed
	}
	if err := p.inner.Close(); err != nil {
		p.logger.Error("sqlite pool close error",
			"path", p.path,
			"error", err,
		)
		return fmt.Errorf("sqlitepool: closing %s: %w", p.path, err)
	}
	p.logger.Info("sqlite pool closed", "path", p.path)
	return nil
}

func prepareConnection(conn *sqlite.Conn, onConnect func(*sqlite.Conn) error) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-8192",
		"PRAGMA mmap_size=268435456",
		"PRAGMA temp_store=MEMORY",
	}

	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlitepool: %s: %w", pragma, err)
		}
	}

	if onConnect != nil {
		if err := onConnect(conn); err != nil {
			return fmt.Errorf("sqlitepool: OnConnect: %w", err)
		}
	}
	return nil
}
