// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the bounded SQLite connection pool behind
// the persistent context tier.
//
// The pool wraps zombiezen.com/go/sqlite's sqlitex.Pool: a fixed set
// of connections (10 by default) that callers borrow and return. A
// borrowed connection is not safe for concurrent use; each goroutine
// holds its own for the duration of one operation.
//
// Most callers use [Pool.Do], which scopes acquisition to a callback
// and returns the connection on every exit path, including panics and
// errors. [Pool.Take] and [Pool.Put] remain available for code that
// needs to hold a connection across several steps.
//
// When the pool is exhausted, Take and Do block until a connection is
// returned or the caller's context ends. A context deadline surfaces
// as contextentry.ErrTimeout, so a saturated pool is reported the same
// way as a slow backend.
//
// # Pragmas
//
// Every connection is initialized with:
//
//   - journal_mode=WAL: readers never block the single writer.
//   - synchronous=NORMAL: commits survive a process crash without an
//     fsync per transaction.
//   - busy_timeout=5000: wait for the write lock instead of failing
//     with SQLITE_BUSY.
//   - cache_size=-8192: 8 MB page cache per connection.
//   - mmap_size=268435456: 256 MB memory-mapped reads.
//   - temp_store=MEMORY: sort spills for ORDER BY stay in memory.
//
// # Usage
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:   "/var/lib/contextstore/context.db",
//	    Logger: logger,
//	    OnConnect: func(conn *sqlite.Conn) error {
//	        return sqlitex.ExecuteScript(conn, schema, nil)
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	err = pool.Do(ctx, "get", func(conn *sqlite.Conn) error {
//	    return sqlitex.Execute(conn, query, options)
//	})
package sqlitepool
