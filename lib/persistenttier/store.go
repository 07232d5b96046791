// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package persistenttier implements the durable warm and cold tiers of
// the context store on a single SQLite table.
//
// Warm rows carry an expiry (Config.WarmTTL from their last write);
// cold rows never expire. Reads filter expired warm rows; DeleteExpired
// reaps them. Payloads are compressed per tier according to
// Config.CompressWarm and Config.CompressCold, and
// CompressOlderThan compresses remaining uncompressed rows in batches.
package persistenttier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/contextstore/lib/clock"
	"github.com/bureau-foundation/contextstore/lib/codec"
	"github.com/bureau-foundation/contextstore/lib/compress"
	"github.com/bureau-foundation/contextstore/lib/schema/contextentry"
	"github.com/bureau-foundation/contextstore/lib/sqlitepool"
)

// Defaults applied by Open for zero Config fields.
const (
	DefaultWarmTTL   = 7 * 24 * time.Hour
	DefaultBatchSize = 100
)

// Config holds the parameters for opening a persistent tier store.
type Config struct {
	// Path is the SQLite database file. The parent directory must
	// exist. Required.
	Path string

	// PoolSize bounds the connection pool. Zero means
	// sqlitepool.DefaultPoolSize.
	PoolSize int

	// Codec compresses payloads. Nil means compress.Default().
	Codec *compress.Codec

	Clock  clock.Clock
	Logger *slog.Logger

	// WarmTTL is the lifetime of a warm row from its last write.
	WarmTTL time.Duration

	// CompressWarm and CompressCold select compression on write for
	// each tier.
	CompressWarm bool
	CompressCold bool

	// BatchSize bounds the rows processed per transaction by
	// CompressOlderThan.
	BatchSize int
}

// Store is the persistent tier. Safe for concurrent use.
type Store struct {
	pool         *sqlitepool.Pool
	codec        *compress.Codec
	clock        clock.Clock
	logger       *slog.Logger
	warmTTL      time.Duration
	compressWarm bool
	compressCold bool
	batchSize    int
}

// Open creates the store and its schema. The database file is created
// if it does not exist.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("persistent tier: %w", err)
	}

	store := &Store{
		pool:         pool,
		codec:        cfg.Codec,
		clock:        cfg.Clock,
		logger:       logger,
		warmTTL:      cfg.WarmTTL,
		compressWarm: cfg.CompressWarm,
		compressCold: cfg.CompressCold,
		batchSize:    cfg.BatchSize,
	}
	if store.codec == nil {
		store.codec = compress.Default()
	}
	if store.clock == nil {
		store.clock = clock.Real()
	}
	if store.warmTTL <= 0 {
		store.warmTTL = DefaultWarmTTL
	}
	if store.batchSize <= 0 {
		store.batchSize = DefaultBatchSize
	}

	// Surface schema errors now rather than on the first request.
	if err := pool.Do(ctx, "initialize", func(*sqlite.Conn) error { return nil }); err != nil {
		pool.Close()
		return nil, fmt.Errorf("persistent tier: %w", err)
	}
	return store, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// PoolStats reports connection pool usage.
func (s *Store) PoolStats() sqlitepool.Stats {
	return s.pool.Stats()
}

func (s *Store) compressionEnabled(tier contextentry.Tier) bool {
	if tier == contextentry.TierCold {
		return s.compressCold
	}
	return s.compressWarm
}

func (s *Store) expiryFor(tier contextentry.Tier, now time.Time) *time.Time {
	if tier != contextentry.TierWarm {
		return nil
	}
	expiresAt := now.Add(s.warmTTL)
	return &expiresAt
}

// encodeContent serializes content and compresses it when the tier
// asks for it. Returns the stored bytes and the raw length.
func (s *Store) encodeContent(content any, tier contextentry.Tier) ([]byte, int64, bool, error) {
	raw, err := codec.EncodeContent(content)
	if err != nil {
		return nil, 0, false, err
	}
	if !s.compressionEnabled(tier) {
		return raw, int64(len(raw)), false, nil
	}
	frame, err := s.codec.Compress(raw)
	if err != nil {
		return nil, 0, false, fmt.Errorf("compressing content: %w", err)
	}
	return frame, int64(len(raw)), true, nil
}

// Put upserts entry into tier, which must be warm or cold. The
// entry's Tier, ExpiresAt, size, and compression fields are updated to
// describe the stored row.
func (s *Store) Put(ctx context.Context, entry *contextentry.Entry, tier contextentry.Tier) error {
	if !tier.Persistent() {
		return fmt.Errorf("%w: persistent tier cannot store tier %q", contextentry.ErrValidation, tier)
	}
	entry.Tier = tier
	if err := entry.Validate(); err != nil {
		return err
	}

	stored, rawSize, compressed, err := s.encodeContent(entry.Content, tier)
	if err != nil {
		return fmt.Errorf("entry %s: %w", entry.ID, err)
	}
	metadata, err := encodeMetadata(entry.Metadata)
	if err != nil {
		return fmt.Errorf("entry %s: %w", entry.ID, err)
	}

	expiresAt := s.expiryFor(tier, s.clock.Now())

	err = s.pool.Do(ctx, "put", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			INSERT INTO context_entries (`+selectColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				session_id = excluded.session_id,
				user_id = excluded.user_id,
				content = excluded.content,
				tier = excluded.tier,
				created_at = excluded.created_at,
				access_count = MAX(context_entries.access_count, excluded.access_count),
				last_accessed_at = excluded.last_accessed_at,
				size_bytes = excluded.size_bytes,
				raw_size_bytes = excluded.raw_size_bytes,
				compressed = excluded.compressed,
				expires_at = excluded.expires_at,
				metadata = excluded.metadata`,
			&sqlitex.ExecOptions{
				Args: []any{
					entry.ID,
					entry.SessionID,
					entry.UserID,
					stored,
					string(tier),
					entry.CreatedAt.UnixNano(),
					entry.AccessCount,
					entry.LastAccessedAt.UnixNano(),
					int64(len(stored)),
					rawSize,
					boolInt(compressed),
					nullableTime(expiresAt),
					metadata,
				},
			})
	})
	if err != nil {
		return fmt.Errorf("storing entry %s in %s tier: %w", entry.ID, tier, err)
	}

	entry.SizeBytes = int64(len(stored))
	entry.RawSizeBytes = rawSize
	entry.Compressed = compressed
	entry.ExpiresAt = expiresAt
	return nil
}

// Get returns the live entry with id, or an error wrapping
// contextentry.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*contextentry.Entry, error) {
	entries, err := s.query(ctx, "get",
		"SELECT "+selectColumns+" FROM context_entries WHERE id = ? AND "+liveCondition,
		id, s.clock.Now().UnixNano())
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("persistent entry %s: %w", id, contextentry.ErrNotFound)
	}
	return entries[0], nil
}

// GetBySession returns a session's live entries, most recently
// accessed first. A limit of zero or less returns all of them.
func (s *Store) GetBySession(ctx context.Context, sessionID string, limit int) ([]*contextentry.Entry, error) {
	return s.query(ctx, "get by session",
		"SELECT "+selectColumns+" FROM context_entries WHERE session_id = ? AND "+liveCondition+
			" ORDER BY last_accessed_at DESC, id LIMIT ?",
		sessionID, s.clock.Now().UnixNano(), sqlLimit(limit))
}

// GetByUser returns a user's live entries, most recently accessed
// first. A limit of zero or less returns all of them.
func (s *Store) GetByUser(ctx context.Context, userID string, limit int) ([]*contextentry.Entry, error) {
	return s.query(ctx, "get by user",
		"SELECT "+selectColumns+" FROM context_entries WHERE user_id = ? AND "+liveCondition+
			" ORDER BY last_accessed_at DESC, id LIMIT ?",
		userID, s.clock.Now().UnixNano(), sqlLimit(limit))
}

// Delete removes the row with id. Reports whether a row existed.
// Expired warm rows count as existing; deleting them is still useful.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := s.pool.Do(ctx, "delete", func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, "DELETE FROM context_entries WHERE id = ?",
			&sqlitex.ExecOptions{Args: []any{id}}); err != nil {
			return err
		}
		deleted = conn.Changes() > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("deleting entry %s: %w", id, err)
	}
	return deleted, nil
}

// RecordAccess writes back the access bookkeeping of entry. Neither
// value moves backwards: a stale writer racing a newer one cannot
// lower the stored count or time.
func (s *Store) RecordAccess(ctx context.Context, entry *contextentry.Entry) error {
	var changed bool
	err := s.pool.Do(ctx, "record access", func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `
			UPDATE context_entries SET
				access_count = MAX(access_count, ?),
				last_accessed_at = MAX(last_accessed_at, ?)
			WHERE id = ? AND `+liveCondition,
			&sqlitex.ExecOptions{Args: []any{
				entry.AccessCount,
				entry.LastAccessedAt.UnixNano(),
				entry.ID,
				s.clock.Now().UnixNano(),
			}})
		if err != nil {
			return err
		}
		changed = conn.Changes() > 0
		return nil
	})
	if err != nil {
		return fmt.Errorf("recording access to entry %s: %w", entry.ID, err)
	}
	if !changed {
		return fmt.Errorf("persistent entry %s: %w", entry.ID, contextentry.ErrNotFound)
	}
	return nil
}

// UpdateContent replaces the payload of a live entry in place,
// recompressing per its tier. A warm entry's expiry restarts. Returns
// the updated entry.
func (s *Store) UpdateContent(ctx context.Context, id string, content any) (*contextentry.Entry, error) {
	var updated *contextentry.Entry
	err := s.pool.Do(ctx, "update", func(conn *sqlite.Conn) (err error) {
		endTransaction, err := sqlitex.ImmediateTransaction(conn)
		if err != nil {
			return err
		}
		defer endTransaction(&err)

		now := s.clock.Now()
		entries, err := s.queryConn(conn,
			"SELECT "+selectColumns+" FROM context_entries WHERE id = ? AND "+liveCondition,
			id, now.UnixNano())
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return fmt.Errorf("persistent entry %s: %w", id, contextentry.ErrNotFound)
		}
		entry := entries[0]

		stored, rawSize, compressed, err := s.encodeContent(content, entry.Tier)
		if err != nil {
			return err
		}
		expiresAt := s.expiryFor(entry.Tier, now)

		err = sqlitex.Execute(conn, `
			UPDATE context_entries SET
				content = ?, size_bytes = ?, raw_size_bytes = ?, compressed = ?, expires_at = ?
			WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{
				stored,
				int64(len(stored)),
				rawSize,
				boolInt(compressed),
				nullableTime(expiresAt),
				id,
			}})
		if err != nil {
			return err
		}

		entry.Content = content
		entry.SizeBytes = int64(len(stored))
		entry.RawSizeBytes = rawSize
		entry.Compressed = compressed
		entry.ExpiresAt = expiresAt
		updated = entry
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("updating entry %s: %w", id, err)
	}
	return updated, nil
}

// CompressOlderThan compresses the uncompressed live rows created
// before cutoff, BatchSize rows per transaction. Rows already
// compressed are skipped, so repeated calls are idempotent. Returns
// the number of rows compressed.
func (s *Store) CompressOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	total := 0
	lastID := ""
	for {
		if err := ctx.Err(); err != nil {
			return total, contextentry.BackendError("sqlite", "compress older than", err)
		}
		count, nextID, err := s.compressBatch(ctx, cutoff, lastID)
		total += count
		if err != nil {
			return total, fmt.Errorf("compressing entries older than %s: %w", cutoff.Format(time.RFC3339), err)
		}
		if nextID == "" {
			return total, nil
		}
		lastID = nextID
	}
}

type pendingRow struct {
	id      string
	content []byte
}

// compressBatch compresses one keyset page of rows with id > afterID.
// Returns the last id visited, or "" when the page was the final one.
func (s *Store) compressBatch(ctx context.Context, cutoff time.Time, afterID string) (int, string, error) {
	compressedCount := 0
	lastVisited := ""
	err := s.pool.Do(ctx, "compress batch", func(conn *sqlite.Conn) (err error) {
		endTransaction, err := sqlitex.ImmediateTransaction(conn)
		if err != nil {
			return err
		}
		defer endTransaction(&err)

		var rows []pendingRow
		err = sqlitex.Execute(conn, `
			SELECT id, content FROM context_entries
			WHERE compressed = 0 AND created_at < ? AND id > ? AND `+liveCondition+`
			ORDER BY id LIMIT ?`,
			&sqlitex.ExecOptions{
				Args: []any{cutoff.UnixNano(), afterID, s.clock.Now().UnixNano(), s.batchSize},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					content := make([]byte, stmt.ColumnLen(1))
					stmt.ColumnBytes(1, content)
					rows = append(rows, pendingRow{id: stmt.ColumnText(0), content: content})
					return nil
				},
			})
		if err != nil {
			return err
		}

		for _, row := range rows {
			frame, compressErr := s.codec.Compress(row.content)
			if compressErr != nil {
				s.logger.Warn("skipping entry that failed to compress",
					"entry_id", row.id,
					"error", compressErr,
				)
				continue
			}
			err = sqlitex.Execute(conn,
				"UPDATE context_entries SET content = ?, size_bytes = ?, compressed = 1 WHERE id = ?",
				&sqlitex.ExecOptions{Args: []any{frame, int64(len(frame)), row.id}})
			if err != nil {
				return err
			}
			compressedCount++
		}
		if len(rows) == s.batchSize {
			lastVisited = rows[len(rows)-1].id
		}
		return nil
	})
	if err != nil {
		return 0, "", err
	}
	return compressedCount, lastVisited, nil
}

// RetierOlderThan moves live rows of tier from into tier to when their
// last access is older than age. Rows entering cold lose their expiry;
// rows entering warm get a fresh one. Payloads are not rewritten.
// Returns the number of rows moved.
func (s *Store) RetierOlderThan(ctx context.Context, from, to contextentry.Tier, age time.Duration) (int, error) {
	if !from.Persistent() || !to.Persistent() || from == to {
		return 0, fmt.Errorf("%w: cannot retier %q to %q in the persistent tier", contextentry.ErrValidation, from, to)
	}
	now := s.clock.Now()
	cutoff := now.Add(-age)

	var moved int
	err := s.pool.Do(ctx, "retier", func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `
			UPDATE context_entries SET tier = ?, expires_at = ?
			WHERE tier = ? AND last_accessed_at < ? AND `+liveCondition,
			&sqlitex.ExecOptions{Args: []any{
				string(to),
				nullableTime(s.expiryFor(to, now)),
				string(from),
				cutoff.UnixNano(),
				now.UnixNano(),
			}})
		if err != nil {
			return err
		}
		moved = conn.Changes()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("retiering %s to %s: %w", from, to, err)
	}
	return moved, nil
}

// DeleteExpired removes warm rows whose expiry has passed. Returns the
// number of rows removed.
func (s *Store) DeleteExpired(ctx context.Context) (int, error) {
	var deleted int
	err := s.pool.Do(ctx, "delete expired", func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn,
			"DELETE FROM context_entries WHERE expires_at IS NOT NULL AND expires_at <= ?",
			&sqlitex.ExecOptions{Args: []any{s.clock.Now().UnixNano()}})
		if err != nil {
			return err
		}
		deleted = conn.Changes()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("deleting expired entries: %w", err)
	}
	return deleted, nil
}

// Stats summarizes the live rows of the warm and cold tiers, in that
// order. A tier with no rows reports zero counts.
func (s *Store) Stats(ctx context.Context) ([]contextentry.TierStats, error) {
	byTier := map[contextentry.Tier]*contextentry.TierStats{
		contextentry.TierWarm: {Tier: contextentry.TierWarm},
		contextentry.TierCold: {Tier: contextentry.TierCold},
	}
	err := s.pool.Do(ctx, "stats", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			SELECT tier,
				COUNT(*),
				COALESCE(SUM(size_bytes), 0),
				COALESCE(SUM(raw_size_bytes), 0),
				COALESCE(SUM(compressed), 0),
				COALESCE(SUM(CASE WHEN compressed = 1 THEN size_bytes ELSE 0 END), 0),
				COALESCE(SUM(CASE WHEN compressed = 1 THEN raw_size_bytes ELSE 0 END), 0),
				COALESCE(SUM(access_count), 0),
				MIN(created_at),
				MAX(created_at)
			FROM context_entries
			WHERE `+liveCondition+`
			GROUP BY tier`,
			&sqlitex.ExecOptions{
				Args: []any{s.clock.Now().UnixNano()},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					stats, ok := byTier[contextentry.Tier(stmt.ColumnText(0))]
					if !ok {
						return nil
					}
					stats.Count = stmt.ColumnInt64(1)
					stats.SizeBytes = stmt.ColumnInt64(2)
					stats.RawSizeBytes = stmt.ColumnInt64(3)
					stats.CompressedCount = stmt.ColumnInt64(4)
					stats.CompressedSizeBytes = stmt.ColumnInt64(5)
					stats.CompressedRawSizeBytes = stmt.ColumnInt64(6)
					stats.AccessCountSum = stmt.ColumnInt64(7)
					stats.Oldest = time.Unix(0, stmt.ColumnInt64(8)).UTC()
					stats.Newest = time.Unix(0, stmt.ColumnInt64(9)).UTC()
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("persistent tier stats: %w", err)
	}
	return []contextentry.TierStats{*byTier[contextentry.TierWarm], *byTier[contextentry.TierCold]}, nil
}

func (s *Store) query(ctx context.Context, operation, query string, args ...any) ([]*contextentry.Entry, error) {
	var entries []*contextentry.Entry
	err := s.pool.Do(ctx, operation, func(conn *sqlite.Conn) error {
		var err error
		entries, err = s.queryConn(conn, query, args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) queryConn(conn *sqlite.Conn, query string, args ...any) ([]*contextentry.Entry, error) {
	var entries []*contextentry.Entry
	err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			entry, err := s.scanEntry(stmt)
			if err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		},
	})
	return entries, err
}

// scanEntry reads a row in selectColumns order and decodes its
// payload.
func (s *Store) scanEntry(stmt *sqlite.Stmt) (*contextentry.Entry, error) {
	entry := &contextentry.Entry{
		ID:             stmt.ColumnText(0),
		SessionID:      stmt.ColumnText(1),
		UserID:         stmt.ColumnText(2),
		Tier:           contextentry.Tier(stmt.ColumnText(4)),
		CreatedAt:      time.Unix(0, stmt.ColumnInt64(5)).UTC(),
		AccessCount:    stmt.ColumnInt64(6),
		LastAccessedAt: time.Unix(0, stmt.ColumnInt64(7)).UTC(),
		SizeBytes:      stmt.ColumnInt64(8),
		RawSizeBytes:   stmt.ColumnInt64(9),
		Compressed:     stmt.ColumnInt64(10) != 0,
	}
	if stmt.ColumnType(11) != sqlite.TypeNull {
		expiresAt := time.Unix(0, stmt.ColumnInt64(11)).UTC()
		entry.ExpiresAt = &expiresAt
	}
	if stmt.ColumnType(12) != sqlite.TypeNull {
		if err := json.Unmarshal([]byte(stmt.ColumnText(12)), &entry.Metadata); err != nil {
			return nil, fmt.Errorf("%w: metadata of entry %s: %w", contextentry.ErrCorruptPayload, entry.ID, err)
		}
	}

	data := make([]byte, stmt.ColumnLen(3))
	stmt.ColumnBytes(3, data)
	if entry.Compressed {
		var err error
		data, err = s.codec.Decompress(data)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", entry.ID, err)
		}
	}
	content, err := codec.DecodeContent(data)
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", entry.ID, err)
	}
	entry.Content = content
	return entry, nil
}

func encodeMetadata(metadata map[string]string) (any, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: encode metadata: %w", contextentry.ErrInvalidPayload, err)
	}
	return string(data), nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// sqlLimit maps "no limit" to SQLite's -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
