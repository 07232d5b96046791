// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hottier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/bureau-foundation/contextstore/lib/clock"
	"github.com/bureau-foundation/contextstore/lib/codec"
	"github.com/bureau-foundation/contextstore/lib/compress"
	"github.com/bureau-foundation/contextstore/lib/schema/contextentry"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultTTL                  = time.Hour
	DefaultMaxSizeBytes         = 1 << 20
	DefaultCompressionThreshold = 10 << 10
	DefaultKeyPrefix            = "contextstore"
)

// ErrEntryTooLarge is returned by Put when the stored form of an entry
// exceeds the tier's size limit. It wraps contextentry.ErrValidation.
var ErrEntryTooLarge = fmt.Errorf("%w: entry exceeds hot tier size limit", contextentry.ErrValidation)

// Config holds the parameters for a hot tier Store. Backend is
// required.
type Config struct {
	Backend Backend

	// Codec compresses payloads above CompressionThresholdBytes. Nil
	// means compress.Default().
	Codec *compress.Codec

	Clock  clock.Clock
	Logger *slog.Logger

	// TTL is the lifetime of every key written by Put or Update.
	TTL time.Duration

	// MaxSizeBytes bounds the stored (post-compression) payload size.
	MaxSizeBytes int64

	// CompressionThresholdBytes is the serialized size above which
	// payloads are compressed. Negative disables compression.
	CompressionThresholdBytes int64

	KeyPrefix string
}

// Store is the hot tier. Safe for concurrent use.
type Store struct {
	backend   Backend
	codec     *compress.Codec
	clock     clock.Clock
	logger    *slog.Logger
	ttl       time.Duration
	maxSize   int64
	threshold int64
	prefix    string
}

// New creates a hot tier Store over cfg.Backend.
func New(cfg Config) (*Store, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("hottier: Backend is required")
	}
	store := &Store{
		backend:   cfg.Backend,
		codec:     cfg.Codec,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		ttl:       cfg.TTL,
		maxSize:   cfg.MaxSizeBytes,
		threshold: cfg.CompressionThresholdBytes,
		prefix:    cfg.KeyPrefix,
	}
	if store.codec == nil {
		store.codec = compress.Default()
	}
	if store.clock == nil {
		store.clock = clock.Real()
	}
	if store.logger == nil {
		store.logger = slog.New(slog.DiscardHandler)
	}
	if store.ttl <= 0 {
		store.ttl = DefaultTTL
	}
	if store.maxSize <= 0 {
		store.maxSize = DefaultMaxSizeBytes
	}
	if store.threshold == 0 {
		store.threshold = DefaultCompressionThreshold
	}
	if store.prefix == "" {
		store.prefix = DefaultKeyPrefix
	}
	return store, nil
}

// TTL returns the lifetime applied to written entries.
func (s *Store) TTL() time.Duration { return s.ttl }

func (s *Store) contentKey(id string) string { return s.prefix + ":content:" + id }
func (s *Store) metaKey(id string) string    { return s.prefix + ":meta:" + id }
func (s *Store) metaPrefix() string          { return s.prefix + ":meta:" }
func (s *Store) sessionPrefix(sessionID string) string {
	return s.prefix + ":session:" + sessionID + ":"
}
func (s *Store) sessionKey(sessionID, id string) string {
	return s.sessionPrefix(sessionID) + id
}

// metaRecord is the bookkeeping stored under the meta key. Content
// lives under its own key so scans and touches never move payloads.
type metaRecord struct {
	ID             string            `cbor:"id"`
	SessionID      string            `cbor:"session_id"`
	UserID         string            `cbor:"user_id"`
	CreatedAt      time.Time         `cbor:"created_at"`
	AccessCount    int64             `cbor:"access_count"`
	LastAccessedAt time.Time         `cbor:"last_accessed_at"`
	SizeBytes      int64             `cbor:"size_bytes"`
	RawSizeBytes   int64             `cbor:"raw_size_bytes"`
	Compressed     bool              `cbor:"compressed"`
	ExpiresAt      time.Time         `cbor:"expires_at"`
	Metadata       map[string]string `cbor:"metadata,omitempty"`
}

func recordFromEntry(entry *contextentry.Entry) metaRecord {
	record := metaRecord{
		ID:             entry.ID,
		SessionID:      entry.SessionID,
		UserID:         entry.UserID,
		CreatedAt:      entry.CreatedAt,
		AccessCount:    entry.AccessCount,
		LastAccessedAt: entry.LastAccessedAt,
		SizeBytes:      entry.SizeBytes,
		RawSizeBytes:   entry.RawSizeBytes,
		Compressed:     entry.Compressed,
		Metadata:       entry.Metadata,
	}
	if entry.ExpiresAt != nil {
		record.ExpiresAt = *entry.ExpiresAt
	}
	return record
}

func (r metaRecord) entry() *contextentry.Entry {
	entry := &contextentry.Entry{
		ID:             r.ID,
		SessionID:      r.SessionID,
		UserID:         r.UserID,
		Tier:           contextentry.TierHot,
		CreatedAt:      r.CreatedAt,
		AccessCount:    r.AccessCount,
		LastAccessedAt: r.LastAccessedAt,
		SizeBytes:      r.SizeBytes,
		RawSizeBytes:   r.RawSizeBytes,
		Compressed:     r.Compressed,
		Metadata:       r.Metadata,
	}
	if !r.ExpiresAt.IsZero() {
		expiresAt := r.ExpiresAt
		entry.ExpiresAt = &expiresAt
	}
	return entry
}

// Put writes entry with a fresh TTL, replacing any previous version.
// On success the entry's Tier, ExpiresAt, size, and compression fields
// are updated to describe what was stored. An entry whose stored form
// exceeds the size limit fails with ErrEntryTooLarge and nothing is
// written.
func (s *Store) Put(ctx context.Context, entry *contextentry.Entry) error {
	entry.Tier = contextentry.TierHot
	if err := entry.Validate(); err != nil {
		return err
	}

	raw, err := codec.EncodeContent(entry.Content)
	if err != nil {
		return err
	}
	stored := raw
	compressed := false
	if s.threshold >= 0 && int64(len(raw)) > s.threshold {
		stored, err = s.codec.Compress(raw)
		if err != nil {
			return fmt.Errorf("compressing entry %s: %w", entry.ID, err)
		}
		compressed = true
	}
	if int64(len(stored)) > s.maxSize {
		return fmt.Errorf("entry %s is %d bytes (limit %d): %w", entry.ID, len(stored), s.maxSize, ErrEntryTooLarge)
	}

	expiresAt := s.clock.Now().Add(s.ttl)
	entry.SizeBytes = int64(len(stored))
	entry.RawSizeBytes = int64(len(raw))
	entry.Compressed = compressed
	entry.ExpiresAt = &expiresAt

	meta, err := codec.Marshal(recordFromEntry(entry))
	if err != nil {
		return fmt.Errorf("encoding metadata for entry %s: %w", entry.ID, err)
	}

	err = s.backend.Put(ctx, s.ttl,
		Item{Key: s.contentKey(entry.ID), Value: stored},
		Item{Key: s.metaKey(entry.ID), Value: meta},
		Item{Key: s.sessionKey(entry.SessionID, entry.ID), Value: []byte(entry.ID)},
	)
	if err != nil {
		return fmt.Errorf("storing entry %s in hot tier: %w", entry.ID, err)
	}
	return nil
}

func (s *Store) getMeta(ctx context.Context, id string) (metaRecord, error) {
	data, err := s.backend.Get(ctx, s.metaKey(id))
	if err != nil {
		return metaRecord{}, err
	}
	var record metaRecord
	if err := codec.Unmarshal(data, &record); err != nil {
		return metaRecord{}, fmt.Errorf("%w: hot metadata for %s: %w", contextentry.ErrCorruptPayload, id, err)
	}
	return record, nil
}

// Get returns the entry with id, or an error wrapping
// contextentry.ErrNotFound if it is absent or has expired. Get does
// not record an access; see Touch.
func (s *Store) Get(ctx context.Context, id string) (*contextentry.Entry, error) {
	record, err := s.getMeta(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := s.backend.Get(ctx, s.contentKey(id))
	if err != nil {
		// The metadata outlived its content by a few milliseconds of
		// TTL skew; report the entry as gone.
		return nil, err
	}
	if record.Compressed {
		data, err = s.codec.Decompress(data)
		if err != nil {
			return nil, fmt.Errorf("hot entry %s: %w", id, err)
		}
	}
	content, err := codec.DecodeContent(data)
	if err != nil {
		return nil, fmt.Errorf("hot entry %s: %w", id, err)
	}
	entry := record.entry()
	entry.Content = content
	return entry, nil
}

// Touch writes back the access bookkeeping of entry without touching
// the payload and without extending the TTL. Returns ErrNotFound if
// the entry expired in the meantime.
func (s *Store) Touch(ctx context.Context, entry *contextentry.Entry) error {
	meta, err := codec.Marshal(recordFromEntry(entry))
	if err != nil {
		return fmt.Errorf("encoding metadata for entry %s: %w", entry.ID, err)
	}
	return s.backend.Replace(ctx, s.metaKey(entry.ID), meta)
}

// Delete removes the entry and its session marker. Reports whether
// the entry existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	record, err := s.getMeta(ctx, id)
	switch {
	case errors.Is(err, contextentry.ErrNotFound):
		// Clear a payload orphaned by a partially expired write.
		return false, s.backend.Delete(ctx, s.contentKey(id))
	case errors.Is(err, contextentry.ErrCorruptPayload):
		s.logger.Warn("deleting hot entry with unreadable metadata",
			"entry_id", id,
			"error", err,
		)
		return true, s.backend.Delete(ctx, s.contentKey(id), s.metaKey(id))
	case err != nil:
		return false, err
	}
	err = s.backend.Delete(ctx,
		s.contentKey(id),
		s.metaKey(id),
		s.sessionKey(record.SessionID, id),
	)
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListSession returns the live entries of a session, most recently
// accessed first. A limit of zero or less returns all of them.
func (s *Store) ListSession(ctx context.Context, sessionID string, limit int) ([]*contextentry.Entry, error) {
	prefix := s.sessionPrefix(sessionID)
	seen := make(map[string]bool)
	var entries []*contextentry.Entry

	cursor := ""
	for {
		keys, next, err := s.backend.Scan(ctx, prefix, cursor, 100)
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			id := strings.TrimPrefix(key, prefix)
			if seen[id] {
				continue
			}
			seen[id] = true
			entry, err := s.Get(ctx, id)
			if errors.Is(err, contextentry.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			// A session id containing ':' shares a key prefix with
			// shorter session ids; the metadata is authoritative.
			if entry.SessionID != sessionID {
				continue
			}
			entries = append(entries, entry)
		}
		if next == "" {
			break
		}
		cursor = next
	}

	sortByRecency(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Scan returns one page of hot entries for tier maintenance. Entries
// that expire mid-scan are skipped. Pass the returned cursor to
// continue; an empty cursor means the scan is complete.
func (s *Store) Scan(ctx context.Context, cursor string, count int) ([]*contextentry.Entry, string, error) {
	keys, next, err := s.backend.Scan(ctx, s.metaPrefix(), cursor, count)
	if err != nil {
		return nil, "", err
	}
	entries := make([]*contextentry.Entry, 0, len(keys))
	for _, key := range keys {
		id := strings.TrimPrefix(key, s.metaPrefix())
		entry, err := s.Get(ctx, id)
		if errors.Is(err, contextentry.ErrNotFound) {
			continue
		}
		if errors.Is(err, contextentry.ErrCorruptPayload) || errors.Is(err, contextentry.ErrInvalidPayload) {
			s.logger.Warn("skipping unreadable hot entry",
				"entry_id", id,
				"error", err,
			)
			continue
		}
		if err != nil {
			return nil, "", err
		}
		entries = append(entries, entry)
	}
	return entries, next, nil
}

// Stats summarizes the live hot entries from their metadata records.
func (s *Store) Stats(ctx context.Context) (contextentry.TierStats, error) {
	stats := contextentry.TierStats{Tier: contextentry.TierHot}
	seen := make(map[string]bool)
	cursor := ""
	for {
		keys, next, err := s.backend.Scan(ctx, s.metaPrefix(), cursor, 500)
		if err != nil {
			return stats, err
		}
		for _, key := range keys {
			id := strings.TrimPrefix(key, s.metaPrefix())
			if seen[id] {
				continue
			}
			seen[id] = true
			record, err := s.getMeta(ctx, id)
			if err != nil {
				if errors.Is(err, contextentry.ErrNotFound) || errors.Is(err, contextentry.ErrCorruptPayload) {
					continue
				}
				return stats, err
			}
			stats.Add(record.entry())
		}
		if next == "" {
			return stats, nil
		}
		cursor = next
	}
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func sortByRecency(entries []*contextentry.Entry) {
	slices.SortStableFunc(entries, func(a, b *contextentry.Entry) int {
		return b.LastAccessedAt.Compare(a.LastAccessedAt)
	})
}
