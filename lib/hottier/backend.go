// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hottier

import (
	"context"
	"time"
)

// Item is one key/value pair in a batched write.
type Item struct {
	Key   string
	Value []byte
}

// Backend is the key/value capability set the hot tier needs. Every
// error a Backend returns is either contextentry.ErrNotFound or
// classified with contextentry.BackendError.
type Backend interface {
	// Put writes all items in one atomic batch, each expiring after
	// ttl. A batch is applied fully or not at all.
	Put(ctx context.Context, ttl time.Duration, items ...Item) error

	// Replace overwrites an existing key and keeps its remaining TTL.
	// Returns ErrNotFound if the key does not exist.
	Replace(ctx context.Context, key string, value []byte) error

	// Get returns the value of key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// Scan returns up to roughly count keys starting with prefix,
	// resuming from cursor. The empty cursor starts a scan; an empty
	// next cursor ends it. Keys present for the whole scan are
	// returned at least once; a key may be returned more than once.
	Scan(ctx context.Context, prefix, cursor string, count int) (keys []string, next string, err error)

	// Close releases the backend's connections.
	Close() error
}
