// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tierstore

import (
	"context"
	"time"

	"github.com/bureau-foundation/contextstore/lib/schema/contextentry"
)

// HotTier is the hot tier capability set used by the manager and
// scheduler. Implemented by *hottier.Store.
type HotTier interface {
	Put(ctx context.Context, entry *contextentry.Entry) error
	Get(ctx context.Context, id string) (*contextentry.Entry, error)
	Touch(ctx context.Context, entry *contextentry.Entry) error
	Delete(ctx context.Context, id string) (bool, error)
	ListSession(ctx context.Context, sessionID string, limit int) ([]*contextentry.Entry, error)
	Scan(ctx context.Context, cursor string, count int) ([]*contextentry.Entry, string, error)
	Stats(ctx context.Context) (contextentry.TierStats, error)
}

// PersistentTier is the warm/cold capability set used by the manager
// and scheduler. Implemented by *persistenttier.Store.
type PersistentTier interface {
	Put(ctx context.Context, entry *contextentry.Entry, tier contextentry.Tier) error
	Get(ctx context.Context, id string) (*contextentry.Entry, error)
	GetBySession(ctx context.Context, sessionID string, limit int) ([]*contextentry.Entry, error)
	GetByUser(ctx context.Context, userID string, limit int) ([]*contextentry.Entry, error)
	Delete(ctx context.Context, id string) (bool, error)
	RecordAccess(ctx context.Context, entry *contextentry.Entry) error
	UpdateContent(ctx context.Context, id string, content any) (*contextentry.Entry, error)
	CompressOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	RetierOlderThan(ctx context.Context, from, to contextentry.Tier, age time.Duration) (int, error)
	DeleteExpired(ctx context.Context) (int, error)
	Stats(ctx context.Context) ([]contextentry.TierStats, error)
}
