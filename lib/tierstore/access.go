// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tierstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/contextstore/lib/clock"
	"github.com/bureau-foundation/contextstore/lib/schema/contextentry"
)

// DefaultPromotionThreshold is the access count a persistent entry
// must exceed to be promoted to the hot tier.
const DefaultPromotionThreshold = 10

// AccessTracker records reads and decides promotion eligibility.
type AccessTracker struct {
	hot                HotTier
	persistent         PersistentTier
	clock              clock.Clock
	promotionThreshold int64
}

// NewAccessTracker returns a tracker writing through hot and
// persistent. A threshold of zero or less means
// DefaultPromotionThreshold.
func NewAccessTracker(hot HotTier, persistent PersistentTier, clk clock.Clock, promotionThreshold int64) *AccessTracker {
	if promotionThreshold <= 0 {
		promotionThreshold = DefaultPromotionThreshold
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &AccessTracker{
		hot:                hot,
		persistent:         persistent,
		clock:              clk,
		promotionThreshold: promotionThreshold,
	}
}

// RecordAccess increments the entry's access count, stamps the access
// time, and writes both back to the entry's current tier.
//
// A hot entry demoted between the read and the write-back is found in
// the warm tier instead; entry.Tier is updated to match.
func (a *AccessTracker) RecordAccess(ctx context.Context, entry *contextentry.Entry) error {
	entry.AccessCount++
	entry.LastAccessedAt = a.clock.Now()

	switch entry.Tier {
	case contextentry.TierHot:
		err := a.hot.Touch(ctx, entry)
		if !errors.Is(err, contextentry.ErrNotFound) {
			return err
		}
		if persistErr := a.persistent.RecordAccess(ctx, entry); persistErr != nil {
			return fmt.Errorf("recording access to entry %s: %w", entry.ID, persistErr)
		}
		entry.Tier = contextentry.TierWarm
		return nil
	case contextentry.TierWarm, contextentry.TierCold:
		return a.persistent.RecordAccess(ctx, entry)
	default:
		return fmt.Errorf("%w: entry %s has invalid tier %q", contextentry.ErrValidation, entry.ID, entry.Tier)
	}
}

// ShouldPromote reports whether entry lives in a persistent tier and
// has been read more than the promotion threshold.
func (a *AccessTracker) ShouldPromote(entry *contextentry.Entry) bool {
	return entry.Tier.Persistent() && entry.AccessCount > a.promotionThreshold
}
