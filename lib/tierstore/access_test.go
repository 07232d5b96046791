// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tierstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/contextstore/lib/schema/contextentry"
)

func TestShouldPromote(t *testing.T) {
	tracker := NewAccessTracker(nil, nil, nil, 10)
	tests := []struct {
		tier        contextentry.Tier
		accessCount int64
		want        bool
	}{
		{contextentry.TierHot, 50, false},
		{contextentry.TierWarm, 10, false},
		{contextentry.TierWarm, 11, true},
		{contextentry.TierCold, 11, true},
		{contextentry.TierCold, 0, false},
	}
	for _, test := range tests {
		entry := &contextentry.Entry{Tier: test.tier, AccessCount: test.accessCount}
		if got := tracker.ShouldPromote(entry); got != test.want {
			t.Errorf("ShouldPromote(%s, %d) = %v, want %v", test.tier, test.accessCount, got, test.want)
		}
	}
}

func TestDefaultPromotionThreshold(t *testing.T) {
	tracker := NewAccessTracker(nil, nil, nil, 0)
	entry := &contextentry.Entry{Tier: contextentry.TierWarm, AccessCount: DefaultPromotionThreshold}
	if tracker.ShouldPromote(entry) {
		t.Error("entry at the default threshold should not be promoted")
	}
	entry.AccessCount++
	if !tracker.ShouldPromote(entry) {
		t.Error("entry above the default threshold should be promoted")
	}
}

func TestRecordAccessFollowsDemotedEntry(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()

	id := h.store(t, "s1", "u1", "x")
	entry, err := h.hot.Get(ctx, id)
	if err != nil {
		t.Fatalf("hot Get: %v", err)
	}

	// The scheduler demotes the entry between the read and the
	// write-back.
	if _, err := h.manager.Scheduler().MigrateHotToWarm(ctx); err != nil {
		t.Fatalf("MigrateHotToWarm: %v", err)
	}

	h.clock.Advance(time.Minute)
	if err := h.manager.Tracker().RecordAccess(ctx, entry); err != nil {
		t.Fatalf("RecordAccess: %v", err)
	}
	if entry.Tier != contextentry.TierWarm {
		t.Errorf("Tier = %q, want warm", entry.Tier)
	}

	stored, err := h.persistent.Get(ctx, id)
	if err != nil {
		t.Fatalf("persistent Get: %v", err)
	}
	if stored.AccessCount != 1 || !stored.LastAccessedAt.Equal(epoch.Add(time.Minute)) {
		t.Errorf("stored access: count %d at %v", stored.AccessCount, stored.LastAccessedAt)
	}
}

func TestRecordAccessMissingEverywhere(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	entry := &contextentry.Entry{ID: "ghost", Tier: contextentry.TierHot}
	err := h.manager.Tracker().RecordAccess(context.Background(), entry)
	if !errors.Is(err, contextentry.ErrNotFound) {
		t.Errorf("RecordAccess on absent entry: got %v, want ErrNotFound", err)
	}
}
