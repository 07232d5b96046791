// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package contextentry

import (
	"testing"
	"time"
)

func TestTierStatsAddAndMerge(t *testing.T) {
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	hot := TierStats{Tier: TierHot}
	hot.Add(&Entry{SizeBytes: 100, RawSizeBytes: 100, AccessCount: 2, CreatedAt: base.Add(time.Hour)})
	hot.Add(&Entry{SizeBytes: 50, RawSizeBytes: 400, Compressed: true, AccessCount: 4, CreatedAt: base})

	if hot.Count != 2 || hot.SizeBytes != 150 || hot.CompressedCount != 1 {
		t.Errorf("unexpected hot stats: %+v", hot)
	}
	if got := hot.CompressionRatio(); got != 8 {
		t.Errorf("CompressionRatio = %v, want 8", got)
	}
	if got := hot.AverageAccessCount(); got != 3 {
		t.Errorf("AverageAccessCount = %v, want 3", got)
	}
	if !hot.Oldest.Equal(base) || !hot.Newest.Equal(base.Add(time.Hour)) {
		t.Errorf("Oldest/Newest = %v/%v", hot.Oldest, hot.Newest)
	}

	total := TierStats{}
	total.Merge(hot)
	total.Merge(TierStats{Count: 1, SizeBytes: 10, AccessCountSum: 3, Oldest: base.Add(-time.Hour), Newest: base.Add(-time.Hour)})
	if total.Count != 3 || total.AccessCountSum != 9 {
		t.Errorf("merged stats: %+v", total)
	}
	if !total.Oldest.Equal(base.Add(-time.Hour)) {
		t.Errorf("merged Oldest = %v", total.Oldest)
	}

	// Merging an empty tier must not disturb the time range.
	total.Merge(TierStats{})
	if !total.Newest.Equal(base.Add(time.Hour)) {
		t.Errorf("Newest changed after merging empty stats: %v", total.Newest)
	}
}

func TestTierStatsEmpty(t *testing.T) {
	var empty TierStats
	if empty.CompressionRatio() != 1 {
		t.Errorf("empty CompressionRatio = %v, want 1", empty.CompressionRatio())
	}
	if empty.AverageAccessCount() != 0 {
		t.Errorf("empty AverageAccessCount = %v, want 0", empty.AverageAccessCount())
	}
}
