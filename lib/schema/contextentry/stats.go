// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package contextentry

import "time"

// TierStats summarizes the entries currently held by one tier.
type TierStats struct {
	Tier  Tier  `json:"tier"`
	Count int64 `json:"count"`

	// SizeBytes is the stored size; RawSizeBytes the size before
	// compression. Their ratio over compressed entries estimates the
	// compression ratio.
	SizeBytes       int64 `json:"size_bytes"`
	RawSizeBytes    int64 `json:"raw_size_bytes"`
	CompressedCount int64 `json:"compressed_count"`

	// CompressedSizeBytes and CompressedRawSizeBytes cover compressed
	// entries only.
	CompressedSizeBytes    int64 `json:"compressed_size_bytes"`
	CompressedRawSizeBytes int64 `json:"compressed_raw_size_bytes"`

	AccessCountSum int64 `json:"access_count_sum"`

	// Oldest and Newest are creation times; zero when Count is zero.
	Oldest time.Time `json:"oldest,omitzero"`
	Newest time.Time `json:"newest,omitzero"`
}

// Add folds one entry into the stats.
func (s *TierStats) Add(entry *Entry) {
	s.Count++
	s.SizeBytes += entry.SizeBytes
	s.RawSizeBytes += entry.RawSizeBytes
	s.AccessCountSum += entry.AccessCount
	if entry.Compressed {
		s.CompressedCount++
		s.CompressedSizeBytes += entry.SizeBytes
		s.CompressedRawSizeBytes += entry.RawSizeBytes
	}
	s.observeCreated(entry.CreatedAt)
}

// Merge folds other into s. The tier of s is kept.
func (s *TierStats) Merge(other TierStats) {
	s.Count += other.Count
	s.SizeBytes += other.SizeBytes
	s.RawSizeBytes += other.RawSizeBytes
	s.CompressedCount += other.CompressedCount
	s.CompressedSizeBytes += other.CompressedSizeBytes
	s.CompressedRawSizeBytes += other.CompressedRawSizeBytes
	s.AccessCountSum += other.AccessCountSum
	if other.Count > 0 {
		s.observeCreated(other.Oldest)
		s.observeCreated(other.Newest)
	}
}

func (s *TierStats) observeCreated(created time.Time) {
	if created.IsZero() {
		return
	}
	if s.Oldest.IsZero() || created.Before(s.Oldest) {
		s.Oldest = created
	}
	if s.Newest.IsZero() || created.After(s.Newest) {
		s.Newest = created
	}
}

// CompressionRatio returns raw bytes over stored bytes across the
// compressed entries, or 1 when nothing is compressed.
func (s TierStats) CompressionRatio() float64 {
	if s.CompressedSizeBytes == 0 {
		return 1
	}
	return float64(s.CompressedRawSizeBytes) / float64(s.CompressedSizeBytes)
}

// AverageAccessCount returns the mean access count, or 0 for an empty
// tier.
func (s TierStats) AverageAccessCount() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.AccessCountSum) / float64(s.Count)
}
