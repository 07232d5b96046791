// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package contextentry

import (
	"fmt"
	"maps"
	"time"
)

// Tier identifies the storage tier an entry currently resides in.
type Tier string

const (
	// TierHot is short-TTL, low-latency storage for actively used
	// context.
	TierHot Tier = "hot"

	// TierWarm is durable storage with bounded retention for recently
	// inactive context.
	TierWarm Tier = "warm"

	// TierCold is durable storage with no expiry for historical
	// context.
	TierCold Tier = "cold"
)

// AllTiers lists the tiers from hottest to coldest.
var AllTiers = []Tier{TierHot, TierWarm, TierCold}

// ParseTier converts a tier name to a Tier. The empty string is not a
// valid tier; callers that want a default must apply it first.
func ParseTier(name string) (Tier, error) {
	switch Tier(name) {
	case TierHot, TierWarm, TierCold:
		return Tier(name), nil
	default:
		return "", fmt.Errorf("%w: unknown tier %q", ErrValidation, name)
	}
}

// Persistent reports whether the tier is served by the relational
// store (warm or cold).
func (t Tier) Persistent() bool {
	return t == TierWarm || t == TierCold
}

// IsValid reports whether t is one of the three defined tiers.
func (t Tier) IsValid() bool {
	return t == TierHot || t == TierWarm || t == TierCold
}

func (t Tier) String() string { return string(t) }

// Entry is one stored context blob together with its access and
// placement bookkeeping.
//
// Content holds the deserialized payload. Tier stores serialize it
// with lib/codec on write and hand back the decoded form on read, so
// a map stored as map[string]any comes back as map[string]any.
// SizeBytes is the stored size: the compressed frame length when
// Compressed is true, the serialized length otherwise.
type Entry struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Content   any    `json:"content"`
	Tier      Tier   `json:"tier"`

	CreatedAt      time.Time `json:"created_at"`
	AccessCount    int64     `json:"access_count"`
	LastAccessedAt time.Time `json:"last_accessed_at"`

	SizeBytes int64 `json:"size_bytes"`
	// RawSizeBytes is the serialized size before compression. Used to
	// estimate the compression ratio in stats.
	RawSizeBytes int64 `json:"raw_size_bytes"`
	Compressed   bool  `json:"compressed"`

	// ExpiresAt is set for hot and warm entries and nil for cold ones.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// Clone returns a copy of e that shares no mutable bookkeeping with
// the original. Content is shared: payloads are treated as immutable
// once stored.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	clone := *e
	if e.ExpiresAt != nil {
		expiresAt := *e.ExpiresAt
		clone.ExpiresAt = &expiresAt
	}
	clone.Metadata = maps.Clone(e.Metadata)
	return &clone
}

// Expired reports whether the entry's expiry has passed at now.
// Entries without an expiry never expire.
func (e *Entry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

// Validate checks the fields every tier store requires.
func (e *Entry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: entry id is required", ErrValidation)
	}
	if e.SessionID == "" {
		return fmt.Errorf("%w: session id is required", ErrValidation)
	}
	if e.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if !e.Tier.IsValid() {
		return fmt.Errorf("%w: entry %s has invalid tier %q", ErrValidation, e.ID, e.Tier)
	}
	return nil
}
