// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package contextentry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestParseTier(t *testing.T) {
	for _, tier := range AllTiers {
		t.Run(string(tier), func(t *testing.T) {
			parsed, err := ParseTier(string(tier))
			if err != nil {
				t.Fatalf("ParseTier(%q): %v", tier, err)
			}
			if parsed != tier {
				t.Errorf("ParseTier(%q) = %q", tier, parsed)
			}
		})
	}

	for _, name := range []string{"", "HOT", "frozen"} {
		if _, err := ParseTier(name); !errors.Is(err, ErrValidation) {
			t.Errorf("ParseTier(%q) error = %v, want ErrValidation", name, err)
		}
	}
}

func TestTierPersistent(t *testing.T) {
	tests := []struct {
		tier Tier
		want bool
	}{
		{TierHot, false},
		{TierWarm, true},
		{TierCold, true},
	}
	for _, tt := range tests {
		if got := tt.tier.Persistent(); got != tt.want {
			t.Errorf("%s.Persistent() = %v, want %v", tt.tier, got, tt.want)
		}
	}
}

func TestEntryCloneIsIndependent(t *testing.T) {
	expiresAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	original := &Entry{
		ID:        "entry-1",
		SessionID: "s1",
		UserID:    "u1",
		Tier:      TierHot,
		ExpiresAt: &expiresAt,
		Metadata:  map[string]string{"source": "agent"},
	}

	clone := original.Clone()
	clone.AccessCount = 7
	clone.Metadata["source"] = "changed"
	*clone.ExpiresAt = expiresAt.Add(time.Hour)

	if original.AccessCount != 0 {
		t.Errorf("original AccessCount = %d after mutating clone", original.AccessCount)
	}
	if original.Metadata["source"] != "agent" {
		t.Errorf("original metadata mutated: %v", original.Metadata)
	}
	if !original.ExpiresAt.Equal(expiresAt) {
		t.Errorf("original ExpiresAt mutated: %v", original.ExpiresAt)
	}
}

func TestEntryExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	if (&Entry{}).Expired(now) {
		t.Error("entry without expiry reported expired")
	}
	if !(&Entry{ExpiresAt: &past}).Expired(now) {
		t.Error("entry with past expiry not reported expired")
	}
	if !(&Entry{ExpiresAt: &now}).Expired(now) {
		t.Error("entry expiring exactly now not reported expired")
	}
	if (&Entry{ExpiresAt: &future}).Expired(now) {
		t.Error("entry with future expiry reported expired")
	}
}

func TestEntryValidate(t *testing.T) {
	valid := Entry{ID: "id", SessionID: "s", UserID: "u", Tier: TierWarm}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate on valid entry: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Entry)
	}{
		{"missing id", func(e *Entry) { e.ID = "" }},
		{"missing session", func(e *Entry) { e.SessionID = "" }},
		{"missing user", func(e *Entry) { e.UserID = "" }},
		{"bad tier", func(e *Entry) { e.Tier = "lukewarm" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := valid
			tt.mutate(&entry)
			if err := entry.Validate(); !errors.Is(err, ErrValidation) {
				t.Errorf("Validate() = %v, want ErrValidation", err)
			}
		})
	}
}

func TestBackendError(t *testing.T) {
	if BackendError("redis", "get", nil) != nil {
		t.Error("BackendError(nil) should be nil")
	}

	notFound := fmt.Errorf("wrapped: %w", ErrNotFound)
	if err := BackendError("redis", "get", notFound); err != notFound {
		t.Errorf("sentinel error was rewrapped: %v", err)
	}

	timeout := BackendError("sqlite", "take", context.DeadlineExceeded)
	if !errors.Is(timeout, ErrTimeout) || !errors.Is(timeout, ErrBackendUnavailable) {
		t.Errorf("deadline error = %v, want ErrTimeout and ErrBackendUnavailable", timeout)
	}
	if !errors.Is(timeout, context.DeadlineExceeded) {
		t.Errorf("deadline error lost its cause: %v", timeout)
	}

	cancelled := BackendError("sqlite", "take", context.Canceled)
	if errors.Is(cancelled, ErrBackendUnavailable) {
		t.Errorf("cancellation classified as outage: %v", cancelled)
	}

	outage := BackendError("redis", "set", errors.New("connection refused"))
	if !IsSoftFailure(outage) {
		t.Errorf("connection error not a soft failure: %v", outage)
	}
	if errors.Is(outage, ErrTimeout) {
		t.Errorf("connection error classified as timeout: %v", outage)
	}
}
