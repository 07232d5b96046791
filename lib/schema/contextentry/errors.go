// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package contextentry

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no tier holds the requested entry.
	ErrNotFound = errors.New("context entry not found")

	// ErrInvalidPayload is returned when content cannot be serialized
	// or deserialized.
	ErrInvalidPayload = errors.New("invalid context payload")

	// ErrCorruptPayload is returned when stored bytes fail to
	// decompress or fail their integrity check.
	ErrCorruptPayload = errors.New("corrupt context payload")

	// ErrBackendUnavailable is returned when a tier's backend cannot be
	// reached or rejected the operation.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrTimeout is returned when a backend call exceeded its deadline.
	// Timeouts also match ErrBackendUnavailable.
	ErrTimeout = errors.New("storage backend timeout")

	// ErrValidation is returned for malformed requests: missing ids,
	// unknown tiers, oversized payloads.
	ErrValidation = errors.New("validation error")
)

// BackendError classifies a raw driver error from the named backend.
// Nil stays nil, sentinels from this package pass through unchanged,
// and a cancelled context is returned as-is so that callers see their
// own cancellation. A deadline becomes ErrTimeout (which also matches
// ErrBackendUnavailable); anything else becomes ErrBackendUnavailable.
func BackendError(backend, operation string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidPayload),
		errors.Is(err, ErrCorruptPayload),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrBackendUnavailable):
		return err
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %s: %w", backend, operation, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %s: %w: %w: %w", backend, operation, ErrTimeout, ErrBackendUnavailable, err)
	default:
		return fmt.Errorf("%s: %s: %w: %w", backend, operation, ErrBackendUnavailable, err)
	}
}

// IsSoftFailure reports whether err is a backend outage or timeout, the
// class of failure a caller may route around by trying another tier.
func IsSoftFailure(err error) bool {
	return errors.Is(err, ErrBackendUnavailable)
}
