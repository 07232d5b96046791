// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"errors"
	"fmt"
	"time"
)

// Fataler is the subset of testing.TB the helpers need. Accepting it
// instead of testing.TB lets the helpers be exercised against a
// recording fake in their own tests.
type Fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive returns the next value from ch, failing the test if
// nothing arrives within timeout or ch is closed first.
//
//	report := testutil.RequireReceive(t, cycles, 5*time.Second, "first migration cycle")
func RequireReceive[T any](t Fataler, ch <-chan T, timeout time.Duration, msgAndArgs ...any) T {
	t.Helper()
	deadline := time.NewTimer(timeout) //nolint:realclock test hang prevention
	defer deadline.Stop()
	select {
	case value, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed before a value arrived (%s)", describe(msgAndArgs))
		}
		return value
	case <-deadline.C:
		t.Fatalf("no value within %v (%s)", timeout, describe(msgAndArgs))
	}
	var zero T
	return zero
}

// RequireSend delivers value on ch, failing the test if no receiver
// takes it within timeout.
func RequireSend[T any](t Fataler, ch chan<- T, value T, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	deadline := time.NewTimer(timeout) //nolint:realclock test hang prevention
	defer deadline.Stop()
	select {
	case ch <- value:
	case <-deadline.C:
		t.Fatalf("send not accepted within %v (%s)", timeout, describe(msgAndArgs))
	}
}

// RequireClosed waits for a signal channel to close (or deliver),
// failing the test after timeout.
//
//	testutil.RequireClosed(t, ready, 5*time.Second, "serve ready")
func RequireClosed(t Fataler, ch <-chan struct{}, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	RequireReceiveOrClose(t, ch, timeout, msgAndArgs...)
}

// RequireReceiveOrClose is RequireReceive where a closed channel is
// also success.
func RequireReceiveOrClose[T any](t Fataler, ch <-chan T, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	deadline := time.NewTimer(timeout) //nolint:realclock test hang prevention
	defer deadline.Stop()
	select {
	case <-ch:
	case <-deadline.C:
		t.Fatalf("channel still open after %v (%s)", timeout, describe(msgAndArgs))
	}
}

// RequireErrorIs fails the test unless errors.Is(err, target).
//
//	testutil.RequireErrorIs(t, err, contextentry.ErrNotFound, "get after delete")
func RequireErrorIs(t Fataler, err, target error, msgAndArgs ...any) {
	t.Helper()
	switch {
	case err == nil:
		t.Fatalf("got nil error, want %v (%s)", target, describe(msgAndArgs))
	case !errors.Is(err, target):
		t.Fatalf("got error %q, want one matching %v (%s)", err, target, describe(msgAndArgs))
	}
}

// describe renders the optional trailing message. A leading string
// with further arguments is treated as a format string.
func describe(msgAndArgs []any) string {
	switch len(msgAndArgs) {
	case 0:
		return "no message"
	case 1:
		return fmt.Sprint(msgAndArgs[0])
	}
	if format, ok := msgAndArgs[0].(string); ok {
		return fmt.Sprintf(format, msgAndArgs[1:]...)
	}
	return fmt.Sprint(msgAndArgs...)
}
