// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for contextstore
// packages.
//
// [RequireReceive], [RequireSend], and [RequireClosed] bound every
// channel wait with a real timer so a broken test fails instead of
// hanging. They are the only wall-clock waits in the test suite;
// everything else runs on a fake clock.
//
// [RequireErrorIs] fails the test unless an error matches a sentinel
// via errors.Is, printing the whole chain when it does not.
//
// [UniqueID] generates increasing identifiers for sessions, users and
// entries. [UniqueNamespace] adds a random suffix for hot tier key
// prefixes that must not collide between runs sharing a Redis server.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
