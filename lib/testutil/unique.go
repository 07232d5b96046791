// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

var sequence atomic.Uint64

// UniqueID returns "prefix-N" with N increasing across the process.
// Tests use it for session, user, and entry identifiers that must not
// collide between tests sharing one backend.
//
//	session := testutil.UniqueID("session") // "session-1", "session-2", ...
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, sequence.Add(1))
}

// UniqueNamespace returns a Redis key prefix that no other test run
// shares, so concurrent runs against one server never see each other's
// keys. The result contains no ':' so it can be joined with one.
func UniqueNamespace(prefix string) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s-%d-%s", prefix, sequence.Add(1), random)
}
