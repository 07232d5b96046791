// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tierstore composes the hot and persistent tiers into one
// context store.
//
// [Manager] is the facade producers and consumers call. Reads check
// the hot tier first and fall through to the persistent tier on a miss
// or a hot-tier outage. Every successful read records an access in the
// tier that served it through the [AccessTracker]; a persistent hit
// that crosses the promotion threshold dispatches a background copy
// into the hot tier, leaving the persistent row in place. The copy is
// not part of the read's completion contract: a caller may observe the
// entry in its old tier after the read returns.
//
// [Scheduler] runs migration cycles on a timer, strictly one at a
// time. Each cycle moves rarely accessed hot entries to warm, retiers
// long-inactive warm entries to cold, and reaps expired warm rows.
// Tests drive single cycles with [Scheduler.RunCycle] instead of
// waiting on the timer.
package tierstore
