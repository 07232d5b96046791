// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the time source for every component that stamps,
// expires, or schedules context entries.
//
// Tier stores read Now for createdAt, lastAccessedAt, and expiresAt.
// The migration scheduler waits on NewTicker. Production wires Real();
// tests wire Fake() so that TTL expiry and scheduler ticks happen only
// when the test calls Advance:
//
//	fakeClock := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	scheduler.Start(ctx)
//	fakeClock.WaitForTimers(1)      // scheduler registered its ticker
//	fakeClock.Advance(5 * time.Minute) // one deterministic tick
package clock
