// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the contextstore command tree.
//
// Every command loads the configuration (--config, or the
// CONTEXTSTORE_CONFIG environment variable), opens the hot and
// persistent tiers, and drives a [tierstore.Manager]. One-shot
// commands (put, get, session, migrate, stats, ...) close everything
// before returning. "serve" keeps the manager open, runs the migration
// scheduler and the cron-scheduled compression job, and exposes
// Prometheus metrics until interrupted.
//
// With no redis.address configured the hot tier lives in process
// memory. One-shot commands then default new entries to the warm tier,
// since a hot entry would vanish when the command exits.
package commands
