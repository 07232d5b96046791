// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package persistenttier

// schema creates the single context_entries table shared by the warm
// and cold tiers. Timestamps are Unix nanoseconds; expires_at is NULL
// for cold rows. metadata is a JSON object or NULL.
const schema = `
	CREATE TABLE IF NOT EXISTS context_entries (
		id               TEXT PRIMARY KEY,
		session_id       TEXT NOT NULL,
		user_id          TEXT NOT NULL,
		content          BLOB NOT NULL,
		tier             TEXT NOT NULL CHECK (tier IN ('warm', 'cold')),
		created_at       INTEGER NOT NULL,
		access_count     INTEGER NOT NULL DEFAULT 0,
		last_accessed_at INTEGER NOT NULL,
		size_bytes       INTEGER NOT NULL,
		raw_size_bytes   INTEGER NOT NULL,
		compressed       INTEGER NOT NULL DEFAULT 0,
		expires_at       INTEGER,
		metadata         TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_context_entries_session ON context_entries(session_id, last_accessed_at);
	CREATE INDEX IF NOT EXISTS idx_context_entries_user ON context_entries(user_id, last_accessed_at);
	CREATE INDEX IF NOT EXISTS idx_context_entries_tier ON context_entries(tier, last_accessed_at);
	CREATE INDEX IF NOT EXISTS idx_context_entries_created ON context_entries(created_at);
	CREATE INDEX IF NOT EXISTS idx_context_entries_expires ON context_entries(expires_at);
`

// selectColumns is the column list scanned by scanEntry, in order.
const selectColumns = "id, session_id, user_id, content, tier, created_at, access_count, " +
	"last_accessed_at, size_bytes, raw_size_bytes, compressed, expires_at, metadata"

// liveCondition excludes warm rows whose expiry has passed. Bind the
// current time in Unix nanoseconds.
const liveCondition = "(expires_at IS NULL OR expires_at > ?)"
