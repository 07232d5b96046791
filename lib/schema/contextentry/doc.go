// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package contextentry defines the data model shared by every tier of
// the context store: the [Entry] record, the [Tier] enumeration, and
// the error taxonomy that tier stores and the facade report.
//
// An entry lives in exactly one tier at a time. Hot entries sit in a
// TTL-bound remote cache, warm entries in a relational store with a
// bounded retention window, and cold entries in the same relational
// store with no expiry. The tier field changes only through migration
// or promotion; content changes only through an update.
//
// Types carry JSON struct tags. The fxamacker/cbor library falls back
// to json tags, so the same field names are used for the hot-tier CBOR
// metadata record and for CLI JSON output.
//
// Errors are sentinels tested with errors.Is. Tier stores wrap raw
// driver failures with [BackendError] so that callers can tell an
// outage ([ErrBackendUnavailable]) or a deadline ([ErrTimeout]) from
// an ordinary miss ([ErrNotFound]).
//
// This package depends on no other packages in this module.
package contextentry
