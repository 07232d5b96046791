// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR configuration used for everything
// the context store writes to a backend: entry content blobs and the
// hot-tier metadata record.
//
// JSON remains the format for external surfaces (CLI output, the
// persistent tier's metadata column). CBOR is used for stored payloads
// because it keeps byte strings as byte strings and round-trips
// arbitrary producer payloads without a schema.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2) with
// RFC 3339 nanosecond timestamps, so time fields survive a round trip
// at full precision. Decoding into an any-typed target yields
// map[string]any for maps and int64 for integers, the shapes that
// consumers of [DecodeContent] expect.
//
//	data, err := codec.EncodeContent(map[string]any{"msg": "hello"})
//	content, err := codec.DecodeContent(data)
//
// Failures from EncodeContent and DecodeContent wrap
// contextentry.ErrInvalidPayload.
//
// Types shared with JSON output carry `json` tags only; fxamacker/cbor
// falls back to them when no `cbor` tag is present.
package codec
