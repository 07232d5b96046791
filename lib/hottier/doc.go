// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package hottier implements the short-TTL tier of the context store.
//
// A [Store] lays each entry out as three keys under a configurable
// prefix, all written in one atomic batch with the same TTL:
//
//	{prefix}:content:{id}            serialized (possibly compressed) payload
//	{prefix}:meta:{id}               CBOR bookkeeping record
//	{prefix}:session:{session}:{id}  session index marker
//
// The keys live in a [Backend]. [RedisBackend] is the production
// implementation; [MemoryBackend] serves tests and single-process
// deployments without Redis.
package hottier
