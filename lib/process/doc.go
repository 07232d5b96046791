// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides the binary entrypoint helper for the
// contextstore command. It centralizes the raw I/O that happens after
// the structured logger is gone: reporting the error returned by
// run() and exiting with the right code.
package process
