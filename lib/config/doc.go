// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the context store.
//
// Configuration is loaded from a single file specified by either the
// CONTEXTSTORE_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There are no fallbacks and no automatic file
// search. Files are YAML; a .json or .jsonc extension selects JSON
// with comments and trailing commas allowed.
//
// The file may contain environment-specific sections (development,
// staging, production) whose keys override base values when
// [Config].Environment matches. Only keys present in the section are
// overridden, so a section may set a boolean to false.
//
// Variable expansion is performed on persistent.path and
// redis.password after loading: ${HOME}, ${CONTEXTSTORE_ROOT}, and
// ${VAR:-default} patterns are expanded. No other environment
// variables override config values.
//
// Key exports:
//
//   - [Config] -- master struct with one section per tier plus
//     Redis, Persistent, Compression, Maintenance, and Metrics
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
package config
