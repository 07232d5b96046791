// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// LogLevelVariable names the environment variable that sets the level
// of command loggers ("debug", "info", "warn", "error").
const LogLevelVariable = "CONTEXTSTORE_LOG_LEVEL"

// NewCommandLogger returns the logger commands get when the root sets
// none: stderr, at the level from LogLevelVariable (info if unset or
// unparseable).
//
//	logger := cli.NewCommandLogger().With("command", "serve")
func NewCommandLogger() *slog.Logger {
	return NewLogger(os.Stderr, LevelFromEnvironment())
}

// NewLogger writes to w with a text handler when w is a terminal and a
// JSON handler otherwise, so service managers and pipes get one
// object per line.
func NewLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	options := &slog.HandlerOptions{Level: level}
	if isTerminal(w) {
		return slog.New(slog.NewTextHandler(w, options))
	}
	return slog.New(slog.NewJSONHandler(w, options))
}

// LevelFromEnvironment parses LogLevelVariable.
func LevelFromEnvironment() slog.Level {
	var level slog.Level
	value := strings.TrimSpace(os.Getenv(LogLevelVariable))
	if value == "" || level.UnmarshalText([]byte(value)) != nil {
		return slog.LevelInfo
	}
	return level
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}
