// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"runtime"
	"runtime/debug"
	"strings"
	"testing"
)

func saveVariables(t *testing.T) {
	t.Helper()
	commit, dirty, buildTime := GitCommit, GitDirty, BuildTime
	t.Cleanup(func() {
		GitCommit, GitDirty, BuildTime = commit, dirty, buildTime
	})
}

func TestApplyBuildSettings(t *testing.T) {
	saveVariables(t)
	GitCommit, GitDirty, BuildTime = "unknown", "false", "unknown"

	applyBuildSettings([]debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef"},
		{Key: "vcs.time", Value: "2026-03-01T12:00:00Z"},
		{Key: "vcs.modified", Value: "true"},
	})

	if GitCommit != "0123456" {
		t.Errorf("GitCommit = %q, want %q", GitCommit, "0123456")
	}
	if BuildTime != "2026-03-01T12:00:00Z" {
		t.Errorf("BuildTime = %q", BuildTime)
	}
	if GitDirty != "true" {
		t.Errorf("GitDirty = %q, want true", GitDirty)
	}
}

func TestApplyBuildSettings_InjectedValuesWin(t *testing.T) {
	saveVariables(t)
	GitCommit, BuildTime = "abc1234", "injected"

	applyBuildSettings([]debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef"},
		{Key: "vcs.time", Value: "2026-03-01T12:00:00Z"},
	})

	if GitCommit != "abc1234" || BuildTime != "injected" {
		t.Errorf("injected values overwritten: commit=%q time=%q", GitCommit, BuildTime)
	}
}

func TestFull(t *testing.T) {
	full := Full()
	for _, want := range []string{Version, runtime.Version(), runtime.GOOS + "/" + runtime.GOARCH} {
		if !strings.Contains(full, want) {
			t.Errorf("Full() = %q, missing %q", full, want)
		}
	}
}
