// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/contextstore/lib/schema/contextentry"
	"github.com/bureau-foundation/contextstore/lib/testutil"
	"github.com/bureau-foundation/contextstore/lib/tierstore"
)

func httpGet(t *testing.T, url string) string {
	t.Helper()
	response, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("reading %s: %v", url, err)
	}
	if response.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d: %s", url, response.StatusCode, body)
	}
	return string(body)
}

func TestServe(t *testing.T) {
	ta := newTestApp(t, `
metrics:
  listen_address: 127.0.0.1:0
maintenance:
  compress_schedule: "0 3 * * *"
`)
	ready := make(chan serveHandle, 1)
	ta.app.serveReady = func(handle serveHandle) { ready <- handle }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		root := ta.app.root()
		root.Logger = slog.New(slog.DiscardHandler)
		done <- root.Execute(ctx, []string{"serve", "--config", ta.configPath})
	}()

	handle := testutil.RequireReceive(t, ready, 10*time.Second, "waiting for serve to start")
	if handle.MetricsAddress == nil {
		t.Fatal("metrics listener not started")
	}
	base := "http://" + handle.MetricsAddress.String()

	// A hot entry lives in process memory while serve runs.
	id, err := handle.Manager.StoreContext(ctx, "s1", "u1", "served")
	if err != nil {
		t.Fatalf("StoreContext: %v", err)
	}
	entry, err := handle.Manager.GetContext(ctx, id)
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if entry.Tier != contextentry.TierHot {
		t.Errorf("tier while serving = %s, want hot", entry.Tier)
	}

	metrics := httpGet(t, base+"/metrics")
	for _, want := range []string{
		"contextstore_migration_cycles_total",
		`contextstore_stores_total{tier="hot"} 1`,
		`contextstore_reads_total{tier="hot"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(metrics, want) {
			t.Errorf("/metrics missing %q", want)
		}
	}

	if body := httpGet(t, base+"/healthz"); strings.TrimSpace(body) != "ok" {
		t.Errorf("/healthz = %q", body)
	}
	stats := decodeJSON[tierstore.Stats](t, httpGet(t, base+"/stats"))
	if stats.Total.Count != 1 {
		t.Errorf("/stats total count = %d, want 1", stats.Total.Count)
	}

	cancel()
	if err := testutil.RequireReceive(t, done, 30*time.Second, "waiting for serve to stop"); err != nil {
		t.Fatalf("serve: %v", err)
	}

	// Shutdown moved the in-process hot entry to warm.
	drained := decodeJSON[entryJSON](t, ta.mustRun(t, "get", id, "--json"))
	if drained.Tier != string(contextentry.TierWarm) || drained.Content != "served" {
		t.Errorf("after shutdown: %+v, want the entry in warm", drained)
	}
}

func TestServeRejectsBusyAddress(t *testing.T) {
	first := newTestApp(t, `
metrics:
  listen_address: 127.0.0.1:0
`)
	ready := make(chan serveHandle, 1)
	first.app.serveReady = func(handle serveHandle) { ready <- handle }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		root := first.app.root()
		root.Logger = slog.New(slog.DiscardHandler)
		done <- root.Execute(ctx, []string{"serve", "--config", first.configPath})
	}()
	handle := testutil.RequireReceive(t, ready, 10*time.Second, "waiting for first serve")
	defer func() {
		cancel()
		testutil.RequireReceive(t, done, 30*time.Second, "waiting for first serve to stop")
	}()

	second := newTestApp(t, `
metrics:
  listen_address: `+handle.MetricsAddress.String()+`
`)
	_, err := second.run(t, "serve")
	if err == nil || !strings.Contains(err.Error(), "listening on") {
		t.Errorf("second serve on a busy address: err = %v", err)
	}
}

func TestCompressJob(t *testing.T) {
	ta := newTestApp(t, `
warm:
  compression_enabled: false
`)
	ta.put(t, "--session", "s1", "--user", "u1", "--content", strings.Repeat("z", 512), "--raw")

	cfg, err := (&configFlag{path: ta.configPath}).load()
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.DiscardHandler)
	rt, err := openRuntime(context.Background(), cfg, logger, runtimeOptions{OneShot: true})
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close()

	compressJob(context.Background(), rt.manager, time.Nanosecond, logger)()

	stats, err := rt.manager.GetContextStats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total.CompressedCount != 1 {
		t.Errorf("compressed count after job = %d, want 1", stats.Total.CompressedCount)
	}
}

func TestNewMaintenance(t *testing.T) {
	ta := newTestApp(t, `
maintenance:
  compress_schedule: ""
`)
	cfg, err := (&configFlag{path: ta.configPath}).load()
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.DiscardHandler)
	rt, err := openRuntime(context.Background(), cfg, logger, runtimeOptions{OneShot: true})
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close()

	// The test config disables the schedule.
	maintenance, err := newMaintenance(context.Background(), rt, logger)
	if err != nil || maintenance != nil {
		t.Fatalf("empty schedule: (%v, %v), want no scheduler", maintenance, err)
	}

	rt.config.Maintenance.CompressSchedule = "*/10 * * * *"
	maintenance, err = newMaintenance(context.Background(), rt, logger)
	if err != nil {
		t.Fatalf("newMaintenance: %v", err)
	}
	if entries := maintenance.Entries(); len(entries) != 1 {
		t.Errorf("scheduled %d jobs, want 1", len(entries))
	}

	rt.config.Maintenance.CompressSchedule = "not a schedule"
	if _, err := newMaintenance(context.Background(), rt, logger); err == nil {
		t.Error("expected error for an invalid schedule")
	}
}
