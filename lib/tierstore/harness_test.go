// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tierstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/contextstore/lib/clock"
	"github.com/bureau-foundation/contextstore/lib/hottier"
	"github.com/bureau-foundation/contextstore/lib/persistenttier"
	"github.com/bureau-foundation/contextstore/lib/schema/contextentry"
	"github.com/bureau-foundation/contextstore/lib/testutil"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// harness wires a Manager to an in-memory hot tier and a throwaway
// SQLite persistent tier, both driven by one fake clock.
type harness struct {
	manager    *Manager
	backend    *hottier.MemoryBackend
	hot        *hottier.Store
	persistent *persistenttier.Store
	clock      *clock.FakeClock
}

type harnessOptions struct {
	hot        func(*hottier.Config)
	persistent func(*persistenttier.Config)
	manager    func(*Config)
}

func newHarness(t *testing.T, options harnessOptions) *harness {
	t.Helper()
	fakeClock := clock.Fake(epoch)
	backend := hottier.NewMemoryBackend(fakeClock)

	hotConfig := hottier.Config{
		Backend:   backend,
		Clock:     fakeClock,
		TTL:       time.Hour,
		KeyPrefix: testutil.UniqueID("ctx"),
	}
	if options.hot != nil {
		options.hot(&hotConfig)
	}
	hot, err := hottier.New(hotConfig)
	if err != nil {
		t.Fatalf("hottier.New: %v", err)
	}

	persistentConfig := persistenttier.Config{
		Path:         filepath.Join(t.TempDir(), "context.db"),
		PoolSize:     4,
		Clock:        fakeClock,
		WarmTTL:      7 * 24 * time.Hour,
		CompressWarm: true,
		CompressCold: true,
	}
	if options.persistent != nil {
		options.persistent(&persistentConfig)
	}
	persistent, err := persistenttier.Open(context.Background(), persistentConfig)
	if err != nil {
		t.Fatalf("persistenttier.Open: %v", err)
	}

	managerConfig := Config{
		Hot:                hot,
		Persistent:         persistent,
		Clock:              fakeClock,
		Metrics:            NewMetrics(nil),
		HotToWarmThreshold: 5,
		PromotionThreshold: 10,
		WarmToColdAge:      3 * 24 * time.Hour,
		MigrationInterval:  5 * time.Minute,
		BatchSize:          10,
		NewID: func() string {
			return testutil.UniqueID("entry")
		},
	}
	if options.manager != nil {
		options.manager(&managerConfig)
	}
	manager, err := New(managerConfig)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	t.Cleanup(func() {
		manager.Close()
		persistent.Close()
		hot.Close()
	})
	return &harness{
		manager:    manager,
		backend:    backend,
		hot:        hot,
		persistent: persistent,
		clock:      fakeClock,
	}
}

func (h *harness) store(t *testing.T, sessionID, userID string, content any, options ...StoreOption) string {
	t.Helper()
	id, err := h.manager.StoreContext(context.Background(), sessionID, userID, content, options...)
	if err != nil {
		t.Fatalf("StoreContext: %v", err)
	}
	return id
}

func (h *harness) get(t *testing.T, id string) *contextentry.Entry {
	t.Helper()
	entry, err := h.manager.GetContext(context.Background(), id)
	if err != nil {
		t.Fatalf("GetContext(%s): %v", id, err)
	}
	return entry
}
