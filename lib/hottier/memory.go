// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hottier

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bureau-foundation/contextstore/lib/clock"
	"github.com/bureau-foundation/contextstore/lib/schema/contextentry"
)

// MemoryBackend is an in-process Backend with clock-driven expiry.
// Keys expire lazily when read or scanned.
type MemoryBackend struct {
	clock clock.Clock

	mu          sync.Mutex
	items       map[string]memoryItem
	unavailable bool
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryBackend returns an empty backend. A nil clock means the
// wall clock.
func NewMemoryBackend(clk clock.Clock) *MemoryBackend {
	if clk == nil {
		clk = clock.Real()
	}
	return &MemoryBackend{
		clock: clk,
		items: make(map[string]memoryItem),
	}
}

// SetUnavailable makes every subsequent call fail with
// ErrBackendUnavailable until cleared. Used to simulate an outage.
func (m *MemoryBackend) SetUnavailable(unavailable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = unavailable
}

// Len returns the number of live keys.
func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked()
	return len(m.items)
}

func (m *MemoryBackend) checkLocked(ctx context.Context, operation string) error {
	if err := ctx.Err(); err != nil {
		return contextentry.BackendError("memory", operation, err)
	}
	if m.unavailable {
		return contextentry.BackendError("memory", operation, fmt.Errorf("backend marked unavailable"))
	}
	return nil
}

func (m *MemoryBackend) expireLocked() {
	now := m.clock.Now()
	for key, item := range m.items {
		if !now.Before(item.expiresAt) {
			delete(m.items, key)
		}
	}
}

func (m *MemoryBackend) liveLocked(key string) (memoryItem, bool) {
	item, ok := m.items[key]
	if !ok {
		return memoryItem{}, false
	}
	if !m.clock.Now().Before(item.expiresAt) {
		delete(m.items, key)
		return memoryItem{}, false
	}
	return item, true
}

func (m *MemoryBackend) Put(ctx context.Context, ttl time.Duration, items ...Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(ctx, "put"); err != nil {
		return err
	}
	if ttl <= 0 {
		return fmt.Errorf("%w: hot tier ttl must be positive, got %s", contextentry.ErrValidation, ttl)
	}
	expiresAt := m.clock.Now().Add(ttl)
	for _, item := range items {
		m.items[item.Key] = memoryItem{value: slices.Clone(item.Value), expiresAt: expiresAt}
	}
	return nil
}

func (m *MemoryBackend) Replace(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(ctx, "replace"); err != nil {
		return err
	}
	item, ok := m.liveLocked(key)
	if !ok {
		return fmt.Errorf("hot key %q: %w", key, contextentry.ErrNotFound)
	}
	item.value = slices.Clone(value)
	m.items[key] = item
	return nil
}

func (m *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(ctx, "get"); err != nil {
		return nil, err
	}
	item, ok := m.liveLocked(key)
	if !ok {
		return nil, fmt.Errorf("hot key %q: %w", key, contextentry.ErrNotFound)
	}
	return slices.Clone(item.value), nil
}

func (m *MemoryBackend) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(ctx, "delete"); err != nil {
		return err
	}
	for _, key := range keys {
		delete(m.items, key)
	}
	return nil
}

// Scan pages through keys in lexical order. The cursor is the last
// key returned, so keys deleted between pages never shift later ones
// out of the scan.
func (m *MemoryBackend) Scan(ctx context.Context, prefix, cursor string, count int) ([]string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(ctx, "scan"); err != nil {
		return nil, "", err
	}
	if count <= 0 {
		count = 10
	}
	m.expireLocked()

	var matching []string
	for key := range m.items {
		if strings.HasPrefix(key, prefix) && key > cursor {
			matching = append(matching, key)
		}
	}
	slices.Sort(matching)

	if len(matching) <= count {
		return matching, "", nil
	}
	page := matching[:count]
	return page, page[len(page)-1], nil
}

func (m *MemoryBackend) Close() error { return nil }
