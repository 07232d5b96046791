// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tierstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/contextstore/lib/clock"
	"github.com/bureau-foundation/contextstore/lib/codec"
	"github.com/bureau-foundation/contextstore/lib/hottier"
	"github.com/bureau-foundation/contextstore/lib/schema/contextentry"
)

// promotionTimeout bounds a dispatched promotion. It runs detached
// from the read that triggered it.
const promotionTimeout = 30 * time.Second

// Config holds the parameters for a Manager. Hot and Persistent are
// required; the Manager does not close them.
type Config struct {
	Hot        HotTier
	Persistent PersistentTier
	Clock      clock.Clock
	Logger     *slog.Logger

	// Metrics may be nil.
	Metrics *Metrics

	PromotionThreshold int64
	HotToWarmThreshold int64
	WarmToColdAge      time.Duration
	MigrationInterval  time.Duration
	BatchSize          int

	// FailOpenHotWrites stores an entry in the warm tier when the hot
	// tier is unavailable, instead of failing the store.
	FailOpenHotWrites bool

	// NewID generates entry ids. Nil means random UUIDs.
	NewID func() string

	// OnCycle is passed to the scheduler.
	OnCycle func(CycleReport)
}

// Manager is the context store facade. Safe for concurrent use.
type Manager struct {
	hot        HotTier
	persistent PersistentTier
	clock      clock.Clock
	logger     *slog.Logger
	metrics    *Metrics
	tracker    *AccessTracker
	scheduler  *Scheduler
	failOpen   bool
	newID      func() string

	// promotionMu orders dispatches against Close so that no
	// promotion is added to the group once Close is waiting on it.
	promotionMu sync.Mutex
	closed      bool
	promotions  sync.WaitGroup
}

// New creates a Manager and its (stopped) scheduler.
func New(cfg Config) (*Manager, error) {
	if cfg.Hot == nil || cfg.Persistent == nil {
		return nil, fmt.Errorf("context manager: Hot and Persistent are required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	scheduler, err := NewScheduler(SchedulerConfig{
		Hot:                cfg.Hot,
		Persistent:         cfg.Persistent,
		Clock:              clk,
		Logger:             logger.With("component", "migration_scheduler"),
		Metrics:            cfg.Metrics,
		Interval:           cfg.MigrationInterval,
		HotToWarmThreshold: cfg.HotToWarmThreshold,
		WarmToColdAge:      cfg.WarmToColdAge,
		BatchSize:          cfg.BatchSize,
		OnCycle:            cfg.OnCycle,
	})
	if err != nil {
		return nil, err
	}

	return &Manager{
		hot:        cfg.Hot,
		persistent: cfg.Persistent,
		clock:      clk,
		logger:     logger,
		metrics:    cfg.Metrics,
		tracker:    NewAccessTracker(cfg.Hot, cfg.Persistent, clk, cfg.PromotionThreshold),
		scheduler:  scheduler,
		failOpen:   cfg.FailOpenHotWrites,
		newID:      newID,
	}, nil
}

// Scheduler returns the migration scheduler. The composition root
// owns its Start/Stop lifecycle.
func (m *Manager) Scheduler() *Scheduler { return m.scheduler }

// Tracker returns the access tracker.
func (m *Manager) Tracker() *AccessTracker { return m.tracker }

// StoreOption customizes StoreContext.
type StoreOption func(*storeOptions)

type storeOptions struct {
	tier     contextentry.Tier
	metadata map[string]string
}

// WithTier selects the initial tier. The default is hot.
func WithTier(tier contextentry.Tier) StoreOption {
	return func(options *storeOptions) { options.tier = tier }
}

// WithMetadata attaches string metadata to the entry.
func WithMetadata(metadata map[string]string) StoreOption {
	return func(options *storeOptions) { options.metadata = metadata }
}

// StoreContext stores content for a session and user and returns the
// new entry's id.
//
// A hot entry whose stored form exceeds the hot size limit is placed
// in the warm tier instead. With FailOpenHotWrites, so is a hot entry
// that meets an unavailable hot tier.
func (m *Manager) StoreContext(ctx context.Context, sessionID, userID string, content any, options ...StoreOption) (string, error) {
	settings := storeOptions{tier: contextentry.TierHot}
	for _, option := range options {
		option(&settings)
	}
	if sessionID == "" {
		return "", fmt.Errorf("%w: session id is required", contextentry.ErrValidation)
	}
	if userID == "" {
		return "", fmt.Errorf("%w: user id is required", contextentry.ErrValidation)
	}
	if !settings.tier.IsValid() {
		return "", fmt.Errorf("%w: unknown tier %q", contextentry.ErrValidation, settings.tier)
	}
	if _, err := codec.EncodeContent(content); err != nil {
		return "", err
	}

	now := m.clock.Now()
	entry := &contextentry.Entry{
		ID:             m.newID(),
		SessionID:      sessionID,
		UserID:         userID,
		Content:        content,
		Tier:           settings.tier,
		CreatedAt:      now,
		LastAccessedAt: now,
		Metadata:       settings.metadata,
	}

	tier, err := m.place(ctx, entry, settings.tier)
	if err != nil {
		return "", err
	}
	m.metrics.stored(tier)
	m.logger.Debug("context stored",
		"entry_id", entry.ID,
		"session_id", sessionID,
		"tier", tier,
		"size_bytes", entry.SizeBytes,
		"compressed", entry.Compressed,
	)
	return entry.ID, nil
}

// place writes a new entry into tier, applying the oversize and
// fail-open fallbacks for hot. Returns the tier actually used.
func (m *Manager) place(ctx context.Context, entry *contextentry.Entry, tier contextentry.Tier) (contextentry.Tier, error) {
	if tier.Persistent() {
		if err := m.persistent.Put(ctx, entry, tier); err != nil {
			return "", err
		}
		return tier, nil
	}

	err := m.hot.Put(ctx, entry)
	switch {
	case err == nil:
		return contextentry.TierHot, nil
	case errors.Is(err, hottier.ErrEntryTooLarge):
		m.logger.Info("entry exceeds hot tier size limit, storing in warm tier",
			"entry_id", entry.ID,
			"session_id", entry.SessionID,
		)
	case m.failOpen && contextentry.IsSoftFailure(err):
		m.metrics.hotFallthrough()
		m.logger.Warn("hot tier unavailable, storing in warm tier",
			"entry_id", entry.ID,
			"session_id", entry.SessionID,
			"error", err,
		)
	default:
		return "", err
	}

	if err := m.persistent.Put(ctx, entry, contextentry.TierWarm); err != nil {
		return "", err
	}
	return contextentry.TierWarm, nil
}

// GetContext returns the entry with id and records the read. The hot
// tier is checked first; a miss or an unavailable hot tier falls
// through to the persistent tier. Returns an error wrapping
// contextentry.ErrNotFound when no tier holds the entry.
//
// A persistent hit that crosses the promotion threshold dispatches a
// background copy into the hot tier. The persistent row stays, so the
// entry outlives the hot copy's TTL. The returned entry reflects the
// tier that served the read, not the outcome of the promotion.
func (m *Manager) GetContext(ctx context.Context, id string) (*contextentry.Entry, error) {
	entry, hotErr := m.hot.Get(ctx, id)
	switch {
	case hotErr == nil:
	case errors.Is(hotErr, contextentry.ErrNotFound):
	case contextentry.IsSoftFailure(hotErr):
		m.metrics.hotFallthrough()
		m.logger.Warn("hot tier unavailable, reading from persistent tier",
			"entry_id", id,
			"error", hotErr,
		)
	default:
		return nil, hotErr
	}

	if entry == nil {
		var err error
		entry, err = m.persistent.Get(ctx, id)
		if errors.Is(err, contextentry.ErrNotFound) && hotErr != nil && contextentry.IsSoftFailure(hotErr) {
			// The entry may live in the unreachable hot tier.
			return nil, fmt.Errorf("entry %s not in persistent tier: %w", id, hotErr)
		}
		if errors.Is(err, contextentry.ErrNotFound) {
			m.metrics.miss()
			return nil, err
		}
		if err != nil {
			return nil, err
		}
	}

	if err := m.tracker.RecordAccess(ctx, entry); err != nil {
		m.logger.Warn("recording access failed",
			"entry_id", id,
			"tier", entry.Tier,
			"error", err,
		)
	}
	m.metrics.read(entry.Tier)

	if m.tracker.ShouldPromote(entry) {
		m.dispatchPromotion(entry.Clone())
	}
	return entry, nil
}

// dispatchPromotion copies entry into the hot tier on a background
// goroutine. Nothing is dispatched after Close.
func (m *Manager) dispatchPromotion(entry *contextentry.Entry) {
	m.promotionMu.Lock()
	if m.closed {
		m.promotionMu.Unlock()
		return
	}
	m.promotions.Add(1)
	m.promotionMu.Unlock()

	go func() {
		defer m.promotions.Done()
		ctx, cancel := context.WithTimeout(context.Background(), promotionTimeout)
		defer cancel()

		err := m.promote(ctx, entry)
		m.metrics.promotion(err)
		if err != nil {
			m.logger.Warn("promotion to hot tier failed",
				"entry_id", entry.ID,
				"access_count", entry.AccessCount,
				"error", err,
			)
			return
		}
		m.logger.Debug("entry promoted to hot tier",
			"entry_id", entry.ID,
			"access_count", entry.AccessCount,
		)
	}()
}

// promote writes a hot copy of a persistent entry. The persistent row
// is left in place: reads prefer the hot copy and listings deduplicate
// by id, and once the copy expires reads fall back to the row.
func (m *Manager) promote(ctx context.Context, entry *contextentry.Entry) error {
	if err := m.hot.Put(ctx, entry); err != nil {
		return fmt.Errorf("writing hot copy: %w", err)
	}
	return nil
}

// WaitForPromotions blocks until every dispatched promotion has
// finished.
func (m *Manager) WaitForPromotions() {
	m.promotions.Wait()
}

// GetSessionContext returns up to limit entries of a session from
// both tiers, most recently accessed first. When an id is present in
// both tiers the hot copy wins. An unavailable hot tier degrades the
// listing to persistent entries only. A limit of zero or less returns
// everything.
func (m *Manager) GetSessionContext(ctx context.Context, sessionID string, limit int) ([]*contextentry.Entry, error) {
	hotEntries, err := m.hot.ListSession(ctx, sessionID, limit)
	if err != nil {
		if !contextentry.IsSoftFailure(err) {
			return nil, err
		}
		m.metrics.hotFallthrough()
		m.logger.Warn("hot tier unavailable, listing session from persistent tier only",
			"session_id", sessionID,
			"error", err,
		)
	}
	persistentEntries, err := m.persistent.GetBySession(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	return mergeEntries(hotEntries, persistentEntries, limit), nil
}

// mergeEntries combines preferred and other, dropping entries of
// other whose id already appears in preferred, and returns the most
// recently accessed limit entries.
func mergeEntries(preferred, other []*contextentry.Entry, limit int) []*contextentry.Entry {
	seen := make(map[string]bool, len(preferred))
	merged := make([]*contextentry.Entry, 0, len(preferred)+len(other))
	for _, entry := range preferred {
		if seen[entry.ID] {
			continue
		}
		seen[entry.ID] = true
		merged = append(merged, entry)
	}
	for _, entry := range other {
		if seen[entry.ID] {
			continue
		}
		seen[entry.ID] = true
		merged = append(merged, entry)
	}
	slices.SortStableFunc(merged, func(a, b *contextentry.Entry) int {
		return b.LastAccessedAt.Compare(a.LastAccessedAt)
	})
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// GetUserContext returns up to limit of a user's entries from the
// persistent tier, most recently accessed first. The hot tier keeps
// no user index.
func (m *Manager) GetUserContext(ctx context.Context, userID string, limit int) ([]*contextentry.Entry, error) {
	return m.persistent.GetByUser(ctx, userID, limit)
}

// UpdateContext replaces the content of an entry in whichever tier
// holds it and returns the updated entry. A hot entry gets a fresh
// TTL; one that no longer fits the hot size limit moves to warm. The
// persistent row behind a promoted hot copy is updated too, so the
// new content survives the copy's expiry.
func (m *Manager) UpdateContext(ctx context.Context, id string, content any) (*contextentry.Entry, error) {
	if _, err := codec.EncodeContent(content); err != nil {
		return nil, err
	}

	entry, err := m.hot.Get(ctx, id)
	switch {
	case err == nil:
		return m.updateHot(ctx, entry, content)
	case errors.Is(err, contextentry.ErrNotFound):
	case contextentry.IsSoftFailure(err):
		m.metrics.hotFallthrough()
		m.logger.Warn("hot tier unavailable, updating in persistent tier",
			"entry_id", id,
			"error", err,
		)
	default:
		return nil, err
	}

	updated, persistErr := m.persistent.UpdateContent(ctx, id, content)
	if errors.Is(persistErr, contextentry.ErrNotFound) && contextentry.IsSoftFailure(err) {
		return nil, fmt.Errorf("entry %s not in persistent tier: %w", id, err)
	}
	return updated, persistErr
}

func (m *Manager) updateHot(ctx context.Context, entry *contextentry.Entry, content any) (*contextentry.Entry, error) {
	entry.Content = content
	err := m.hot.Put(ctx, entry)
	if err == nil {
		if _, err := m.persistent.UpdateContent(ctx, entry.ID, content); err != nil && !errors.Is(err, contextentry.ErrNotFound) {
			return nil, fmt.Errorf("updating persistent copy of %s: %w", entry.ID, err)
		}
		return entry, nil
	}
	if !errors.Is(err, hottier.ErrEntryTooLarge) {
		return nil, err
	}

	m.logger.Info("updated entry exceeds hot tier size limit, moving to persistent tier",
		"entry_id", entry.ID,
	)
	tier, err := demotionTier(ctx, m.persistent, entry.ID)
	if err != nil {
		return nil, err
	}
	if err := m.persistent.Put(ctx, entry, tier); err != nil {
		return nil, err
	}
	if _, err := m.hot.Delete(ctx, entry.ID); err != nil {
		return nil, fmt.Errorf("removing previous hot version of %s: %w", entry.ID, err)
	}
	return entry, nil
}

// DeleteContext removes the entry from every tier that holds it.
// Deleting an absent id succeeds.
//
// An unavailable hot tier does not stop the persistent delete. The
// returned error then wraps the hot failure: the persistent row is
// gone but a hot copy may remain until its TTL.
func (m *Manager) DeleteContext(ctx context.Context, id string) error {
	hotExisted, hotErr := m.hot.Delete(ctx, id)
	if hotErr != nil && !contextentry.IsSoftFailure(hotErr) {
		return hotErr
	}
	persistentExisted, err := m.persistent.Delete(ctx, id)
	if err != nil {
		return err
	}
	if hotErr != nil {
		m.metrics.hotFallthrough()
		m.logger.Warn("hot tier unavailable during delete, hot copy may remain",
			"entry_id", id,
			"persistent", persistentExisted,
			"error", hotErr,
		)
		return fmt.Errorf("deleting %s from hot tier (persistent copy removed): %w", id, hotErr)
	}
	if hotExisted || persistentExisted {
		m.logger.Debug("context deleted",
			"entry_id", id,
			"hot", hotExisted,
			"persistent", persistentExisted,
		)
	}
	return nil
}

// CompressOldContext compresses persistent entries created more than
// olderThan ago. Returns the number of entries compressed.
func (m *Manager) CompressOldContext(ctx context.Context, olderThan time.Duration) (int, error) {
	count, err := m.persistent.CompressOlderThan(ctx, m.clock.Now().Add(-olderThan))
	if err != nil {
		return count, err
	}
	m.logger.Info("compressed old context",
		"older_than", olderThan,
		"compressed", count,
	)
	return count, nil
}

// MigrateContext runs one migration between two tiers now and returns
// the number of entries moved. Hot to warm applies the hot-to-warm
// access threshold; warm to cold applies the warm-to-cold age; cold to
// warm moves every cold entry. Promotion into hot is access-driven and
// cannot be requested.
func (m *Manager) MigrateContext(ctx context.Context, from, to contextentry.Tier) (int, error) {
	switch {
	case from == contextentry.TierHot && to == contextentry.TierWarm:
		return m.scheduler.MigrateHotToWarm(ctx)
	case from == contextentry.TierWarm && to == contextentry.TierCold:
		return m.scheduler.RetierWarmToCold(ctx)
	case from == contextentry.TierCold && to == contextentry.TierWarm:
		moved, err := m.persistent.RetierOlderThan(ctx, from, to, 0)
		m.metrics.migrated(from, to, moved)
		return moved, err
	default:
		return 0, fmt.Errorf("%w: unsupported migration %q to %q", contextentry.ErrValidation, from, to)
	}
}

// Stats aggregates the per-tier statistics.
type Stats struct {
	Tiers []contextentry.TierStats `json:"tiers"`
	Total contextentry.TierStats   `json:"total"`

	// HotUnavailable is set when the hot tier could not be reached;
	// its row in Tiers is then empty.
	HotUnavailable bool `json:"hot_unavailable,omitempty"`
}

// GetContextStats returns counts, sizes, average access counts,
// compression ratios, and creation time ranges per tier and in total.
func (m *Manager) GetContextStats(ctx context.Context) (Stats, error) {
	var stats Stats

	hotStats, err := m.hot.Stats(ctx)
	if err != nil {
		if !contextentry.IsSoftFailure(err) {
			return stats, err
		}
		stats.HotUnavailable = true
		hotStats = contextentry.TierStats{Tier: contextentry.TierHot}
		m.logger.Warn("hot tier unavailable, stats exclude it", "error", err)
	}

	persistentStats, err := m.persistent.Stats(ctx)
	if err != nil {
		return stats, err
	}

	stats.Tiers = append([]contextentry.TierStats{hotStats}, persistentStats...)
	for _, tierStats := range stats.Tiers {
		stats.Total.Merge(tierStats)
	}
	return stats, nil
}

// Close stops the scheduler and waits for dispatched promotions. The
// tier stores stay open.
func (m *Manager) Close() error {
	m.promotionMu.Lock()
	m.closed = true
	m.promotionMu.Unlock()

	m.scheduler.Stop()
	m.promotions.Wait()
	return nil
}
