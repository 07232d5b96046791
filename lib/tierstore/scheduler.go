// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tierstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/contextstore/lib/clock"
	"github.com/bureau-foundation/contextstore/lib/schema/contextentry"
)

// Scheduler defaults.
const (
	DefaultMigrationInterval  = 5 * time.Minute
	DefaultHotToWarmThreshold = 5
	DefaultWarmToColdAge      = 3 * 24 * time.Hour
	DefaultBatchSize          = 100
)

// ErrCycleInProgress is returned by RunCycle while another cycle is
// running.
var ErrCycleInProgress = errors.New("migration cycle already in progress")

// SchedulerState is the phase of the migration cycle.
type SchedulerState string

const (
	StateIdle     SchedulerState = "idle"
	StateScanHot  SchedulerState = "scan_hot"
	StateScanWarm SchedulerState = "scan_warm"
)

// CycleReport summarizes one migration cycle.
type CycleReport struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	// Scanned counts hot entries examined; Migrated those moved to
	// warm; Failed per-entry failures that will be retried next cycle.
	Scanned  int `json:"scanned"`
	Migrated int `json:"migrated"`
	Failed   int `json:"failed"`

	// Retiered counts warm rows moved to cold; Reaped expired warm
	// rows deleted.
	Retiered int `json:"retiered"`
	Reaped   int `json:"reaped"`

	// Err joins the pass-level failures (a tier unreachable for the
	// whole pass). Per-entry failures are only counted.
	Err error `json:"-"`
}

// SchedulerConfig holds the parameters for a Scheduler. Hot and
// Persistent are required.
type SchedulerConfig struct {
	Hot        HotTier
	Persistent PersistentTier
	Clock      clock.Clock
	Logger     *slog.Logger
	Metrics    *Metrics

	Interval           time.Duration
	HotToWarmThreshold int64
	WarmToColdAge      time.Duration

	// BatchSize is the page size of the hot tier scan.
	BatchSize int

	// OnCycle, if set, is called after every cycle with its report.
	OnCycle func(CycleReport)
}

// Scheduler moves entries between tiers on a timer. Cycles never
// overlap: a cycle that would start while another is running is
// skipped.
type Scheduler struct {
	hot        HotTier
	persistent PersistentTier
	clock      clock.Clock
	logger     *slog.Logger
	metrics    *Metrics

	interval           time.Duration
	hotToWarmThreshold int64
	warmToColdAge      time.Duration
	batchSize          int
	onCycle            func(CycleReport)

	running atomic.Bool
	state   atomic.Value // SchedulerState

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Hot == nil || cfg.Persistent == nil {
		return nil, fmt.Errorf("migration scheduler: Hot and Persistent are required")
	}
	scheduler := &Scheduler{
		hot:                cfg.Hot,
		persistent:         cfg.Persistent,
		clock:              cfg.Clock,
		logger:             cfg.Logger,
		metrics:            cfg.Metrics,
		interval:           cfg.Interval,
		hotToWarmThreshold: cfg.HotToWarmThreshold,
		warmToColdAge:      cfg.WarmToColdAge,
		batchSize:          cfg.BatchSize,
		onCycle:            cfg.OnCycle,
	}
	if scheduler.clock == nil {
		scheduler.clock = clock.Real()
	}
	if scheduler.logger == nil {
		scheduler.logger = slog.New(slog.DiscardHandler)
	}
	if scheduler.interval <= 0 {
		scheduler.interval = DefaultMigrationInterval
	}
	if scheduler.hotToWarmThreshold <= 0 {
		scheduler.hotToWarmThreshold = DefaultHotToWarmThreshold
	}
	if scheduler.warmToColdAge <= 0 {
		scheduler.warmToColdAge = DefaultWarmToColdAge
	}
	if scheduler.batchSize <= 0 {
		scheduler.batchSize = DefaultBatchSize
	}
	scheduler.state.Store(StateIdle)
	return scheduler, nil
}

// State returns the current cycle phase.
func (s *Scheduler) State() SchedulerState {
	return s.state.Load().(SchedulerState)
}

// Start runs a cycle every interval until ctx is cancelled or Stop is
// called. The first cycle runs one interval after Start.
func (s *Scheduler) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("migration scheduler: already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	ticker := s.clock.NewTicker(s.interval)
	s.cancel = cancel
	s.done = done

	s.logger.Info("migration scheduler started",
		"interval", s.interval,
		"hot_to_warm_threshold", s.hotToWarmThreshold,
		"warm_to_cold_age", s.warmToColdAge,
	)

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				report, err := s.RunCycle(loopCtx)
				if errors.Is(err, ErrCycleInProgress) {
					s.logger.Debug("skipping migration tick, previous cycle still running")
					continue
				}
				if err != nil && loopCtx.Err() == nil {
					s.logger.Error("migration cycle failed",
						"error", err,
						"migrated", report.Migrated,
						"retiered", report.Retiered,
					)
				}
			}
		}
	}()
	return nil
}

// Stop halts the timer and waits for an in-flight cycle to return.
// Safe to call on a scheduler that was never started.
func (s *Scheduler) Stop() {
	s.lifecycleMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.lifecycleMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("migration scheduler stopped")
}

// RunCycle runs one migration cycle now: the hot to warm pass, then
// the warm to cold pass and expired-row reaping. Returns
// ErrCycleInProgress without doing anything if a cycle is already
// running. The returned error is report.Err.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return CycleReport{}, ErrCycleInProgress
	}
	defer s.running.Store(false)
	defer s.state.Store(StateIdle)

	report := CycleReport{StartedAt: s.clock.Now()}
	var passErrors []error

	s.state.Store(StateScanHot)
	scanned, migrated, failed, err := s.migrateHotToWarm(ctx, s.hotToWarmThreshold)
	report.Scanned, report.Migrated, report.Failed = scanned, migrated, failed
	if err != nil {
		passErrors = append(passErrors, fmt.Errorf("hot to warm pass: %w", err))
	}

	s.state.Store(StateScanWarm)
	retiered, err := s.persistent.RetierOlderThan(ctx, contextentry.TierWarm, contextentry.TierCold, s.warmToColdAge)
	report.Retiered = retiered
	s.metrics.migrated(contextentry.TierWarm, contextentry.TierCold, retiered)
	if err != nil {
		passErrors = append(passErrors, fmt.Errorf("warm to cold pass: %w", err))
	}

	reaped, err := s.persistent.DeleteExpired(ctx)
	report.Reaped = reaped
	if err != nil {
		passErrors = append(passErrors, fmt.Errorf("reaping expired warm entries: %w", err))
	}

	report.Duration = s.clock.Now().Sub(report.StartedAt)
	report.Err = errors.Join(passErrors...)
	s.metrics.cycle(report.Duration)

	s.logger.Info("migration cycle complete",
		"scanned", report.Scanned,
		"migrated", report.Migrated,
		"failed", report.Failed,
		"retiered", report.Retiered,
		"reaped", report.Reaped,
		"duration", report.Duration,
	)
	if s.onCycle != nil {
		s.onCycle(report)
	}
	return report, report.Err
}

// MigrateHotToWarm runs only the hot to warm pass. Returns the number
// of entries moved. Unlike RunCycle it does not exclude concurrent
// cycles; both passes are safe to repeat.
func (s *Scheduler) MigrateHotToWarm(ctx context.Context) (int, error) {
	_, migrated, _, err := s.migrateHotToWarm(ctx, s.hotToWarmThreshold)
	return migrated, err
}

// DrainHot moves every hot entry to warm regardless of its access
// count. Returns the number moved; entries that failed to move are
// still in the hot tier and are reported in the error.
func (s *Scheduler) DrainHot(ctx context.Context) (int, error) {
	_, migrated, failed, err := s.migrateHotToWarm(ctx, math.MaxInt64)
	if err == nil && failed > 0 {
		err = fmt.Errorf("%d hot entries could not be moved to warm", failed)
	}
	return migrated, err
}

// RetierWarmToCold runs only the warm to cold pass.
func (s *Scheduler) RetierWarmToCold(ctx context.Context) (int, error) {
	retiered, err := s.persistent.RetierOlderThan(ctx, contextentry.TierWarm, contextentry.TierCold, s.warmToColdAge)
	s.metrics.migrated(contextentry.TierWarm, contextentry.TierCold, retiered)
	return retiered, err
}

// migrateHotToWarm pages through the hot tier and moves every entry
// with at most threshold accesses into warm. The warm row is
// written before the hot keys are deleted, so a concurrent reader
// finds the entry in at least one tier. A per-entry failure is logged
// and counted; only a failed scan ends the pass early.
func (s *Scheduler) migrateHotToWarm(ctx context.Context, threshold int64) (scanned, migrated, failed int, err error) {
	// SCAN may return a key more than once per pass.
	seen := make(map[string]bool)
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return scanned, migrated, failed, err
		}
		entries, next, err := s.hot.Scan(ctx, cursor, s.batchSize)
		if err != nil {
			return scanned, migrated, failed, err
		}
		for _, entry := range entries {
			if seen[entry.ID] {
				continue
			}
			seen[entry.ID] = true
			scanned++
			if entry.AccessCount > threshold {
				continue
			}
			if err := s.moveToWarm(ctx, entry); err != nil {
				failed++
				s.metrics.migrationFailed()
				s.logger.Warn("hot to warm migration failed",
					"entry_id", entry.ID,
					"session_id", entry.SessionID,
					"error", err,
				)
				continue
			}
			migrated++
			s.metrics.migrated(contextentry.TierHot, contextentry.TierWarm, 1)
		}
		if next == "" {
			return scanned, migrated, failed, nil
		}
		cursor = next
	}
}

func (s *Scheduler) moveToWarm(ctx context.Context, entry *contextentry.Entry) error {
	tier, err := demotionTier(ctx, s.persistent, entry.ID)
	if err != nil {
		return err
	}
	if err := s.persistent.Put(ctx, entry.Clone(), tier); err != nil {
		return fmt.Errorf("writing %s copy: %w", tier, err)
	}
	if _, err := s.hot.Delete(ctx, entry.ID); err != nil {
		// Both tiers hold the entry until the next cycle retries;
		// reads prefer the hot copy and listings deduplicate.
		return fmt.Errorf("deleting hot copy: %w", err)
	}
	return nil
}

// demotionTier is the persistent tier a hot entry moves into: cold if
// a promoted entry's cold row still exists, warm otherwise. A cold row
// is never downgraded to bounded retention.
func demotionTier(ctx context.Context, persistent PersistentTier, id string) (contextentry.Tier, error) {
	existing, err := persistent.Get(ctx, id)
	switch {
	case errors.Is(err, contextentry.ErrNotFound):
		return contextentry.TierWarm, nil
	case err != nil:
		return "", fmt.Errorf("looking up persistent copy: %w", err)
	case existing.Tier == contextentry.TierCold:
		return contextentry.TierCold, nil
	default:
		return contextentry.TierWarm, nil
	}
}
