// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tierstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bureau-foundation/contextstore/lib/schema/contextentry"
)

// Metrics holds the Prometheus collectors for the manager and
// scheduler. A nil *Metrics records nothing.
type Metrics struct {
	Stores            *prometheus.CounterVec
	Reads             *prometheus.CounterVec
	Misses            prometheus.Counter
	HotFallthroughs   prometheus.Counter
	Promotions        prometheus.Counter
	PromotionFailures prometheus.Counter
	Migrations        *prometheus.CounterVec
	MigrationFailures prometheus.Counter
	CycleDuration     prometheus.Gauge
	Cycles            prometheus.Counter
}

// NewMetrics creates the collectors and registers them with
// registerer. A nil registerer creates unregistered collectors.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		Stores: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contextstore_stores_total",
				Help: "Entries stored, by the tier they were placed in",
			},
			[]string{"tier"},
		),
		Reads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contextstore_reads_total",
				Help: "Successful reads, by the tier that served them",
			},
			[]string{"tier"},
		),
		Misses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "contextstore_misses_total",
				Help: "Reads for ids no tier holds",
			},
		),
		HotFallthroughs: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "contextstore_hot_fallthroughs_total",
				Help: "Operations that bypassed an unavailable hot tier",
			},
		),
		Promotions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "contextstore_promotions_total",
				Help: "Entries moved from the persistent tier to the hot tier",
			},
		),
		PromotionFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "contextstore_promotion_failures_total",
				Help: "Dispatched promotions that failed",
			},
		),
		Migrations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contextstore_migrations_total",
				Help: "Entries moved between tiers by migration",
			},
			[]string{"from", "to"},
		),
		MigrationFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "contextstore_migration_failures_total",
				Help: "Per-entry migration failures",
			},
		),
		CycleDuration: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "contextstore_migration_cycle_duration_seconds",
				Help: "Duration of the most recent migration cycle",
			},
		),
		Cycles: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "contextstore_migration_cycles_total",
				Help: "Completed migration cycles",
			},
		),
	}
}

func (m *Metrics) stored(tier contextentry.Tier) {
	if m != nil {
		m.Stores.WithLabelValues(string(tier)).Inc()
	}
}

func (m *Metrics) read(tier contextentry.Tier) {
	if m != nil {
		m.Reads.WithLabelValues(string(tier)).Inc()
	}
}

func (m *Metrics) miss() {
	if m != nil {
		m.Misses.Inc()
	}
}

func (m *Metrics) hotFallthrough() {
	if m != nil {
		m.HotFallthroughs.Inc()
	}
}

func (m *Metrics) promotion(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.PromotionFailures.Inc()
		return
	}
	m.Promotions.Inc()
}

func (m *Metrics) migrated(from, to contextentry.Tier, count int) {
	if m != nil && count > 0 {
		m.Migrations.WithLabelValues(string(from), string(to)).Add(float64(count))
	}
}

func (m *Metrics) migrationFailed() {
	if m != nil {
		m.MigrationFailures.Inc()
	}
}

func (m *Metrics) cycle(duration time.Duration) {
	if m != nil {
		m.Cycles.Inc()
		m.CycleDuration.Set(duration.Seconds())
	}
}
