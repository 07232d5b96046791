// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/bureau-foundation/contextstore/lib/clock"
	"github.com/bureau-foundation/contextstore/lib/config"
	"github.com/bureau-foundation/contextstore/lib/hottier"
	"github.com/bureau-foundation/contextstore/lib/persistenttier"
	"github.com/bureau-foundation/contextstore/lib/schema/contextentry"
	"github.com/bureau-foundation/contextstore/lib/tierstore"
)

// runtime is an open set of tiers and the manager over them.
type runtime struct {
	config     *config.Config
	logger     *slog.Logger
	hot        *hottier.Store
	persistent *persistenttier.Store
	manager    *tierstore.Manager

	// inProcessHot is set when no Redis address is configured; hot
	// entries then last only as long as this process.
	inProcessHot bool
}

type runtimeOptions struct {
	// Registerer receives the manager metrics. Nil disables metrics.
	Registerer prometheus.Registerer

	OnCycle func(tierstore.CycleReport)

	// OneShot marks a runtime that lives for a single command. With an
	// in-process hot tier it disables promotion, whose copies would
	// land in memory that is discarded on exit.
	OneShot bool
}

func openRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, options runtimeOptions) (*runtime, error) {
	codec, err := cfg.Compression.Codec()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", contextentry.ErrValidation, err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}

	persistent, err := persistenttier.Open(ctx, persistenttier.Config{
		Path:         cfg.Persistent.Path,
		PoolSize:     cfg.Persistent.PoolSize,
		Codec:        codec,
		Logger:       logger.With("component", "persistent_tier"),
		WarmTTL:      cfg.Warm.TTL(),
		CompressWarm: cfg.Warm.CompressionEnabled,
		CompressCold: cfg.Cold.CompressionEnabled,
		BatchSize:    cfg.Migration.BatchSize,
	})
	if err != nil {
		return nil, err
	}

	backend, inProcess, err := openHotBackend(ctx, cfg.Redis, logger)
	if err != nil {
		persistent.Close()
		return nil, err
	}

	hot, err := hottier.New(hottier.Config{
		Backend:                   backend,
		Codec:                     codec,
		Logger:                    logger.With("component", "hot_tier"),
		TTL:                       cfg.Hot.TTL(),
		MaxSizeBytes:              cfg.Hot.MaxSizeBytes,
		CompressionThresholdBytes: cfg.Hot.CompressionThresholdBytes,
		KeyPrefix:                 cfg.Redis.KeyPrefix,
	})
	if err != nil {
		backend.Close()
		persistent.Close()
		return nil, err
	}

	promotionThreshold := cfg.Migration.PromotionThreshold
	if inProcess && options.OneShot {
		promotionThreshold = math.MaxInt64
	}

	var metrics *tierstore.Metrics
	if options.Registerer != nil {
		metrics = tierstore.NewMetrics(options.Registerer)
	}

	manager, err := tierstore.New(tierstore.Config{
		Hot:                hot,
		Persistent:         persistent,
		Logger:             logger.With("component", "tierstore"),
		Metrics:            metrics,
		PromotionThreshold: promotionThreshold,
		HotToWarmThreshold: cfg.Migration.HotToWarmAccessThreshold,
		WarmToColdAge:      cfg.Migration.WarmToColdAge(),
		MigrationInterval:  cfg.Migration.Interval(),
		BatchSize:          cfg.Migration.BatchSize,
		FailOpenHotWrites:  cfg.Hot.FailOpenWrites,
		OnCycle:            options.OnCycle,
	})
	if err != nil {
		hot.Close()
		persistent.Close()
		return nil, err
	}

	return &runtime{
		config:       cfg,
		logger:       logger,
		hot:          hot,
		persistent:   persistent,
		manager:      manager,
		inProcessHot: inProcess,
	}, nil
}

// openHotBackend connects to the configured Redis server, or returns
// an in-process backend when none is configured. An unreachable server
// is not fatal: the manager treats the hot tier as down and serves
// from the persistent tier until it comes back.
func openHotBackend(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (hottier.Backend, bool, error) {
	if cfg.Address == "" {
		logger.Info("no redis address configured, hot tier is in-process")
		return hottier.NewMemoryBackend(clock.Real()), true, nil
	}

	redisConfig := hottier.RedisConfig{
		Address:     cfg.Address,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout(),
	}
	backend, err := hottier.NewRedisBackend(ctx, redisConfig)
	if err == nil {
		return backend, false, nil
	}
	if !contextentry.IsSoftFailure(err) {
		return nil, false, err
	}

	logger.Warn("redis unreachable, continuing with the hot tier unavailable",
		"address", cfg.Address,
		"error", err,
	)
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Address,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: redisConfig.DialTimeout,
	})
	return hottier.NewRedisBackendFromClient(client), false, nil
}

// Close stops the manager (waiting for in-flight promotions) and
// closes both tiers.
func (r *runtime) Close() error {
	return errors.Join(
		r.manager.Close(),
		r.hot.Close(),
		r.persistent.Close(),
	)
}
