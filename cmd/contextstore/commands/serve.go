// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/contextstore/cmd/contextstore/cli"
	"github.com/bureau-foundation/contextstore/lib/config"
	"github.com/bureau-foundation/contextstore/lib/tierstore"
)

const (
	shutdownTimeout = 5 * time.Second
	drainTimeout    = 30 * time.Second
)

// serveHandle describes a running serve command.
type serveHandle struct {
	// MetricsAddress is the bound metrics listener, or nil when
	// metrics.listen_address is empty.
	MetricsAddress net.Addr
	Manager        *tierstore.Manager
}

func (a *app) serveCommand() *cli.Command {
	var params struct {
		configFlag
	}
	return &cli.Command{
		Name:    "serve",
		Summary: "Run the migration scheduler and maintenance jobs",
		Description: `Run the context store's background work until interrupted:

  - the migration scheduler, every migration.interval_seconds
  - compression of old persistent entries on maintenance.compress_schedule
  - Prometheus metrics on metrics.listen_address (/metrics, /stats, /healthz)

With an in-process hot tier, hot entries are moved to warm on shutdown.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("serve", pflag.ContinueOnError)
			params.configFlag.add(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected arguments: %v", args)
			}
			cfg, err := params.load()
			if err != nil {
				return err
			}
			return a.serve(ctx, cfg, logger.With("command", "serve"))
		},
	}
}

func (a *app) serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) (err error) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	rt, err := openRuntime(ctx, cfg, logger, runtimeOptions{Registerer: registry})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			logger.Error("closing tiers", "error", closeErr)
			if err == nil {
				err = closeErr
			}
		}
	}()

	if err := rt.manager.Scheduler().Start(ctx); err != nil {
		return err
	}

	maintenance, err := newMaintenance(ctx, rt, logger)
	if err != nil {
		return err
	}
	if maintenance != nil {
		maintenance.Start()
	}

	handle := serveHandle{Manager: rt.manager}
	serverDone := make(chan error, 1)
	var server *http.Server
	if cfg.Metrics.ListenAddress != "" {
		listener, err := net.Listen("tcp", cfg.Metrics.ListenAddress)
		if err != nil {
			stopMaintenance(maintenance)
			return fmt.Errorf("listening on %s: %w", cfg.Metrics.ListenAddress, err)
		}
		handle.MetricsAddress = listener.Addr()
		server = newMetricsServer(registry, rt.manager, logger)
		go func() {
			serverDone <- server.Serve(listener)
		}()
	}

	logger.Info("context store serving",
		"metrics_address", handle.MetricsAddress,
		"migration_interval", cfg.Migration.Interval(),
		"compress_schedule", cfg.Maintenance.CompressSchedule,
		"in_process_hot", rt.inProcessHot,
	)
	if a.serveReady != nil {
		a.serveReady(handle)
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serverDone:
		serveErr = fmt.Errorf("metrics server: %w", err)
		logger.Error("metrics server failed, shutting down", "error", err)
	}

	stopMaintenance(maintenance)
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
		cancel()
	}
	rt.manager.Scheduler().Stop()

	if rt.inProcessHot {
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		moved, err := rt.manager.Scheduler().DrainHot(drainCtx)
		cancel()
		logger.Info("moved in-process hot entries to warm", "moved", moved)
		if err != nil {
			serveErr = errors.Join(serveErr, fmt.Errorf("draining hot tier: %w", err))
		}
	}
	return serveErr
}

func newMetricsServer(registry *prometheus.Registry, manager *tierstore.Manager, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		stats, err := manager.GetContextStats(r.Context())
		if err != nil {
			logger.Warn("stats request failed", "error", err)
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := cli.WriteJSON(w, stats); err != nil {
			logger.Warn("writing stats response", "error", err)
		}
	})
	return &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// newMaintenance schedules the compression job. Returns nil when
// maintenance.compress_schedule is empty.
func newMaintenance(ctx context.Context, rt *runtime, logger *slog.Logger) (*cron.Cron, error) {
	schedule := rt.config.Maintenance.CompressSchedule
	if schedule == "" {
		return nil, nil
	}
	cronLog := cronLogger{logger: logger.With("component", "maintenance")}
	maintenance := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	if _, err := maintenance.AddFunc(schedule, compressJob(ctx, rt.manager, rt.config.Maintenance.CompressOlderThan(), logger)); err != nil {
		return nil, fmt.Errorf("scheduling compression %q: %w", schedule, err)
	}
	return maintenance, nil
}

// compressJob returns the scheduled compression run.
func compressJob(ctx context.Context, manager *tierstore.Manager, olderThan time.Duration, logger *slog.Logger) func() {
	return func() {
		count, err := manager.CompressOldContext(ctx, olderThan)
		if err != nil {
			logger.Error("scheduled compression failed",
				"compressed", count,
				"error", err,
			)
		}
	}
}

// stopMaintenance stops the cron scheduler and waits for a running
// job to finish.
func stopMaintenance(maintenance *cron.Cron) {
	if maintenance == nil {
		return
	}
	<-maintenance.Stop().Done()
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
