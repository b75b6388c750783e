package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bettervoice/bettervoice/internal/bridge"
	"github.com/bettervoice/bettervoice/internal/classify"
	"github.com/bettervoice/bettervoice/internal/config"
	"github.com/bettervoice/bettervoice/internal/logging"
	"github.com/bettervoice/bettervoice/internal/metrics"
)

const sweepInterval = 24 * time.Hour

// sweeper is the subset of the learning store used for retention.
type sweeper interface {
	Sweep(ctx context.Context, olderThanDays int) (int64, error)
}

// commandServe runs the edit bridge, the retention sweeper, and the config
// watcher until ctx is cancelled.
func (r Runner) commandServe(ctx context.Context, loaded config.Loaded, logRuntime *logging.Runtime, logger *slog.Logger) int {
	cfg := loaded.Config
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	classifier, err := classify.NewDefault(logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	var retention atomic.Int64
	retention.Store(int64(cfg.Learning.RetentionDays))
	server := bridge.NewServer(store, classifier, logger, cfg.Bridge.AllowedOrigins)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Bridge.Enable {
		g.Go(func() error {
			return server.ListenAndServe(gctx, cfg.Bridge.Listen)
		})
	} else {
		logger.Info("bridge disabled; running store maintenance only")
	}
	g.Go(func() error {
		runSweeper(gctx, store, func() int { return int(retention.Load()) }, sweepInterval, logger)
		return nil
	})
	g.Go(func() error {
		err := config.Watch(gctx, loaded.Path, config.DefaultWatchDebounce, logger, func(next config.Loaded) {
			if err := logRuntime.SetLevel(next.Config.Debug.LogLevel); err != nil {
				logger.Warn("ignoring reloaded log level", "error", err.Error())
			}
			retention.Store(int64(next.Config.Learning.RetentionDays))
			server.SetAllowedOrigins(next.Config.Bridge.AllowedOrigins)
		})
		if err != nil {
			logger.Warn("config hot reload unavailable", "path", loaded.Path, "error", err.Error())
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("serve failed", "error", err.Error())
		return 1
	}
	return 0
}

// runSweeper sweeps once immediately and then every interval until ctx ends.
// A retention of zero days disables sweeping.
func runSweeper(ctx context.Context, store sweeper, days func() int, interval time.Duration, logger *slog.Logger) {
	sweep := func() {
		retention := days()
		if retention <= 0 {
			return
		}
		removed, err := store.Sweep(ctx, retention)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("learning sweep failed", "error", err.Error())
			}
			return
		}
		metrics.PatternsSweptTotal.Add(float64(removed))
		logger.Info("learning sweep complete", "retention_days", retention, "removed", removed)
	}

	sweep()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
