package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/strata-db/strata/internal/confstore"
	"github.com/strata-db/strata/internal/daemon"
	"github.com/strata-db/strata/internal/engine"
	"github.com/strata-db/strata/internal/logger"
	"github.com/strata-db/strata/internal/rules"
)

// Initialize initializes all application components.
// It opens the storage engine, starts the configuration store and rules file
// watcher, the optional metrics listener, and the compaction daemon.
func (a *App) Initialize(ctx context.Context) error {
	// 1. Create application context
	a.ctx, a.cancel = context.WithCancel(ctx)

	// 2. Open the storage engine
	eng, err := engine.New(a.config.Storage.DataDir, a.logger)
	if err != nil {
		return fmt.Errorf("failed to open storage engine: %w", err)
	}
	a.engine = eng

	// 3. Initialize configuration store and rules file watcher
	a.confStore = confstore.New(a.logger)
	a.rulesWatcher = confstore.NewFileWatcher(
		a.confStore,
		RulesConfKey,
		a.config.Rules.Path,
		time.Duration(a.config.Rules.PollIntervalSeconds)*time.Second,
		a.logger,
	)
	a.rulesWatcher.Start(a.ctx)

	a.ruleStore = rules.NewStore(a.logger)

	// 4. Initialize metrics listener if enabled
	if a.config.Metrics.Enabled {
		a.metrics = daemon.InitMetrics("strata", nil)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		a.metricsSrv = &http.Server{Addr: a.config.Metrics.Listen, Handler: mux}
		go func() {
			a.logger.Info("Metrics listener started",
				logger.Field{Key: "listen", Value: a.config.Metrics.Listen})
			if err := a.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.logger.Error("Metrics listener failed", err)
			}
		}()
	}

	// 5. Initialize compaction daemon if enabled
	if a.config.Daemon.Enabled {
		a.daemon = daemon.New(daemon.Config{
			CheckInterval: time.Duration(a.config.Daemon.CheckIntervalSeconds) * time.Second,
			MinFileSize:   a.config.Daemon.MinFileSizeBytes,
			MaxParallel:   a.config.Daemon.MaxParallel,
			Schedule:      a.config.Daemon.Schedule,
			RulesKey:      RulesConfKey,
		}, a.engine, a.ruleStore, a.confStore, a.logger, a.metrics)
		if err := a.daemon.Start(a.ctx); err != nil {
			return fmt.Errorf("failed to start compaction daemon: %w", err)
		}
	} else {
		a.logger.Warn("Compaction daemon is disabled")
	}

	// 6. Mark as started
	a.mu.Lock()
	a.started = true
	a.mu.Unlock()

	return nil
}
