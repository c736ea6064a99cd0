// Package app provides the main application structure for Strata.
// It coordinates all components including the storage engine, the
// configuration store with its rules file watcher, the compaction daemon,
// and the optional metrics listener.
package app

import (
	"context"
	"net/http"
	"sync"

	"github.com/strata-db/strata/internal/config"
	"github.com/strata-db/strata/internal/confstore"
	"github.com/strata-db/strata/internal/daemon"
	"github.com/strata-db/strata/internal/engine"
	"github.com/strata-db/strata/internal/logger"
	"github.com/strata-db/strata/internal/rules"
)

// RulesConfKey is the configuration store key the rules file is published
// under and the daemon subscribes to.
const RulesConfKey = "compaction/rules"

// App represents the main application structure.
// It holds references to all major components and manages their lifecycle.
type App struct {
	// Configuration and core services
	config *config.Config
	logger *logger.Logger

	// Storage engine
	engine *engine.Engine

	// Configuration store and rules file watcher
	confStore    *confstore.Store
	rulesWatcher *confstore.FileWatcher
	ruleStore    *rules.Store

	// Compaction daemon
	daemon  *daemon.Daemon
	metrics *daemon.Metrics

	// Metrics listener
	metricsSrv *http.Server

	// Context management
	ctx    context.Context
	cancel context.CancelFunc

	// Thread-safety
	mu      sync.Mutex
	started bool
}

// New creates a new App instance with the provided configuration and logger.
// Only initializes config and logger fields; other components are initialized
// in the Initialize() method.
func New(cfg *config.Config, log *logger.Logger) *App {
	return &App{
		config: cfg,
		logger: log,
	}
}

// Run starts the application and blocks until the context is cancelled.
// It performs the following steps:
//  1. Initializes all components via Initialize()
//  2. Logs that the application is running
//  3. Waits for the context to be cancelled
//  4. Performs graceful shutdown via Shutdown()
func (a *App) Run(ctx context.Context) error {
	if err := a.Initialize(ctx); err != nil {
		return err
	}

	a.logger.Info("Application is running")

	<-ctx.Done()

	return a.Shutdown()
}

// Engine returns the storage engine instance.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// Daemon returns the compaction daemon instance, nil when disabled.
func (a *App) Daemon() *daemon.Daemon {
	return a.daemon
}

// Rules returns the active rule store.
func (a *App) Rules() *rules.Store {
	return a.ruleStore
}
