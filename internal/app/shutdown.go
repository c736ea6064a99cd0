// Package app provides graceful shutdown functionality for the application.
// It ensures all components are stopped in the correct order so that no
// compaction is interrupted mid-swap and no file handle leaks.
package app

import (
	"context"
	"time"
)

// Shutdown performs graceful shutdown of all components.
// It stops the application in the following order:
//  1. Cancels the application context
//  2. Stops the compaction daemon, waiting for running compactions
//  3. Stops the rules file watcher and configuration store
//  4. Stops the metrics listener (if running)
//  5. Shuts the storage engine down
//
// The method is thread-safe and can be called from multiple goroutines.
func (a *App) Shutdown() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return nil
	}
	a.started = false

	a.logger.Info("Shutting down application")

	if a.cancel != nil {
		a.cancel()
	}

	if a.daemon != nil {
		a.daemon.Stop()
	}

	if a.rulesWatcher != nil {
		a.rulesWatcher.Stop()
	}
	if a.confStore != nil {
		a.confStore.Close()
	}

	if a.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.metricsSrv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("Failed to stop metrics listener", err)
		}
		cancel()
	}

	var err error
	if a.engine != nil {
		err = a.engine.Shutdown()
	}

	a.logger.Info("Application stopped")
	return err
}
