package confstore

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/strata-db/strata/internal/logger"
)

// FileWatcher polls a file for modification-time changes and publishes its
// contents into a Store under a fixed key. The first poll runs immediately so
// the store is populated before the watcher's first interval elapses.
type FileWatcher struct {
	store    *Store
	key      string
	path     string
	interval time.Duration
	logger   *logger.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	lastMod  time.Time
	lastSize int64
}

// NewFileWatcher creates a watcher publishing path's contents under key.
func NewFileWatcher(store *Store, key, path string, interval time.Duration, log *logger.Logger) *FileWatcher {
	return &FileWatcher{
		store:    store,
		key:      key,
		path:     path,
		interval: interval,
		logger:   log,
	}
}

// Start begins polling. Safe to call once.
func (w *FileWatcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.ctx, w.cancel = context.WithCancel(ctx)
		w.poll()

		w.wg.Add(1)
		go w.run()

		w.logger.Info("config file watcher started",
			logger.Field{Key: "path", Value: w.path},
			logger.Field{Key: "interval", Value: w.interval.String()})
	})
}

// Stop halts polling and waits for the poll goroutine to exit.
func (w *FileWatcher) Stop() {
	w.stopOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
		w.wg.Wait()
	})
}

func (w *FileWatcher) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.poll()
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *FileWatcher) poll() {
	info, err := os.Stat(w.path)
	if err != nil {
		// A missing or unreadable file keeps the last published contents.
		w.logger.Debug("rules file not readable",
			logger.Field{Key: "path", Value: w.path},
			logger.Field{Key: "error", Value: err.Error()})
		return
	}

	if info.ModTime().Equal(w.lastMod) && info.Size() == w.lastSize {
		return
	}

	data, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.Warn("failed to read changed config file",
			logger.Field{Key: "path", Value: w.path},
			logger.Field{Key: "error", Value: err.Error()})
		return
	}

	w.lastMod = info.ModTime()
	w.lastSize = info.Size()

	if err := w.store.Set(w.key, string(data)); err != nil {
		w.logger.Warn("failed to publish config file contents",
			logger.Field{Key: "key", Value: w.key},
			logger.Field{Key: "error", Value: err.Error()})
	}
}
