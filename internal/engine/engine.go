// Package engine implements a small document-oriented storage engine: named
// databases of revisioned documents with secondary (view) indexes, append-only
// data files, and online compaction of both database and view files. The
// compaction daemon consumes it through a narrow surface: enumerate open
// databases and views, read size accounting, request a compaction.
package engine

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/strata-db/strata/internal/logger"
)

// Engine manages the open databases under one data directory.
type Engine struct {
	dataDir  string
	log      *logger.Logger
	monitors *monitorTable

	mu     sync.Mutex
	open   map[string]*Database
	closed bool
}

// New creates an engine rooted at dataDir, creating the directory if needed.
func New(dataDir string, log *logger.Logger) (*Engine, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &Engine{
		dataDir:  dataDir,
		log:      log,
		monitors: newMonitorTable(),
		open:     make(map[string]*Database),
	}, nil
}

// Create creates a new database and returns an open handle to it.
func (e *Engine) Create(name string) (*Database, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrEngineClosed
	}
	if _, ok := e.open[name]; ok {
		return nil, ErrDatabaseExists
	}

	db, err := createDatabase(e.dataDir, name, e.log)
	if err != nil {
		return nil, err
	}
	e.open[name] = db
	e.monitors.acquire(name)
	return db, nil
}

// Open returns a handle to a database, loading it from disk on first open.
// Each Open registers a monitor reference; callers release it with Release.
func (e *Engine) Open(name string) (*Database, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrEngineClosed
	}

	if db, ok := e.open[name]; ok {
		e.monitors.acquire(name)
		return db, nil
	}

	db, err := openDatabase(e.dataDir, name, e.log)
	if err != nil {
		return nil, err
	}
	e.open[name] = db
	e.monitors.acquire(name)
	return db, nil
}

// Release drops one monitor reference on a database. The database stays open
// in the engine; Release only affects the idle query.
func (e *Engine) Release(db *Database) {
	e.monitors.release(db.name)
}

// CloseDatabase fully closes a database and removes it from the open set.
func (e *Engine) CloseDatabase(name string) error {
	e.mu.Lock()
	db, ok := e.open[name]
	delete(e.open, name)
	e.mu.Unlock()

	if !ok {
		return ErrDatabaseNotFound
	}
	return db.close()
}

// Idle reports whether no component other than the asking caller holds the
// database. Callers are expected to hold exactly one reference themselves.
func (e *Engine) Idle(name string) bool {
	return e.monitors.count(name) <= 1
}

// ListOpenDatabases returns the names of currently open databases, sorted.
func (e *Engine) ListOpenDatabases() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	names := make([]string, 0, len(e.open))
	for name := range e.open {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListViews returns the view names of an open database.
func (e *Engine) ListViews(name string) ([]string, error) {
	e.mu.Lock()
	db, ok := e.open[name]
	e.mu.Unlock()

	if !ok {
		return nil, ErrDatabaseNotFound
	}
	return db.ListViews(), nil
}

// DatabaseInfo returns size accounting for a database file.
func (e *Engine) DatabaseInfo(name string) (fileSize, dataSize int64, err error) {
	e.mu.Lock()
	db, ok := e.open[name]
	e.mu.Unlock()

	if !ok {
		return 0, 0, ErrDatabaseNotFound
	}
	info := db.Info()
	return info.FileSize, info.DataSize, nil
}

// ViewInfo returns size accounting for a view index file.
func (e *Engine) ViewInfo(name, view string) (fileSize, dataSize int64, err error) {
	e.mu.Lock()
	db, ok := e.open[name]
	e.mu.Unlock()

	if !ok {
		return 0, 0, ErrDatabaseNotFound
	}
	v, err := db.View(view)
	if err != nil {
		return 0, 0, err
	}
	info := v.Info()
	return info.FileSize, info.DataSize, nil
}

// CompactDatabase performs an online compaction of a database file.
func (e *Engine) CompactDatabase(ctx context.Context, name string) error {
	db, err := e.Open(name)
	if err != nil {
		return err
	}
	defer e.Release(db)
	return db.Compact(ctx)
}

// CompactView performs an online compaction of a view index file.
func (e *Engine) CompactView(ctx context.Context, name, view string) error {
	db, err := e.Open(name)
	if err != nil {
		return err
	}
	defer e.Release(db)

	v, err := db.View(view)
	if err != nil {
		return err
	}
	return v.Compact(ctx)
}

// Shutdown closes every open database.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	var firstErr error
	for name, db := range e.open {
		if err := db.close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close database %s: %w", name, err)
		}
		delete(e.open, name)
	}
	return firstErr
}
