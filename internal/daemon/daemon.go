// Package daemon implements the background compaction daemon: a periodic
// scheduler that measures fragmentation of every served database and view
// index, matches the measurements against the active rule set, and hands
// eligible units to a supervisor that runs compactions with an at-most-one
// per unit guarantee.
package daemon

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/strata-db/strata/internal/confstore"
	"github.com/strata-db/strata/internal/logger"
	"github.com/strata-db/strata/internal/rules"
)

// Config configures the daemon.
type Config struct {
	// CheckInterval is the pause between scheduler ticks.
	CheckInterval time.Duration

	// MinFileSize is the default minimum file size gate, used by rules that
	// do not carry their own min_file_size.
	MinFileSize int64

	// MaxParallel caps concurrently running compactions. Zero or negative
	// means unlimited.
	MaxParallel int

	// Schedule is an optional cron expression. When set, ticks fire on the
	// cron schedule instead of the fixed interval.
	Schedule string

	// RulesKey is the configuration store key holding the rules document.
	RulesKey string
}

// Daemon is the compaction scheduler. It never blocks on a running
// compaction: ticks inspect, decide and dispatch, and the supervisor owns
// task lifecycles.
type Daemon struct {
	cfg       Config
	logger    *logger.Logger
	engine    Engine
	evaluator *Evaluator
	ruleStore *rules.Store
	sup       *Supervisor
	metrics   *Metrics

	confStore *confstore.Store

	trigger   chan struct{}
	stop      chan struct{}
	stopOnce  sync.Once
	loopDone  chan struct{}
	started   atomic.Bool
	tickCount atomic.Uint64

	now func() time.Time
}

// New creates a daemon. confStore is optional; when non-nil the daemon loads
// the rules document from cfg.RulesKey and reloads it on every change event.
func New(cfg Config, eng Engine, ruleStore *rules.Store, confStore *confstore.Store, log *logger.Logger, metrics *Metrics) *Daemon {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Minute
	}
	return &Daemon{
		cfg:       cfg,
		logger:    log,
		engine:    eng,
		evaluator: NewEvaluator(eng),
		ruleStore: ruleStore,
		sup:       NewSupervisor(cfg.MaxParallel, log, metrics),
		metrics:   metrics,
		confStore: confStore,
		trigger:   make(chan struct{}, 1),
		stop:      make(chan struct{}),
		loopDone:  make(chan struct{}),
		now:       time.Now,
	}
}

// Supervisor exposes the task supervisor for observation: the in-progress
// snapshot and event subscription.
func (d *Daemon) Supervisor() *Supervisor {
	return d.sup
}

// TickCount returns the number of completed scheduler ticks.
func (d *Daemon) TickCount() uint64 {
	return d.tickCount.Load()
}

// Trigger requests an immediate tick. Requests arriving while a tick is
// already pending coalesce into one.
func (d *Daemon) Trigger() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

// Start launches the scheduler loop. It returns an error only for an invalid
// cron schedule; the loop itself runs until Stop or ctx cancellation.
func (d *Daemon) Start(ctx context.Context) error {
	var cr *cron.Cron
	if d.cfg.Schedule != "" {
		cr = cron.New()
		if _, err := cr.AddFunc(d.cfg.Schedule, d.Trigger); err != nil {
			return err
		}
	}

	var rulesEvents <-chan confstore.Event
	cancelSub := func() {}
	if d.confStore != nil && d.cfg.RulesKey != "" {
		if doc, ok := d.confStore.Get(d.cfg.RulesKey); ok {
			if err := d.ruleStore.Load([]byte(doc)); err != nil {
				d.logger.Warn("initial rules document rejected",
					logger.Field{Key: "key", Value: d.cfg.RulesKey})
			}
		}
		rulesEvents, cancelSub = d.confStore.Subscribe(d.cfg.RulesKey)
	}

	d.started.Store(true)
	go func() {
		defer close(d.loopDone)
		defer cancelSub()

		var tick <-chan time.Time
		if cr != nil {
			cr.Start()
			defer cr.Stop()
		} else {
			ticker := time.NewTicker(d.cfg.CheckInterval)
			defer ticker.Stop()
			tick = ticker.C
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-d.stop:
				return
			case ev, ok := <-rulesEvents:
				if !ok {
					rulesEvents = nil
					continue
				}
				d.reloadRules(ev.Key)
			case <-tick:
				d.tick(ctx)
			case <-d.trigger:
				d.tick(ctx)
			}
		}
	}()
	return nil
}

// Stop shuts the scheduler loop down and waits for running compactions to
// finish. Safe to call when Start never ran or failed.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
	if !d.started.Load() {
		return
	}
	<-d.loopDone
	d.sup.Wait()
}

func (d *Daemon) reloadRules(key string) {
	doc, ok := d.confStore.Get(key)
	if !ok {
		// Key deleted; the active rule set stays in effect.
		return
	}
	// Load logs failures and keeps the previous set; the next tick reports
	// the active rule count through its metrics.
	_ = d.ruleStore.Load([]byte(doc))
}

// tick inspects every served unit once. A tick never stacks: it runs to
// completion before the next one is considered, and dispatched compactions
// continue in the background.
func (d *Daemon) tick(ctx context.Context) {
	started := d.now()
	snapshot := d.ruleStore.Current()

	for _, db := range d.engine.ListOpenDatabases() {
		rule, ok := snapshot.For(db)
		if !ok {
			continue
		}

		d.consider(ctx, DatabaseUnit(db), rule)

		views, err := d.engine.ListViews(db)
		if err != nil {
			d.logger.Debug("view enumeration failed, skipping",
				logger.Field{Key: "db", Value: db},
				logger.Field{Key: "error", Value: err.Error()})
			continue
		}
		for _, view := range views {
			d.consider(ctx, ViewUnit(db, view), rule)
		}
	}

	d.tickCount.Add(1)
	d.metrics.recordTick(time.Since(started), snapshot.Len())
}

// consider measures one unit and dispatches a compaction when the unit's
// rule matches. All failures are contained to this unit and this tick.
func (d *Daemon) consider(ctx context.Context, unit Unit, rule rules.Rule) {
	if d.sup.Running(unit) {
		return
	}

	sample, err := d.evaluator.Evaluate(unit)
	if err != nil {
		d.logger.Debug("unit skipped",
			logger.Field{Key: "unit", Value: unit.String()},
			logger.Field{Key: "error", Value: err.Error()})
		return
	}

	// An empty file has no ratio to measure and nothing to reclaim.
	if sample.FileSize == 0 {
		return
	}

	now := d.now()
	if !rules.Eligible(rule, unit.IsView(), sample.Fragmentation, sample.FileSize, d.cfg.MinFileSize, now) {
		return
	}

	d.logger.Info("unit eligible for compaction",
		logger.Field{Key: "unit", Value: unit.String()},
		logger.Field{Key: "fragmentation_pct", Value: sample.Fragmentation},
		logger.Field{Key: "file_size", Value: sample.FileSize},
		logger.Field{Key: "data_size", Value: sample.DataSize})

	run := d.runFunc(unit)
	if rule.StrictWindow && rule.Window != nil {
		deadline := rule.Window.NextEnd(now)
		inner := run
		run = func(taskCtx context.Context) error {
			taskCtx, cancel := context.WithDeadline(taskCtx, deadline)
			defer cancel()
			return inner(taskCtx)
		}
	}

	if _, err := d.sup.Start(ctx, unit, run); err != nil {
		if errors.Is(err, ErrSaturated) {
			d.logger.Debug("compaction deferred, concurrency cap reached",
				logger.Field{Key: "unit", Value: unit.String()})
			return
		}
		d.logger.Error("compaction dispatch failed", err,
			logger.Field{Key: "unit", Value: unit.String()})
	}
}

func (d *Daemon) runFunc(unit Unit) func(context.Context) error {
	if unit.IsView() {
		return func(taskCtx context.Context) error {
			return d.engine.CompactView(taskCtx, unit.DB, unit.View)
		}
	}
	return func(taskCtx context.Context) error {
		return d.engine.CompactDatabase(taskCtx, unit.DB)
	}
}
