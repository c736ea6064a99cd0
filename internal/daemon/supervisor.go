package daemon

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strata-db/strata/internal/logger"
)

var (
	// ErrAlreadyInProgress is a programming invariant violation: the
	// scheduler attempted to dispatch a unit that is already being
	// compacted. It must never occur when the tick loop is correct.
	ErrAlreadyInProgress = errors.New("compaction already in progress for unit")

	// ErrSaturated means the concurrency cap is reached; the unit is simply
	// not dispatched this tick and gets reconsidered on the next one.
	ErrSaturated = errors.New("compaction concurrency cap reached")
)

// Phase is a stage of a compaction task's life.
type Phase uint8

const (
	PhaseStarted Phase = iota
	PhaseFinished
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseStarted:
		return "started"
	case PhaseFinished:
		return "finished"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is a push-based notification of a task's phase change. Observers
// (operators, tests) subscribe instead of polling the in-progress set.
type Event struct {
	TaskID   string
	Unit     Unit
	Phase    Phase
	Err      error
	Duration time.Duration
}

// TaskHandle represents one running compaction.
type TaskHandle struct {
	ID        string
	Unit      Unit
	StartedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// Done is closed when the task has completed, failed, or been cancelled.
func (h *TaskHandle) Done() <-chan struct{} {
	return h.done
}

// Supervisor owns the in-progress set: it dispatches compaction tasks,
// guarantees at most one per unit, enforces the global concurrency cap, and
// reports completions. Per-unit failures are logged and contained, never
// propagated to the daemon loop.
type Supervisor struct {
	logger  *logger.Logger
	metrics *Metrics
	sem     chan struct{} // nil when the cap is unlimited

	mu          sync.Mutex
	inProgress  map[Unit]*TaskHandle
	subscribers map[int64]chan Event
	nextSubID   int64

	wg sync.WaitGroup
}

// NewSupervisor creates a supervisor. maxParallel <= 0 means unlimited.
func NewSupervisor(maxParallel int, log *logger.Logger, metrics *Metrics) *Supervisor {
	var sem chan struct{}
	if maxParallel > 0 {
		sem = make(chan struct{}, maxParallel)
	}
	return &Supervisor{
		logger:      log,
		metrics:     metrics,
		sem:         sem,
		inProgress:  make(map[Unit]*TaskHandle),
		subscribers: make(map[int64]chan Event),
	}
}

// Start dispatches a compaction task for a unit. The unit enters the
// in-progress set atomically with the dispatch decision; it is removed
// exactly once, when run returns. Start never blocks on the task.
func (s *Supervisor) Start(ctx context.Context, unit Unit, run func(context.Context) error) (*TaskHandle, error) {
	s.mu.Lock()
	if _, ok := s.inProgress[unit]; ok {
		s.mu.Unlock()
		return nil, ErrAlreadyInProgress
	}
	if s.sem != nil {
		select {
		case s.sem <- struct{}{}:
		default:
			s.mu.Unlock()
			return nil, ErrSaturated
		}
	}

	taskCtx, cancel := context.WithCancel(ctx)
	handle := &TaskHandle{
		ID:        uuid.NewString(),
		Unit:      unit,
		StartedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.inProgress[unit] = handle
	running := len(s.inProgress)
	s.mu.Unlock()

	s.logger.Info("compaction started",
		logger.Field{Key: "unit", Value: unit.String()},
		logger.Field{Key: "kind", Value: unit.Kind.String()},
		logger.Field{Key: "task_id", Value: handle.ID})
	s.metrics.recordStarted(unit.Kind, running)
	s.publish(Event{TaskID: handle.ID, Unit: unit, Phase: PhaseStarted})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		var err error
		// A panicking task must still leave the in-progress set and release
		// its slot, or the unit stays uncompactable for the process lifetime.
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("compaction panicked: %v", r)
			}
			s.finish(handle, err)
		}()
		err = run(taskCtx)
	}()
	return handle, nil
}

// finish removes the unit from the in-progress set, exactly once per task.
func (s *Supervisor) finish(handle *TaskHandle, err error) {
	duration := time.Since(handle.StartedAt)

	s.mu.Lock()
	delete(s.inProgress, handle.Unit)
	running := len(s.inProgress)
	if s.sem != nil {
		<-s.sem
	}
	s.mu.Unlock()

	handle.cancel()
	close(handle.done)
	s.metrics.recordFinished(handle.Unit.Kind, err, duration, running)

	if err != nil {
		// The original file is intact and the unit stays eligible for a
		// future tick; nothing here is fatal to the daemon.
		s.logger.Error("compaction failed", err,
			logger.Field{Key: "unit", Value: handle.Unit.String()},
			logger.Field{Key: "task_id", Value: handle.ID},
			logger.Field{Key: "duration", Value: duration.String()})
		s.publish(Event{TaskID: handle.ID, Unit: handle.Unit, Phase: PhaseFailed, Err: err, Duration: duration})
		return
	}

	s.logger.Info("compaction finished",
		logger.Field{Key: "unit", Value: handle.Unit.String()},
		logger.Field{Key: "task_id", Value: handle.ID},
		logger.Field{Key: "duration", Value: duration.String()})
	s.publish(Event{TaskID: handle.ID, Unit: handle.Unit, Phase: PhaseFinished, Duration: duration})
}

// Running reports whether a unit is in the in-progress set.
func (s *Supervisor) Running(unit Unit) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inProgress[unit]
	return ok
}

// InProgress returns a point-in-time snapshot of the in-progress set.
func (s *Supervisor) InProgress() []Unit {
	s.mu.Lock()
	defer s.mu.Unlock()

	units := make([]Unit, 0, len(s.inProgress))
	for unit := range s.inProgress {
		units = append(units, unit)
	}
	sort.Slice(units, func(i, j int) bool { return units[i].String() < units[j].String() })
	return units
}

// Cancel aborts a running task's context. Used only for strict window expiry;
// ordinary compactions run to completion once dispatched.
func (s *Supervisor) Cancel(unit Unit) bool {
	s.mu.Lock()
	handle, ok := s.inProgress[unit]
	s.mu.Unlock()

	if !ok {
		return false
	}
	handle.cancel()
	return true
}

// Subscribe returns a channel of task events. Slow subscribers lose events
// rather than blocking task completion; the in-progress snapshot remains the
// source of truth.
func (s *Supervisor) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	ch := make(chan Event, 64)
	s.subscribers[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if cur, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(cur)
		}
	}
	return ch, cancel
}

// Wait blocks until every running task has finished.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

func (s *Supervisor) publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}
