// Package confstore provides an in-process key/value configuration store with
// change notification. Consumers subscribe to a key namespace and receive an
// event whenever a key under it changes; the event carries the key only, the
// subscriber reads the current value back from the store. Notifications are
// coalescing: a slow subscriber sees at least one event for a burst of
// changes, and always reads the latest value.
package confstore

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/strata-db/strata/internal/logger"
)

var ErrStoreClosed = errors.New("config store is closed")

// Event signals that a key changed.
type Event struct {
	Key        string
	Generation uint64
}

type subscriber struct {
	namespace string
	ch        chan Event
}

// Store is a key/value configuration store with change notification.
type Store struct {
	mu          sync.RWMutex
	logger      *logger.Logger
	values      map[string]string
	subscribers map[int64]*subscriber
	nextSubID   int64
	generation  atomic.Uint64
	closed      bool
}

// New creates an empty configuration store.
func New(log *logger.Logger) *Store {
	return &Store{
		logger:      log,
		values:      make(map[string]string),
		subscribers: make(map[int64]*subscriber),
	}
}

// Get returns the current value of a key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores a value and notifies subscribers of the key's namespace.
// Setting an unchanged value is a no-op and produces no notification.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if old, ok := s.values[key]; ok && old == value {
		return nil
	}

	s.values[key] = value
	gen := s.generation.Add(1)

	s.logger.Debug("config key updated",
		logger.Field{Key: "key", Value: key},
		logger.Field{Key: "generation", Value: gen})

	s.notifyLocked(key, gen)
	return nil
}

// Delete removes a key and notifies subscribers.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.values[key]; !ok {
		return nil
	}

	delete(s.values, key)
	gen := s.generation.Add(1)
	s.notifyLocked(key, gen)
	return nil
}

// Generation returns a counter incremented on every effective change.
// Observers can wait on it to detect that a reload has converged.
func (s *Store) Generation() uint64 {
	return s.generation.Load()
}

// Subscribe registers interest in a key namespace (prefix). The returned
// cancel function must be called to release the subscription.
func (s *Store) Subscribe(namespace string) (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++

	sub := &subscriber{
		namespace: namespace,
		// Buffer of one: notifications coalesce instead of blocking the writer.
		ch: make(chan Event, 1),
	}
	s.subscribers[id] = sub

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if cur, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(cur.ch)
		}
	}
	return sub.ch, cancel
}

// Close shuts the store down and closes all subscriber channels.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id, sub := range s.subscribers {
		delete(s.subscribers, id)
		close(sub.ch)
	}
}

func (s *Store) notifyLocked(key string, gen uint64) {
	for _, sub := range s.subscribers {
		if !strings.HasPrefix(key, sub.namespace) {
			continue
		}
		select {
		case sub.ch <- Event{Key: key, Generation: gen}:
		default:
			// Subscriber already has a pending event; it will read the
			// latest value when it gets around to it.
		}
	}
}
