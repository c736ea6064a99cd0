package rules

import (
	"sync/atomic"

	"github.com/strata-db/strata/internal/logger"
)

// Store holds the active RuleSet behind an atomic pointer. Readers take
// consistent snapshots without locking; Load swaps whole sets so no reader
// ever observes a partial merge.
type Store struct {
	logger *logger.Logger
	active atomic.Pointer[RuleSet]
}

// NewStore creates a store with an empty rule set.
func NewStore(log *logger.Logger) *Store {
	s := &Store{logger: log}
	s.active.Store(EmptyRuleSet())
	return s
}

// Current returns the active rule set. Never nil.
func (s *Store) Current() *RuleSet {
	return s.active.Load()
}

// Load parses a rules document and atomically replaces the active set.
// Per-rule failures are logged as warnings and do not block the load; a
// document that cannot be parsed at all keeps the previous set and returns
// the parse error.
func (s *Store) Load(data []byte) error {
	rs, errs := Parse(data)
	if rs == nil {
		s.logger.Error("rules reload failed, keeping previous set", errs[0])
		return errs[0]
	}

	for _, err := range errs {
		s.logger.Warn("compaction rule skipped", logger.Field{Key: "reason", Value: err.Error()})
	}

	prev := s.active.Swap(rs)
	if prev.Equal(rs) {
		s.logger.Debug("rules reloaded, no changes", logger.Field{Key: "rules", Value: rs.Len()})
	} else {
		s.logger.Info("rules reloaded", logger.Field{Key: "rules", Value: rs.Len()})
	}
	return nil
}
