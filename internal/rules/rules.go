// Package rules implements the compaction rule model: a table of per-database
// rules plus a default, loaded from a YAML document and swapped atomically so
// readers always see a complete rule set.
//
// Rule grammar (rules.yml):
//
//	_default:
//	  db_fragmentation: "70%"
//	  view_fragmentation: "60%"
//	  min_file_size: 131072
//	orders:
//	  db_fragmentation: "85%"
//	  window: "23:00-04:00"
//	  strict_window: true
//
// The reserved scope name "_default" applies to every database without a rule
// of its own. A database-scoped rule overrides the default wholesale; the two
// are never merged.
package rules

import "time"

// DefaultScope is the reserved scope name for the default rule.
const DefaultScope = "_default"

// Rule holds the compaction thresholds for one scope. Nil fields are unset.
type Rule struct {
	// DBFragmentation is the minimum database-file fragmentation percentage
	// (0..100) at which compaction triggers.
	DBFragmentation *int

	// ViewFragmentation is the analogous threshold for view index files.
	ViewFragmentation *int

	// MinFileSize gates compaction on the unit's file size in bytes. When
	// unset, the daemon-wide default applies.
	MinFileSize *int64

	// Window restricts when the rule may fire. Nil means always.
	Window *Window

	// StrictWindow cancels a compaction still running when the window closes.
	StrictWindow bool
}

// Actionable reports whether the rule carries at least one threshold.
// A rule without thresholds is equivalent to no rule at all.
func (r Rule) Actionable() bool {
	return r.DBFragmentation != nil || r.ViewFragmentation != nil || r.MinFileSize != nil
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Equal reports content equality of two rules.
func (r Rule) Equal(o Rule) bool {
	if !intPtrEqual(r.DBFragmentation, o.DBFragmentation) ||
		!intPtrEqual(r.ViewFragmentation, o.ViewFragmentation) ||
		!int64PtrEqual(r.MinFileSize, o.MinFileSize) ||
		r.StrictWindow != o.StrictWindow {
		return false
	}
	if (r.Window == nil) != (o.Window == nil) {
		return false
	}
	return r.Window == nil || *r.Window == *o.Window
}

// RuleSet is an immutable mapping from scope to rule. It is created by Parse
// and never mutated afterwards; the Store swaps whole sets on reload.
type RuleSet struct {
	rules map[string]Rule
}

// EmptyRuleSet returns a set with no rules; nothing is ever eligible under it.
func EmptyRuleSet() *RuleSet {
	return &RuleSet{rules: map[string]Rule{}}
}

// For resolves the effective rule for a database: the database-scoped rule if
// present, otherwise the default rule, otherwise nothing.
func (rs *RuleSet) For(db string) (Rule, bool) {
	if r, ok := rs.rules[db]; ok {
		return r, true
	}
	r, ok := rs.rules[DefaultScope]
	return r, ok
}

// Scope returns the rule registered under an exact scope name.
func (rs *RuleSet) Scope(name string) (Rule, bool) {
	r, ok := rs.rules[name]
	return r, ok
}

// Len returns the number of rules in the set.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// Equal reports content equality of two rule sets.
func (rs *RuleSet) Equal(o *RuleSet) bool {
	if len(rs.rules) != len(o.rules) {
		return false
	}
	for scope, r := range rs.rules {
		or, ok := o.rules[scope]
		if !ok || !r.Equal(or) {
			return false
		}
	}
	return true
}

// Window is a daily time window in minutes since midnight. A window whose From
// is after its To spans midnight ("23:00-04:00").
type Window struct {
	From int
	To   int
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	if w.From <= w.To {
		return m >= w.From && m < w.To
	}
	return m >= w.From || m < w.To
}

// NextEnd returns the next instant at which the window closes, at or after t.
func (w Window) NextEnd(t time.Time) time.Time {
	end := time.Date(t.Year(), t.Month(), t.Day(), w.To/60, w.To%60, 0, 0, t.Location())
	if !end.After(t) {
		end = end.Add(24 * time.Hour)
	}
	return end
}
