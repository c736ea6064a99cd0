package rules

import "time"

// Eligible decides whether a unit passes rule r. Both gates must hold: the
// fragmentation percentage must meet the rule's threshold for the unit's kind
// (>=, so a value exactly at the threshold qualifies), and the file size must
// meet the rule's minimum (falling back to defaultMinFileSize when the rule
// has none). A rule without the relevant fragmentation threshold never
// matches, and a rule with a time window only matches while now is inside it.
func Eligible(r Rule, view bool, fragPct int, fileSize, defaultMinFileSize int64, now time.Time) bool {
	threshold := r.DBFragmentation
	if view {
		threshold = r.ViewFragmentation
	}
	if threshold == nil {
		return false
	}
	if fragPct < *threshold {
		return false
	}

	minSize := defaultMinFileSize
	if r.MinFileSize != nil {
		minSize = *r.MinFileSize
	}
	if fileSize < minSize {
		return false
	}

	if r.Window != nil && !r.Window.Contains(now) {
		return false
	}
	return true
}
