package rules

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// rawRule mirrors the YAML rule expression before validation.
type rawRule struct {
	DBFragmentation   string `yaml:"db_fragmentation"`
	ViewFragmentation string `yaml:"view_fragmentation"`
	MinFileSize       *int64 `yaml:"min_file_size"`
	Window            string `yaml:"window"`
	StrictWindow      bool   `yaml:"strict_window"`
}

// Parse decodes a YAML rules document. Malformed rules are dropped and
// reported in the returned error slice; well-formed rules survive, so a single
// bad entry never disables compaction for other databases. A document that is
// not valid YAML at all yields a nil set and a single error.
func Parse(data []byte) (*RuleSet, []error) {
	var raw map[string]rawRule
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, []error{fmt.Errorf("rules document is not valid YAML: %w", err)}
	}

	rs := &RuleSet{rules: make(map[string]Rule, len(raw))}
	var errs []error

	for scope, rr := range raw {
		if scope == "" {
			errs = append(errs, fmt.Errorf("rule with empty scope name dropped"))
			continue
		}

		rule, err := buildRule(rr)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %q dropped: %w", scope, err))
			continue
		}
		if !rule.Actionable() {
			errs = append(errs, fmt.Errorf("rule %q dropped: no thresholds set", scope))
			continue
		}
		rs.rules[scope] = rule
	}

	return rs, errs
}

func buildRule(rr rawRule) (Rule, error) {
	var rule Rule

	if rr.DBFragmentation != "" {
		pct, err := parsePercent(rr.DBFragmentation)
		if err != nil {
			return Rule{}, fmt.Errorf("db_fragmentation: %w", err)
		}
		rule.DBFragmentation = &pct
	}

	if rr.ViewFragmentation != "" {
		pct, err := parsePercent(rr.ViewFragmentation)
		if err != nil {
			return Rule{}, fmt.Errorf("view_fragmentation: %w", err)
		}
		rule.ViewFragmentation = &pct
	}

	if rr.MinFileSize != nil {
		if *rr.MinFileSize < 0 {
			return Rule{}, fmt.Errorf("min_file_size: must not be negative, got %d", *rr.MinFileSize)
		}
		size := *rr.MinFileSize
		rule.MinFileSize = &size
	}

	if rr.Window != "" {
		w, err := ParseWindow(rr.Window)
		if err != nil {
			return Rule{}, fmt.Errorf("window: %w", err)
		}
		rule.Window = &w
	}
	rule.StrictWindow = rr.StrictWindow

	if rule.StrictWindow && rule.Window == nil {
		return Rule{}, fmt.Errorf("strict_window requires a window")
	}

	return rule, nil
}

// parsePercent parses a threshold of the form "NN%" where NN is an integer in
// 0..100. Anything else, including fractional or out-of-range values, is a
// parse error rather than guessed clamping.
func parsePercent(s string) (int, error) {
	trimmed, ok := strings.CutSuffix(s, "%")
	if !ok {
		return 0, fmt.Errorf("%q: missing %% suffix", s)
	}
	pct, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%q: not an integer percentage", s)
	}
	if pct < 0 || pct > 100 {
		return 0, fmt.Errorf("%q: out of range 0..100", s)
	}
	return pct, nil
}

// ParseWindow parses "HH:MM-HH:MM".
func ParseWindow(s string) (Window, error) {
	from, to, ok := strings.Cut(s, "-")
	if !ok {
		return Window{}, fmt.Errorf("%q: expected HH:MM-HH:MM", s)
	}
	f, err := parseClock(from)
	if err != nil {
		return Window{}, fmt.Errorf("%q: %w", s, err)
	}
	t, err := parseClock(to)
	if err != nil {
		return Window{}, fmt.Errorf("%q: %w", s, err)
	}
	if f == t {
		return Window{}, fmt.Errorf("%q: window is empty", s)
	}
	return Window{From: f, To: t}, nil
}

func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("bad time %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("bad hour %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad minute %q", s)
	}
	return h*60 + m, nil
}
