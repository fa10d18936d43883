package trigger

import (
	"errors"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dlclark/regexp2"
)

// RegexPrefix selects regular-expression semantics for a pattern.
const RegexPrefix = "regex:"

// DefaultRegexTimeout bounds one regular expression match. Branch names and
// paths are chosen by whoever pushes, so backtracking must not run unbounded.
const DefaultRegexTimeout = 100 * time.Millisecond

type patternKind int

const (
	kindLiteral patternKind = iota
	kindGlob
	kindRegex
)

// Pattern is one compiled include or exclude entry.
//
//	main            exact match
//	release/*       glob, * stays within one path segment
//	docs/**         glob, ** spans segments
//	regex:^v\d+$    regular expression, always anchored
type Pattern struct {
	raw        string
	kind       patternKind
	expr       string
	re         *regexp2.Regexp
	ignoreCase bool
}

// CompilePattern parses raw into a Pattern. Regular expressions get
// DefaultRegexTimeout.
func CompilePattern(raw string, ignoreCase bool) (Pattern, error) {
	return compilePattern(raw, ignoreCase, DefaultRegexTimeout)
}

func compilePattern(raw string, ignoreCase bool, regexTimeout time.Duration) (Pattern, error) {
	p := Pattern{raw: raw, ignoreCase: ignoreCase}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return p, errors.New("empty pattern")
	}
	if strings.HasPrefix(trimmed, RegexPrefix) {
		expr := strings.TrimPrefix(trimmed, RegexPrefix)
		if expr == "" {
			return p, errors.New("empty regular expression")
		}
		opts := regexp2.RegexOptions(regexp2.None)
		if ignoreCase {
			opts |= regexp2.IgnoreCase
		}
		re, err := regexp2.Compile("^(?:"+expr+")$", opts)
		if err != nil {
			return p, err
		}
		re.MatchTimeout = regexTimeout
		p.kind = kindRegex
		p.expr = expr
		p.re = re
		return p, nil
	}
	p.expr = trimmed
	if ignoreCase {
		p.expr = strings.ToLower(trimmed)
	}
	if strings.ContainsAny(trimmed, "*?[{") {
		if !doublestar.ValidatePattern(p.expr) {
			return p, errors.New("malformed glob")
		}
		p.kind = kindGlob
		return p, nil
	}
	p.kind = kindLiteral
	return p, nil
}

// String returns the pattern as configured.
func (p Pattern) String() string { return p.raw }

// Match reports whether value matches the whole pattern. A regular
// expression that runs out of time does not match.
func (p Pattern) Match(value string) bool {
	return p.match(value, false)
}

// Excludes is Match for exclude lists: a regular expression that runs out
// of time counts as a match, so the value is rejected.
func (p Pattern) Excludes(value string) bool {
	return p.match(value, true)
}

func (p Pattern) match(value string, onTimeout bool) bool {
	switch p.kind {
	case kindRegex:
		ok, err := p.re.MatchString(value)
		if err != nil {
			return onTimeout
		}
		return ok
	case kindGlob:
		ok, err := doublestar.Match(p.expr, p.fold(value))
		return err == nil && ok
	default:
		return p.expr == p.fold(value)
	}
}

// MatchPath is Match with path-prefix semantics: a pattern that matches a
// directory also matches everything below it.
func (p Pattern) MatchPath(path string) bool {
	return p.matchPath(path, false)
}

func (p Pattern) matchPath(path string, onTimeout bool) bool {
	path = strings.TrimPrefix(path, "/")
	if p.match(path, onTimeout) {
		return true
	}
	if p.kind == kindLiteral {
		dir := strings.TrimSuffix(p.expr, "/")
		return strings.HasPrefix(p.fold(path), dir+"/")
	}
	for i := len(path) - 1; i > 0; i-- {
		if path[i] == '/' && p.match(path[:i], onTimeout) {
			return true
		}
	}
	return false
}

func (p Pattern) fold(value string) string {
	if p.ignoreCase {
		return strings.ToLower(value)
	}
	return value
}

// PatternSet is an ordered list of patterns; a value matches the set when it
// matches any member.
type PatternSet []Pattern

// Empty reports whether the set has no patterns.
func (s PatternSet) Empty() bool { return len(s) == 0 }

// Match returns the first pattern matching value.
func (s PatternSet) Match(value string) (Pattern, bool) {
	for _, p := range s {
		if p.Match(value) {
			return p, true
		}
	}
	return Pattern{}, false
}

// MatchPath returns the first pattern matching path with prefix semantics.
func (s PatternSet) MatchPath(path string) (Pattern, bool) {
	for _, p := range s {
		if p.matchPath(path, false) {
			return p, true
		}
	}
	return Pattern{}, false
}

// Excludes returns the first pattern excluding value. Timed out regular
// expressions exclude.
func (s PatternSet) Excludes(value string) (Pattern, bool) {
	for _, p := range s {
		if p.Excludes(value) {
			return p, true
		}
	}
	return Pattern{}, false
}

// ExcludesPath is Excludes with path-prefix semantics.
func (s PatternSet) ExcludesPath(path string) (Pattern, bool) {
	for _, p := range s {
		if p.matchPath(path, true) {
			return p, true
		}
	}
	return Pattern{}, false
}

// Strings returns the raw patterns.
func (s PatternSet) Strings() []string {
	out := make([]string, 0, len(s))
	for _, p := range s {
		out = append(out, p.raw)
	}
	return out
}
