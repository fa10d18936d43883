package trigger

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultEvents is the event selection of a configuration that names none.
var DefaultEvents = []EventType{EventPush}

// TriggerConfig is the per-pipeline rule set, as stored by the configuration
// collaborator. An empty include list matches anything; a matching exclude
// always wins. Events selects the event types the pipeline listens to and
// defaults to DefaultEvents.
type TriggerConfig struct {
	Events []EventType `yaml:"events" toml:"events" json:"events,omitempty"`

	IncludedBranches []string `yaml:"included_branches" toml:"included_branches" json:"included_branches,omitempty"`
	ExcludedBranches []string `yaml:"excluded_branches" toml:"excluded_branches" json:"excluded_branches,omitempty"`
	IncludedPaths    []string `yaml:"included_paths" toml:"included_paths" json:"included_paths,omitempty"`
	ExcludedPaths    []string `yaml:"excluded_paths" toml:"excluded_paths" json:"excluded_paths,omitempty"`
	IncludedUsers    []string `yaml:"included_users" toml:"included_users" json:"included_users,omitempty"`
	ExcludedUsers    []string `yaml:"excluded_users" toml:"excluded_users" json:"excluded_users,omitempty"`

	// Tag patterns apply to tag pushes. When both are empty the branch
	// patterns are matched against the tag name instead.
	IncludedTags []string `yaml:"included_tags" toml:"included_tags" json:"included_tags,omitempty"`
	ExcludedTags []string `yaml:"excluded_tags" toml:"excluded_tags" json:"excluded_tags,omitempty"`

	IncludedSourceBranches []string `yaml:"included_source_branches" toml:"included_source_branches" json:"included_source_branches,omitempty"`
	ExcludedSourceBranches []string `yaml:"excluded_source_branches" toml:"excluded_source_branches" json:"excluded_source_branches,omitempty"`
	Actions                []string `yaml:"actions" toml:"actions" json:"actions,omitempty"`

	TagConstraint string `yaml:"tag_constraint" toml:"tag_constraint" json:"tag_constraint,omitempty"`

	SkipMarkers        []string `yaml:"skip_markers" toml:"skip_markers" json:"skip_markers,omitempty"`
	DisableSkipMarkers bool     `yaml:"disable_skip_markers" toml:"disable_skip_markers" json:"disable_skip_markers,omitempty"`

	IgnoreCase bool   `yaml:"ignore_case" toml:"ignore_case" json:"ignore_case,omitempty"`
	When       string `yaml:"when" toml:"when" json:"when,omitempty"`
}

// CompiledConfig is a validated TriggerConfig ready for filter construction.
// It is immutable and safe to share between goroutines.
type CompiledConfig struct {
	Source TriggerConfig

	Events []EventType

	IncludedBranches       PatternSet
	ExcludedBranches       PatternSet
	IncludedPaths          PatternSet
	ExcludedPaths          PatternSet
	IncludedUsers          PatternSet
	ExcludedUsers          PatternSet
	IncludedSourceBranches PatternSet
	ExcludedSourceBranches PatternSet
	IncludedTags           PatternSet
	ExcludedTags           PatternSet

	Actions       []string
	TagConstraint *semver.Constraints
	SkipMarkers   *MarkerSet
	When          *Expression
}

// AcceptsEvent reports whether the pipeline listens to eventType.
func (c *CompiledConfig) AcceptsEvent(eventType EventType) bool {
	for _, t := range c.Events {
		if t == eventType {
			return true
		}
	}
	return false
}

// HasTagRules reports whether tag-specific patterns are configured.
func (c *CompiledConfig) HasTagRules() bool {
	return !c.IncludedTags.Empty() || !c.ExcludedTags.Empty()
}

// HasPathRules reports whether any path constraint is configured.
func (c *CompiledConfig) HasPathRules() bool {
	return !c.IncludedPaths.Empty() || !c.ExcludedPaths.Empty()
}

// HasUserRules reports whether any actor constraint is configured.
func (c *CompiledConfig) HasUserRules() bool {
	return !c.IncludedUsers.Empty() || !c.ExcludedUsers.Empty()
}

// HasSourceBranchRules reports whether any source branch constraint is configured.
func (c *CompiledConfig) HasSourceBranchRules() bool {
	return !c.IncludedSourceBranches.Empty() || !c.ExcludedSourceBranches.Empty()
}

// Compile validates cfg and compiles every pattern in it. Regular
// expressions get DefaultRegexTimeout.
func Compile(cfg TriggerConfig) (*CompiledConfig, error) {
	return compile(cfg, DefaultRegexTimeout)
}

func compile(cfg TriggerConfig, regexTimeout time.Duration) (*CompiledConfig, error) {
	out := &CompiledConfig{Source: cfg}
	events, err := compileEvents(cfg.Events)
	if err != nil {
		return nil, err
	}
	out.Events = events

	sets := []struct {
		field string
		raw   []string
		dst   *PatternSet
	}{
		{"included_branches", cfg.IncludedBranches, &out.IncludedBranches},
		{"excluded_branches", cfg.ExcludedBranches, &out.ExcludedBranches},
		{"included_paths", cfg.IncludedPaths, &out.IncludedPaths},
		{"excluded_paths", cfg.ExcludedPaths, &out.ExcludedPaths},
		{"included_users", cfg.IncludedUsers, &out.IncludedUsers},
		{"excluded_users", cfg.ExcludedUsers, &out.ExcludedUsers},
		{"included_source_branches", cfg.IncludedSourceBranches, &out.IncludedSourceBranches},
		{"excluded_source_branches", cfg.ExcludedSourceBranches, &out.ExcludedSourceBranches},
		{"included_tags", cfg.IncludedTags, &out.IncludedTags},
		{"excluded_tags", cfg.ExcludedTags, &out.ExcludedTags},
	}
	for _, set := range sets {
		compiled, err := compileSet(set.field, set.raw, cfg.IgnoreCase, regexTimeout)
		if err != nil {
			return nil, err
		}
		*set.dst = compiled
	}

	for _, action := range cfg.Actions {
		action = strings.ToLower(strings.TrimSpace(action))
		if action != "" {
			out.Actions = append(out.Actions, action)
		}
	}
	sort.Strings(out.Actions)

	if constraint := strings.TrimSpace(cfg.TagConstraint); constraint != "" {
		c, err := semver.NewConstraint(constraint)
		if err != nil {
			return nil, &ConfigError{Field: "tag_constraint", Pattern: constraint, Err: err}
		}
		out.TagConstraint = c
	}

	if !cfg.DisableSkipMarkers {
		markers := cfg.SkipMarkers
		if len(markers) == 0 {
			markers = DefaultSkipMarkers
		}
		out.SkipMarkers = NewMarkerSet(markers)
	}

	if when := strings.TrimSpace(cfg.When); when != "" {
		expr, err := CompileExpression(when)
		if err != nil {
			return nil, &ConfigError{Field: "when", Pattern: when, Err: err}
		}
		out.When = expr
	}
	return out, nil
}

var errUnknownEvent = errors.New("unknown event type")

// compileEvents normalizes the event selection, sorted and without
// duplicates.
func compileEvents(raw []EventType) ([]EventType, error) {
	if len(raw) == 0 {
		return append([]EventType(nil), DefaultEvents...), nil
	}
	seen := make(map[EventType]struct{}, len(raw))
	out := make([]EventType, 0, len(raw))
	for _, entry := range raw {
		t := EventType(strings.ToLower(strings.TrimSpace(string(entry))))
		switch t {
		case EventPush, EventTagPush, EventMergeRequest:
		default:
			return nil, &ConfigError{Field: "events", Pattern: string(entry), Err: errUnknownEvent}
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func compileSet(field string, raw []string, ignoreCase bool, regexTimeout time.Duration) (PatternSet, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	set := make(PatternSet, 0, len(raw))
	for _, entry := range raw {
		p, err := compilePattern(entry, ignoreCase, regexTimeout)
		if err != nil {
			return nil, &ConfigError{Field: field, Pattern: entry, Err: err}
		}
		set = append(set, p)
	}
	return set, nil
}

// Compiler memoizes Compile by configuration content. Compilation is a pure
// function of the configuration, so cached entries never change a verdict.
type Compiler struct {
	cache        *lru.Cache[string, *CompiledConfig]
	regexTimeout time.Duration
}

// NewCompiler returns a Compiler holding up to size configurations. A size
// of zero or less disables caching. Regular expressions it compiles give up
// after regexTimeout; zero or less selects DefaultRegexTimeout.
func NewCompiler(size int, regexTimeout time.Duration) (*Compiler, error) {
	if regexTimeout <= 0 {
		regexTimeout = DefaultRegexTimeout
	}
	if size <= 0 {
		return &Compiler{regexTimeout: regexTimeout}, nil
	}
	cache, err := lru.New[string, *CompiledConfig](size)
	if err != nil {
		return nil, fmt.Errorf("compile cache: %w", err)
	}
	return &Compiler{cache: cache, regexTimeout: regexTimeout}, nil
}

// Compile returns the compiled form of cfg.
func (c *Compiler) Compile(cfg TriggerConfig) (*CompiledConfig, error) {
	if c == nil {
		return Compile(cfg)
	}
	if c.cache == nil {
		return compile(cfg, c.regexTimeout)
	}
	key, err := json.Marshal(cfg)
	if err != nil {
		return compile(cfg, c.regexTimeout)
	}
	if compiled, ok := c.cache.Get(string(key)); ok {
		return compiled, nil
	}
	compiled, err := compile(cfg, c.regexTimeout)
	if err != nil {
		return nil, err
	}
	c.cache.Add(string(key), compiled)
	return compiled, nil
}
