package trigger

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// TestCompileConfig tests that every configured list is compiled.
func TestCompileConfig(t *testing.T) {
	compiled, err := Compile(TriggerConfig{
		IncludedBranches: []string{"main", "release/*"},
		ExcludedPaths:    []string{"docs"},
		IncludedUsers:    []string{"alice"},
		Actions:          []string{" Open ", "MERGE", ""},
		TagConstraint:    "^1.0",
		When:             `branch == "main"`,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"main", "release/*"}, compiled.IncludedBranches.Strings())
	assert.True(t, compiled.HasPathRules())
	assert.True(t, compiled.HasUserRules())
	assert.False(t, compiled.HasSourceBranchRules())
	assert.Equal(t, []string{"merge", "open"}, compiled.Actions)
	assert.NotNil(t, compiled.TagConstraint)
	assert.NotNil(t, compiled.When)
	assert.Equal(t, DefaultSkipMarkers, compiled.SkipMarkers.Markers())
}

// TestCompileConfigSkipMarkers tests custom and disabled skip markers.
func TestCompileConfigSkipMarkers(t *testing.T) {
	compiled, err := Compile(TriggerConfig{SkipMarkers: []string{"[no build]"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"[no build]"}, compiled.SkipMarkers.Markers())

	compiled, err = Compile(TriggerConfig{DisableSkipMarkers: true})
	require.NoError(t, err)
	assert.Nil(t, compiled.SkipMarkers)
}

// TestCompileConfigErrors tests that invalid configuration is an error and not a rejection.
func TestCompileConfigErrors(t *testing.T) {
	cases := []struct {
		name  string
		cfg   TriggerConfig
		field string
	}{
		{"bad regex", TriggerConfig{IncludedBranches: []string{"regex:("}}, "included_branches"},
		{"bad glob", TriggerConfig{ExcludedPaths: []string{"src/[a"}}, "excluded_paths"},
		{"bad constraint", TriggerConfig{TagConstraint: "not a constraint"}, "tag_constraint"},
		{"bad expression", TriggerConfig{When: "branch == "}, "when"},
		{"unknown event", TriggerConfig{Events: []EventType{"pipeline"}}, "events"},
		{"bad tag pattern", TriggerConfig{IncludedTags: []string{"regex:("}}, "included_tags"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile(tc.cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tc.field, cfgErr.Field)
		})
	}
}

// TestTriggerConfigYAML tests the YAML field names of a trigger configuration.
func TestTriggerConfigYAML(t *testing.T) {
	raw := `
included_branches: [main]
excluded_paths: ["docs/**"]
skip_markers: ["[skip ci]"]
ignore_case: true
when: 'actor != "bot"'
events: [push, tag_push]
included_tags: ["v*"]
`
	var cfg TriggerConfig
	require.NoError(t, yaml.Unmarshal([]byte(raw), &cfg))
	assert.Equal(t, []string{"main"}, cfg.IncludedBranches)
	assert.Equal(t, []string{"docs/**"}, cfg.ExcludedPaths)
	assert.True(t, cfg.IgnoreCase)
	assert.Equal(t, `actor != "bot"`, cfg.When)
	assert.Equal(t, []EventType{EventPush, EventTagPush}, cfg.Events)
	assert.Equal(t, []string{"v*"}, cfg.IncludedTags)
}

// TestCompileConfigEvents tests the default and the normalization of the
// event selection.
func TestCompileConfigEvents(t *testing.T) {
	compiled, err := Compile(TriggerConfig{})
	require.NoError(t, err)
	assert.Equal(t, []EventType{EventPush}, compiled.Events)
	assert.True(t, compiled.AcceptsEvent(EventPush))
	assert.False(t, compiled.AcceptsEvent(EventTagPush))
	assert.False(t, compiled.AcceptsEvent(EventMergeRequest))

	compiled, err = Compile(TriggerConfig{Events: []EventType{" Tag_Push ", "merge_request", "tag_push"}})
	require.NoError(t, err)
	assert.Equal(t, []EventType{EventMergeRequest, EventTagPush}, compiled.Events)
	assert.False(t, compiled.AcceptsEvent(EventPush))
}

// TestCompilerRegexTimeout tests that the compiler applies its regex timeout.
func TestCompilerRegexTimeout(t *testing.T) {
	compiler, err := NewCompiler(0, time.Millisecond)
	require.NoError(t, err)
	compiled, err := compiler.Compile(TriggerConfig{IncludedBranches: []string{"regex:main"}})
	require.NoError(t, err)
	assert.Equal(t, time.Millisecond, compiled.IncludedBranches[0].re.MatchTimeout)

	compiled, err = Compile(TriggerConfig{IncludedBranches: []string{"regex:main"}})
	require.NoError(t, err)
	assert.Equal(t, DefaultRegexTimeout, compiled.IncludedBranches[0].re.MatchTimeout)
}

// TestCompilerCachesByContent tests that equal configurations share one compiled value.
func TestCompilerCachesByContent(t *testing.T) {
	compiler, err := NewCompiler(4, 0)
	require.NoError(t, err)

	a, err := compiler.Compile(TriggerConfig{IncludedBranches: []string{"main"}})
	require.NoError(t, err)
	b, err := compiler.Compile(TriggerConfig{IncludedBranches: []string{"main"}})
	require.NoError(t, err)
	c, err := compiler.Compile(TriggerConfig{IncludedBranches: []string{"develop"}})
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)

	_, err = compiler.Compile(TriggerConfig{IncludedBranches: []string{"regex:("}})
	assert.Error(t, err)
}

// TestCompilerWithoutCache tests that a disabled cache still compiles.
func TestCompilerWithoutCache(t *testing.T) {
	compiler, err := NewCompiler(0, 0)
	require.NoError(t, err)
	a, err := compiler.Compile(TriggerConfig{})
	require.NoError(t, err)
	b, err := compiler.Compile(TriggerConfig{})
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}
