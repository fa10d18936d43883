package internal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hooktrigger/pkg/trigger"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// TestLoadConfigDefaults tests that the default values are applied correctly when loading a config.
func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "app.yaml", "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(1<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, "/webhooks/github", cfg.Providers.GitHub.Path)
	assert.Equal(t, "/webhooks/gitlab", cfg.Providers.GitLab.Path)
	assert.Equal(t, "/webhooks/bitbucket", cfg.Providers.Bitbucket.Path)
	assert.Equal(t, "gochannel", cfg.Watermill.Driver)
	assert.Empty(t, cfg.Watermill.Drivers)
	assert.Equal(t, DefaultTopic, cfg.Watermill.Topic)
	assert.Equal(t, int64(64), cfg.Watermill.GoChannel.OutputChannelBuffer)
	assert.Equal(t, "topic_url", cfg.Watermill.HTTP.Mode)
	assert.Equal(t, "default", cfg.Watermill.RiverQueue.Queue)
	assert.Equal(t, 8, cfg.Engine.Concurrency)
	assert.Equal(t, int64(2000), cfg.Engine.TimeoutMS)
	assert.Equal(t, 256, cfg.Engine.PatternCacheSize)
	assert.Nil(t, cfg.Engine.DeniedRefPrefixes)
	assert.Equal(t, "static", cfg.Storage.Driver)
	assert.Empty(t, cfg.Pipelines)
}

// TestLoadConfigPipelines parses and normalizes static pipelines.
func TestLoadConfigPipelines(t *testing.T) {
	t.Setenv("DEPLOY_BRANCH", "main")
	content := `
engine:
  denied_ref_prefixes: ["refs/for/", "refs/drafts/"]
  regex_timeout_ms: 25
pipelines:
  - id: "  web-deploy "
    provider: GitLab
    repository: acme/web
    drivers: [" Kafka ", "kafka", "amqp"]
    trigger:
      events: [push, merge_request]
      included_branches: ["${DEPLOY_BRANCH}", "release/*"]
      excluded_paths: ["docs/**"]
      when: "  commit_count > 0  "
`
	cfg, err := LoadConfig(writeConfig(t, "config.yaml", content))
	require.NoError(t, err)
	require.Len(t, cfg.Pipelines, 1)

	pl := cfg.Pipelines[0]
	assert.Equal(t, "web-deploy", pl.ID)
	assert.Equal(t, "gitlab", pl.Provider)
	assert.Equal(t, []string{"main", "release/*"}, pl.Trigger.IncludedBranches)
	assert.Equal(t, []string{"docs/**"}, pl.Trigger.ExcludedPaths)
	assert.Equal(t, "commit_count > 0", pl.Trigger.When)
	assert.Equal(t, []string{"refs/for/", "refs/drafts/"}, cfg.Engine.DeniedRefPrefixes)
	assert.Equal(t, []string{"kafka", "amqp"}, pl.Drivers)
	assert.Equal(t, []trigger.EventType{trigger.EventPush, trigger.EventMergeRequest}, pl.Trigger.Events)
	assert.Equal(t, 25*time.Millisecond, cfg.Engine.EngineOptions(nil).RegexTimeout)
}

// TestLoadConfigTOML reads the same layout from a TOML file.
func TestLoadConfigTOML(t *testing.T) {
	content := `
[server]
port = 9090

[watermill]
driver = "kafka"
topic = "ci.triggers"

[watermill.kafka]
brokers = ["kafka:9092"]

[[pipelines]]
id = "api-release"
provider = "github"
repository = "acme/api"

[pipelines.trigger]
events = ["tag_push"]
tag_constraint = ">= 1.0.0"
`
	cfg, err := LoadConfig(writeConfig(t, "config.toml", content))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "kafka", cfg.Watermill.Driver)
	assert.Equal(t, "ci.triggers", cfg.Watermill.Topic)
	assert.Equal(t, []string{"kafka:9092"}, cfg.Watermill.Kafka.Brokers)
	require.Len(t, cfg.Pipelines, 1)
	assert.Equal(t, ">= 1.0.0", cfg.Pipelines[0].Trigger.TagConstraint)
	assert.Equal(t, []trigger.EventType{trigger.EventTagPush}, cfg.Pipelines[0].Trigger.Events)
	assert.Equal(t, "/webhooks/github", cfg.Providers.GitHub.Path)
}

// TestLoadConfigInvalidPipelines rejects incomplete, duplicate and uncompilable pipelines.
func TestLoadConfigInvalidPipelines(t *testing.T) {
	cases := map[string]string{
		"missing repository": "pipelines:\n  - id: p1\n    provider: github\n",
		"duplicate id":       "pipelines:\n  - {id: p1, provider: github, repository: a/b}\n  - {id: p1, provider: gitlab, repository: a/c}\n",
		"bad pattern":        "pipelines:\n  - id: p1\n    provider: github\n    repository: a/b\n    trigger:\n      included_branches: [\"regex:(\"]\n",
		"bad expression":     "pipelines:\n  - id: p1\n    provider: github\n    repository: a/b\n    trigger:\n      when: \"branch ==\"\n",
		"unknown event":      "pipelines:\n  - id: p1\n    provider: github\n    repository: a/b\n    trigger:\n      events: [release]\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, "config.yaml", content))
			assert.Error(t, err)
		})
	}
}

// TestLoadConfigBadPatternIsConfigError keeps the compile error inspectable.
func TestLoadConfigBadPatternIsConfigError(t *testing.T) {
	content := "pipelines:\n  - id: p1\n    provider: github\n    repository: a/b\n    trigger:\n      tag_constraint: \"not a range\"\n"
	_, err := LoadConfig(writeConfig(t, "config.yaml", content))
	require.Error(t, err)
	assert.ErrorIs(t, err, trigger.ErrInvalidConfig)
}

// TestEngineOptions maps the engine section onto trigger options.
func TestEngineOptions(t *testing.T) {
	opts := EngineConfig{Concurrency: 3, PatternCacheSize: -1}.EngineOptions(nil)
	assert.Equal(t, 3, opts.Concurrency)
	assert.Equal(t, -1, opts.CacheSize)
	assert.Nil(t, opts.RefPolicy.DeniedPrefixes)

	opts = EngineConfig{DeniedRefPrefixes: []string{}}.EngineOptions(nil)
	assert.NotNil(t, opts.RefPolicy.DeniedPrefixes)
	assert.Empty(t, opts.RefPolicy.DeniedPrefixes)
}
