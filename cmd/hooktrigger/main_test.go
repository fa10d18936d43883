package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hooktrigger/internal"
)

const testConfig = `server:
  log_level: error
  metrics_enabled: true
  admin_enabled: true
providers:
  github:
    enabled: true
pipelines:
  - id: api-ci
    provider: github
    repository: acme/api
    trigger:
      included_branches: [main]
  - id: api-release
    provider: github
    repository: acme/api
    trigger:
      included_branches: ["release/*"]
`

const pushPayload = `{
  "ref": "refs/heads/main",
  "after": "0d1a26e67d8f5eaf1f6ba5c57fc3c7d91ac0fd1c",
  "repository": {"full_name": "acme/api"},
  "pusher": {"name": "octocat"},
  "commits": [{"id": "c1", "message": "fix", "added": [], "removed": [], "modified": ["main.go"]}],
  "head_commit": {"id": "c1", "message": "fix"}
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func quietLogs(t *testing.T) {
	t.Helper()
	internal.SetLogOutput(io.Discard)
	t.Cleanup(func() { internal.SetLogOutput(os.Stdout) })
}

// TestMatchCommand prints the report for a payload file.
func TestMatchCommand(t *testing.T) {
	quietLogs(t)
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{
		"match",
		"--config", writeFile(t, "config.yaml", testConfig),
		"--provider", "GitHub",
		"--event", "push",
		"--payload", writeFile(t, "push.json", pushPayload),
	})
	require.NoError(t, root.Execute())

	var report internal.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.True(t, report.Candidate)
	assert.Equal(t, []string{"api-ci"}, report.Matched())
	assert.Len(t, report.Results, 2)
	assert.Zero(t, report.Published)
}

// TestMatchCommandStdin reads the payload from stdin.
func TestMatchCommandStdin(t *testing.T) {
	quietLogs(t)
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetIn(strings.NewReader(pushPayload))
	root.SetArgs([]string{"match", "--config", writeFile(t, "config.yaml", testConfig), "--provider", "github", "--event", "push"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), `"api-ci"`)
}

// TestMatchCommandList prints the supported provider/event type pairs.
func TestMatchCommandList(t *testing.T) {
	quietLogs(t)
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"match", "--config", writeFile(t, "config.yaml", testConfig), "--list"})
	require.NoError(t, root.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Contains(t, lines, "github/push")
	assert.Contains(t, lines, "gitlab/tag_push")
	assert.Contains(t, lines, "bitbucket/merge_request")
	assert.Len(t, lines, 9)
}

// TestMatchCommandRequiresProviderAndEvent fails without --provider or --event.
func TestMatchCommandRequiresProviderAndEvent(t *testing.T) {
	quietLogs(t)
	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetArgs([]string{"match", "--config", writeFile(t, "config.yaml", testConfig), "--provider", "github"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--event")
}

// TestMatchCommandUnsupportedEvent fails for events no handler covers.
func TestMatchCommandUnsupportedEvent(t *testing.T) {
	quietLogs(t)
	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetArgs([]string{
		"match",
		"--config", writeFile(t, "config.yaml", testConfig),
		"--provider", "github",
		"--event", "release",
		"--payload", writeFile(t, "release.json", `{"action":"published"}`),
	})
	assert.Error(t, root.Execute())
}

// TestRootRejectsBadConfig surfaces config errors before running a command.
func TestRootRejectsBadConfig(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"match", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "--provider", "github", "--event", "push"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}

// TestNewMux mounts enabled providers, metrics and the health check.
func TestNewMux(t *testing.T) {
	cfg, err := internal.LoadConfig(writeFile(t, "config.yaml", testConfig))
	require.NoError(t, err)
	store, err := internal.NewStaticPipelineStore(cfg.Pipelines)
	require.NoError(t, err)
	dispatcher, err := newDispatcher(cfg, store, nil, zerolog.Nop())
	require.NoError(t, err)
	mux, err := newMux(cfg, dispatcher, store, zerolog.Nop())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", strings.NewReader(pushPayload))
	req.Header.Set("X-GitHub-Event", "push")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hooktrigger_requests")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/pipelines?provider=github&repository=acme/api", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "api-release")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/gitlab", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
