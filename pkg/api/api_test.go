package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hooktrigger/internal"
	"hooktrigger/pkg/storage"
	"hooktrigger/pkg/trigger"
)

func newStore(t *testing.T) *internal.StaticPipelineStore {
	t.Helper()
	store, err := internal.NewStaticPipelineStore([]internal.PipelineConfig{
		{ID: "api-ci", Provider: "github", Repository: "acme/api", Trigger: trigger.TriggerConfig{IncludedBranches: []string{"main"}}},
	})
	require.NoError(t, err)
	return store
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// TestPipelinesCRUD lists, creates, reads and deletes pipelines.
func TestPipelinesCRUD(t *testing.T) {
	h := &PipelinesHandler{Store: newStore(t), Logger: zerolog.Nop()}

	rec := serve(h, http.MethodGet, "/api/pipelines?provider=GitHub&repository=acme/api", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var records []storage.PipelineRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "api-ci", records[0].ID)

	rec = serve(h, http.MethodPut, "/api/pipelines", `{"id":"api-docs","provider":"github","repository":"acme/api","trigger":{"included_paths":["docs/**"]}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = serve(h, http.MethodGet, "/api/pipelines?id=api-docs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var record storage.PipelineRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.True(t, record.Enabled)
	assert.Equal(t, []string{"docs/**"}, record.Trigger.IncludedPaths)
	assert.False(t, record.UpdatedAt.IsZero())

	rec = serve(h, http.MethodDelete, "/api/pipelines?id=api-docs", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = serve(h, http.MethodGet, "/api/pipelines?id=api-docs", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// TestPipelinesValidation rejects bad requests and invalid trigger configurations.
func TestPipelinesValidation(t *testing.T) {
	h := &PipelinesHandler{Store: newStore(t), Logger: zerolog.Nop()}

	assert.Equal(t, http.StatusBadRequest, serve(h, http.MethodGet, "/api/pipelines", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(h, http.MethodPut, "/api/pipelines", "{").Code)
	assert.Equal(t, http.StatusBadRequest, serve(h, http.MethodPut, "/api/pipelines", `{"id":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(h, http.MethodPut, "/api/pipelines",
		`{"id":"x","provider":"github","repository":"a/b","trigger":{"included_branches":["regex:("]}}`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(h, http.MethodDelete, "/api/pipelines", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(h, http.MethodPatch, "/api/pipelines", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(&PipelinesHandler{}, http.MethodGet, "/api/pipelines", "").Code)
}

type readOnlyStore struct{ storage.PipelineStore }

// TestPipelinesReadOnlyStore refuses writes to stores without PipelineWriter.
func TestPipelinesReadOnlyStore(t *testing.T) {
	h := &PipelinesHandler{Store: readOnlyStore{newStore(t)}, Logger: zerolog.Nop()}
	rec := serve(h, http.MethodPut, "/api/pipelines", `{"id":"x","provider":"github","repository":"a/b"}`)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/api/pipelines?provider=github&repository=acme/api", "").Code)
}

// TestMatchHandler dry-runs a payload against the stored pipelines.
func TestMatchHandler(t *testing.T) {
	engine, err := internal.NewEngine(internal.EngineConfig{}, trigger.NopObserver{})
	require.NoError(t, err)
	h := &MatchHandler{
		Dispatcher: internal.NewDispatcher(engine, newStore(t), nil, "", time.Second, zerolog.Nop()),
		Logger:     zerolog.Nop(),
	}
	body := `{"ref":"refs/heads/main","after":"abc","repository":{"full_name":"acme/api"},"pusher":{"name":"octocat"},"commits":[{"id":"abc","message":"m","added":[],"removed":[],"modified":["x.go"]}]}`

	rec := serve(h, http.MethodPost, "/api/match?provider=github&event=push", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report internal.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, []string{"api-ci"}, report.Matched())
	assert.Zero(t, report.Published)

	assert.Equal(t, http.StatusBadRequest, serve(h, http.MethodPost, "/api/match?provider=github&event=release", body).Code)
	assert.Equal(t, http.StatusBadRequest, serve(h, http.MethodPost, "/api/match?provider=github&event=push", "{").Code)
	assert.Equal(t, http.StatusBadRequest, serve(h, http.MethodPost, "/api/match", body).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(h, http.MethodGet, "/api/match", "").Code)
}

