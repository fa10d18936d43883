package internal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hooktrigger/pkg/storage"
	"hooktrigger/pkg/trigger"
)

// TestStaticPipelineStore indexes pipelines by provider and repository.
func TestStaticPipelineStore(t *testing.T) {
	ctx := context.Background()
	store := newStaticStore(t, []PipelineConfig{
		{ID: "web-b", Provider: "gitlab", Repository: "acme/web"},
		{ID: "web-a", Provider: "gitlab", Repository: "acme/web"},
		{ID: "api", Provider: "github", Repository: "acme/api"},
	})

	got, err := store.ListPipelines(ctx, "gitlab", "acme/web")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "web-a", got[0].ID)
	assert.Equal(t, "web-b", got[1].ID)

	none, err := store.ListPipelines(ctx, "github", "acme/web")
	require.NoError(t, err)
	assert.Empty(t, none)

	record, err := store.GetPipeline(ctx, "api")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "acme/api", record.Repository)

	missing, err := store.GetPipeline(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

// TestStaticPipelineStoreRejectsMissingID fails instead of dropping a
// pipeline without an id.
func TestStaticPipelineStoreRejectsMissingID(t *testing.T) {
	store, err := NewStaticPipelineStore([]PipelineConfig{
		{ID: "ok", Provider: "gitlab", Repository: "acme/web"},
		{Provider: "gitlab", Repository: "acme/web"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline 1")
	assert.Nil(t, store)
}

// TestStaticPipelineStoreKeepsDrivers carries the driver subset into records.
func TestStaticPipelineStoreKeepsDrivers(t *testing.T) {
	store := newStaticStore(t, []PipelineConfig{{ID: "p1", Provider: "gitlab", Repository: "acme/web", Drivers: []string{"kafka"}}})
	record, err := store.GetPipeline(context.Background(), "p1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, []string{"kafka"}, record.Drivers)
}

// TestStaticPipelineStoreMoveAndDisable re-indexes on upsert and hides disabled pipelines.
func TestStaticPipelineStoreMoveAndDisable(t *testing.T) {
	ctx := context.Background()
	store := newStaticStore(t, []PipelineConfig{{ID: "p1", Provider: "gitlab", Repository: "acme/web"}})

	require.NoError(t, store.UpsertPipeline(ctx, storage.PipelineRecord{ID: "p1", Provider: "gitlab", Repository: "acme/api", Enabled: true}))
	old, _ := store.ListPipelines(ctx, "gitlab", "acme/web")
	assert.Empty(t, old)
	moved, _ := store.ListPipelines(ctx, "gitlab", "acme/api")
	assert.Len(t, moved, 1)

	require.NoError(t, store.UpsertPipeline(ctx, storage.PipelineRecord{ID: "p1", Provider: "gitlab", Repository: "acme/api"}))
	disabled, _ := store.ListPipelines(ctx, "gitlab", "acme/api")
	assert.Empty(t, disabled)

	require.NoError(t, store.DeletePipeline(ctx, "p1"))
	record, _ := store.GetPipeline(ctx, "p1")
	assert.Nil(t, record)
}

// TestOpenPipelineStoreSQLite seeds a database store from the config file.
func TestOpenPipelineStoreSQLite(t *testing.T) {
	ctx := context.Background()
	cfg := Config{
		AppConfig: AppConfig{Storage: StorageConfig{
			Driver:      "sqlite",
			DSN:         filepath.Join(t.TempDir(), "hooktrigger.db"),
			Table:       "pipeline_triggers",
			AutoMigrate: true,
		}},
		Pipelines: []PipelineConfig{{
			ID: "api-release", Provider: "github", Repository: "acme/api",
			Trigger: trigger.TriggerConfig{TagConstraint: "^1.0"},
		}},
	}

	store, err := OpenPipelineStore(ctx, cfg)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.ListPipelines(ctx, "github", "acme/api")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "^1.0", got[0].Trigger.TagConstraint)
}

// TestOpenPipelineStoreStatic selects the in-memory store by default.
func TestOpenPipelineStoreStatic(t *testing.T) {
	store, err := OpenPipelineStore(context.Background(), Config{})
	require.NoError(t, err)
	assert.IsType(t, &StaticPipelineStore{}, store)
}
