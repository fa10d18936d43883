package storage

import (
	"context"
	"time"

	"hooktrigger/pkg/trigger"
)

// PipelineRecord is a pipeline with the trigger configuration that decides
// whether webhook events start it.
type PipelineRecord struct {
	ID         string                `json:"id"`
	Provider   string                `json:"provider"`
	Repository string                `json:"repository"`
	Enabled    bool                  `json:"enabled"`
	Trigger    trigger.TriggerConfig `json:"trigger"`
	// Drivers limits publishing to these watermill drivers; empty means
	// every configured driver.
	Drivers    []string              `json:"drivers,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// Pipeline converts the record into the engine's input.
func (r PipelineRecord) Pipeline() trigger.Pipeline {
	cfg := r.Trigger
	return trigger.Pipeline{ID: r.ID, Config: &cfg}
}

// PipelineStore looks up the pipelines registered for a repository.
// Repository names are matched exactly.
type PipelineStore interface {
	// ListPipelines returns the enabled pipelines of provider/repository,
	// ordered by id.
	ListPipelines(ctx context.Context, provider, repository string) ([]PipelineRecord, error)
	// GetPipeline returns nil without error when id is unknown.
	GetPipeline(ctx context.Context, id string) (*PipelineRecord, error)
	Close() error
}

// PipelineWriter is implemented by stores that can be modified at runtime.
type PipelineWriter interface {
	UpsertPipeline(ctx context.Context, record PipelineRecord) error
	DeletePipeline(ctx context.Context, id string) error
}
