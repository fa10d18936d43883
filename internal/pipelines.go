package internal

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"hooktrigger/pkg/storage"
	"hooktrigger/pkg/storage/pipelines"
)

// StaticPipelineStore serves the pipelines section of the config file.
type StaticPipelineStore struct {
	mu     sync.RWMutex
	byID   map[string]storage.PipelineRecord
	byRepo map[string][]string
}

// NewStaticPipelineStore indexes configured pipelines by repository. A
// pipeline without an id is an error.
func NewStaticPipelineStore(configs []PipelineConfig) (*StaticPipelineStore, error) {
	s := &StaticPipelineStore{
		byID:   make(map[string]storage.PipelineRecord, len(configs)),
		byRepo: make(map[string][]string),
	}
	for i, cfg := range configs {
		if err := s.UpsertPipeline(context.Background(), cfg.Record()); err != nil {
			return nil, fmt.Errorf("pipeline %d: %w", i, err)
		}
	}
	return s, nil
}

// Record converts a configured pipeline into a store record.
func (p PipelineConfig) Record() storage.PipelineRecord {
	return storage.PipelineRecord{
		ID:         p.ID,
		Provider:   p.Provider,
		Repository: p.Repository,
		Enabled:    true,
		Trigger:    p.Trigger,
		Drivers:    p.Drivers,
	}
}

func repoKey(provider, repository string) string {
	return provider + "\x00" + repository
}

func (s *StaticPipelineStore) ListPipelines(ctx context.Context, provider, repository string) ([]storage.PipelineRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byRepo[repoKey(provider, repository)]
	out := make([]storage.PipelineRecord, 0, len(ids))
	for _, id := range ids {
		if record := s.byID[id]; record.Enabled {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *StaticPipelineStore) GetPipeline(ctx context.Context, id string) (*storage.PipelineRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

// UpsertPipeline replaces a pipeline in memory.
func (s *StaticPipelineStore) UpsertPipeline(ctx context.Context, record storage.PipelineRecord) error {
	if record.ID == "" {
		return fmt.Errorf("pipeline id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(record.ID)
	s.byID[record.ID] = record
	key := repoKey(record.Provider, record.Repository)
	ids := append(s.byRepo[key], record.ID)
	sort.Strings(ids)
	s.byRepo[key] = ids
	return nil
}

func (s *StaticPipelineStore) DeletePipeline(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
	return nil
}

func (s *StaticPipelineStore) removeLocked(id string) {
	old, ok := s.byID[id]
	if !ok {
		return
	}
	delete(s.byID, id)
	key := repoKey(old.Provider, old.Repository)
	ids := s.byRepo[key][:0]
	for _, existing := range s.byRepo[key] {
		if existing != id {
			ids = append(ids, existing)
		}
	}
	if len(ids) == 0 {
		delete(s.byRepo, key)
		return
	}
	s.byRepo[key] = ids
}

func (s *StaticPipelineStore) Close() error { return nil }

// OpenPipelineStore returns the store selected by the storage section.
// Static pipelines are upserted into a database store on open.
func OpenPipelineStore(ctx context.Context, cfg Config) (storage.PipelineStore, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if driver == "" || driver == "static" {
		static, err := NewStaticPipelineStore(cfg.Pipelines)
		if err != nil {
			return nil, err
		}
		return static, nil
	}
	store, err := pipelines.Open(pipelines.Config{
		Driver:      driver,
		DSN:         cfg.Storage.DSN,
		Table:       cfg.Storage.Table,
		AutoMigrate: cfg.Storage.AutoMigrate,
	})
	if err != nil {
		return nil, err
	}
	for _, pl := range cfg.Pipelines {
		if err := store.UpsertPipeline(ctx, pl.Record()); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	return store, nil
}
