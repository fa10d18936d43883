package internal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hooktrigger/pkg/storage"
	"hooktrigger/pkg/trigger"
	"hooktrigger/pkg/trigger/bitbucket"
	"hooktrigger/pkg/trigger/github"
)

const githubPush = `{
  "ref": "refs/heads/main",
  "after": "0d1a26e67d8f5eaf1f6ba5c57fc3c7d91ac0fd1c",
  "repository": {"full_name": "acme/api", "clone_url": "https://github.com/acme/api.git"},
  "pusher": {"name": "octocat"},
  "commits": [
    {"id": "c1", "message": "fix handler", "added": [], "removed": [], "modified": ["src/main.go"]}
  ],
  "head_commit": {"id": "c1", "message": "fix handler"}
}`

const githubReviewPush = `{
  "ref": "refs/for/main",
  "after": "0d1a26e67d8f5eaf1f6ba5c57fc3c7d91ac0fd1c",
  "repository": {"full_name": "acme/api"},
  "commits": [{"id": "c1", "message": "wip"}]
}`

const bitbucketMultiPush = `{
  "actor": {"display_name": "Emma"},
  "repository": {"full_name": "team/repo"},
  "push": {"changes": [
    {"new": {"type": "branch", "name": "feature/x", "target": {"hash": "aaa", "message": "feature"}},
     "commits": [{"hash": "aaa", "message": "feature"}]},
    {"new": {"type": "branch", "name": "main", "target": {"hash": "bbb", "message": "merge"}},
     "commits": [{"hash": "bbb", "message": "merge"}]}
  ]}
}`

// recordingPublisher keeps every message it is asked to publish.
type recordingPublisher struct {
	mu      sync.Mutex
	topics  []string
	msgs    []trigger.Message
	drivers [][]string
	err     error
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, msg trigger.Message) error {
	return p.PublishForDrivers(ctx, topic, msg, nil)
}

func (p *recordingPublisher) PublishForDrivers(ctx context.Context, topic string, msg trigger.Message, drivers []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.msgs = append(p.msgs, msg)
	p.drivers = append(p.drivers, drivers)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

// failingStore fails every lookup.
type failingStore struct{ err error }

func (s failingStore) ListPipelines(context.Context, string, string) ([]storage.PipelineRecord, error) {
	return nil, s.err
}
func (s failingStore) GetPipeline(context.Context, string) (*storage.PipelineRecord, error) {
	return nil, s.err
}
func (s failingStore) Close() error { return nil }

func prepareGitHub(t *testing.T, engine *trigger.Engine, body string) *trigger.Prepared {
	t.Helper()
	prepared, err := engine.PrepareRaw(trigger.ProviderGitHub, github.HintPush, []byte(body))
	require.NoError(t, err)
	return prepared
}

func newStaticStore(t *testing.T, configs []PipelineConfig) *StaticPipelineStore {
	t.Helper()
	store, err := NewStaticPipelineStore(configs)
	require.NoError(t, err)
	return store
}

func newTestEngine(t *testing.T) *trigger.Engine {
	t.Helper()
	engine, err := NewEngine(EngineConfig{}, NewLogObserver(zerolog.Nop()))
	require.NoError(t, err)
	return engine
}

// TestDispatchPublishesMatches publishes one message per matched pipeline.
func TestDispatchPublishesMatches(t *testing.T) {
	engine := newTestEngine(t)
	store := newStaticStore(t, []PipelineConfig{
		{ID: "api-ci", Provider: "github", Repository: "acme/api"},
		{ID: "api-docs", Provider: "github", Repository: "acme/api", Trigger: trigger.TriggerConfig{IncludedPaths: []string{"docs/**"}}},
		{ID: "web-ci", Provider: "github", Repository: "acme/web"},
	})
	pub := &recordingPublisher{}
	d := NewDispatcher(engine, store, pub, "", time.Second, zerolog.Nop())

	report, err := d.Dispatch(context.Background(), "req-1", prepareGitHub(t, engine, githubPush))
	require.NoError(t, err)

	assert.True(t, report.Candidate)
	assert.Equal(t, "acme/api", report.Repository)
	assert.Equal(t, "refs/heads/main", report.Ref)
	require.Len(t, report.Results, 2)
	assert.Equal(t, []string{"api-ci"}, report.Matched())
	assert.Equal(t, trigger.FilterPath, report.Results[1].FailedFilter)
	assert.Equal(t, 1, report.Published)
	assert.False(t, report.Partial)

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, DefaultTopic, pub.topics[0])
	assert.Equal(t, "api-ci", pub.msgs[0].PipelineID)
	assert.Equal(t, "req-1", pub.msgs[0].RequestID)
	assert.Equal(t, "0d1a26e67d8f5eaf1f6ba5c57fc3c7d91ac0fd1c", pub.msgs[0].Event.Revision)
}

// TestDispatchPreMatchSkipsLookup never touches the store for rejected events.
func TestDispatchPreMatchSkipsLookup(t *testing.T) {
	engine := newTestEngine(t)
	d := NewDispatcher(engine, failingStore{err: errors.New("db down")}, nil, "", 0, zerolog.Nop())

	report, err := d.Dispatch(context.Background(), "req-2", prepareGitHub(t, engine, githubReviewPush))
	require.NoError(t, err)
	assert.False(t, report.Candidate)
	assert.Contains(t, report.Reason, "refs/for/")
	assert.Empty(t, report.Results)
}

// TestDispatchLookupFailure surfaces store errors as ConfigLookupError.
func TestDispatchLookupFailure(t *testing.T) {
	engine := newTestEngine(t)
	storeErr := errors.New("db down")
	d := NewDispatcher(engine, failingStore{err: storeErr}, nil, "", 0, zerolog.Nop())

	_, err := d.Dispatch(context.Background(), "req-3", prepareGitHub(t, engine, githubPush))
	require.Error(t, err)
	var lookupErr *trigger.ConfigLookupError
	require.ErrorAs(t, err, &lookupErr)
	assert.Equal(t, "acme/api", lookupErr.Repository)
	assert.ErrorIs(t, err, storeErr)
}

// TestDispatchPublishFailure records the error and keeps going.
func TestDispatchPublishFailure(t *testing.T) {
	engine := newTestEngine(t)
	store := newStaticStore(t, []PipelineConfig{
		{ID: "a", Provider: "github", Repository: "acme/api"},
		{ID: "b", Provider: "github", Repository: "acme/api"},
	})
	pub := &recordingPublisher{err: errors.New("broker unavailable")}
	d := NewDispatcher(engine, store, pub, "ci.triggers", 0, zerolog.Nop())

	report, err := d.Dispatch(context.Background(), "req-4", prepareGitHub(t, engine, githubPush))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, report.Matched())
	assert.Equal(t, 0, report.Published)
	assert.Len(t, report.Errors, 2)
}

// TestDispatchNoPipelines reports an empty evaluation.
func TestDispatchNoPipelines(t *testing.T) {
	engine := newTestEngine(t)
	d := NewDispatcher(engine, newStaticStore(t, nil), nil, "", 0, zerolog.Nop())

	report, err := d.Dispatch(context.Background(), "", prepareGitHub(t, engine, githubPush))
	require.NoError(t, err)
	assert.True(t, report.Candidate)
	assert.Empty(t, report.Results)
	assert.NotEmpty(t, report.Reason)
}

// TestDispatchPublishesToPipelineDrivers passes each pipeline's driver subset
// to the publisher.
func TestDispatchPublishesToPipelineDrivers(t *testing.T) {
	engine := newTestEngine(t)
	store := newStaticStore(t, []PipelineConfig{
		{ID: "api-ci", Provider: "github", Repository: "acme/api"},
		{ID: "api-deploy", Provider: "github", Repository: "acme/api", Drivers: []string{"kafka"}},
	})
	pub := &recordingPublisher{}
	d := NewDispatcher(engine, store, pub, "", 0, zerolog.Nop())

	report, err := d.Dispatch(context.Background(), "req-5", prepareGitHub(t, engine, githubPush))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Published)
	require.Len(t, pub.msgs, 2)

	byPipeline := map[string][]string{}
	for i, msg := range pub.msgs {
		byPipeline[msg.PipelineID] = pub.drivers[i]
	}
	assert.Nil(t, byPipeline["api-ci"])
	assert.Equal(t, []string{"kafka"}, byPipeline["api-deploy"])
}

// TestDispatchAllMultiRefPush evaluates every ref of a Bitbucket push, so a
// pipeline on the second ref still runs.
func TestDispatchAllMultiRefPush(t *testing.T) {
	engine := newTestEngine(t)
	store := newStaticStore(t, []PipelineConfig{
		{ID: "repo-main", Provider: "bitbucket", Repository: "team/repo", Trigger: trigger.TriggerConfig{IncludedBranches: []string{"main"}}},
	})
	pub := &recordingPublisher{}
	d := NewDispatcher(engine, store, pub, "", 0, zerolog.Nop())

	prepared, err := engine.PrepareAllRaw(trigger.ProviderBitbucket, bitbucket.HintPush, []byte(bitbucketMultiPush))
	require.NoError(t, err)
	reports, err := d.DispatchAll(context.Background(), "req-6", prepared)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	assert.Equal(t, "refs/heads/feature/x", reports[0].Ref)
	assert.Empty(t, reports[0].Matched())
	assert.Equal(t, "refs/heads/main", reports[1].Ref)
	assert.Equal(t, []string{"repo-main"}, reports[1].Matched())

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "bbb", pub.msgs[0].Event.Revision)
	assert.Equal(t, "req-6", pub.msgs[0].RequestID)

	assert.IsType(t, Batch{}, ReportBody(reports))
	assert.IsType(t, Report{}, ReportBody(reports[:1]))
}

// TestDispatchAllStopsOnLookupFailure returns the store error.
func TestDispatchAllStopsOnLookupFailure(t *testing.T) {
	engine := newTestEngine(t)
	d := NewDispatcher(engine, failingStore{err: errors.New("db down")}, nil, "", 0, zerolog.Nop())

	prepared, err := engine.PrepareAllRaw(trigger.ProviderBitbucket, bitbucket.HintPush, []byte(bitbucketMultiPush))
	require.NoError(t, err)
	reports, err := d.DispatchAll(context.Background(), "req-7", prepared)
	var lookupErr *trigger.ConfigLookupError
	require.ErrorAs(t, err, &lookupErr)
	assert.Empty(t, reports)
}
