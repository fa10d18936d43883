package bitbucket

import (
	"testing"

	"hooktrigger/pkg/trigger"

	hook "github.com/go-playground/webhooks/v6/bitbucket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pushBody = `{
  "actor": {"display_name": "Emma"},
  "repository": {"full_name": "team/repo", "name": "repo"},
  "push": {"changes": [{
    "new": {"type": "branch", "name": "main", "target": {"hash": "709d658dc5b6d6afcd46049c2f332ee3f515a67d", "message": "head message"}},
    "old": {"type": "branch", "name": "main", "target": {"hash": "1e65c05c1d5171631d92438a13901ca7dae9618c"}},
    "created": false, "forced": false, "closed": false,
    "commits": [{"hash": "709d658dc5b6d6afcd46049c2f332ee3f515a67d", "message": "Fix bug [skip ci]"}]
  }]}
}`

const tagBody = `{
  "actor": {"display_name": "Emma"},
  "repository": {"full_name": "team/repo"},
  "push": {"changes": [{
    "new": {"type": "tag", "name": "v2.0.0", "target": {"hash": "709d658dc5b6d6afcd46049c2f332ee3f515a67d", "message": "tagged"}},
    "created": true, "closed": false,
    "commits": []
  }]}
}`

const pullBody = `{
  "actor": {"display_name": "Emma"},
  "repository": {"full_name": "team/repo"},
  "pullrequest": {
    "title": "Feature work",
    "source": {"branch": {"name": "feature/login"}, "commit": {"hash": "abc"}},
    "destination": {"branch": {"name": "main"}, "commit": {"hash": "def"}}
  }
}`

func newEngine(t *testing.T) *trigger.Engine {
	t.Helper()
	registry, err := trigger.NewRegistry(New())
	require.NoError(t, err)
	engine, err := trigger.NewEngine(registry, trigger.Options{})
	require.NoError(t, err)
	return engine
}

// TestPush tests a branch push; Bitbucket sends no changed files.
func TestPush(t *testing.T) {
	prepared, err := newEngine(t).PrepareRaw(trigger.ProviderBitbucket, HintPush, []byte(pushBody))
	require.NoError(t, err)
	assert.Equal(t, trigger.EventPush, prepared.EventType)
	require.True(t, prepared.Candidate(), prepared.PreMatch.Reason)

	evt := prepared.Event
	assert.Equal(t, "refs/heads/main", evt.RefName)
	assert.Equal(t, "team/repo", evt.Repository)
	assert.Equal(t, "https://bitbucket.org/team/repo.git", evt.SourceURL)
	assert.Equal(t, "Emma", evt.Actor)
	assert.Equal(t, "Fix bug [skip ci]", evt.CommitMessage)
	assert.Empty(t, evt.ChangedPaths)

	result, err := prepared.Match("p1", &trigger.TriggerConfig{IncludedBranches: []string{"main"}, IncludedPaths: []string{"src"}})
	require.NoError(t, err)
	assert.Equal(t, trigger.FilterSkipCI, result.FailedFilter)

	result, err = prepared.Match("p2", &trigger.TriggerConfig{IncludedBranches: []string{"main"}, IncludedPaths: []string{"src"}, DisableSkipMarkers: true})
	require.NoError(t, err)
	assert.True(t, result.Matched, "an empty path set passes the path filter")
}

// TestTagPush tests tag classification and the commit count of a new tag.
func TestTagPush(t *testing.T) {
	prepared, err := newEngine(t).PrepareRaw(trigger.ProviderBitbucket, HintPush, []byte(tagBody))
	require.NoError(t, err)
	assert.Equal(t, trigger.EventTagPush, prepared.EventType)
	require.True(t, prepared.Candidate(), prepared.PreMatch.Reason)
	assert.Equal(t, "v2.0.0", prepared.Event.BranchOrTag)
	assert.Equal(t, 1, prepared.Event.CommitCount)

	result, err := prepared.Match("p1", &trigger.TriggerConfig{Events: []trigger.EventType{trigger.EventTagPush}, IncludedBranches: []string{"v*"}})
	require.NoError(t, err)
	assert.True(t, result.Matched)

	result, err = prepared.Match("p2", &trigger.TriggerConfig{})
	require.NoError(t, err)
	assert.Equal(t, trigger.FilterEventType, result.FailedFilter, "branch pipelines ignore tags")
}

// TestDeletedBranchRejected tests that a closed change never triggers.
func TestDeletedBranchRejected(t *testing.T) {
	body := `{
  "repository": {"full_name": "team/repo"},
  "push": {"changes": [{"old": {"type": "branch", "name": "gone"}, "closed": true, "commits": []}]}
}`
	prepared, err := newEngine(t).PrepareRaw(trigger.ProviderBitbucket, HintPush, []byte(body))
	require.NoError(t, err)
	assert.Equal(t, trigger.EventPush, prepared.EventType)
	assert.False(t, prepared.Candidate())
}

// TestPullRequest tests pull request normalization across event keys.
func TestPullRequest(t *testing.T) {
	engine := newEngine(t)
	for hint, action := range map[string]string{
		HintPullRequestCreated:  trigger.ActionOpen,
		HintPullRequestUpdated:  trigger.ActionUpdate,
		HintPullRequestMerged:   trigger.ActionMerge,
		HintPullRequestDeclined: trigger.ActionClose,
	} {
		prepared, err := engine.PrepareRaw(trigger.ProviderBitbucket, hint, []byte(pullBody))
		require.NoError(t, err, hint)
		evt := prepared.Event
		assert.Equal(t, action, evt.Action, hint)
		assert.Equal(t, "feature/login", evt.SourceBranch)
		assert.Equal(t, "main", evt.TargetBranch)
		assert.Equal(t, trigger.ProviderBitbucket, evt.Provider)
	}

	prepared, err := engine.PrepareRaw(trigger.ProviderBitbucket, HintPullRequestCreated, []byte(pullBody))
	require.NoError(t, err)
	result, err := prepared.Match("p1", &trigger.TriggerConfig{Events: []trigger.EventType{trigger.EventMergeRequest}, IncludedBranches: []string{"main"}, Actions: []string{"open"}})
	require.NoError(t, err)
	assert.True(t, result.Matched, result.Reason)
}

// TestPullRequestWrongPayload tests that the untyped handler reports malformed payloads.
func TestPullRequestWrongPayload(t *testing.T) {
	_, err := PullRequestHandler{}.Normalize("nope")
	assert.ErrorIs(t, err, trigger.ErrMalformedPayload)
	_, err = PullRequestHandler{}.PreMatch(42, trigger.DefaultRefPolicy())
	assert.ErrorIs(t, err, trigger.ErrMalformedPayload)
}

const multiPushBody = `{
  "actor": {"display_name": "Emma"},
  "repository": {"full_name": "team/repo"},
  "push": {"changes": [
    {"new": {"type": "branch", "name": "feature/x", "target": {"hash": "aaa", "message": "feature"}},
     "commits": [{"hash": "aaa", "message": "feature"}]},
    {"new": {"type": "tag", "name": "v3.0.0", "target": {"hash": "bbb", "message": "release"}}, "commits": []},
    {"new": {"type": "branch", "name": "main", "target": {"hash": "ccc", "message": "merge"}},
     "commits": [{"hash": "ccc", "message": "merge"}]}
  ]}
}`

// TestMultiRefPushPreparesEveryChange tests that every ref of one push is
// judged on its own.
func TestMultiRefPushPreparesEveryChange(t *testing.T) {
	prepared, err := newEngine(t).PrepareAllRaw(trigger.ProviderBitbucket, HintPush, []byte(multiPushBody))
	require.NoError(t, err)
	require.Len(t, prepared, 3)

	assert.Equal(t, trigger.EventPush, prepared[0].EventType)
	assert.Equal(t, "refs/heads/feature/x", prepared[0].Event.RefName)
	assert.Equal(t, trigger.EventTagPush, prepared[1].EventType)
	assert.Equal(t, "v3.0.0", prepared[1].Event.BranchOrTag)
	assert.Equal(t, trigger.EventPush, prepared[2].EventType)
	assert.Equal(t, "ccc", prepared[2].Event.Revision)

	cfg := &trigger.TriggerConfig{IncludedBranches: []string{"main"}}
	var matched []string
	for _, p := range prepared {
		result, err := p.Match("main-ci", cfg)
		require.NoError(t, err)
		if result.Matched {
			matched = append(matched, p.Event.RefName)
		}
	}
	assert.Equal(t, []string{"refs/heads/main"}, matched)
}

// TestSplitSingleChange tests that single-ref pushes and pull requests are
// not split.
func TestSplitSingleChange(t *testing.T) {
	i := New()
	payload, err := i.Decode(HintPush, []byte(pushBody))
	require.NoError(t, err)
	assert.Nil(t, i.Split(HintPush, payload))

	payload, err = i.Decode(HintPullRequestCreated, []byte(pullBody))
	require.NoError(t, err)
	assert.Nil(t, i.Split(HintPullRequestCreated, payload))

	payload, err = i.Decode(HintPush, []byte(multiPushBody))
	require.NoError(t, err)
	parts := i.Split(HintPush, payload)
	require.Len(t, parts, 3)
	original := payload.(*hook.RepoPushPayload)
	assert.Len(t, original.Push.Changes, 3, "splitting leaves the payload intact")
}
