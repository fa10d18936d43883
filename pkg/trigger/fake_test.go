package trigger

import (
	"encoding/json"
	"errors"
)

// fakePush is a minimal push payload for engine tests.
type fakePush struct {
	Ref     string   `json:"ref"`
	Commits int      `json:"commits"`
	Message string   `json:"message"`
	Paths   []string `json:"paths"`
	Repo    string   `json:"repo"`
}

type fakePushHandler struct{ eventType EventType }

func (h fakePushHandler) Provider() Provider   { return "fake" }
func (h fakePushHandler) EventType() EventType { return h.eventType }

func (h fakePushHandler) PreMatch(p *fakePush, policy RefPolicy) Verdict {
	if v := CheckCommits(p.Commits); !v.Passed {
		return v
	}
	want := RefBranch
	if h.eventType == EventTagPush {
		want = RefTag
	}
	return policy.Check(p.Ref, want)
}

func (h fakePushHandler) Normalize(p *fakePush) (*CanonicalEvent, error) {
	if p.Repo == "" {
		return nil, Malformed("fake", h.eventType, "repo")
	}
	evt := &CanonicalEvent{Repository: p.Repo, CommitMessage: p.Message, CommitCount: p.Commits}
	evt.SetRef(p.Ref)
	paths := PathSet{}
	paths.Add(p.Paths...)
	evt.ChangedPaths = paths.Sorted()
	return evt, nil
}

func (h fakePushHandler) BuildFilters(_ *CanonicalEvent, cfg *CompiledConfig) []Filter {
	if h.eventType == EventTagPush {
		return TagFilters(cfg)
	}
	return PushFilters(cfg)
}

type fakeIntegration struct {
	name     Provider
	handlers []Handler
}

func newFakeIntegration() *fakeIntegration {
	return &fakeIntegration{
		name: "fake",
		handlers: []Handler{
			Adapt[fakePush](fakePushHandler{eventType: EventPush}),
			Adapt[fakePush](fakePushHandler{eventType: EventTagPush}),
		},
	}
}

func (f *fakeIntegration) Name() Provider      { return f.name }
func (f *fakeIntegration) Handlers() []Handler { return f.handlers }

func (f *fakeIntegration) Classify(hint string, payload interface{}) (EventType, error) {
	switch hint {
	case "push":
		if p, ok := payload.(*fakePush); ok {
			if _, kind := ShortenRef(p.Ref); kind == RefTag {
				return EventTagPush, nil
			}
		}
		return EventPush, nil
	case "review":
		return EventMergeRequest, nil
	}
	return "", &UnsupportedEventError{Provider: f.name, Hint: hint}
}

func (f *fakeIntegration) Decode(hint string, body []byte) (interface{}, error) {
	if hint != "push" {
		return nil, errors.New("unsupported hint")
	}
	var p fakePush
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Split turns a batch of pushes into one payload per push.
func (f *fakeIntegration) Split(hint string, payload interface{}) []interface{} {
	batch, ok := payload.([]*fakePush)
	if !ok || hint != "push" {
		return nil
	}
	parts := make([]interface{}, len(batch))
	for i, p := range batch {
		parts[i] = p
	}
	return parts
}
