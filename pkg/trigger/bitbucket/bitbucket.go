// Package bitbucket maps Bitbucket Cloud webhook payloads onto trigger
// events.
package bitbucket

import (
	"encoding/json"
	"strings"

	"hooktrigger/pkg/trigger"

	hook "github.com/go-playground/webhooks/v6/bitbucket"
)

// Transport hints, as sent in the X-Event-Key header.
const (
	HintPush                = string(hook.RepoPushEvent)
	HintPullRequestCreated  = string(hook.PullRequestCreatedEvent)
	HintPullRequestUpdated  = string(hook.PullRequestUpdatedEvent)
	HintPullRequestMerged   = string(hook.PullRequestMergedEvent)
	HintPullRequestDeclined = string(hook.PullRequestDeclinedEvent)
)

const webURL = "https://bitbucket.org/"

// Integration is the Bitbucket provider integration.
type Integration struct{}

// New returns the Bitbucket integration.
func New() *Integration { return &Integration{} }

func (*Integration) Name() trigger.Provider { return trigger.ProviderBitbucket }

func (*Integration) Handlers() []trigger.Handler {
	return []trigger.Handler{
		trigger.Adapt[hook.RepoPushPayload](PushHandler{}),
		trigger.Adapt[hook.RepoPushPayload](TagPushHandler{}),
		PullRequestHandler{},
	}
}

// Split returns one repo:push payload per pushed ref. Other events and
// single-ref pushes are not split.
func (*Integration) Split(hint string, payload interface{}) []interface{} {
	if hint != HintPush {
		return nil
	}
	p := pushPayload(payload)
	if p == nil || len(p.Push.Changes) < 2 {
		return nil
	}
	parts := make([]interface{}, 0, len(p.Push.Changes))
	for i := range p.Push.Changes {
		part := *p
		part.Push.Changes = p.Push.Changes[i : i+1 : i+1]
		parts = append(parts, &part)
	}
	return parts
}

// Classify maps the event key to an event type. A repo:push whose first
// change touches a tag is a tag push; multi-ref pushes are split first.
func (*Integration) Classify(hint string, payload interface{}) (trigger.EventType, error) {
	switch hint {
	case HintPush:
		if p := pushPayload(payload); p != nil {
			if i := firstChange(p); i >= 0 && strings.HasPrefix(changeRef(p, i), "refs/tags/") {
				return trigger.EventTagPush, nil
			}
		}
		return trigger.EventPush, nil
	case HintPullRequestCreated, HintPullRequestUpdated, HintPullRequestMerged, HintPullRequestDeclined:
		return trigger.EventMergeRequest, nil
	}
	return "", &trigger.UnsupportedEventError{Provider: trigger.ProviderBitbucket, Hint: hint}
}

func pushPayload(payload interface{}) *hook.RepoPushPayload {
	switch p := payload.(type) {
	case hook.RepoPushPayload:
		return &p
	case *hook.RepoPushPayload:
		return p
	}
	return nil
}

// Decode parses a JSON body into the payload type for hint.
func (*Integration) Decode(hint string, body []byte) (interface{}, error) {
	var payload interface{}
	eventType := trigger.EventMergeRequest
	switch hint {
	case HintPush:
		payload = &hook.RepoPushPayload{}
		eventType = trigger.EventPush
	case HintPullRequestCreated:
		payload = &hook.PullRequestCreatedPayload{}
	case HintPullRequestUpdated:
		payload = &hook.PullRequestUpdatedPayload{}
	case HintPullRequestMerged:
		payload = &hook.PullRequestMergedPayload{}
	case HintPullRequestDeclined:
		payload = &hook.PullRequestDeclinedPayload{}
	default:
		return nil, &trigger.UnsupportedEventError{Provider: trigger.ProviderBitbucket, Hint: hint}
	}
	if err := json.Unmarshal(body, payload); err != nil {
		return nil, &trigger.MalformedPayloadError{Provider: trigger.ProviderBitbucket, EventType: eventType, Field: "body", Err: err}
	}
	return payload, nil
}

func sourceURL(repo hook.Repository) string {
	if repo.FullName == "" {
		return ""
	}
	return webURL + repo.FullName + ".git"
}

func actor(owner hook.Owner) string {
	return owner.DisplayName
}
