// Package github maps GitHub webhook payloads onto trigger events.
package github

import (
	"encoding/json"
	"strings"

	"hooktrigger/pkg/trigger"

	hook "github.com/go-playground/webhooks/v6/github"
)

// Transport hints, as sent in the X-GitHub-Event header.
const (
	HintPush        = string(hook.PushEvent)
	HintPullRequest = string(hook.PullRequestEvent)
)

// Integration is the GitHub provider integration.
type Integration struct{}

// New returns the GitHub integration.
func New() *Integration { return &Integration{} }

func (*Integration) Name() trigger.Provider { return trigger.ProviderGitHub }

func (*Integration) Handlers() []trigger.Handler {
	return []trigger.Handler{
		trigger.Adapt[hook.PushPayload](PushHandler{}),
		trigger.Adapt[hook.PushPayload](TagPushHandler{}),
		trigger.Adapt[hook.PullRequestPayload](PullRequestHandler{}),
	}
}

// Classify maps the event header to an event type. GitHub reports tag
// pushes as push events, so the ref decides.
func (*Integration) Classify(hint string, payload interface{}) (trigger.EventType, error) {
	switch hint {
	case HintPush:
		if strings.HasPrefix(pushRef(payload), "refs/tags/") {
			return trigger.EventTagPush, nil
		}
		return trigger.EventPush, nil
	case HintPullRequest:
		return trigger.EventMergeRequest, nil
	}
	return "", &trigger.UnsupportedEventError{Provider: trigger.ProviderGitHub, Hint: hint}
}

func pushRef(payload interface{}) string {
	switch p := payload.(type) {
	case hook.PushPayload:
		return p.Ref
	case *hook.PushPayload:
		if p != nil {
			return p.Ref
		}
	}
	return ""
}

// Decode parses a JSON body into the payload type for hint.
func (*Integration) Decode(hint string, body []byte) (interface{}, error) {
	var payload interface{}
	eventType := trigger.EventPush
	switch hint {
	case HintPush:
		payload = &hook.PushPayload{}
	case HintPullRequest:
		payload = &hook.PullRequestPayload{}
		eventType = trigger.EventMergeRequest
	default:
		return nil, &trigger.UnsupportedEventError{Provider: trigger.ProviderGitHub, Hint: hint}
	}
	if err := json.Unmarshal(body, payload); err != nil {
		return nil, &trigger.MalformedPayloadError{Provider: trigger.ProviderGitHub, EventType: eventType, Field: "body", Err: err}
	}
	return payload, nil
}

// canonicalAction maps pull request actions onto the shared vocabulary.
// Unknown actions pass through unchanged.
func canonicalAction(action string, merged bool) string {
	switch action {
	case "opened":
		return trigger.ActionOpen
	case "reopened":
		return trigger.ActionReopen
	case "synchronize", "edited":
		return trigger.ActionUpdate
	case "closed":
		if merged {
			return trigger.ActionMerge
		}
		return trigger.ActionClose
	}
	return action
}
