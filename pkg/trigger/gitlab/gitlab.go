// Package gitlab maps GitLab webhook payloads onto trigger events.
package gitlab

import (
	"encoding/json"

	"hooktrigger/pkg/trigger"

	hook "github.com/go-playground/webhooks/v6/gitlab"
)

// Transport hints, as sent in the X-Gitlab-Event header.
const (
	HintPush         = string(hook.PushEvents)
	HintTagPush      = string(hook.TagEvents)
	HintMergeRequest = string(hook.MergeRequestEvents)
)

// Integration is the GitLab provider integration.
type Integration struct{}

// New returns the GitLab integration.
func New() *Integration { return &Integration{} }

func (*Integration) Name() trigger.Provider { return trigger.ProviderGitLab }

func (*Integration) Handlers() []trigger.Handler {
	return []trigger.Handler{
		trigger.Adapt[hook.PushEventPayload](PushHandler{}),
		trigger.Adapt[hook.TagEventPayload](TagPushHandler{}),
		trigger.Adapt[hook.MergeRequestEventPayload](MergeRequestHandler{}),
	}
}

// Classify maps the event header to an event type. The payload is not
// needed: GitLab already separates tag pushes from branch pushes.
func (*Integration) Classify(hint string, _ interface{}) (trigger.EventType, error) {
	switch hint {
	case HintPush:
		return trigger.EventPush, nil
	case HintTagPush:
		return trigger.EventTagPush, nil
	case HintMergeRequest:
		return trigger.EventMergeRequest, nil
	}
	return "", &trigger.UnsupportedEventError{Provider: trigger.ProviderGitLab, Hint: hint}
}

// Decode parses a JSON body into the payload type for hint.
func (i *Integration) Decode(hint string, body []byte) (interface{}, error) {
	eventType, err := i.Classify(hint, nil)
	if err != nil {
		return nil, err
	}
	var payload interface{}
	switch eventType {
	case trigger.EventPush:
		payload = &hook.PushEventPayload{}
	case trigger.EventTagPush:
		payload = &hook.TagEventPayload{}
	default:
		payload = &hook.MergeRequestEventPayload{}
	}
	if err := json.Unmarshal(body, payload); err != nil {
		return nil, &trigger.MalformedPayloadError{Provider: trigger.ProviderGitLab, EventType: eventType, Field: "body", Err: err}
	}
	return payload, nil
}

func sourceURL(project hook.Project, repo hook.Repository) string {
	if project.GitHTTPURL != "" {
		return project.GitHTTPURL
	}
	if repo.GitHTTPURL != "" {
		return repo.GitHTTPURL
	}
	return project.WebURL
}

func actor(name, username string) string {
	if username != "" {
		return username
	}
	return name
}
