package webhook

import (
	"errors"
	"net/http"

	"github.com/go-playground/webhooks/v6/gitlab"

	"hooktrigger/internal"
	"hooktrigger/pkg/trigger"
)

// GitLabHandler handles incoming webhooks from GitLab.
type GitLabHandler struct {
	ingress
	hook *gitlab.Webhook
}

var gitlabEvents = []gitlab.Event{
	gitlab.PushEvents,
	gitlab.TagEvents,
	gitlab.MergeRequestEvents,
	gitlab.IssuesEvents,
	gitlab.ConfidentialIssuesEvents,
	gitlab.CommentEvents,
	gitlab.ConfidentialCommentEvents,
	gitlab.WikiPageEvents,
	gitlab.PipelineEvents,
	gitlab.BuildEvents,
	gitlab.JobEvents,
	gitlab.DeploymentEvents,
}

// NewGitLabHandler creates a new GitLabHandler.
func NewGitLabHandler(dispatcher *internal.Dispatcher, opts Options) (*GitLabHandler, error) {
	options := make([]gitlab.Option, 0, 1)
	if opts.Secret != "" {
		options = append(options, gitlab.Options.Secret(opts.Secret))
	}
	hook, err := gitlab.New(options...)
	if err != nil {
		return nil, err
	}
	return &GitLabHandler{ingress: newIngress(trigger.ProviderGitLab, dispatcher, opts), hook: hook}, nil
}

// ServeHTTP handles an incoming HTTP request.
func (h *GitLabHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	eventName := r.Header.Get("X-Gitlab-Event")
	reqID, logger, rawBody, ok := h.begin(w, r, eventName)
	if !ok {
		return
	}

	payload, err := h.hook.Parse(r, gitlabEvents...)
	if errors.Is(err, gitlab.ErrEventNotFound) {
		h.ignore(w, logger, eventName, "event not handled")
		return
	}
	if err != nil {
		h.rejectParse(w, logger, eventName, err)
		return
	}
	h.handle(w, r, logger, reqID, eventName, payload, rawBody)
}
