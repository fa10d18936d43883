package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/webhooks/v6/github"

	"hooktrigger/internal"
	"hooktrigger/pkg/trigger"
)

// GitHubHandler handles incoming webhooks from GitHub.
type GitHubHandler struct {
	ingress
	hook         *github.Webhook
	fallbackHook *github.Webhook
	secret       string
}

var githubEvents = []github.Event{
	github.PingEvent,
	github.PushEvent,
	github.PullRequestEvent,
	github.CreateEvent,
	github.DeleteEvent,
	github.ReleaseEvent,
	github.IssuesEvent,
	github.IssueCommentEvent,
	github.PullRequestReviewEvent,
	github.PullRequestReviewCommentEvent,
	github.StatusEvent,
	github.CheckRunEvent,
	github.CheckSuiteEvent,
	github.WorkflowRunEvent,
	github.WorkflowJobEvent,
}

// NewGitHubHandler creates a new GitHubHandler.
func NewGitHubHandler(dispatcher *internal.Dispatcher, opts Options) (*GitHubHandler, error) {
	hook, err := github.New(github.Options.Secret(opts.Secret))
	if err != nil {
		return nil, err
	}
	fallbackHook, err := github.New()
	if err != nil {
		return nil, err
	}
	return &GitHubHandler{
		ingress:      newIngress(trigger.ProviderGitHub, dispatcher, opts),
		hook:         hook,
		fallbackHook: fallbackHook,
		secret:       opts.Secret,
	}, nil
}

// ServeHTTP handles an incoming HTTP request.
func (h *GitHubHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	eventName := r.Header.Get("X-GitHub-Event")
	reqID, logger, rawBody, ok := h.begin(w, r, eventName)
	if !ok {
		return
	}

	payload, err := h.hook.Parse(r, githubEvents...)
	if err != nil {
		if errors.Is(err, github.ErrMissingHubSignatureHeader) && h.secret != "" {
			sha1Header := r.Header.Get("X-Hub-Signature")
			if sha1Header != "" && verifyGitHubSHA1(h.secret, rawBody, sha1Header) {
				logger.Warn().Err(err).Msg("accepted sha1 signature")
				r.Body = io.NopCloser(bytes.NewReader(rawBody))
				payload, err = h.fallbackHook.Parse(r, githubEvents...)
			}
		}
		if errors.Is(err, github.ErrEventNotFound) {
			h.ignore(w, logger, eventName, "event not handled")
			return
		}
		if err != nil {
			h.rejectParse(w, logger, eventName, err)
			return
		}
	}

	if _, ok := payload.(github.PingPayload); ok {
		writeJSON(w, http.StatusOK, statusBody{Status: "pong"})
		return
	}
	h.handle(w, r, logger, reqID, eventName, payload, rawBody)
}

func verifyGitHubSHA1(secret string, body []byte, signature string) bool {
	if secret == "" || len(body) == 0 || signature == "" {
		return false
	}
	signature = strings.TrimPrefix(signature, "sha1=")
	mac := hmac.New(sha1.New, []byte(secret))
	_, _ = mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}
