package webhook

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/webhooks/v6/bitbucket"

	"hooktrigger/internal"
	"hooktrigger/pkg/trigger"
)

// BitbucketHandler handles incoming webhooks from Bitbucket.
type BitbucketHandler struct {
	ingress
	hook *bitbucket.Webhook
}

var bitbucketEvents = []bitbucket.Event{
	bitbucket.RepoPushEvent,
	bitbucket.PullRequestCreatedEvent,
	bitbucket.PullRequestUpdatedEvent,
	bitbucket.PullRequestMergedEvent,
	bitbucket.PullRequestDeclinedEvent,
	bitbucket.PullRequestApprovedEvent,
	bitbucket.PullRequestUnapprovedEvent,
	bitbucket.PullRequestCommentCreatedEvent,
	bitbucket.RepoForkEvent,
	bitbucket.RepoUpdatedEvent,
	bitbucket.RepoCommitStatusCreatedEvent,
	bitbucket.RepoCommitStatusUpdatedEvent,
}

// NewBitbucketHandler creates a new BitbucketHandler. The secret is the
// webhook UUID Bitbucket sends in X-Hook-UUID.
func NewBitbucketHandler(dispatcher *internal.Dispatcher, opts Options) (*BitbucketHandler, error) {
	options := make([]bitbucket.Option, 0, 1)
	if opts.Secret != "" {
		options = append(options, bitbucket.Options.UUID(opts.Secret))
	}
	hook, err := bitbucket.New(options...)
	if err != nil {
		return nil, err
	}
	return &BitbucketHandler{ingress: newIngress(trigger.ProviderBitbucket, dispatcher, opts), hook: hook}, nil
}

// ServeHTTP handles an incoming HTTP request.
func (h *BitbucketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	eventName := r.Header.Get("X-Event-Key")
	reqID, logger, rawBody, ok := h.begin(w, r, eventName)
	if !ok {
		return
	}

	payload, err := h.hook.Parse(r, bitbucketEvents...)
	if err != nil {
		if errors.Is(err, bitbucket.ErrMissingHookUUIDHeader) {
			logger.Warn().Err(err).Msg("skipping UUID verification")
			r.Body = io.NopCloser(bytes.NewReader(rawBody))
			unverified, fallbackErr := bitbucket.New()
			if fallbackErr == nil {
				payload, err = unverified.Parse(r, bitbucketEvents...)
			} else {
				err = fallbackErr
			}
		}
		if errors.Is(err, bitbucket.ErrEventNotFound) {
			h.ignore(w, logger, eventName, "event not handled")
			return
		}
		if err != nil {
			h.rejectParse(w, logger, eventName, err)
			return
		}
	}
	h.handle(w, r, logger, reqID, eventName, payload, rawBody)
}
