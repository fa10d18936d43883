package bitbucket

import (
	"hooktrigger/pkg/trigger"

	hook "github.com/go-playground/webhooks/v6/bitbucket"
)

const (
	refTypeBranch = "branch"
	refTypeTag    = "tag"
)

// firstChange returns the index of the change a push is judged by, or -1.
func firstChange(p *hook.RepoPushPayload) int {
	if len(p.Push.Changes) == 0 {
		return -1
	}
	return 0
}

// changeRef rebuilds the full ref of change i. Deleted refs are read from
// the old side of the change.
func changeRef(p *hook.RepoPushPayload, i int) string {
	c := p.Push.Changes[i]
	refType, name := c.New.Type, c.New.Name
	if c.Closed || name == "" {
		refType, name = c.Old.Type, c.Old.Name
	}
	switch refType {
	case refTypeBranch:
		return "refs/heads/" + name
	case refTypeTag:
		return "refs/tags/" + name
	}
	return name
}

// PushHandler handles repo:push events on branches. Bitbucket does not send
// changed files, so path filters always see an empty set.
type PushHandler struct{}

func (PushHandler) Provider() trigger.Provider   { return trigger.ProviderBitbucket }
func (PushHandler) EventType() trigger.EventType { return trigger.EventPush }

func (PushHandler) PreMatch(p *hook.RepoPushPayload, policy trigger.RefPolicy) trigger.Verdict {
	i := firstChange(p)
	if i < 0 {
		return trigger.Reject("push carries no changes")
	}
	c := p.Push.Changes[i]
	count := len(c.Commits)
	if c.Closed {
		count = 0
	}
	if v := trigger.CheckCommits(count); !v.Passed {
		return v
	}
	return policy.Check(changeRef(p, i), trigger.RefBranch)
}

func (PushHandler) Normalize(p *hook.RepoPushPayload) (*trigger.CanonicalEvent, error) {
	i := firstChange(p)
	if i < 0 {
		return nil, trigger.Malformed(trigger.ProviderBitbucket, trigger.EventPush, "push.changes")
	}
	if p.Repository.FullName == "" {
		return nil, trigger.Malformed(trigger.ProviderBitbucket, trigger.EventPush, "repository.full_name")
	}
	c := p.Push.Changes[i]
	evt := &trigger.CanonicalEvent{
		Repository:    p.Repository.FullName,
		SourceURL:     sourceURL(p.Repository),
		Revision:      c.New.Target.Hash,
		Actor:         actor(p.Actor),
		CommitMessage: c.New.Target.Message,
		CommitCount:   len(c.Commits),
	}
	if len(c.Commits) > 0 {
		evt.CommitMessage = c.Commits[0].Message
	}
	evt.SetRef(changeRef(p, i))
	return evt, nil
}

func (PushHandler) BuildFilters(_ *trigger.CanonicalEvent, cfg *trigger.CompiledConfig) []trigger.Filter {
	return trigger.PushFilters(cfg)
}

// TagPushHandler handles repo:push events on tags.
type TagPushHandler struct{}

func (TagPushHandler) Provider() trigger.Provider   { return trigger.ProviderBitbucket }
func (TagPushHandler) EventType() trigger.EventType { return trigger.EventTagPush }

func (TagPushHandler) PreMatch(p *hook.RepoPushPayload, policy trigger.RefPolicy) trigger.Verdict {
	i := firstChange(p)
	if i < 0 {
		return trigger.Reject("push carries no changes")
	}
	if v := trigger.CheckCommits(tagCommitCount(p, i)); !v.Passed {
		return v
	}
	return policy.Check(changeRef(p, i), trigger.RefTag)
}

func (TagPushHandler) Normalize(p *hook.RepoPushPayload) (*trigger.CanonicalEvent, error) {
	i := firstChange(p)
	if i < 0 {
		return nil, trigger.Malformed(trigger.ProviderBitbucket, trigger.EventTagPush, "push.changes")
	}
	if p.Repository.FullName == "" {
		return nil, trigger.Malformed(trigger.ProviderBitbucket, trigger.EventTagPush, "repository.full_name")
	}
	c := p.Push.Changes[i]
	evt := &trigger.CanonicalEvent{
		Repository:    p.Repository.FullName,
		SourceURL:     sourceURL(p.Repository),
		Revision:      c.New.Target.Hash,
		Actor:         actor(p.Actor),
		CommitMessage: c.New.Target.Message,
		CommitCount:   tagCommitCount(p, i),
	}
	if len(c.Commits) > 0 {
		evt.Revision = c.Commits[0].Hash
		evt.CommitMessage = c.Commits[0].Message
	}
	evt.SetRef(changeRef(p, i))
	return evt, nil
}

func (TagPushHandler) BuildFilters(_ *trigger.CanonicalEvent, cfg *trigger.CompiledConfig) []trigger.Filter {
	return trigger.TagFilters(cfg)
}

func tagCommitCount(p *hook.RepoPushPayload, i int) int {
	c := p.Push.Changes[i]
	if c.Closed {
		return 0
	}
	return trigger.TagCommitCount(len(c.Commits), c.New.Target.Hash)
}

// pullRequest is the part shared by every pull request payload.
type pullRequest struct {
	action     string
	actor      hook.Owner
	repository hook.Repository
	pr         hook.PullRequest
}

func pullRequestView(payload interface{}) (pullRequest, bool) {
	switch p := payload.(type) {
	case hook.PullRequestCreatedPayload:
		return pullRequest{trigger.ActionOpen, p.Actor, p.Repository, p.PullRequest}, true
	case *hook.PullRequestCreatedPayload:
		if p != nil {
			return pullRequest{trigger.ActionOpen, p.Actor, p.Repository, p.PullRequest}, true
		}
	case hook.PullRequestUpdatedPayload:
		return pullRequest{trigger.ActionUpdate, p.Actor, p.Repository, p.PullRequest}, true
	case *hook.PullRequestUpdatedPayload:
		if p != nil {
			return pullRequest{trigger.ActionUpdate, p.Actor, p.Repository, p.PullRequest}, true
		}
	case hook.PullRequestMergedPayload:
		return pullRequest{trigger.ActionMerge, p.Actor, p.Repository, p.PullRequest}, true
	case *hook.PullRequestMergedPayload:
		if p != nil {
			return pullRequest{trigger.ActionMerge, p.Actor, p.Repository, p.PullRequest}, true
		}
	case hook.PullRequestDeclinedPayload:
		return pullRequest{trigger.ActionClose, p.Actor, p.Repository, p.PullRequest}, true
	case *hook.PullRequestDeclinedPayload:
		if p != nil {
			return pullRequest{trigger.ActionClose, p.Actor, p.Repository, p.PullRequest}, true
		}
	}
	return pullRequest{}, false
}

// PullRequestHandler handles the pullrequest:* events. Bitbucket uses one
// payload type per action, so it implements trigger.Handler directly.
type PullRequestHandler struct{}

func (PullRequestHandler) Provider() trigger.Provider   { return trigger.ProviderBitbucket }
func (PullRequestHandler) EventType() trigger.EventType { return trigger.EventMergeRequest }

func (h PullRequestHandler) PreMatch(payload interface{}, policy trigger.RefPolicy) (trigger.Verdict, error) {
	view, ok := pullRequestView(payload)
	if !ok {
		return trigger.Verdict{}, trigger.Malformed(trigger.ProviderBitbucket, trigger.EventMergeRequest, "payload")
	}
	if v := trigger.CheckCommits(trigger.RevisionCount(view.pr.Source.Commit.Hash)); !v.Passed {
		return v, nil
	}
	target := view.pr.Destination.Branch.Name
	if target == "" {
		return trigger.Reject("pull request has no destination branch"), nil
	}
	return policy.Check(trigger.BranchRef(target), trigger.RefBranch), nil
}

func (h PullRequestHandler) Normalize(payload interface{}) (*trigger.CanonicalEvent, error) {
	view, ok := pullRequestView(payload)
	if !ok {
		return nil, trigger.Malformed(trigger.ProviderBitbucket, trigger.EventMergeRequest, "payload")
	}
	pr := view.pr
	if pr.Destination.Branch.Name == "" {
		return nil, trigger.Malformed(trigger.ProviderBitbucket, trigger.EventMergeRequest, "pullrequest.destination.branch.name")
	}
	if view.repository.FullName == "" {
		return nil, trigger.Malformed(trigger.ProviderBitbucket, trigger.EventMergeRequest, "repository.full_name")
	}
	evt := &trigger.CanonicalEvent{
		Provider:     trigger.ProviderBitbucket,
		EventType:    trigger.EventMergeRequest,
		Repository:   view.repository.FullName,
		SourceURL:    sourceURL(view.repository),
		Revision:     pr.Source.Commit.Hash,
		Actor:        actor(view.actor),
		CommitCount:  trigger.RevisionCount(pr.Source.Commit.Hash),
		SourceBranch: pr.Source.Branch.Name,
		TargetBranch: pr.Destination.Branch.Name,
		Action:       view.action,
		Title:        pr.Title,
	}
	evt.SetRef(trigger.BranchRef(pr.Destination.Branch.Name))
	return evt, nil
}

func (PullRequestHandler) BuildFilters(_ *trigger.CanonicalEvent, cfg *trigger.CompiledConfig) []trigger.Filter {
	return trigger.MergeRequestFilters(cfg)
}
