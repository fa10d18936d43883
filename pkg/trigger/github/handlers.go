package github

import (
	"hooktrigger/pkg/trigger"

	hook "github.com/go-playground/webhooks/v6/github"
)

// PushHandler handles branch pushes.
type PushHandler struct{}

func (PushHandler) Provider() trigger.Provider   { return trigger.ProviderGitHub }
func (PushHandler) EventType() trigger.EventType { return trigger.EventPush }

func (PushHandler) PreMatch(p *hook.PushPayload, policy trigger.RefPolicy) trigger.Verdict {
	if v := trigger.CheckCommits(len(p.Commits)); !v.Passed {
		return v
	}
	return policy.Check(p.Ref, trigger.RefBranch)
}

func (PushHandler) Normalize(p *hook.PushPayload) (*trigger.CanonicalEvent, error) {
	evt, err := baseEvent(p, trigger.EventPush)
	if err != nil {
		return nil, err
	}
	evt.CommitCount = len(p.Commits)
	paths := trigger.PathSet{}
	for i, c := range p.Commits {
		if i == 0 {
			evt.CommitMessage = c.Message
		}
		paths.Add(c.Added...)
		paths.Add(c.Modified...)
		paths.Add(c.Removed...)
	}
	if evt.CommitMessage == "" {
		evt.CommitMessage = p.HeadCommit.Message
	}
	evt.ChangedPaths = paths.Sorted()
	return evt, nil
}

func (PushHandler) BuildFilters(_ *trigger.CanonicalEvent, cfg *trigger.CompiledConfig) []trigger.Filter {
	return trigger.PushFilters(cfg)
}

// TagPushHandler handles pushes to refs/tags/.
type TagPushHandler struct{}

func (TagPushHandler) Provider() trigger.Provider   { return trigger.ProviderGitHub }
func (TagPushHandler) EventType() trigger.EventType { return trigger.EventTagPush }

func (TagPushHandler) PreMatch(p *hook.PushPayload, policy trigger.RefPolicy) trigger.Verdict {
	if v := trigger.CheckCommits(trigger.TagCommitCount(len(p.Commits), p.After)); !v.Passed {
		return v
	}
	return policy.Check(p.Ref, trigger.RefTag)
}

func (TagPushHandler) Normalize(p *hook.PushPayload) (*trigger.CanonicalEvent, error) {
	evt, err := baseEvent(p, trigger.EventTagPush)
	if err != nil {
		return nil, err
	}
	evt.CommitCount = trigger.TagCommitCount(len(p.Commits), p.After)
	if len(p.Commits) > 0 {
		evt.Revision = p.Commits[0].ID
		evt.CommitMessage = p.Commits[0].Message
	} else if p.HeadCommit.ID != "" {
		evt.Revision = p.HeadCommit.ID
		evt.CommitMessage = p.HeadCommit.Message
	}
	return evt, nil
}

func (TagPushHandler) BuildFilters(_ *trigger.CanonicalEvent, cfg *trigger.CompiledConfig) []trigger.Filter {
	return trigger.TagFilters(cfg)
}

func baseEvent(p *hook.PushPayload, eventType trigger.EventType) (*trigger.CanonicalEvent, error) {
	if p.Ref == "" {
		return nil, trigger.Malformed(trigger.ProviderGitHub, eventType, "ref")
	}
	if p.Repository.FullName == "" {
		return nil, trigger.Malformed(trigger.ProviderGitHub, eventType, "repository.full_name")
	}
	evt := &trigger.CanonicalEvent{
		Repository: p.Repository.FullName,
		SourceURL:  firstNonEmpty(p.Repository.CloneURL, p.Repository.HTMLURL),
		Revision:   p.After,
		Actor:      firstNonEmpty(p.Pusher.Name, p.Sender.Login),
	}
	evt.SetRef(p.Ref)
	return evt, nil
}

// PullRequestHandler handles pull_request events.
type PullRequestHandler struct{}

func (PullRequestHandler) Provider() trigger.Provider   { return trigger.ProviderGitHub }
func (PullRequestHandler) EventType() trigger.EventType { return trigger.EventMergeRequest }

func (PullRequestHandler) PreMatch(p *hook.PullRequestPayload, policy trigger.RefPolicy) trigger.Verdict {
	pr := p.PullRequest
	if v := trigger.CheckCommits(trigger.RevisionCount(pr.Head.Sha)); !v.Passed {
		return v
	}
	if pr.Base.Ref == "" {
		return trigger.Reject("pull request has no base branch")
	}
	return policy.Check(trigger.BranchRef(pr.Base.Ref), trigger.RefBranch)
}

func (PullRequestHandler) Normalize(p *hook.PullRequestPayload) (*trigger.CanonicalEvent, error) {
	pr := p.PullRequest
	if pr.Base.Ref == "" {
		return nil, trigger.Malformed(trigger.ProviderGitHub, trigger.EventMergeRequest, "pull_request.base.ref")
	}
	if p.Repository.FullName == "" {
		return nil, trigger.Malformed(trigger.ProviderGitHub, trigger.EventMergeRequest, "repository.full_name")
	}
	evt := &trigger.CanonicalEvent{
		Repository:   p.Repository.FullName,
		SourceURL:    firstNonEmpty(p.Repository.CloneURL, p.Repository.HTMLURL),
		Revision:     pr.Head.Sha,
		Actor:        firstNonEmpty(p.Sender.Login, pr.User.Login),
		CommitCount:  trigger.RevisionCount(pr.Head.Sha),
		SourceBranch: pr.Head.Ref,
		TargetBranch: pr.Base.Ref,
		Action:       canonicalAction(p.Action, pr.Merged),
		Title:        pr.Title,
	}
	evt.SetRef(trigger.BranchRef(pr.Base.Ref))
	return evt, nil
}

func (PullRequestHandler) BuildFilters(_ *trigger.CanonicalEvent, cfg *trigger.CompiledConfig) []trigger.Filter {
	return trigger.MergeRequestFilters(cfg)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
