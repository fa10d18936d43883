package gitlab

import (
	"hooktrigger/pkg/trigger"

	hook "github.com/go-playground/webhooks/v6/gitlab"
)

// PushHandler handles "Push Hook" events.
type PushHandler struct{}

func (PushHandler) Provider() trigger.Provider   { return trigger.ProviderGitLab }
func (PushHandler) EventType() trigger.EventType { return trigger.EventPush }

func (PushHandler) PreMatch(p *hook.PushEventPayload, policy trigger.RefPolicy) trigger.Verdict {
	if v := trigger.CheckCommits(int(p.TotalCommitsCount)); !v.Passed {
		return v
	}
	return policy.Check(p.Ref, trigger.RefBranch)
}

func (PushHandler) Normalize(p *hook.PushEventPayload) (*trigger.CanonicalEvent, error) {
	if p.Ref == "" {
		return nil, trigger.Malformed(trigger.ProviderGitLab, trigger.EventPush, "ref")
	}
	if p.Project.PathWithNamespace == "" {
		return nil, trigger.Malformed(trigger.ProviderGitLab, trigger.EventPush, "project.path_with_namespace")
	}
	evt := &trigger.CanonicalEvent{
		Repository:  p.Project.PathWithNamespace,
		SourceURL:   sourceURL(p.Project, p.Repository),
		Revision:    p.CheckoutSHA,
		Actor:       actor(p.UserName, p.UserUsername),
		CommitCount: int(p.TotalCommitsCount),
	}
	evt.SetRef(p.Ref)
	paths := trigger.PathSet{}
	for i, c := range p.Commits {
		if i == 0 {
			evt.CommitMessage = c.Message
		}
		paths.Add(c.Added...)
		paths.Add(c.Modified...)
		paths.Add(c.Removed...)
	}
	evt.ChangedPaths = paths.Sorted()
	return evt, nil
}

func (PushHandler) BuildFilters(_ *trigger.CanonicalEvent, cfg *trigger.CompiledConfig) []trigger.Filter {
	return trigger.PushFilters(cfg)
}

// TagPushHandler handles "Tag Push Hook" events.
type TagPushHandler struct{}

func (TagPushHandler) Provider() trigger.Provider   { return trigger.ProviderGitLab }
func (TagPushHandler) EventType() trigger.EventType { return trigger.EventTagPush }

func (TagPushHandler) PreMatch(p *hook.TagEventPayload, policy trigger.RefPolicy) trigger.Verdict {
	if v := trigger.CheckCommits(tagCommitCount(p)); !v.Passed {
		return v
	}
	return policy.Check(p.Ref, trigger.RefTag)
}

func (TagPushHandler) Normalize(p *hook.TagEventPayload) (*trigger.CanonicalEvent, error) {
	if p.Ref == "" {
		return nil, trigger.Malformed(trigger.ProviderGitLab, trigger.EventTagPush, "ref")
	}
	if p.Project.PathWithNamespace == "" {
		return nil, trigger.Malformed(trigger.ProviderGitLab, trigger.EventTagPush, "project.path_with_namespace")
	}
	evt := &trigger.CanonicalEvent{
		Repository:  p.Project.PathWithNamespace,
		SourceURL:   sourceURL(p.Project, p.Repository),
		Revision:    p.CheckoutSHA,
		Actor:       actor(p.UserName, p.UserUsername),
		CommitCount: tagCommitCount(p),
	}
	evt.SetRef(p.Ref)
	if len(p.Commits) > 0 {
		evt.Revision = p.Commits[0].ID
		evt.CommitMessage = p.Commits[0].Message
	}
	return evt, nil
}

func (TagPushHandler) BuildFilters(_ *trigger.CanonicalEvent, cfg *trigger.CompiledConfig) []trigger.Filter {
	return trigger.TagFilters(cfg)
}

func tagCommitCount(p *hook.TagEventPayload) int {
	listed := int(p.TotalCommitsCount)
	if len(p.Commits) > listed {
		listed = len(p.Commits)
	}
	return trigger.TagCommitCount(listed, p.CheckoutSHA)
}

// MergeRequestHandler handles "Merge Request Hook" events.
type MergeRequestHandler struct{}

func (MergeRequestHandler) Provider() trigger.Provider   { return trigger.ProviderGitLab }
func (MergeRequestHandler) EventType() trigger.EventType { return trigger.EventMergeRequest }

func (MergeRequestHandler) PreMatch(p *hook.MergeRequestEventPayload, policy trigger.RefPolicy) trigger.Verdict {
	attrs := p.ObjectAttributes
	if v := trigger.CheckCommits(trigger.RevisionCount(attrs.LastCommit.ID)); !v.Passed {
		return v
	}
	if attrs.TargetBranch == "" {
		return trigger.Reject("merge request has no target branch")
	}
	return policy.Check(trigger.BranchRef(attrs.TargetBranch), trigger.RefBranch)
}

func (MergeRequestHandler) Normalize(p *hook.MergeRequestEventPayload) (*trigger.CanonicalEvent, error) {
	attrs := p.ObjectAttributes
	if attrs.TargetBranch == "" {
		return nil, trigger.Malformed(trigger.ProviderGitLab, trigger.EventMergeRequest, "object_attributes.target_branch")
	}
	if p.Project.PathWithNamespace == "" {
		return nil, trigger.Malformed(trigger.ProviderGitLab, trigger.EventMergeRequest, "project.path_with_namespace")
	}
	evt := &trigger.CanonicalEvent{
		Repository:    p.Project.PathWithNamespace,
		SourceURL:     sourceURL(p.Project, p.Repository),
		Revision:      attrs.LastCommit.ID,
		Actor:         actor(p.User.Name, p.User.UserName),
		CommitMessage: attrs.LastCommit.Message,
		CommitCount:   trigger.RevisionCount(attrs.LastCommit.ID),
		SourceBranch:  attrs.SourceBranch,
		TargetBranch:  attrs.TargetBranch,
		Action:        attrs.Action,
		Title:         attrs.Title,
	}
	evt.SetRef(trigger.BranchRef(attrs.TargetBranch))
	return evt, nil
}

func (MergeRequestHandler) BuildFilters(_ *trigger.CanonicalEvent, cfg *trigger.CompiledConfig) []trigger.Filter {
	return trigger.MergeRequestFilters(cfg)
}
