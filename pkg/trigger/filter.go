package trigger

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Verdict is the outcome of one filter evaluation.
type Verdict struct {
	Passed bool   `json:"passed"`
	Reason string `json:"reason"`
}

// Pass returns a passing verdict.
func Pass(reason string) Verdict { return Verdict{Passed: true, Reason: reason} }

// Reject returns a failing verdict.
func Reject(reason string) Verdict { return Verdict{Passed: false, Reason: reason} }

// Filter is one predicate of a match chain. Filters are stateless and never
// mutate the event.
type Filter interface {
	Name() string
	Evaluate(evt *CanonicalEvent) Verdict
}

// Filter names reported in MatchResult.FailedFilter.
const (
	FilterEventType    = "event_type"
	FilterBranch       = "branch"
	FilterTag          = "tag"
	FilterSourceBranch = "source_branch"
	FilterPath         = "path"
	FilterSkipCI       = "skip_ci"
	FilterUser         = "user"
	FilterAction       = "action"
	FilterSemver       = "semver"
	FilterExpression   = "expression"
)

// matchIncludeExclude applies the shared precedence: a matching exclude
// always fails, then an empty include set passes, otherwise some include
// must match.
func matchIncludeExclude(label, value string, include, exclude PatternSet) Verdict {
	if p, ok := exclude.Excludes(value); ok {
		return Reject(fmt.Sprintf("%s %q is excluded by %q", label, value, p))
	}
	if include.Empty() {
		return Pass(fmt.Sprintf("%s %q is not excluded", label, value))
	}
	if p, ok := include.Match(value); ok {
		return Pass(fmt.Sprintf("%s %q is included by %q", label, value, p))
	}
	return Reject(fmt.Sprintf("%s %q matches none of %s", label, value, strings.Join(include.Strings(), ", ")))
}

// RefFilter matches one ref-like field of the event against include and
// exclude patterns. It backs the branch, tag and source branch filters.
type RefFilter struct {
	name    string
	label   string
	value   func(*CanonicalEvent) string
	include PatternSet
	exclude PatternSet
}

// NewBranchFilter matches the short branch name of a push.
func NewBranchFilter(include, exclude PatternSet) *RefFilter {
	return &RefFilter{name: FilterBranch, label: "branch", value: branchOrTag, include: include, exclude: exclude}
}

// NewTagFilter matches the short tag name.
func NewTagFilter(include, exclude PatternSet) *RefFilter {
	return &RefFilter{name: FilterTag, label: "tag", value: branchOrTag, include: include, exclude: exclude}
}

// NewTargetBranchFilter matches the target branch of a merge request.
func NewTargetBranchFilter(include, exclude PatternSet) *RefFilter {
	return &RefFilter{name: FilterBranch, label: "target branch", value: targetBranch, include: include, exclude: exclude}
}

// NewSourceBranchFilter matches the source branch of a merge request.
func NewSourceBranchFilter(include, exclude PatternSet) *RefFilter {
	return &RefFilter{name: FilterSourceBranch, label: "source branch", value: sourceBranch, include: include, exclude: exclude}
}

func branchOrTag(evt *CanonicalEvent) string  { return evt.BranchOrTag }
func targetBranch(evt *CanonicalEvent) string { return evt.TargetBranch }
func sourceBranch(evt *CanonicalEvent) string { return evt.SourceBranch }

func (f *RefFilter) Name() string { return f.name }

func (f *RefFilter) Evaluate(evt *CanonicalEvent) Verdict {
	return matchIncludeExclude(f.label, f.value(evt), f.include, f.exclude)
}

// PathFilter matches the changed paths of an event. With no path
// information it passes; otherwise at least one path must be included and
// not excluded.
type PathFilter struct {
	include PatternSet
	exclude PatternSet
}

func NewPathFilter(include, exclude PatternSet) *PathFilter {
	return &PathFilter{include: include, exclude: exclude}
}

func (f *PathFilter) Name() string { return FilterPath }

func (f *PathFilter) Evaluate(evt *CanonicalEvent) Verdict {
	if len(evt.ChangedPaths) == 0 {
		return Pass("no changed paths reported")
	}
	excluded := 0
	for _, path := range evt.ChangedPaths {
		if _, ok := f.exclude.ExcludesPath(path); ok {
			excluded++
			continue
		}
		if f.include.Empty() {
			return Pass(fmt.Sprintf("path %q is not excluded", path))
		}
		if p, ok := f.include.MatchPath(path); ok {
			return Pass(fmt.Sprintf("path %q is included by %q", path, p))
		}
	}
	if excluded == len(evt.ChangedPaths) {
		return Reject(fmt.Sprintf("all %d changed paths are excluded", excluded))
	}
	return Reject(fmt.Sprintf("no changed path matches %s", strings.Join(f.include.Strings(), ", ")))
}

// SkipCIFilter inverts the usual sense: it passes when the inspected text
// does not carry a skip marker and fails when it does.
type SkipCIFilter struct {
	markers *MarkerSet
	text    func(*CanonicalEvent) string
}

// NewSkipCIFilter inspects the representative commit message.
func NewSkipCIFilter(markers *MarkerSet) *SkipCIFilter {
	return &SkipCIFilter{markers: markers, text: commitMessage}
}

// NewTitleSkipCIFilter inspects the merge request title.
func NewTitleSkipCIFilter(markers *MarkerSet) *SkipCIFilter {
	return &SkipCIFilter{markers: markers, text: title}
}

func commitMessage(evt *CanonicalEvent) string { return evt.CommitMessage }
func title(evt *CanonicalEvent) string         { return evt.Title }

func (f *SkipCIFilter) Name() string { return FilterSkipCI }

func (f *SkipCIFilter) Evaluate(evt *CanonicalEvent) Verdict {
	if marker, ok := f.markers.Find(f.text(evt)); ok {
		return Reject(fmt.Sprintf("message contains skip marker %q", marker))
	}
	return Pass("no skip marker")
}

// UserFilter matches the actor of an event.
type UserFilter struct {
	include PatternSet
	exclude PatternSet
}

func NewUserFilter(include, exclude PatternSet) *UserFilter {
	return &UserFilter{include: include, exclude: exclude}
}

func (f *UserFilter) Name() string { return FilterUser }

func (f *UserFilter) Evaluate(evt *CanonicalEvent) Verdict {
	return matchIncludeExclude("user", evt.Actor, f.include, f.exclude)
}

// ActionFilter restricts merge request events to a set of actions.
type ActionFilter struct {
	actions []string
}

func NewActionFilter(actions []string) *ActionFilter {
	return &ActionFilter{actions: actions}
}

func (f *ActionFilter) Name() string { return FilterAction }

func (f *ActionFilter) Evaluate(evt *CanonicalEvent) Verdict {
	action := strings.ToLower(evt.Action)
	for _, allowed := range f.actions {
		if allowed == action {
			return Pass(fmt.Sprintf("action %q is allowed", evt.Action))
		}
	}
	return Reject(fmt.Sprintf("action %q is not one of %s", evt.Action, strings.Join(f.actions, ", ")))
}

// SemverFilter requires the tag name to be a version satisfying a
// constraint. A leading "v" is accepted.
type SemverFilter struct {
	constraint *semver.Constraints
}

func NewSemverFilter(constraint *semver.Constraints) *SemverFilter {
	return &SemverFilter{constraint: constraint}
}

func (f *SemverFilter) Name() string { return FilterSemver }

func (f *SemverFilter) Evaluate(evt *CanonicalEvent) Verdict {
	version, err := semver.NewVersion(evt.BranchOrTag)
	if err != nil {
		return Reject(fmt.Sprintf("tag %q is not a semantic version", evt.BranchOrTag))
	}
	if !f.constraint.Check(version) {
		return Reject(fmt.Sprintf("tag %q does not satisfy %s", evt.BranchOrTag, f.constraint))
	}
	return Pass(fmt.Sprintf("tag %q satisfies %s", evt.BranchOrTag, f.constraint))
}

// Evaluate runs filters left to right and stops at the first failure. It
// returns the failing filter (nil when all pass) and its verdict.
func Evaluate(evt *CanonicalEvent, filters []Filter) (Filter, Verdict) {
	for _, f := range filters {
		if v := f.Evaluate(evt); !v.Passed {
			return f, v
		}
	}
	return nil, Pass(fmt.Sprintf("all %d filters passed", len(filters)))
}
