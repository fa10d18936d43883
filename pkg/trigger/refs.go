package trigger

import (
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
)

// DefaultDeniedRefPrefixes lists ref namespaces used for pre-integration
// (review) pushes. Events on these refs never trigger builds.
var DefaultDeniedRefPrefixes = []string{"refs/for/"}

// nullRevision is what providers send as the "after" sha of a deleted ref.
const nullRevision = "0000000000000000000000000000000000000000"

// ShortenRef strips the namespace from ref and reports which namespace it was.
// The short name is never empty when ref is non-empty.
func ShortenRef(ref string) (string, RefKind) {
	if ref == "" {
		return "", RefUnknown
	}
	name := plumbing.ReferenceName(ref)
	switch {
	case name.IsBranch():
		if short := strings.TrimPrefix(ref, "refs/heads/"); short != "" {
			return short, RefBranch
		}
	case name.IsTag():
		if short := strings.TrimPrefix(ref, "refs/tags/"); short != "" {
			return short, RefTag
		}
	}
	if short := name.Short(); short != "" {
		return short, RefUnknown
	}
	return ref, RefUnknown
}

// IsNullRevision reports whether sha denotes a missing commit.
func IsNullRevision(sha string) bool {
	return sha == "" || sha == nullRevision
}

// RefPolicy is the ref-level part of pre-match shared by every handler.
type RefPolicy struct {
	// DeniedPrefixes are raw ref prefixes that must never trigger.
	DeniedPrefixes []string
}

// DefaultRefPolicy returns the policy used when none is configured.
func DefaultRefPolicy() RefPolicy {
	return RefPolicy{DeniedPrefixes: append([]string(nil), DefaultDeniedRefPrefixes...)}
}

// Check rejects refs in a denied namespace and refs that are neither
// branches nor tags (when want is RefUnknown any classified ref is accepted).
func (p RefPolicy) Check(ref string, want RefKind) Verdict {
	if ref == "" {
		return Reject("event carries no ref")
	}
	for _, prefix := range p.DeniedPrefixes {
		if prefix != "" && strings.HasPrefix(ref, prefix) {
			return Reject(fmt.Sprintf("ref %s is in denied namespace %s", ref, prefix))
		}
	}
	_, kind := ShortenRef(ref)
	if kind == RefUnknown {
		return Reject(fmt.Sprintf("ref %s is neither a branch nor a tag", ref))
	}
	if want != RefUnknown && kind != want {
		return Reject(fmt.Sprintf("ref %s is a %s, expected a %s", ref, kind, want))
	}
	return Pass("ref accepted")
}

// CheckCommits rejects events that carry no commits.
func CheckCommits(count int) Verdict {
	if count <= 0 {
		return Reject(fmt.Sprintf("event carries no commits (%d)", count))
	}
	return Pass("event carries commits")
}

// TagCommitCount is the commit count of a tag push. Providers often list no
// commits for a tag; a tag that points at a revision still counts as one,
// while a deletion (null revision) counts as zero.
func TagCommitCount(listed int, revision string) int {
	if listed > 0 {
		return listed
	}
	if IsNullRevision(revision) {
		return 0
	}
	return 1
}

// RevisionCount is the commit count of events that carry a single head
// revision, such as merge requests.
func RevisionCount(sha string) int {
	return TagCommitCount(0, sha)
}

// BranchRef returns the full ref of a branch name.
func BranchRef(name string) string {
	return plumbing.NewBranchReferenceName(name).String()
}
