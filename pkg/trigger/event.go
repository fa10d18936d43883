package trigger

import (
	"sort"
	"sync"
)

// Provider identifies a source-control provider family.
type Provider string

const (
	ProviderGitHub    Provider = "github"
	ProviderGitLab    Provider = "gitlab"
	ProviderBitbucket Provider = "bitbucket"
)

// EventType is the logical classification of a webhook event.
type EventType string

const (
	EventPush         EventType = "push"
	EventTagPush      EventType = "tag_push"
	EventMergeRequest EventType = "merge_request"
)

// Canonical merge request actions. Provider handlers map their own action
// vocabulary onto these.
const (
	ActionOpen   = "open"
	ActionReopen = "reopen"
	ActionUpdate = "update"
	ActionMerge  = "merge"
	ActionClose  = "close"
)

// RefKind tells which namespace a ref lives in.
type RefKind string

const (
	RefBranch  RefKind = "branch"
	RefTag     RefKind = "tag"
	RefUnknown RefKind = "unknown"
)

// CanonicalEvent is the provider-agnostic view of a trigger-relevant event.
// It is created once per webhook call and shared read-only by every pipeline
// evaluated against that call.
type CanonicalEvent struct {
	Provider   Provider  `json:"provider"`
	EventType  EventType `json:"event_type"`
	Repository string    `json:"repository"`
	SourceURL  string    `json:"source_url"`
	Revision   string    `json:"revision,omitempty"`
	Actor      string    `json:"actor"`

	// RefName is the raw ref, e.g. refs/heads/main.
	RefName string `json:"ref"`
	// BranchOrTag is RefName with its namespace prefix stripped.
	BranchOrTag string  `json:"branch_or_tag"`
	RefKind     RefKind `json:"ref_kind"`

	CommitMessage string   `json:"commit_message,omitempty"`
	ChangedPaths  []string `json:"changed_paths,omitempty"`
	CommitCount   int      `json:"commit_count"`

	// Merge request fields; empty for push-style events.
	SourceBranch string `json:"source_branch,omitempty"`
	TargetBranch string `json:"target_branch,omitempty"`
	Action       string `json:"action,omitempty"`
	Title        string `json:"title,omitempty"`

	doc *document
}

// SetRef fills RefName, BranchOrTag and RefKind from a raw ref.
func (e *CanonicalEvent) SetRef(ref string) {
	e.RefName = ref
	e.BranchOrTag, e.RefKind = ShortenRef(ref)
}

// PathSet accumulates changed paths across commits.
type PathSet map[string]struct{}

// Add inserts every non-empty path.
func (s PathSet) Add(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		s[p] = struct{}{}
	}
}

// Sorted returns the deduplicated paths in lexical order, or nil when empty.
func (s PathSet) Sorted() []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// document is a generic JSON view of the raw payload, flattened on first use.
// Only the expression filter reads it.
type document struct {
	raw  interface{}
	once sync.Once
	flat map[string]interface{}
}

// SetDocument attaches the generic JSON view of the payload.
func (e *CanonicalEvent) SetDocument(raw interface{}) {
	e.doc = &document{raw: raw}
}

// Document returns the generic JSON view of the payload, or nil.
func (e *CanonicalEvent) Document() interface{} {
	if e.doc == nil {
		return nil
	}
	return e.doc.raw
}

func (e *CanonicalEvent) flatDocument() map[string]interface{} {
	if e.doc == nil {
		return nil
	}
	e.doc.once.Do(func() {
		if m, ok := e.doc.raw.(map[string]interface{}); ok {
			e.doc.flat = Flatten(m)
		}
	})
	return e.doc.flat
}
