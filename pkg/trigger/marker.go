package trigger

import (
	"strings"

	ahocorasick "github.com/petar-dambovaliev/aho-corasick"
)

// DefaultSkipMarkers are the commit-message tokens that suppress a trigger.
var DefaultSkipMarkers = []string{"[skip ci]", "[ci skip]"}

// MarkerSet finds skip markers in a message in one pass. Matching is ASCII
// case-insensitive.
type MarkerSet struct {
	markers   []string
	automaton *ahocorasick.AhoCorasick
}

// NewMarkerSet compiles markers; blank entries are dropped.
func NewMarkerSet(markers []string) *MarkerSet {
	cleaned := make([]string, 0, len(markers))
	for _, m := range markers {
		if m = strings.TrimSpace(m); m != "" {
			cleaned = append(cleaned, m)
		}
	}
	set := &MarkerSet{markers: cleaned}
	if len(cleaned) == 0 {
		return set
	}
	builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
		AsciiCaseInsensitive: true,
		MatchOnlyWholeWords:  false,
		MatchKind:            ahocorasick.LeftMostLongestMatch,
		DFA:                  true,
	})
	automaton := builder.Build(cleaned)
	set.automaton = &automaton
	return set
}

// Find returns the first marker contained in message.
func (s *MarkerSet) Find(message string) (string, bool) {
	if s == nil || s.automaton == nil || message == "" {
		return "", false
	}
	matches := s.automaton.FindAll(message)
	if len(matches) == 0 {
		return "", false
	}
	return s.markers[matches[0].Pattern()], true
}

// Markers returns the configured markers.
func (s *MarkerSet) Markers() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.markers...)
}
