// Package provenance decides whether a statement is already attributed to a
// source, builds the references that attribute it, and keeps a per-session
// history of every mutation made on behalf of a source.
package provenance

import (
	"github.com/agentstation/utc"

	"github.com/agentstation/factmap/pkg/facts"
	"github.com/agentstation/factmap/pkg/records"
)

// Origin is where a source identifier is published.
type Origin struct {
	StatedIn records.ItemID
	URL      string
}

// Matcher decides reference identity for one source.
type Matcher interface {
	// IsSimilar reports whether ref already attributes a statement to the
	// source for the given identifier.
	IsSimilar(ref records.Reference, id string) bool
	// Origin returns the canonical origin of an identifier.
	Origin(id string) Origin
}

// Build creates the canonical reference for an origin. The retrieval date is
// kept at day precision so that references from the same day compare equal.
func Build(origin Origin, retrieved utc.Time) records.Reference {
	ref := records.NewReference()
	t := retrieved.Time.UTC()
	ref.Add(records.PropRetrieved, records.NewTime(t.Year(), int(t.Month()), t.Day(), records.PrecisionDay))
	if origin.StatedIn != "" {
		ref.Add(records.PropStatedIn, records.NewItem(origin.StatedIn))
	}
	if origin.URL != "" {
		ref.Add(records.PropReferenceURL, records.NewString(origin.URL))
	}
	return ref
}

// FindSimilar returns the index of the first reference the matcher judges
// similar, or -1.
func FindSimilar(m Matcher, refs []records.Reference, id string) int {
	for i, ref := range refs {
		if m.IsSimilar(ref, id) {
			return i
		}
	}
	return -1
}

// MatchesPattern reports whether ref is selected by the pattern: every match
// pair is present and, when a URL pattern is set, one of the reference URLs
// matches it.
func MatchesPattern(ref records.Reference, p *facts.Pattern) bool {
	if p == nil {
		return false
	}
	if p.URLMatch == nil && len(p.Match) == 0 {
		return false
	}
	for prop, values := range p.Match {
		for _, v := range values {
			if !ref.Has(prop, v) {
				return false
			}
		}
	}
	if p.URLMatch != nil {
		for _, v := range ref.Values(records.PropReferenceURL) {
			if v.Kind == records.KindString && p.URLMatch.MatchString(v.String) {
				return true
			}
		}
		return false
	}
	return true
}

// FromPattern builds a new reference from a pattern's properties.
func FromPattern(p *facts.Pattern) records.Reference {
	ref := records.NewReference()
	for prop, values := range p.Properties {
		for _, v := range values {
			ref.Add(prop, v)
		}
	}
	return ref
}
