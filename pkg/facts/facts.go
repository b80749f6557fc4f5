// Package facts defines the proposed facts a source contributes to a record
// before they are merged: statements with their conflict policy, qualifiers,
// references and deferred linkages.
package facts

import (
	"regexp"

	"github.com/agentstation/factmap/pkg/records"
)

// Qualifier is a proposed qualifier value for a statement.
type Qualifier struct {
	Property records.PropertyID
	Value    records.Value
	// SkipIfConflicting skips the qualifier when the property already holds
	// any value on the target statement.
	SkipIfConflicting bool
}

// Pattern selects an existing reference structurally instead of through the
// source's canonical identity check.
type Pattern struct {
	// URLMatch, when set, must match one of the reference URLs.
	URLMatch *regexp.Regexp
	// Match pairs must all be present on the reference.
	Match map[records.PropertyID][]records.Value
	// Properties are merged into the matched reference, or form a new one.
	Properties map[records.PropertyID][]records.Value
}

// Reference is a proposed reference. It is canonical (attributed to the
// merging source for Identifier) unless Pattern is set.
type Reference struct {
	Identifier string
	Pattern    *Pattern
}

// Canonical returns a canonical reference for the given source identifier.
func Canonical(identifier string) Reference {
	return Reference{Identifier: identifier}
}

// IsPattern reports whether r is a pattern reference.
func (r Reference) IsPattern() bool {
	return r.Pattern != nil
}

// Statement is a candidate statement awaiting merge.
type Statement struct {
	Property records.PropertyID
	Value    records.Value
	Rank     records.Rank

	SkipIfConflictingValue    bool
	SkipIfConflictingLanguage bool
	// ReferenceOnly never creates a statement; it only adds provenance to an
	// existing equal one.
	ReferenceOnly bool
	// Withdrawn marks the deprecation of a dead source identifier. It is the
	// only proposal allowed to demote an existing statement.
	Withdrawn bool

	Qualifiers []Qualifier
	References []Reference
}

// WithReference returns a copy of s with ref appended.
func (s Statement) WithReference(ref Reference) Statement {
	s.References = append(append([]Reference(nil), s.References...), ref)
	return s
}

// Set is the normalized output of one source for one identifier.
type Set struct {
	Source     string
	Identifier string
	Statements []Statement
	Linkages   []Linkage
}

// Len returns the number of proposed statements.
func (s *Set) Len() int {
	return len(s.Statements)
}
