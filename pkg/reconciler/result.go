package reconciler

import "fmt"

// Result counts the net mutations of one or more merges.
type Result struct {
	StatementsAdded int `json:"statements_added" yaml:"statements_added"`
	QualifiersAdded int `json:"qualifiers_added" yaml:"qualifiers_added"`
	ReferencesAdded int `json:"references_added" yaml:"references_added"`
	RanksModified   int `json:"ranks_modified" yaml:"ranks_modified"`
}

// Changed reports whether any mutation happened.
func (r Result) Changed() bool {
	return r.StatementsAdded != 0 || r.QualifiersAdded != 0 || r.ReferencesAdded != 0 || r.RanksModified != 0
}

// Add accumulates other into r.
func (r *Result) Add(other Result) {
	r.StatementsAdded += other.StatementsAdded
	r.QualifiersAdded += other.QualifiersAdded
	r.ReferencesAdded += other.ReferencesAdded
	r.RanksModified += other.RanksModified
}

// String returns a compact summary.
func (r Result) String() string {
	return fmt.Sprintf("statements +%d, qualifiers +%d, references +%d, ranks ~%d",
		r.StatementsAdded, r.QualifiersAdded, r.ReferencesAdded, r.RanksModified)
}
