package facts

import (
	"sort"

	"github.com/agentstation/factmap/pkg/records"
)

// Linkage is a statement whose value is another record, known to the source
// only by one of that record's property values. It is resolved against the
// store before merging.
type Linkage struct {
	// Property receives the linked record as an item value.
	Property records.PropertyID
	// LookupProperty and Value locate the target record.
	LookupProperty records.PropertyID
	Value          string

	// Qualifiers are attached as-is once the linkage is placed.
	Qualifiers []Qualifier
	// QualifierLookups are qualifier values that must themselves be
	// resolved to records.
	QualifierLookups QualifierLookups
	// RequireQualifiers skips placement when no qualifier resolved.
	RequireQualifiers bool
	// AllowDuplicates places every match instead of reporting an anomaly
	// when the lookup is ambiguous.
	AllowDuplicates bool

	References []Reference
}

// QualifierLookups maps qualifier property -> lookup property -> values.
type QualifierLookups map[records.PropertyID]map[records.PropertyID]map[string]struct{}

// Lookup is one flattened entry of QualifierLookups.
type Lookup struct {
	Qualifier      records.PropertyID
	LookupProperty records.PropertyID
	Value          string
}

// Add records a value to resolve for the qualifier through lookup.
func (q *QualifierLookups) Add(qualifier, lookup records.PropertyID, value string) {
	if *q == nil {
		*q = make(QualifierLookups)
	}
	byLookup, ok := (*q)[qualifier]
	if !ok {
		byLookup = make(map[records.PropertyID]map[string]struct{})
		(*q)[qualifier] = byLookup
	}
	values, ok := byLookup[lookup]
	if !ok {
		values = make(map[string]struct{})
		byLookup[lookup] = values
	}
	values[value] = struct{}{}
}

// Merge folds other into q as a set union.
func (q *QualifierLookups) Merge(other QualifierLookups) {
	for qualifier, byLookup := range other {
		for lookup, values := range byLookup {
			for value := range values {
				q.Add(qualifier, lookup, value)
			}
		}
	}
}

// Has reports whether the triple is present.
func (q QualifierLookups) Has(qualifier, lookup records.PropertyID, value string) bool {
	_, ok := q[qualifier][lookup][value]
	return ok
}

// Len returns the number of distinct triples.
func (q QualifierLookups) Len() int {
	n := 0
	for _, byLookup := range q {
		for _, values := range byLookup {
			n += len(values)
		}
	}
	return n
}

// Entries returns every triple in a stable order.
func (q QualifierLookups) Entries() []Lookup {
	out := make([]Lookup, 0, q.Len())
	for qualifier, byLookup := range q {
		for lookup, values := range byLookup {
			for value := range values {
				out = append(out, Lookup{Qualifier: qualifier, LookupProperty: lookup, Value: value})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Qualifier != b.Qualifier {
			return a.Qualifier < b.Qualifier
		}
		if a.LookupProperty != b.LookupProperty {
			return a.LookupProperty < b.LookupProperty
		}
		return a.Value < b.Value
	})
	return out
}
