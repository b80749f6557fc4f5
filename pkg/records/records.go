// Package records defines the statement graph of a catalog record: typed
// values, ranked statements with qualifiers and references, and the record
// that owns them.
package records

import (
	"sort"
)

// PropertyID identifies a property such as "P136".
type PropertyID string

// ItemID identifies a catalog item such as "Q4044680".
type ItemID string

// Rank of a statement.
type Rank string

// Statement ranks.
const (
	RankPreferred  Rank = "preferred"
	RankNormal     Rank = "normal"
	RankDeprecated Rank = "deprecated"
)

// Valid reports whether r is a known rank.
func (r Rank) Valid() bool {
	switch r {
	case RankPreferred, RankNormal, RankDeprecated:
		return true
	}
	return false
}

// Reference is a provenance record attached to a statement.
type Reference struct {
	Properties map[PropertyID][]Value `json:"properties" yaml:"properties"`
}

// NewReference creates an empty reference.
func NewReference() Reference {
	return Reference{Properties: make(map[PropertyID][]Value)}
}

// Values returns the values of a reference property.
func (r Reference) Values(p PropertyID) []Value {
	return r.Properties[p]
}

// Has reports whether the reference holds v under p.
func (r Reference) Has(p PropertyID, v Value) bool {
	return ContainsValue(r.Properties[p], v)
}

// Add appends v under p unless an equal value is already present. It
// reports whether the reference changed.
func (r *Reference) Add(p PropertyID, v Value) bool {
	if r.Properties == nil {
		r.Properties = make(map[PropertyID][]Value)
	}
	if r.Has(p, v) {
		return false
	}
	r.Properties[p] = append(r.Properties[p], v)
	return true
}

// Clone returns a deep copy.
func (r Reference) Clone() Reference {
	out := Reference{Properties: make(map[PropertyID][]Value, len(r.Properties))}
	for p, vs := range r.Properties {
		out.Properties[p] = append([]Value(nil), vs...)
	}
	return out
}

// Statement is one (property, value) claim about a record.
type Statement struct {
	ID         string                 `json:"id" yaml:"id"`
	Property   PropertyID             `json:"property" yaml:"property"`
	Value      Value                  `json:"value" yaml:"value"`
	Rank       Rank                   `json:"rank" yaml:"rank"`
	Qualifiers map[PropertyID][]Value `json:"qualifiers,omitempty" yaml:"qualifiers,omitempty"`
	References []Reference            `json:"references,omitempty" yaml:"references,omitempty"`
}

// HasQualifier reports whether the statement holds qualifier p=v.
func (s *Statement) HasQualifier(p PropertyID, v Value) bool {
	return ContainsValue(s.Qualifiers[p], v)
}

// Clone returns a deep copy.
func (s *Statement) Clone() *Statement {
	out := &Statement{
		ID:       s.ID,
		Property: s.Property,
		Value:    s.Value,
		Rank:     s.Rank,
	}
	if s.Qualifiers != nil {
		out.Qualifiers = make(map[PropertyID][]Value, len(s.Qualifiers))
		for p, vs := range s.Qualifiers {
			out.Qualifiers[p] = append([]Value(nil), vs...)
		}
	}
	for _, ref := range s.References {
		out.References = append(out.References, ref.Clone())
	}
	return out
}

// Record is the shared structured record for one catalog entity.
type Record struct {
	ID string `json:"id" yaml:"id"`
	// Revision is the store's change token; it grows with every commit.
	Revision   int64                       `json:"revision" yaml:"revision"`
	Statements map[PropertyID][]*Statement `json:"statements" yaml:"statements"`
}

// NewRecord creates an empty record.
func NewRecord(id string) *Record {
	return &Record{ID: id, Statements: make(map[PropertyID][]*Statement)}
}

// Has reports whether the record holds any statement for p.
func (r *Record) Has(p PropertyID) bool {
	return len(r.Statements[p]) > 0
}

// Find returns the statement for (p, v), or nil.
func (r *Record) Find(p PropertyID, v Value) *Statement {
	for _, s := range r.Statements[p] {
		if s.Value.Equal(v) {
			return s
		}
	}
	return nil
}

// Statement returns the statement with the given id, or nil.
func (r *Record) Statement(id string) *Statement {
	for _, list := range r.Statements {
		for _, s := range list {
			if s.ID == id {
				return s
			}
		}
	}
	return nil
}

// Append adds a statement at the end of its property list.
func (r *Record) Append(s *Statement) {
	if r.Statements == nil {
		r.Statements = make(map[PropertyID][]*Statement)
	}
	r.Statements[s.Property] = append(r.Statements[s.Property], s)
}

// Properties returns the record's properties in sorted order.
func (r *Record) Properties() []PropertyID {
	props := make([]PropertyID, 0, len(r.Statements))
	for p := range r.Statements {
		props = append(props, p)
	}
	sort.Slice(props, func(i, j int) bool { return props[i] < props[j] })
	return props
}

// StringValues returns the string literals stated under p, in order,
// regardless of rank.
func (r *Record) StringValues(p PropertyID) []string {
	var out []string
	for _, s := range r.Statements[p] {
		if s.Value.Kind == KindString {
			out = append(out, s.Value.String)
		}
	}
	return out
}

// Count returns the total number of statements.
func (r *Record) Count() int {
	n := 0
	for _, list := range r.Statements {
		n += len(list)
	}
	return n
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	out := &Record{ID: r.ID, Revision: r.Revision, Statements: make(map[PropertyID][]*Statement, len(r.Statements))}
	for p, list := range r.Statements {
		cloned := make([]*Statement, 0, len(list))
		for _, s := range list {
			cloned = append(cloned, s.Clone())
		}
		out.Statements[p] = cloned
	}
	return out
}
