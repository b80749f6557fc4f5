// Package authority decides which properties a source may create new
// statements for when the engine runs in restricted (automatic) mode.
// Merging qualifiers and references onto existing statements is never
// restricted.
package authority

import (
	"path/filepath"
	"sort"

	"github.com/agentstation/factmap/pkg/records"
)

// Authority answers creation questions for the merge engine.
type Authority interface {
	// CanCreate reports whether source may create a new statement for property
	CanCreate(source string, property records.PropertyID) bool

	// Restricted reports whether creation is limited to allow-lists
	Restricted() bool
}

// Rule allows creation for the properties matched by Pattern. An empty
// Source applies the rule to every source.
type Rule struct {
	Pattern string `json:"pattern" yaml:"pattern"` // e.g. "P136", "P4*"
	Source  string `json:"source,omitempty" yaml:"source,omitempty"`
}

// Policy is the default Authority.
type Policy struct {
	restricted bool
	global     []Rule
	bySource   map[string][]Rule
}

// Option configures a Policy.
type Option func(*Policy)

// WithRestricted turns restricted creation on or off.
func WithRestricted(restricted bool) Option {
	return func(p *Policy) {
		p.restricted = restricted
	}
}

// WithAllowed adds global allow-list patterns.
func WithAllowed(patterns ...string) Option {
	return func(p *Policy) {
		for _, pattern := range patterns {
			p.global = append(p.global, Rule{Pattern: pattern})
		}
	}
}

// WithSourceAllowed adds allow-list patterns for one source.
func WithSourceAllowed(source string, patterns ...string) Option {
	return func(p *Policy) {
		for _, pattern := range patterns {
			p.bySource[source] = append(p.bySource[source], Rule{Pattern: pattern, Source: source})
		}
	}
}

// New creates a policy. Without options it is unrestricted.
func New(opts ...Option) *Policy {
	p := &Policy{bySource: make(map[string][]Rule)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Unrestricted returns a policy that allows every creation.
func Unrestricted() *Policy {
	return New()
}

// Restricted reports whether creation is limited to allow-lists.
func (p *Policy) Restricted() bool {
	return p.restricted
}

// CanCreate reports whether source may create a new statement for property.
func (p *Policy) CanCreate(source string, property records.PropertyID) bool {
	if !p.restricted {
		return true
	}
	return Find(string(property), p.global) != nil || Find(string(property), p.bySource[source]) != nil
}

// List returns every rule that applies to source, global rules first.
func (p *Policy) List(source string) []Rule {
	out := append([]Rule(nil), p.global...)
	return append(out, p.bySource[source]...)
}

// Sources returns the sources that carry their own rules, sorted.
func (p *Policy) Sources() []string {
	out := make([]string, 0, len(p.bySource))
	for s := range p.bySource {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Find returns the most specific rule matching the property, or nil.
func Find(property string, rules []Rule) *Rule {
	var best *Rule
	bestLength := -1
	for i, rule := range rules {
		if MatchesPattern(property, rule.Pattern) && len(rule.Pattern) > bestLength {
			best = &rules[i]
			bestLength = len(rule.Pattern)
		}
	}
	return best
}

// MatchesPattern checks if a property id matches a pattern (supports * wildcards)
func MatchesPattern(property, pattern string) bool {
	if property == pattern {
		return true
	}

	// Handle simple wildcard at the end
	if len(pattern) > 0 && pattern[len(pattern)-1] == '*' {
		prefix := pattern[:len(pattern)-1]
		return len(property) >= len(prefix) && property[:len(prefix)] == prefix
	}

	matched, err := filepath.Match(pattern, property)
	if err != nil {
		return false
	}
	return matched
}
