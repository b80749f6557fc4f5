// Package linkage resolves deferred linkages into proposed statements.
//
// A linkage names its target record by one of that record's property
// values. The resolver looks the value up in the store: no match drops the
// linkage, a single match yields one statement, and several matches are
// reported as an anomaly unless duplicates are allowed, in which case every
// match yields a statement. Qualifier lookups are resolved the same way.
package linkage

import (
	"context"
	"fmt"

	"github.com/agentstation/factmap/pkg/anomaly"
	"github.com/agentstation/factmap/pkg/errors"
	"github.com/agentstation/factmap/pkg/facts"
	"github.com/agentstation/factmap/pkg/logging"
	"github.com/agentstation/factmap/pkg/records"
)

// Finder looks up records by a property value.
type Finder interface {
	FindByProperty(ctx context.Context, property records.PropertyID, value records.Value) ([]string, error)
}

// Resolver turns linkages into proposed statements.
type Resolver struct {
	finder Finder
	sink   anomaly.Sink
}

// New creates a resolver. A nil sink drops anomaly reports.
func New(finder Finder, sink anomaly.Sink) *Resolver {
	if sink == nil {
		sink = anomaly.NewCounter(nil)
	}
	return &Resolver{finder: finder, sink: sink}
}

// ResolveSet resolves every linkage of set, in order.
func (r *Resolver) ResolveSet(ctx context.Context, set *facts.Set) ([]facts.Statement, error) {
	var out []facts.Statement
	for _, l := range set.Linkages {
		stmts, err := r.Resolve(ctx, set.Source, set.Identifier, l)
		if err != nil {
			return out, err
		}
		out = append(out, stmts...)
	}
	return out, nil
}

// Resolve resolves one linkage on behalf of source's identifier.
func (r *Resolver) Resolve(ctx context.Context, source, identifier string, l facts.Linkage) ([]facts.Statement, error) {
	log := logging.FromContext(ctx).With().
		Str("property", string(l.Property)).
		Str("lookup", string(l.LookupProperty)).
		Str("value", l.Value).
		Logger()

	targets, err := r.lookup(ctx, source, identifier, l.LookupProperty, l.Value, l.AllowDuplicates)
	if err != nil || len(targets) == 0 {
		return nil, err
	}

	qualifiers := append([]facts.Qualifier(nil), l.Qualifiers...)
	resolved := 0
	for _, e := range l.QualifierLookups.Entries() {
		ids, err := r.lookup(ctx, source, identifier, e.LookupProperty, e.Value, l.AllowDuplicates)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			qualifiers = append(qualifiers, facts.Qualifier{Property: e.Qualifier, Value: records.NewItem(records.ItemID(id))})
			resolved++
		}
	}
	if l.RequireQualifiers && resolved == 0 {
		log.Debug().Msg("Skipping linkage, no qualifier resolved")
		return nil, nil
	}

	out := make([]facts.Statement, 0, len(targets))
	for _, id := range targets {
		out = append(out, facts.Statement{
			Property:   l.Property,
			Value:      records.NewItem(records.ItemID(id)),
			Rank:       records.RankNormal,
			Qualifiers: qualifiers,
			References: append([]facts.Reference(nil), l.References...),
		})
	}
	log.Debug().Int("targets", len(out)).Msg("Resolved linkage")
	return out, nil
}

// lookup returns the records matching property=value. An ambiguous match
// without allowDuplicates is reported and yields nothing.
func (r *Resolver) lookup(ctx context.Context, source, identifier string, property records.PropertyID, value string, allowDuplicates bool) ([]string, error) {
	ids, err := r.finder.FindByProperty(ctx, property, records.NewString(value))
	if err != nil {
		return nil, errors.WrapResource("lookup", "record", fmt.Sprintf("%s=%s", property, value), err)
	}
	if len(ids) <= 1 || allowDuplicates {
		return ids, nil
	}

	ambiguous := &errors.AmbiguousError{Property: string(property), Value: value, Candidates: ids}
	report := anomaly.New(source, identifier, ambiguous.Error(), map[string]any{
		"property":   string(property),
		"value":      value,
		"candidates": ids,
	})
	if err := r.sink.Report(ctx, report); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Msg("Failed to deliver anomaly report")
	}
	return nil, nil
}
