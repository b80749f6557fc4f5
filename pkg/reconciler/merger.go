// Package reconciler merges proposed statements into a record's statement
// graph without creating duplicates.
//
// Each proposed statement is resolved to a merge target (an existing
// statement with an equal value, or a newly created one), after which its
// qualifiers and references are merged onto the target in order. Every
// mutation is committed to the store before it is applied to the in-memory
// record, so the record always reflects committed state. Merging the same
// proposal twice yields a zero Result the second time.
package reconciler

import (
	"context"

	"github.com/agentstation/utc"
	"github.com/rs/zerolog"

	"github.com/agentstation/factmap/pkg/authority"
	"github.com/agentstation/factmap/pkg/errors"
	"github.com/agentstation/factmap/pkg/facts"
	"github.com/agentstation/factmap/pkg/logging"
	"github.com/agentstation/factmap/pkg/provenance"
	"github.com/agentstation/factmap/pkg/records"
	"github.com/agentstation/factmap/pkg/store"
)

// Source is what the merger needs to know about the source a proposal
// comes from.
type Source interface {
	provenance.Matcher
	ID() string
	Property() records.PropertyID
}

// Merger integrates proposed statements into records.
type Merger struct {
	store     store.Store
	authority authority.Authority
	tracker   provenance.Tracker
	now       func() utc.Time
	newID     func() string
}

// New creates a merger committing through st.
func New(st store.Store, opts ...Option) (*Merger, error) {
	if st == nil {
		return nil, errors.NewValidationError("store", nil, "cannot be nil")
	}
	o, err := newOptions(opts...)
	if err != nil {
		return nil, err
	}
	return &Merger{
		store:     st,
		authority: o.authority,
		tracker:   o.tracker,
		now:       o.now,
		newID:     o.newID,
	}, nil
}

// Tracker returns the provenance tracker the merger records into.
func (m *Merger) Tracker() provenance.Tracker {
	return m.tracker
}

// MergeSet merges every statement of a fact set in order. It stops at the
// first error and returns what was merged so far.
func (m *Merger) MergeSet(ctx context.Context, rec *records.Record, src Source, set *facts.Set) (Result, error) {
	var total Result
	for _, proposed := range set.Statements {
		res, err := m.Merge(ctx, rec, src, proposed)
		total.Add(res)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Merge integrates one proposed statement into rec.
func (m *Merger) Merge(ctx context.Context, rec *records.Record, src Source, proposed facts.Statement) (Result, error) {
	var res Result
	s := session{
		Merger: m,
		rec:    rec,
		src:    src,
		id:     identifierOf(proposed),
		res:    &res,
	}
	s.log = *logging.FromContext(logging.WithProperty(ctx, string(proposed.Property)))

	if proposed.Rank == "" {
		proposed.Rank = records.RankNormal
	}

	target, err := s.resolveTarget(ctx, proposed)
	if err != nil || target == nil {
		return res, err
	}
	for _, q := range proposed.Qualifiers {
		if err := s.mergeQualifier(ctx, target, q); err != nil {
			return res, err
		}
	}
	for _, ref := range proposed.References {
		if err := s.mergeReference(ctx, target, ref); err != nil {
			return res, err
		}
	}
	return res, nil
}

// session carries the state of a single Merge call.
type session struct {
	*Merger
	rec *records.Record
	src Source
	id  string
	res *Result
	log zerolog.Logger
}

// resolveTarget returns the statement the proposal merges onto, creating it
// when allowed, or nil when the proposal is skipped.
func (s *session) resolveTarget(ctx context.Context, p facts.Statement) (*records.Statement, error) {
	if !s.rec.Has(p.Property) {
		if p.ReferenceOnly {
			s.log.Debug().Msg("Skipping reference-only statement for absent property")
			return nil, nil
		}
		if !s.authority.CanCreate(s.src.ID(), p.Property) {
			s.log.Debug().Msg("Skipping creation not allowed in restricted mode")
			return nil, nil
		}
		return s.create(ctx, p)
	}

	if existing := s.rec.Find(p.Property, p.Value); existing != nil {
		if rankChangeAllowed(existing.Rank, p) {
			if err := s.store.SetRank(ctx, s.rec.ID, existing.ID, p.Rank); err != nil {
				return nil, err
			}
			s.log.Debug().Str("from", string(existing.Rank)).Str("to", string(p.Rank)).Msg("Changed rank")
			existing.Rank = p.Rank
			s.res.RanksModified++
			s.track(provenance.ActionRankChanged, existing, string(p.Rank))
		}
		return existing, nil
	}

	switch {
	case p.SkipIfConflictingLanguage && s.languageTaken(p):
		s.log.Debug().Str("language", p.Value.Language).Msg("Skipping statement, language already present")
		return nil, nil
	case p.SkipIfConflictingValue:
		s.log.Debug().Str("value", p.Value.Display()).Msg("Skipping statement, conflicting value present")
		return nil, nil
	case p.ReferenceOnly:
		return nil, nil
	case !s.authority.CanCreate(s.src.ID(), p.Property):
		s.log.Debug().Msg("Skipping creation not allowed in restricted mode")
		return nil, nil
	}
	return s.create(ctx, p)
}

func (s *session) languageTaken(p facts.Statement) bool {
	for _, existing := range s.rec.Statements[p.Property] {
		if existing.Value.SameLanguageAs(p.Value) {
			return true
		}
	}
	return false
}

func (s *session) create(ctx context.Context, p facts.Statement) (*records.Statement, error) {
	stmt := &records.Statement{
		ID:       s.newID(),
		Property: p.Property,
		Value:    p.Value,
		Rank:     p.Rank,
	}
	if err := s.store.AddStatement(ctx, s.rec.ID, stmt); err != nil {
		return nil, err
	}
	s.rec.Append(stmt)
	s.res.StatementsAdded++
	s.track(provenance.ActionStatementAdded, stmt, p.Value.Display())
	s.log.Debug().Str("statement", stmt.ID).Str("value", p.Value.Display()).Msg("Added statement")
	return stmt, nil
}

func (s *session) track(action provenance.Action, stmt *records.Statement, value string) {
	s.tracker.Track(s.rec.ID, provenance.Entry{
		Source:     s.src.ID(),
		Identifier: s.id,
		Action:     action,
		Property:   stmt.Property,
		Statement:  stmt.ID,
		Value:      value,
		Timestamp:  s.now(),
	})
}

// rankChangeAllowed decides whether an existing statement takes the
// proposed rank. Deprecated statements are never revived, only withdrawn
// identifiers may deprecate, and a normal proposal carries no opinion.
func rankChangeAllowed(current records.Rank, p facts.Statement) bool {
	switch {
	case current == p.Rank:
		return false
	case current == records.RankDeprecated:
		return false
	case p.Rank == records.RankDeprecated:
		return p.Withdrawn
	case p.Rank == records.RankNormal:
		return false
	}
	return p.Rank.Valid()
}

func identifierOf(p facts.Statement) string {
	for _, ref := range p.References {
		if !ref.IsPattern() {
			return ref.Identifier
		}
	}
	return ""
}
