package reconciler

import (
	"context"

	"github.com/agentstation/factmap/pkg/facts"
	"github.com/agentstation/factmap/pkg/provenance"
	"github.com/agentstation/factmap/pkg/records"
)

// mergeQualifier appends q unless an equal value exists, or the property
// already has a value and q asks to skip on conflict.
func (s *session) mergeQualifier(ctx context.Context, target *records.Statement, q facts.Qualifier) error {
	if target.HasQualifier(q.Property, q.Value) {
		return nil
	}
	if q.SkipIfConflicting && len(target.Qualifiers[q.Property]) > 0 {
		return nil
	}
	if err := s.store.AddQualifier(ctx, s.rec.ID, target.ID, q.Property, q.Value); err != nil {
		return err
	}
	if target.Qualifiers == nil {
		target.Qualifiers = make(map[records.PropertyID][]records.Value)
	}
	target.Qualifiers[q.Property] = append(target.Qualifiers[q.Property], q.Value)
	s.res.QualifiersAdded++
	s.track(provenance.ActionQualifierAdded, target, string(q.Property)+"="+q.Value.Display())
	return nil
}
