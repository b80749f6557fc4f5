package reconciler

import (
	"context"
	"sort"

	"github.com/agentstation/factmap/pkg/facts"
	"github.com/agentstation/factmap/pkg/provenance"
	"github.com/agentstation/factmap/pkg/records"
)

func (s *session) mergeReference(ctx context.Context, target *records.Statement, ref facts.Reference) error {
	if ref.IsPattern() {
		return s.mergePattern(ctx, target, ref.Pattern)
	}
	if provenance.FindSimilar(s.src, target.References, ref.Identifier) >= 0 {
		return nil
	}
	built := provenance.Build(s.src.Origin(ref.Identifier), s.now())
	if err := s.store.AddReference(ctx, s.rec.ID, target.ID, built); err != nil {
		return err
	}
	target.References = append(target.References, built)
	s.res.ReferencesAdded++
	s.track(provenance.ActionReferenceAdded, target, s.src.Origin(ref.Identifier).URL)
	return nil
}

// mergePattern merges the pattern's properties that a matching reference
// lacks entirely, or attaches a new reference when none matches. Properties
// already present on the matched reference are left untouched.
func (s *session) mergePattern(ctx context.Context, target *records.Statement, p *facts.Pattern) error {
	for i, existing := range target.References {
		if !provenance.MatchesPattern(existing, p) {
			continue
		}
		merged := existing.Clone()
		changed := false
		for _, prop := range sortedProps(p.Properties) {
			if len(merged.Properties[prop]) > 0 {
				continue
			}
			for _, v := range p.Properties[prop] {
				if merged.Add(prop, v) {
					changed = true
				}
			}
		}
		if !changed {
			return nil
		}
		if err := s.store.UpdateReference(ctx, s.rec.ID, target.ID, i, merged); err != nil {
			return err
		}
		target.References[i] = merged
		s.res.ReferencesAdded++
		s.track(provenance.ActionReferenceMerge, target, "")
		return nil
	}

	built := provenance.FromPattern(p)
	if len(built.Properties) == 0 {
		return nil
	}
	if err := s.store.AddReference(ctx, s.rec.ID, target.ID, built); err != nil {
		return err
	}
	target.References = append(target.References, built)
	s.res.ReferencesAdded++
	s.track(provenance.ActionReferenceAdded, target, "")
	return nil
}

func sortedProps(m map[records.PropertyID][]records.Value) []records.PropertyID {
	props := make([]records.PropertyID, 0, len(m))
	for p := range m {
		props = append(props, p)
	}
	sort.Slice(props, func(i, j int) bool { return props[i] < props[j] })
	return props
}
