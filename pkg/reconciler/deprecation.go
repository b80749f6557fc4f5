package reconciler

import (
	"github.com/agentstation/factmap/pkg/facts"
	"github.com/agentstation/factmap/pkg/records"
)

// Deprecation builds the proposal for a source identifier that no longer
// resolves upstream: the identifier statement itself, deprecated, with the
// "withdrawn identifier value" reason and the source's canonical reference.
// It is merged like any other proposal, so repeating it is a no-op.
func Deprecation(src Source, id string) facts.Statement {
	return facts.Statement{
		Property:  src.Property(),
		Value:     records.NewString(id),
		Rank:      records.RankDeprecated,
		Withdrawn: true,
		// An identifier the record does not hold is not recreated.
		ReferenceOnly: true,
		Qualifiers: []facts.Qualifier{{
			Property: records.PropDeprecatedReason,
			Value:    records.NewItem(records.ItemWithdrawnID),
		}},
		References: []facts.Reference{facts.Canonical(id)},
	}
}
