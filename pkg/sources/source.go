// Package sources defines the contract for external sources of facts and the
// ordered registry the orchestrator walks.
//
// A source is keyed by the identifier property it owns on a record: a record
// holding "P4087=2" is reconciled against the MyAnimeList source for id "2".
//
// Example usage:
//
//	registry, err := sources.NewRegistry(mal, anilist)
//	if err != nil {
//	    return err
//	}
//	for _, src := range registry.List() {
//	    payload, err := src.Get(ctx, "2", record)
//	    ...
//	}
package sources

import (
	"context"

	"github.com/agentstation/factmap/pkg/normalize"
	"github.com/agentstation/factmap/pkg/provenance"
	"github.com/agentstation/factmap/pkg/records"
)

// Source is an external provider of facts about records.
type Source interface {
	provenance.Matcher

	// ID returns the stable source id, e.g. "mal"
	ID() string

	// Name returns the human readable name
	Name() string

	// Property returns the identifier property the source owns
	Property() records.PropertyID

	// Get fetches the payload for an identifier. A removed identifier is
	// reported with an errors.NotFoundError; retryable failures satisfy
	// errors.IsTransient.
	Get(ctx context.Context, id string, snapshot *records.Record) (*normalize.Payload, error)
}
