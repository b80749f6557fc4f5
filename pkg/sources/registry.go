package sources

import (
	"fmt"

	"github.com/agentstation/factmap/pkg/errors"
	"github.com/agentstation/factmap/pkg/records"
)

// Registry is an ordered, immutable set of sources. The order is the order
// sources are reconciled in every pass.
type Registry struct {
	sources    []Source
	byID       map[string]Source
	byProperty map[records.PropertyID]Source
}

// NewRegistry creates a registry. Source ids and identifier properties must
// be unique.
func NewRegistry(srcs ...Source) (*Registry, error) {
	r := &Registry{
		byID:       make(map[string]Source, len(srcs)),
		byProperty: make(map[records.PropertyID]Source, len(srcs)),
	}
	for _, src := range srcs {
		if src == nil {
			continue
		}
		if src.ID() == "" || src.Property() == "" {
			return nil, errors.NewValidationError("source", src.ID(), "source needs an id and an identifier property")
		}
		if _, dup := r.byID[src.ID()]; dup {
			return nil, errors.NewValidationError("source", src.ID(), fmt.Sprintf("duplicate source id %q", src.ID()))
		}
		if other, dup := r.byProperty[src.Property()]; dup {
			return nil, errors.NewValidationError("source", src.ID(),
				fmt.Sprintf("property %s already owned by %q", src.Property(), other.ID()))
		}
		r.sources = append(r.sources, src)
		r.byID[src.ID()] = src
		r.byProperty[src.Property()] = src
	}
	return r, nil
}

// List returns the sources in registry order.
func (r *Registry) List() []Source {
	return append([]Source(nil), r.sources...)
}

// Get returns a source by id.
func (r *Registry) Get(id string) (Source, bool) {
	src, ok := r.byID[id]
	return src, ok
}

// ByProperty returns the source owning an identifier property.
func (r *Registry) ByProperty(p records.PropertyID) (Source, bool) {
	src, ok := r.byProperty[p]
	return src, ok
}

// IDs returns the source ids in registry order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.sources))
	for _, src := range r.sources {
		ids = append(ids, src.ID())
	}
	return ids
}

// Len returns the number of sources.
func (r *Registry) Len() int {
	return len(r.sources)
}
