// Package store defines the backing store contract for records and an
// in-memory implementation.
//
// Every mutating call is an independent commit that advances the record's
// Revision. Commits are replay-safe in the sense that the merge engine never
// issues a mutation whose effect is already present.
package store

import (
	"context"

	"github.com/agentstation/factmap/pkg/records"
)

// Store is the backing store of records.
type Store interface {
	// Load returns a snapshot of the record. Mutating the snapshot has no
	// effect on the store.
	Load(ctx context.Context, recordID string) (*records.Record, error)

	// AddStatement commits a new statement. A second statement with an
	// equal (property, value) is rejected with a StructuralError.
	AddStatement(ctx context.Context, recordID string, stmt *records.Statement) error

	// AddQualifier appends a qualifier value to a statement.
	AddQualifier(ctx context.Context, recordID, statementID string, property records.PropertyID, value records.Value) error

	// AddReference appends a reference to a statement.
	AddReference(ctx context.Context, recordID, statementID string, ref records.Reference) error

	// UpdateReference replaces the reference at index.
	UpdateReference(ctx context.Context, recordID, statementID string, index int, ref records.Reference) error

	// SetRank changes a statement's rank.
	SetRank(ctx context.Context, recordID, statementID string, rank records.Rank) error

	// FindByProperty returns the ids of records holding a non-deprecated
	// statement property=value, sorted.
	FindByProperty(ctx context.Context, property records.PropertyID, value records.Value) ([]string, error)
}

// Writer creates or replaces whole records. It is used to seed a store.
type Writer interface {
	Put(ctx context.Context, rec *records.Record) error
}

// Lister enumerates record ids.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}
