package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/agentstation/factmap/pkg/errors"
	"github.com/agentstation/factmap/pkg/records"
)

// Memory is a Store kept in process memory.
type Memory struct {
	mu      sync.RWMutex
	records map[string]*records.Record
}

// NewMemory creates an in-memory store seeded with copies of recs.
func NewMemory(recs ...*records.Record) *Memory {
	m := &Memory{records: make(map[string]*records.Record)}
	for _, rec := range recs {
		m.records[rec.ID] = rec.Clone()
	}
	return m
}

// Put creates or replaces a record.
func (m *Memory) Put(_ context.Context, rec *records.Record) error {
	if rec == nil || rec.ID == "" {
		return errors.NewValidationError("id", nil, "record id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := rec.Clone()
	if existing, ok := m.records[rec.ID]; ok && clone.Revision <= existing.Revision {
		clone.Revision = existing.Revision + 1
	}
	m.records[rec.ID] = clone
	return nil
}

// List returns every record id, sorted.
func (m *Memory) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Load returns a copy of the record.
func (m *Memory) Load(_ context.Context, recordID string) (*records.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[recordID]
	if !ok {
		return nil, errors.NewNotFoundError("record", recordID)
	}
	return rec.Clone(), nil
}

// AddStatement commits a new statement.
func (m *Memory) AddStatement(_ context.Context, recordID string, stmt *records.Statement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.record(recordID)
	if err != nil {
		return err
	}
	if stmt.ID == "" {
		return errors.NewStructuralError(recordID, string(stmt.Property), stmt.Value.Key(), "statement id is required")
	}
	if rec.Find(stmt.Property, stmt.Value) != nil {
		return errors.NewStructuralError(recordID, string(stmt.Property), stmt.Value.Key(), "statement with equal value already exists")
	}
	if rec.Statement(stmt.ID) != nil {
		return errors.NewStructuralError(recordID, string(stmt.Property), stmt.Value.Key(), fmt.Sprintf("statement id %s already exists", stmt.ID))
	}
	rec.Append(stmt.Clone())
	rec.Revision++
	return nil
}

// AddQualifier appends a qualifier value to a statement.
func (m *Memory) AddQualifier(_ context.Context, recordID, statementID string, property records.PropertyID, value records.Value) error {
	return m.mutate(recordID, statementID, func(s *records.Statement) error {
		if s.Qualifiers == nil {
			s.Qualifiers = make(map[records.PropertyID][]records.Value)
		}
		s.Qualifiers[property] = append(s.Qualifiers[property], value)
		return nil
	})
}

// AddReference appends a reference to a statement.
func (m *Memory) AddReference(_ context.Context, recordID, statementID string, ref records.Reference) error {
	return m.mutate(recordID, statementID, func(s *records.Statement) error {
		s.References = append(s.References, ref.Clone())
		return nil
	})
}

// UpdateReference replaces the reference at index.
func (m *Memory) UpdateReference(_ context.Context, recordID, statementID string, index int, ref records.Reference) error {
	return m.mutate(recordID, statementID, func(s *records.Statement) error {
		if index < 0 || index >= len(s.References) {
			return errors.NewNotFoundError("reference", fmt.Sprintf("%s#%d", statementID, index))
		}
		s.References[index] = ref.Clone()
		return nil
	})
}

// SetRank changes a statement's rank.
func (m *Memory) SetRank(_ context.Context, recordID, statementID string, rank records.Rank) error {
	if !rank.Valid() {
		return errors.NewValidationError("rank", rank, "unknown rank")
	}
	return m.mutate(recordID, statementID, func(s *records.Statement) error {
		s.Rank = rank
		return nil
	})
}

// FindByProperty returns the ids of records holding property=value.
func (m *Memory) FindByProperty(_ context.Context, property records.PropertyID, value records.Value) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, rec := range m.records {
		if s := rec.Find(property, value); s != nil && s.Rank != records.RankDeprecated {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) record(recordID string) (*records.Record, error) {
	rec, ok := m.records[recordID]
	if !ok {
		return nil, errors.NewNotFoundError("record", recordID)
	}
	return rec, nil
}

func (m *Memory) mutate(recordID, statementID string, fn func(*records.Statement) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.record(recordID)
	if err != nil {
		return err
	}
	s := rec.Statement(statementID)
	if s == nil {
		return errors.NewNotFoundError("statement", statementID)
	}
	if err := fn(s); err != nil {
		return err
	}
	rec.Revision++
	return nil
}
