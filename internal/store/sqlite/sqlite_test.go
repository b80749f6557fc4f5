package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/factmap/pkg/errors"
	"github.com/agentstation/factmap/pkg/facts"
	"github.com/agentstation/factmap/pkg/reconciler"
	"github.com/agentstation/factmap/pkg/records"
	"github.com/agentstation/factmap/pkg/sources"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Put(context.Background(), records.NewRecord("Q1")))
	return s
}

func genre(id string, item records.ItemID) *records.Statement {
	return &records.Statement{ID: id, Property: records.PropGenre, Value: records.NewItem(item), Rank: records.RankNormal}
}

func TestAddStatementAndLoad(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	require.NoError(t, s.AddStatement(ctx, "Q1", genre("g1", records.ItemComedy)))
	require.NoError(t, s.AddStatement(ctx, "Q1", genre("g2", records.ItemDrama)))

	err := s.AddStatement(ctx, "Q1", genre("g3", records.ItemComedy))
	assert.True(t, errors.IsStructural(err), "duplicate value rejected: %v", err)

	err = s.AddStatement(ctx, "Q404", genre("g4", records.ItemComedy))
	assert.True(t, errors.IsNotFound(err))

	rec, err := s.Load(ctx, "Q1")
	require.NoError(t, err)
	require.Len(t, rec.Statements[records.PropGenre], 2)
	assert.Equal(t, "g1", rec.Statements[records.PropGenre][0].ID)
	assert.Equal(t, int64(3), rec.Revision)

	_, err = s.Load(ctx, "Q404")
	assert.True(t, errors.IsNotFound(err))
}

func TestMutations(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	require.NoError(t, s.AddStatement(ctx, "Q1", genre("g1", records.ItemComedy)))

	ref := records.NewReference()
	ref.Add(records.PropStatedIn, records.NewItem("Q9001"))
	require.NoError(t, s.AddQualifier(ctx, "Q1", "g1", records.PropLanguage, records.NewItem(records.ItemEnglish)))
	require.NoError(t, s.AddReference(ctx, "Q1", "g1", ref))

	ref.Add(records.PropRetrieved, records.NewTime(2024, 5, 1, records.PrecisionDay))
	require.NoError(t, s.UpdateReference(ctx, "Q1", "g1", 0, ref))
	assert.True(t, errors.IsValidationError(s.UpdateReference(ctx, "Q1", "g1", 3, ref)))

	require.NoError(t, s.SetRank(ctx, "Q1", "g1", records.RankPreferred))
	assert.True(t, errors.IsValidationError(s.SetRank(ctx, "Q1", "g1", "bogus")))
	assert.True(t, errors.IsNotFound(s.SetRank(ctx, "Q1", "missing", records.RankNormal)))

	rec, err := s.Load(ctx, "Q1")
	require.NoError(t, err)
	stmt := rec.Statement("g1")
	require.NotNil(t, stmt)
	assert.Equal(t, records.RankPreferred, stmt.Rank)
	assert.True(t, stmt.HasQualifier(records.PropLanguage, records.NewItem(records.ItemEnglish)))
	require.Len(t, stmt.References, 1)
	assert.Len(t, stmt.References[0].Properties, 2)
}

func TestFindByProperty(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	id := func(v string) *records.Statement {
		return &records.Statement{ID: "id-" + v, Property: "P9001", Value: records.NewString("Y"), Rank: records.RankNormal}
	}

	for _, rid := range []string{"Q3", "Q2"} {
		rec := records.NewRecord(rid)
		rec.Append(id(rid))
		require.NoError(t, s.Put(ctx, rec))
	}

	ids, err := s.FindByProperty(ctx, "P9001", records.NewString("Y"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Q2", "Q3"}, ids)

	require.NoError(t, s.SetRank(ctx, "Q3", "id-Q3", records.RankDeprecated))
	ids, err = s.FindByProperty(ctx, "P9001", records.NewString("Y"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Q2"}, ids)

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Q1", "Q2", "Q3"}, all)
}

func TestMergeIsIdempotentOnDisk(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "factmap.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	require.NoError(t, s.Put(ctx, records.NewRecord("Q1")))

	src := sources.Descriptor{SourceID: "s1", IDProperty: "P9001", StatedIn: "Q9001", URLTemplate: "https://one.example/{id}"}
	m, err := reconciler.New(s)
	require.NoError(t, err)

	p := facts.Statement{
		Property:   records.PropNumberOfParts,
		Value:      records.NewCount(12, records.ItemVolume),
		References: []facts.Reference{facts.Canonical("a")},
	}
	for i, want := range []reconciler.Result{{StatementsAdded: 1, ReferencesAdded: 1}, {}} {
		rec, err := s.Load(ctx, "Q1")
		require.NoError(t, err)
		res, err := m.Merge(ctx, rec, src, p)
		require.NoError(t, err)
		assert.Equal(t, want, res, "run %d", i)
	}
}
