package sync

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/factmap/pkg/anomaly"
	"github.com/agentstation/factmap/pkg/errors"
	"github.com/agentstation/factmap/pkg/facts"
	"github.com/agentstation/factmap/pkg/normalize"
	"github.com/agentstation/factmap/pkg/records"
	"github.com/agentstation/factmap/pkg/sources"
	"github.com/agentstation/factmap/pkg/store"
)

type fakeSource struct {
	sources.Descriptor
	get   func(call int, id string) (*normalize.Payload, error)
	calls map[string]int
}

func newFake(id string, property records.PropertyID, get func(call int, id string) (*normalize.Payload, error)) *fakeSource {
	return &fakeSource{
		Descriptor: sources.Descriptor{
			SourceID:    id,
			IDProperty:  property,
			StatedIn:    records.ItemID("Q" + string(property[1:])),
			URLTemplate: "https://" + id + ".example/work/{id}",
		},
		get:   get,
		calls: make(map[string]int),
	}
}

func (f *fakeSource) Get(_ context.Context, id string, _ *records.Record) (*normalize.Payload, error) {
	f.calls[id]++
	return f.get(f.calls[id], id)
}

func payload(p normalize.Payload) func(int, string) (*normalize.Payload, error) {
	return func(int, string) (*normalize.Payload, error) { return &p, nil }
}

func seededRecord(ids ...string) *records.Record {
	rec := records.NewRecord("Q1")
	for _, id := range ids {
		rec.Append(&records.Statement{ID: "id-" + id, Property: "P9001", Value: records.NewString(id), Rank: records.RankNormal})
	}
	return rec
}

func newOrchestrator(t *testing.T, st store.Store, srcs []sources.Source, opts ...Option) *Orchestrator {
	t.Helper()
	reg, err := sources.NewRegistry(srcs...)
	require.NoError(t, err)
	o, err := New(reg, st, append([]Option{WithRetry(3, 0), WithAnomalySink(anomaly.NewMemory())}, opts...)...)
	require.NoError(t, err)
	return o
}

func TestRunConverges(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(seededRecord("a"))
	s1 := newFake("s1", "P9001", payload(normalize.Payload{
		Genres:      []records.ItemID{records.ItemComedy},
		Identifiers: map[records.PropertyID][]string{"P9002": {"b"}},
	}))
	s2 := newFake("s2", "P9002", payload(normalize.Payload{Volumes: 10}))

	res, err := newOrchestrator(t, st, []sources.Source{s1, s2}).Run(ctx, "Q1")
	require.NoError(t, err)

	assert.Equal(t, StateDone, res.State)
	assert.Len(t, res.Passes, 2)
	assert.Equal(t, 3, res.Totals.StatementsAdded)
	assert.Equal(t, 3, res.Totals.ReferencesAdded)
	assert.Equal(t, 6, res.Provenance.Count())
	assert.Equal(t, 2, s2.calls["b"], "identifier discovered in pass 1 is used in the same pass")
	assert.False(t, res.HasErrors())

	rec, err := st.Load(ctx, "Q1")
	require.NoError(t, err)
	assert.True(t, rec.Has(records.PropNumberOfParts))
	assert.NotNil(t, rec.Find(records.PropGenre, records.NewItem(records.ItemComedy)))

	again, err := newOrchestrator(t, st, []sources.Source{s1, s2}).Run(ctx, "Q1")
	require.NoError(t, err)
	assert.Len(t, again.Passes, 1)
	assert.False(t, again.Totals.Changed())
}

func TestSeedChangesDoNotRepeat(t *testing.T) {
	st := store.NewMemory(seededRecord("a"))
	s1 := newFake("s1", "P9001", payload(normalize.Payload{Genres: []records.ItemID{records.ItemDrama}}))

	res, err := newOrchestrator(t, st, []sources.Source{s1}, WithSeedSource("s1")).Run(context.Background(), "Q1")
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Len(t, res.Passes, 1)
	assert.Equal(t, 1, res.Totals.StatementsAdded)
}

func TestRemovedIdentifierIsDeprecated(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(seededRecord("a"))
	s1 := newFake("s1", "P9001", func(int, string) (*normalize.Payload, error) {
		return nil, errors.NewNotFoundError("identifier", "a")
	})

	res, err := newOrchestrator(t, st, []sources.Source{s1}).Run(ctx, "Q1")
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 1, res.Passes[0].Sources[0].Deprecated)
	assert.Equal(t, 0, res.Passes[1].Sources[0].Deprecated)

	rec, err := st.Load(ctx, "Q1")
	require.NoError(t, err)
	stmt := rec.Find("P9001", records.NewString("a"))
	require.NotNil(t, stmt)
	assert.Equal(t, records.RankDeprecated, stmt.Rank)
	assert.True(t, stmt.HasQualifier(records.PropDeprecatedReason, records.NewItem(records.ItemWithdrawnID)))
}

func TestTransientFailures(t *testing.T) {
	t.Run("recovered by retry", func(t *testing.T) {
		st := store.NewMemory(seededRecord("a"))
		s1 := newFake("s1", "P9001", func(call int, _ string) (*normalize.Payload, error) {
			if call < 3 {
				return nil, errors.NewAPIError("s1", 503, "maintenance")
			}
			return &normalize.Payload{Genres: []records.ItemID{records.ItemDrama}}, nil
		})

		res, err := newOrchestrator(t, st, []sources.Source{s1}, WithSeedSource("s1")).Run(context.Background(), "Q1")
		require.NoError(t, err)
		assert.Equal(t, 3, s1.calls["a"])
		assert.Equal(t, 1, res.Totals.StatementsAdded)
		assert.False(t, res.HasErrors())
	})

	t.Run("exhausted abandons the source for the pass", func(t *testing.T) {
		st := store.NewMemory(seededRecord("a", "b"))
		s1 := newFake("s1", "P9001", func(int, string) (*normalize.Payload, error) {
			return nil, errors.NewAPIError("s1", 429, "slow down")
		})

		res, err := newOrchestrator(t, st, []sources.Source{s1}, WithRetry(2, 0)).Run(context.Background(), "Q1")
		require.NoError(t, err)
		assert.Equal(t, StateDone, res.State)
		assert.Equal(t, 2, s1.calls["a"])
		assert.Equal(t, 0, s1.calls["b"])
		require.Len(t, res.Passes[0].Sources[0].Errors, 1)
		assert.True(t, errors.IsRateLimited(res.Passes[0].Sources[0].Errors[0]))
		assert.True(t, res.HasErrors())
	})
}

// lostAckStore commits the first statement and then reports a transient
// failure, as a store does when the response to a successful write is lost.
type lostAckStore struct {
	*store.Memory
	failed bool
}

func (l *lostAckStore) AddStatement(ctx context.Context, recordID string, stmt *records.Statement) error {
	if err := l.Memory.AddStatement(ctx, recordID, stmt); err != nil {
		return err
	}
	if !l.failed {
		l.failed = true
		return errors.WrapTransient("add statement", context.DeadlineExceeded)
	}
	return nil
}

func TestRetryAfterCommittedWrite(t *testing.T) {
	st := &lostAckStore{Memory: store.NewMemory(seededRecord("a"))}
	s1 := newFake("s1", "P9001", payload(normalize.Payload{Genres: []records.ItemID{records.ItemDrama}}))

	res, err := newOrchestrator(t, st, []sources.Source{s1}, WithSeedSource("s1")).Run(context.Background(), "Q1")
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 2, s1.calls["a"])
	assert.Equal(t, 1, res.Totals.ReferencesAdded)
	assert.False(t, res.HasErrors())

	rec, err := st.Load(context.Background(), "Q1")
	require.NoError(t, err)
	require.Len(t, rec.Statements[records.PropGenre], 1)
	assert.Len(t, rec.Statements[records.PropGenre][0].References, 1)
}

func TestPermanentErrorSkipsIdentifier(t *testing.T) {
	st := store.NewMemory(seededRecord("a", "b"))
	s1 := newFake("s1", "P9001", func(_ int, id string) (*normalize.Payload, error) {
		if id == "a" {
			return nil, errors.NewAPIError("s1", 400, "bad request")
		}
		return &normalize.Payload{Genres: []records.ItemID{records.ItemDrama}}, nil
	})

	res, err := newOrchestrator(t, st, []sources.Source{s1}, WithSeedSource("s1")).Run(context.Background(), "Q1")
	require.NoError(t, err)
	assert.Equal(t, 1, s1.calls["a"], "permanent errors are not retried")
	assert.Equal(t, 1, s1.calls["b"])
	assert.Len(t, res.Passes[0].Sources[0].Errors, 1)
	assert.Equal(t, 1, res.Totals.StatementsAdded)
}

type rejectingStore struct{ *store.Memory }

func (rejectingStore) AddStatement(_ context.Context, recordID string, stmt *records.Statement) error {
	return errors.NewStructuralError(recordID, string(stmt.Property), stmt.Value.Key(), "rejected")
}

func TestStructuralErrorAborts(t *testing.T) {
	st := rejectingStore{store.NewMemory(seededRecord("a"))}
	s1 := newFake("s1", "P9001", payload(normalize.Payload{Genres: []records.ItemID{records.ItemDrama}}))
	s2 := newFake("s2", "P9002", payload(normalize.Payload{}))

	res, err := newOrchestrator(t, st, []sources.Source{s1, s2}).Run(context.Background(), "Q1")
	require.Error(t, err)
	assert.True(t, errors.IsStructural(err))
	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, 1, s1.calls["a"], "structural errors are not retried")
	assert.Contains(t, res.Summary(), "aborted")
}

type frozenStore struct{ *store.Memory }

func (f frozenStore) Load(ctx context.Context, id string) (*records.Record, error) {
	rec, err := f.Memory.Load(ctx, id)
	if rec != nil {
		rec.Revision = 7
	}
	return rec, err
}

func TestStallGuard(t *testing.T) {
	st := frozenStore{store.NewMemory(seededRecord("a"))}
	s1 := newFake("s1", "P9001", payload(normalize.Payload{Genres: []records.ItemID{records.ItemDrama}}))

	res, err := newOrchestrator(t, st, []sources.Source{s1}).Run(context.Background(), "Q1")
	require.NoError(t, err)
	assert.Equal(t, StateStalled, res.State)
	assert.Len(t, res.Passes, 1)
}

func TestPassLimit(t *testing.T) {
	st := store.NewMemory(seededRecord("a"))
	s1 := newFake("s1", "P9001", func(call int, _ string) (*normalize.Payload, error) {
		return &normalize.Payload{Genres: []records.ItemID{records.ItemID(fmt.Sprintf("Q%d", 100+call))}}, nil
	})

	res, err := newOrchestrator(t, st, []sources.Source{s1}, WithMaxPasses(3)).Run(context.Background(), "Q1")
	require.NoError(t, err)
	assert.Equal(t, StateExhausted, res.State)
	assert.Len(t, res.Passes, 3)
	assert.Equal(t, 3, res.Totals.StatementsAdded)
}

func TestAmbiguousLinkageCounted(t *testing.T) {
	target := func(id string) *records.Record {
		rec := records.NewRecord(id)
		rec.Append(&records.Statement{ID: id + "-x", Property: "P9100", Value: records.NewString("Y"), Rank: records.RankNormal})
		return rec
	}
	st := store.NewMemory(seededRecord("a"), target("Q2"), target("Q3"))
	s1 := newFake("s1", "P9001", payload(normalize.Payload{
		Linkages: []facts.Linkage{{Property: "P50", LookupProperty: "P9100", Value: "Y"}},
	}))
	sink := anomaly.NewMemory()

	res, err := newOrchestrator(t, st, []sources.Source{s1}, WithAnomalySink(sink)).Run(context.Background(), "Q1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Anomalies)
	assert.Equal(t, 1, sink.Len())
	assert.False(t, res.Totals.Changed())
}

func TestRunAbortsOnLoadAndCancel(t *testing.T) {
	st := store.NewMemory(seededRecord("a"))
	s1 := newFake("s1", "P9001", payload(normalize.Payload{}))
	o := newOrchestrator(t, st, []sources.Source{s1})

	res, err := o.Run(context.Background(), "Q404")
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, StateAborted, res.State)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err = o.Run(ctx, "Q1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, 0, s1.calls["a"])

	results, err := o.RunAll(context.Background(), []string{"Q1", "Q404"})
	require.Error(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, StateDone, results[0].State)
	assert.Equal(t, StateAborted, results[1].State)
}

func TestNewValidation(t *testing.T) {
	reg, err := sources.NewRegistry(newFake("s1", "P9001", payload(normalize.Payload{})))
	require.NoError(t, err)
	st := store.NewMemory()

	_, err = New(nil, st)
	assert.True(t, errors.IsValidationError(err))
	_, err = New(reg, nil)
	assert.True(t, errors.IsValidationError(err))

	for _, opt := range []Option{WithSeedSource("nope"), WithMaxPasses(0), WithRetry(0, 0), WithAnomalySink(nil), WithNormalizer(nil), WithMetrics(nil), WithAuthority(nil), WithClock(nil)} {
		_, err := New(reg, st, opt)
		assert.True(t, errors.IsValidationError(err))
	}
}
