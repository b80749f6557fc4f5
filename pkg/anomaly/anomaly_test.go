package anomaly

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/factmap/pkg/errors"
	"github.com/agentstation/factmap/pkg/logging"
)

type failingSink struct{}

func (failingSink) Report(context.Context, Report) error {
	return errors.New("sink down")
}

func TestNew(t *testing.T) {
	r := New("mangadex", "abc", "ambiguous", map[string]any{"P1": "x"})
	assert.NotEmpty(t, r.ID)
	assert.False(t, r.Time.Time.IsZero())
	assert.Equal(t, "mangadex", r.Source)
}

func TestMemoryAndCounter(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	c := NewCounter(mem)

	require.NoError(t, c.Report(ctx, New("s", "1", "first", nil)))
	require.NoError(t, c.Report(ctx, New("s", "2", "second", nil)))

	assert.Equal(t, 2, c.Count())
	require.Equal(t, 2, mem.Len())
	assert.Equal(t, "first", mem.Reports()[0].Message)

	bare := NewCounter(nil)
	require.NoError(t, bare.Report(ctx, New("s", "1", "x", nil)))
	assert.Equal(t, 1, bare.Count())
}

func TestLog(t *testing.T) {
	tl := logging.NewTestLogger(t)
	ctx := tl.Context(context.Background())

	require.NoError(t, NewLog().Report(ctx, New("anilist", "42", "lookup matched 2 records", map[string]any{"value": "x"})))
	tl.AssertLogged(t, "lookup matched 2 records", map[string]string{
		"level":      "warn",
		"source":     "anilist",
		"identifier": "42",
	})
}

func TestMulti(t *testing.T) {
	mem := NewMemory()
	err := Multi{failingSink{}, nil, mem}.Report(context.Background(), New("s", "1", "x", nil))
	require.Error(t, err)
	assert.Equal(t, 1, mem.Len(), "a failing sink does not stop delivery")
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "anomalies.yaml")
	sink := NewFile(path)
	ctx := context.Background()

	doc, err := ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, doc.Anomalies)

	require.NoError(t, sink.Report(ctx, New("kitsu", "7", "first", nil)))
	require.NoError(t, sink.Report(ctx, New("kitsu", "8", "second", map[string]any{"candidates": []string{"Q1", "Q2"}})))

	doc, err = ReadFile(path)
	require.NoError(t, err)
	require.Len(t, doc.Anomalies, 2)
	assert.Equal(t, "7", doc.Anomalies[0].Identifier)
	assert.Equal(t, "second", doc.Anomalies[1].Message)
	assert.Equal(t, path, sink.Path())
}
