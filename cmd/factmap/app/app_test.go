package app

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/factmap"
	"github.com/agentstation/factmap/pkg/anomaly"
	"github.com/agentstation/factmap/pkg/logging"
	"github.com/agentstation/factmap/pkg/normalize"
	"github.com/agentstation/factmap/pkg/records"
	"github.com/agentstation/factmap/pkg/sources"
	"github.com/agentstation/factmap/pkg/store"
)

type partsSource struct{ sources.Descriptor }

func (partsSource) Get(context.Context, string, *records.Record) (*normalize.Payload, error) {
	return &normalize.Payload{Volumes: 3}, nil
}

func newTestApp(t *testing.T, out *bytes.Buffer) *App {
	t.Helper()
	rec := records.NewRecord("Q1")
	rec.Append(&records.Statement{ID: "seed", Property: "P9001", Value: records.NewString("a"), Rank: records.RankNormal})

	fm, err := factmap.New(
		factmap.WithStore(store.NewMemory(rec)),
		factmap.WithSources(partsSource{sources.Descriptor{
			SourceID:    "s1",
			Display:     "Source One",
			IDProperty:  "P9001",
			StatedIn:    "Q9001",
			URLTemplate: "https://s1.example/{id}",
		}}),
	)
	require.NoError(t, err)

	config := &Config{Format: "json", LogOutput: "discard", AnomalyFile: filepath.Join(t.TempDir(), "anomalies.yaml")}
	app, err := New("1.2.3", "abc123", "today", "test",
		WithConfig(config), WithFactmap(fm), WithOutput(out), WithLogger(logging.NewNopLogger()))
	require.NoError(t, err)
	return app
}

func TestExecuteRun(t *testing.T) {
	var out bytes.Buffer
	app := newTestApp(t, &out)

	require.NoError(t, app.Execute(context.Background(), []string{"run", "Q1"}))

	var summaries []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, "Q1", summaries[0]["record"])
	assert.Equal(t, "done", summaries[0]["state"])
	assert.EqualValues(t, 1, summaries[0]["statements_added"])
}

func TestExecuteRunAbortedRecordFails(t *testing.T) {
	var out bytes.Buffer
	app := newTestApp(t, &out)

	err := app.Execute(context.Background(), []string{"run", "--record", "Q404"})
	require.Error(t, err)
	assert.Contains(t, out.String(), `"state": "aborted"`)
}

func TestExecuteRunNeedsRecords(t *testing.T) {
	app := newTestApp(t, &bytes.Buffer{})
	assert.Error(t, app.Execute(context.Background(), []string{"run"}))
}

func TestExecuteSources(t *testing.T) {
	var out bytes.Buffer
	app := newTestApp(t, &out)

	require.NoError(t, app.Execute(context.Background(), []string{"sources", "-o", "yaml"}))
	assert.Contains(t, out.String(), "id: s1")
	assert.Contains(t, out.String(), "stated_in: Q9001")
	assert.Contains(t, out.String(), "url: https://s1.example/{id}")
}

func TestExecuteAnomalies(t *testing.T) {
	var out bytes.Buffer
	app := newTestApp(t, &out)

	file := anomaly.NewFile(app.Config().AnomalyFile)
	require.NoError(t, file.Report(context.Background(), anomaly.New("mal", "2", "lookup matched 2 records", nil)))
	require.NoError(t, file.Report(context.Background(), anomaly.New("anilist", "7", "other", nil)))

	require.NoError(t, app.Execute(context.Background(), []string{"anomalies", "--source", "mal"}))
	assert.Contains(t, out.String(), "lookup matched 2 records")
	assert.NotContains(t, out.String(), "other")
}

func TestExecuteVersion(t *testing.T) {
	var out bytes.Buffer
	app := newTestApp(t, &out)

	require.NoError(t, app.Execute(context.Background(), []string{"version", "-v"}))
	assert.Contains(t, out.String(), "factmap 1.2.3")
	assert.Contains(t, out.String(), "abc123")
}

func TestExecuteRejectsFormat(t *testing.T) {
	app := newTestApp(t, &bytes.Buffer{})
	assert.Error(t, app.Execute(context.Background(), []string{"version", "-o", "xml"}))
}

func TestShutdown(t *testing.T) {
	app := newTestApp(t, &bytes.Buffer{})
	fm, err := app.Factmap()
	require.NoError(t, err)
	require.NotNil(t, fm)

	require.NoError(t, app.Shutdown(context.Background()))
}
