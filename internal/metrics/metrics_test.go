package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/factmap/pkg/reconciler"
)

func TestCollector(t *testing.T) {
	c := NewCollector()
	ctx := context.Background()

	c.RecordFetch(ctx, "mal", "ok", 120)
	c.RecordFetch(ctx, "mal", "ok", 80)
	c.RecordFetch(ctx, "anilist", "rate_limited", 10)
	c.RecordMerge(ctx, "mal", reconciler.Result{StatementsAdded: 3, ReferencesAdded: 2})
	c.RecordRun(ctx, "done", 2, 1500)
	c.RecordError(ctx, "anilist", "transient")

	assert.Equal(t, 2, testutil.CollectAndCount(c.fetchesTotal))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.fetchesTotal.WithLabelValues("mal", "ok")))
	assert.Equal(t, float64(3), testutil.ToFloat64(c.mutations.WithLabelValues("mal", "statement")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.runsTotal.WithLabelValues("done")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.errorsTotal.WithLabelValues("anilist", "transient")))
}

func TestHandler(t *testing.T) {
	c := NewCollector()
	c.RecordRun(context.Background(), "stalled", 1, 10)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `factmap_runs_total{state="stalled"} 1`)
}

func TestNoop(t *testing.T) {
	var n Noop
	n.RecordFetch(context.Background(), "s", "ok", 1)
	n.RecordMerge(context.Background(), "s", reconciler.Result{})
	n.RecordRun(context.Background(), "done", 1, 1)
	n.RecordError(context.Background(), "s", "x")
}
