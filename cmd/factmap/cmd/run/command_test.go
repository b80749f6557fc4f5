package run

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/factmap/pkg/reconciler"
	factsync "github.com/agentstation/factmap/pkg/sync"
)

func TestReadIDs(t *testing.T) {
	ids, err := ReadIDs(strings.NewReader("Q1\n\n# comment\n  Q2  \nQ3"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Q1", "Q2", "Q3"}, ids)
}

func TestSummarize(t *testing.T) {
	done := factsync.NewResult("Q1")
	done.Passes = []*factsync.PassResult{{Number: 1, Changed: true}, {Number: 2}}
	done.Finalize(factsync.StateDone)
	done.Totals = reconciler.Result{StatementsAdded: 2, ReferencesAdded: 1}

	aborted := factsync.NewResult("Q2")
	aborted.Err = errors.New("duplicate statement")
	aborted.Finalize(factsync.StateAborted)

	summaries := Summarize([]*factsync.Result{done, aborted})
	require.Len(t, summaries, 2)
	assert.Equal(t, 2, summaries[0].Passes)
	assert.Equal(t, 2, summaries[0].Statements)
	assert.Equal(t, "duplicate statement", summaries[1].Error)

	table := summaries.Table()
	assert.Len(t, table.Headers, len(table.ColumnAlignment))
	assert.Equal(t, []string{"Q2", "aborted"}, table.Rows[1][:2])
}
