package provenance

import (
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/agentstation/utc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/factmap/pkg/facts"
	"github.com/agentstation/factmap/pkg/records"
)

func TestBuild(t *testing.T) {
	retrieved := utc.Time{Time: time.Date(2024, 3, 9, 17, 45, 0, 0, time.UTC)}
	ref := Build(Origin{StatedIn: "Q4044680", URL: "https://myanimelist.net/manga/2"}, retrieved)

	assert.True(t, ref.Has(records.PropRetrieved, records.NewTime(2024, 3, 9, records.PrecisionDay)))
	assert.True(t, ref.Has(records.PropStatedIn, records.NewItem("Q4044680")))
	assert.True(t, ref.Has(records.PropReferenceURL, records.NewString("https://myanimelist.net/manga/2")))

	bare := Build(Origin{}, retrieved)
	assert.Len(t, bare.Properties, 1)
}

func TestMatchesPattern(t *testing.T) {
	ref := records.NewReference()
	ref.Add(records.PropReferenceURL, records.NewString("https://www.mangaupdates.com/series.html?id=1234"))
	ref.Add(records.PropStatedIn, records.NewItem("Q1"))

	tests := []struct {
		name    string
		pattern *facts.Pattern
		want    bool
	}{
		{"nil pattern", nil, false},
		{"empty pattern", &facts.Pattern{}, false},
		{"url matches", &facts.Pattern{URLMatch: regexp.MustCompile(`mangaupdates\.com/series\.html\?id=1234`)}, true},
		{"url does not match", &facts.Pattern{URLMatch: regexp.MustCompile(`mangadex\.org`)}, false},
		{"pair present", &facts.Pattern{Match: map[records.PropertyID][]records.Value{records.PropStatedIn: {records.NewItem("Q1")}}}, true},
		{"pair absent", &facts.Pattern{Match: map[records.PropertyID][]records.Value{records.PropStatedIn: {records.NewItem("Q2")}}}, false},
		{
			"pair present but url absent",
			&facts.Pattern{
				URLMatch: regexp.MustCompile(`kitsu`),
				Match:    map[records.PropertyID][]records.Value{records.PropStatedIn: {records.NewItem("Q1")}},
			},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesPattern(ref, tt.pattern))
		})
	}
}

func TestFromPattern(t *testing.T) {
	ref := FromPattern(&facts.Pattern{Properties: map[records.PropertyID][]records.Value{
		"P10589": {records.NewString("abc"), records.NewString("abc")},
	}})
	assert.Len(t, ref.Values("P10589"), 1)
}

type urlMatcher struct{}

func (urlMatcher) IsSimilar(ref records.Reference, id string) bool {
	return ref.Has(records.PropReferenceURL, records.NewString("https://example.org/"+id))
}

func (urlMatcher) Origin(id string) Origin {
	return Origin{URL: "https://example.org/" + id}
}

func TestFindSimilar(t *testing.T) {
	m := urlMatcher{}
	refs := []records.Reference{
		Build(Origin{StatedIn: "Q9"}, utc.Now()),
		Build(m.Origin("7"), utc.Now()),
	}
	assert.Equal(t, 1, FindSimilar(m, refs, "7"))
	assert.Equal(t, -1, FindSimilar(m, refs, "8"))
}

func TestTracker(t *testing.T) {
	tr := NewTracker(true)
	tr.Track("Q1", Entry{Source: "mal", Identifier: "2", Action: ActionStatementAdded, Property: records.PropGenre, Value: "Q15286013"})
	tr.Track("Q1", Entry{Source: "anilist", Identifier: "3", Action: ActionReferenceAdded, Property: records.PropGenre})
	tr.Track("Q1", Entry{Source: "mal", Identifier: "2", Action: ActionQualifierAdded, Property: records.PropDescribedAtURL})
	tr.Track("Q2", Entry{Source: "mal", Identifier: "5", Action: ActionRankChanged, Property: "P4087"})

	assert.Len(t, tr.FindByProperty("Q1", records.PropGenre), 2)
	assert.Len(t, tr.FindByRecord("Q1"), 2)
	assert.False(t, tr.FindByProperty("Q1", records.PropGenre)[0].Timestamp.Time.IsZero())

	m := tr.Map()
	assert.Equal(t, 4, m.Count())
	assert.Contains(t, m.String(), "Q1:P136")

	tr.Clear()
	assert.Empty(t, tr.Map())
	assert.Equal(t, 4, m.Count(), "map is a copy")
}

func TestDisabledTracker(t *testing.T) {
	tr := NewTracker(false)
	tr.Track("Q1", Entry{Property: records.PropGenre})
	assert.Nil(t, tr.FindByProperty("Q1", records.PropGenre))
	assert.Nil(t, tr.Map())
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "provenance.yaml")

	missing, err := Load(path)
	require.NoError(t, err)
	assert.Nil(t, missing)

	m := Map{"Q1:P136": {{Source: "mal", Identifier: "2", Action: ActionStatementAdded, Property: records.PropGenre, Value: "Q15286013", Timestamp: utc.Now()}}}
	require.NoError(t, Save(path, m))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Len(t, loaded.Provenance["Q1:P136"], 1)
	assert.Equal(t, "mal", loaded.Provenance["Q1:P136"][0].Source)
}
