package normalize

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/factmap/pkg/errors"
	"github.com/agentstation/factmap/pkg/facts"
	"github.com/agentstation/factmap/pkg/records"
)

func TestPartialDateValue(t *testing.T) {
	tests := []struct {
		name string
		in   PartialDate
		want records.Value
		ok   bool
	}{
		{"full date", PartialDate{2004, 7, 9}, records.NewTime(2004, 7, 9, records.PrecisionDay), true},
		{"missing day", PartialDate{2004, 7, 0}, records.NewTime(2004, 7, 0, records.PrecisionMonth), true},
		{"missing month", PartialDate{2004, 0, 9}, records.NewTime(2004, 0, 0, records.PrecisionYear), true},
		{"missing year", PartialDate{0, 7, 9}, records.Value{}, false},
		{"bad month", PartialDate{2004, 13, 1}, records.Value{}, false},
		{"bad day", PartialDate{2004, 1, 40}, records.Value{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.in.Value()
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.want.Equal(got))
			}
		})
	}
}

func TestSimplifyGenres(t *testing.T) {
	n := New()
	tests := []struct {
		name string
		in   []records.ItemID
		want []records.ItemID
	}{
		{
			"romance and comedy collapse",
			[]records.ItemID{records.ItemRomance, "Q1", records.ItemComedy},
			[]records.ItemID{"Q1", records.ItemRomanticComedy},
		},
		{
			"comedy consumed by first rewrite",
			[]records.ItemID{records.ItemRomance, records.ItemComedy, records.ItemDrama},
			[]records.ItemID{records.ItemDrama, records.ItemRomanticComedy},
		},
		{
			"comedy and drama collapse",
			[]records.ItemID{records.ItemDrama, records.ItemComedy},
			[]records.ItemID{records.ItemComedyDrama},
		},
		{
			"duplicates removed before and after",
			[]records.ItemID{"Q1", "Q1", records.ItemRomanticComedy, records.ItemRomance, records.ItemComedy},
			[]records.ItemID{"Q1", records.ItemRomanticComedy},
		},
		{"empty", nil, []records.ItemID{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.SimplifyGenres(tt.in))
		})
	}
}

func TestClassifyLink(t *testing.T) {
	n := New()

	s, ok := n.ClassifyLink(Link{URL: "https://seiga.nicovideo.jp/comic/12345"})
	require.True(t, ok)
	assert.Equal(t, records.PropNiconicoID, s.Property)
	assert.Equal(t, "comic/12345", s.Value.String)

	s, ok = n.ClassifyLink(Link{URL: "https://bookwalker.jp/series/98765/"})
	require.True(t, ok)
	assert.Equal(t, records.PropBookWalkerID, s.Property)
	assert.Equal(t, "98765", s.Value.String)

	s, ok = n.ClassifyLink(Link{URL: "https://global.bookwalker.jp/series/98765/", Language: records.ItemEnglish})
	require.True(t, ok)
	assert.Equal(t, records.PropDescribedAtURL, s.Property)
	require.Len(t, s.Qualifiers, 1)
	assert.True(t, s.Qualifiers[0].SkipIfConflicting)
	assert.Equal(t, records.ItemEnglish, s.Qualifiers[0].Value.Item())

	_, ok = n.ClassifyLink(Link{URL: "https://twitter.com/someone"})
	assert.False(t, ok)
	_, ok = n.ClassifyLink(Link{URL: "https://www.amazon.co.jp/dp/1"})
	assert.False(t, ok)

	s, ok = n.ClassifyLink(Link{URL: "https://example.org/work"})
	require.True(t, ok)
	assert.Empty(t, s.Qualifiers)
}

func TestOfficialWebsite(t *testing.T) {
	plain := OfficialWebsite("https://example.jp/")
	assert.Equal(t, records.RankNormal, plain.Rank)
	assert.Empty(t, plain.Qualifiers)

	archived := OfficialWebsite("https://web.archive.org/web/20200102030405/https://example.jp/")
	assert.Equal(t, "https://example.jp/", archived.Value.String)
	assert.Equal(t, records.RankDeprecated, archived.Rank)
	require.Len(t, archived.Qualifiers, 2)
	assert.Equal(t, records.PropArchiveURL, archived.Qualifiers[0].Property)
	assert.Equal(t, "https://web.archive.org/web/20200102030405/https://example.jp/", archived.Qualifiers[0].Value.String)
	assert.True(t, archived.Qualifiers[1].Value.Equal(records.NewTime(2020, 1, 2, records.PrecisionDay)))
	assert.True(t, archived.Qualifiers[1].SkipIfConflicting)
}

func TestNormalizeIsDeterministic(t *testing.T) {
	payload := &Payload{
		Genres:      []records.ItemID{records.ItemRomance, records.ItemComedy, records.ItemRomance},
		Audiences:   []records.ItemID{"Q237338", "Q237338"},
		Start:       &PartialDate{Year: 2001, Month: 4},
		End:         &PartialDate{Month: 1},
		Volumes:     12,
		Identifiers: map[records.PropertyID][]string{"P8731": {"30002"}, "P4087": {"2", " "}},
		Countries:   []records.ItemID{"Q17"},
		Languages:   []records.ItemID{records.ItemJapanese},
		Titles:      []Title{{Text: " Berserk ", Language: "en"}, {Text: "ベルセルク", Language: "ja", Preferred: true}, {Text: "x"}},
		Hashtag:     "#berserk ",
		Links:       []Link{{URL: "https://example.org"}, {URL: "https://twitter.com/berserk"}},
		Extra:       []facts.Statement{{Property: "P50", Value: records.NewItem("Q1")}},
		Linkages:    []facts.Linkage{{Property: "P50", LookupProperty: "P4087", Value: "7"}},
	}
	n := New()
	canonical := facts.Canonical("2")

	first := n.Normalize(context.Background(), "mal", payload, canonical)
	second := n.Normalize(context.Background(), "mal", payload, canonical)
	assert.Equal(t, first, second)

	props := make([]records.PropertyID, 0, len(first.Statements))
	for _, s := range first.Statements {
		props = append(props, s.Property)
		require.Len(t, s.References, 1)
		assert.Equal(t, "2", s.References[0].Identifier)
		assert.Contains(t, []records.Rank{records.RankNormal, records.RankPreferred}, s.Rank)
	}
	assert.Equal(t, []records.PropertyID{
		"P4087", "P8731",
		records.PropGenre,
		records.PropAudience,
		records.PropStartTime,
		records.PropNumberOfParts,
		records.PropCountryOfOrigin,
		records.PropLanguage,
		records.PropTitle, records.PropTitle,
		records.PropHashtag,
		records.PropDescribedAtURL,
		"P50",
	}, props)

	assert.Equal(t, "mal", first.Source)
	assert.Equal(t, "2", first.Identifier)
	require.Len(t, first.Linkages, 1)
	assert.Len(t, first.Linkages[0].References, 1)
	assert.Len(t, payload.Linkages[0].References, 0)

	for _, s := range first.Statements {
		switch s.Property {
		case records.PropLanguage:
			assert.True(t, s.SkipIfConflictingValue)
		case records.PropHashtag:
			assert.Equal(t, "berserk", s.Value.String)
		case records.PropTitle:
			assert.True(t, s.SkipIfConflictingLanguage)
		case records.PropStartTime:
			assert.Equal(t, records.PrecisionMonth, s.Value.Time.Precision)
		}
	}
}

func TestNormalizeNilPayload(t *testing.T) {
	set := New().Normalize(context.Background(), "mal", nil, facts.Canonical("1"))
	assert.Equal(t, 0, set.Len())
}

func TestParseTables(t *testing.T) {
	data := []byte(`
rewrites:
  - from: [Q1, Q2]
    to: Q3
identifiers:
  - property: P999
    pattern: 'example\.org/id/(\d+)'
    format: "id-%s"
`)
	tables, err := ParseTables(data, "inline")
	require.NoError(t, err)
	require.Len(t, tables.Rewrites, 1)
	assert.Equal(t, records.ItemID("Q3"), tables.Rewrites[0].To)
	require.Len(t, tables.Identifiers, 1)
	assert.NotEmpty(t, tables.Blacklist, "absent section keeps defaults")

	n := New(WithTables(tables))
	s, ok := n.ClassifyLink(Link{URL: "https://example.org/id/42"})
	require.True(t, ok)
	assert.Equal(t, records.PropertyID("P999"), s.Property)
	assert.Equal(t, "id-42", s.Value.String)
	assert.Equal(t, []records.ItemID{records.ItemID("Q3")}, n.SimplifyGenres([]records.ItemID{"Q2", "Q1"}))
}

func TestParseTablesErrors(t *testing.T) {
	_, err := ParseTables([]byte("identifiers:\n  - property: P1\n    pattern: 'no-group'\n"), "x")
	assert.True(t, errors.IsValidationError(err))

	_, err = ParseTables([]byte("identifiers:\n  - property: P1\n    pattern: '('\n"), "x")
	var parseErr *errors.ParseError
	assert.True(t, errors.As(err, &parseErr))

	_, err = ParseTables([]byte("rewrites:\n  - to: Q1\n"), "x")
	assert.True(t, errors.IsValidationError(err))
}

func TestLoadTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.yaml")
	require.NoError(t, os.WriteFile(path, []byte("blacklist:\n  - substring: example.org\n"), 0o644))

	tables, err := LoadTables(path)
	require.NoError(t, err)
	assert.True(t, tables.Blacklisted("https://example.org/a"))
	assert.False(t, tables.Blacklisted("https://twitter.com/a"))

	_, err = LoadTables(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
