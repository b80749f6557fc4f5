package normalize

import (
	"github.com/agentstation/factmap/pkg/facts"
	"github.com/agentstation/factmap/pkg/records"
)

// PartialDate is a date where trailing parts may be unknown (zero).
type PartialDate struct {
	Year  int `json:"year" yaml:"year"`
	Month int `json:"month,omitempty" yaml:"month,omitempty"`
	Day   int `json:"day,omitempty" yaml:"day,omitempty"`
}

// Value converts the date to a time value at the coarsest precision the
// known fields allow. It reports false when the date is unusable.
func (d PartialDate) Value() (records.Value, bool) {
	switch {
	case d.Year == 0:
		return records.Value{}, false
	case d.Month == 0:
		return records.NewTime(d.Year, 0, 0, records.PrecisionYear), true
	case d.Month < 1 || d.Month > 12:
		return records.Value{}, false
	case d.Day == 0:
		return records.NewTime(d.Year, d.Month, 0, records.PrecisionMonth), true
	case d.Day < 1 || d.Day > 31:
		return records.Value{}, false
	default:
		return records.NewTime(d.Year, d.Month, d.Day, records.PrecisionDay), true
	}
}

// Link is an external URL reported by a source.
type Link struct {
	URL      string         `json:"url" yaml:"url"`
	Language records.ItemID `json:"language,omitempty" yaml:"language,omitempty"`
}

// Title is a title in one language.
type Title struct {
	Text      string `json:"text" yaml:"text"`
	Language  string `json:"language" yaml:"language"`
	Preferred bool   `json:"preferred,omitempty" yaml:"preferred,omitempty"`
}

// Payload is the raw, source-independent shape a source adapter fills in.
// Every field is optional.
type Payload struct {
	Genres    []records.ItemID `json:"genres,omitempty" yaml:"genres,omitempty"`
	Audiences []records.ItemID `json:"audiences,omitempty" yaml:"audiences,omitempty"`

	Start *PartialDate `json:"start,omitempty" yaml:"start,omitempty"`
	End   *PartialDate `json:"end,omitempty" yaml:"end,omitempty"`

	Volumes int `json:"volumes,omitempty" yaml:"volumes,omitempty"`

	Links  []Link  `json:"links,omitempty" yaml:"links,omitempty"`
	Titles []Title `json:"titles,omitempty" yaml:"titles,omitempty"`

	// Identifiers are ids of the same work on other sources, by property.
	Identifiers map[records.PropertyID][]string `json:"identifiers,omitempty" yaml:"identifiers,omitempty"`

	Countries []records.ItemID `json:"countries,omitempty" yaml:"countries,omitempty"`
	Languages []records.ItemID `json:"languages,omitempty" yaml:"languages,omitempty"`

	Hashtag       string   `json:"hashtag,omitempty" yaml:"hashtag,omitempty"`
	OfficialSites []string `json:"official_sites,omitempty" yaml:"official_sites,omitempty"`

	// Extra statements are emitted as given, with the canonical reference
	// appended.
	Extra []facts.Statement `json:"-" yaml:"-"`
	// Linkages are passed through for resolution against the store.
	Linkages []facts.Linkage `json:"-" yaml:"-"`
}
