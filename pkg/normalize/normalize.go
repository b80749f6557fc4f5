// Package normalize turns a source payload into a deterministic set of
// proposed statements with explicit conflict policy.
//
// Normalization is pure: it performs no I/O and never fails as a whole.
// Malformed fields are dropped one by one and logged at debug level.
package normalize

import (
	"context"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/agentstation/factmap/pkg/facts"
	"github.com/agentstation/factmap/pkg/logging"
	"github.com/agentstation/factmap/pkg/records"
)

var archiveRegex = regexp.MustCompile(`^(?:https?://)?web\.archive\.org/web/(\d{14})[a-z_]*/(.+)$`)

// Normalizer converts payloads into fact sets.
type Normalizer struct {
	tables *Tables
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithTables replaces the built-in tables.
func WithTables(t *Tables) Option {
	return func(n *Normalizer) {
		if t != nil {
			n.tables = t
		}
	}
}

// New creates a normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{tables: DefaultTables()}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Tables returns the tables in use.
func (n *Normalizer) Tables() *Tables {
	return n.tables
}

// Normalize converts one source's payload for one identifier. Every emitted
// statement carries the canonical reference.
func (n *Normalizer) Normalize(ctx context.Context, source string, payload *Payload, canonical facts.Reference) *facts.Set {
	set := &facts.Set{Source: source, Identifier: canonical.Identifier}
	if payload == nil {
		return set
	}
	log := logging.FromContext(ctx).With().Str("source", source).Str("identifier", canonical.Identifier).Logger()

	emit := func(s facts.Statement) {
		if s.Rank == "" {
			s.Rank = records.RankNormal
		}
		set.Statements = append(set.Statements, s.WithReference(canonical))
	}

	for _, prop := range sortedProperties(payload.Identifiers) {
		for _, id := range payload.Identifiers[prop] {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			emit(facts.Statement{Property: prop, Value: records.NewString(id)})
		}
	}

	for _, genre := range n.SimplifyGenres(payload.Genres) {
		emit(facts.Statement{Property: records.PropGenre, Value: records.NewItem(genre)})
	}
	for _, audience := range dedupe(payload.Audiences) {
		emit(facts.Statement{Property: records.PropAudience, Value: records.NewItem(audience)})
	}

	if payload.Start != nil {
		if v, ok := payload.Start.Value(); ok {
			emit(facts.Statement{Property: records.PropStartTime, Value: v})
		} else {
			log.Debug().Interface("start", payload.Start).Msg("Dropping malformed start date")
		}
	}
	if payload.End != nil {
		if v, ok := payload.End.Value(); ok {
			emit(facts.Statement{Property: records.PropEndTime, Value: v})
		} else {
			log.Debug().Interface("end", payload.End).Msg("Dropping malformed end date")
		}
	}

	switch {
	case payload.Volumes > 0:
		emit(facts.Statement{Property: records.PropNumberOfParts, Value: records.NewCount(int64(payload.Volumes), records.ItemVolume)})
	case payload.Volumes < 0:
		log.Debug().Int("volumes", payload.Volumes).Msg("Dropping negative volume count")
	}

	for _, country := range dedupe(payload.Countries) {
		emit(facts.Statement{Property: records.PropCountryOfOrigin, Value: records.NewItem(country)})
	}
	for _, lang := range dedupe(payload.Languages) {
		emit(facts.Statement{Property: records.PropLanguage, Value: records.NewItem(lang), SkipIfConflictingValue: true})
	}

	for _, title := range payload.Titles {
		text := strings.TrimSpace(title.Text)
		if text == "" || title.Language == "" {
			log.Debug().Str("title", title.Text).Msg("Dropping title without text or language")
			continue
		}
		rank := records.RankNormal
		if title.Preferred {
			rank = records.RankPreferred
		}
		emit(facts.Statement{
			Property:                  records.PropTitle,
			Value:                     records.NewText(text, title.Language),
			Rank:                      rank,
			SkipIfConflictingLanguage: true,
		})
	}

	if tag := strings.TrimSpace(strings.TrimLeft(payload.Hashtag, "#")); tag != "" {
		emit(facts.Statement{Property: records.PropHashtag, Value: records.NewString(tag)})
	}

	for _, site := range payload.OfficialSites {
		if site = strings.TrimSpace(site); site == "" {
			continue
		}
		emit(OfficialWebsite(site))
	}

	for _, link := range payload.Links {
		if s, ok := n.ClassifyLink(link); ok {
			emit(s)
		} else {
			log.Debug().Str("url", link.URL).Msg("Dropping blacklisted link")
		}
	}

	for _, extra := range payload.Extra {
		emit(extra)
	}

	set.Linkages = append(set.Linkages, payload.Linkages...)
	for i := range set.Linkages {
		set.Linkages[i].References = append(append([]facts.Reference(nil), set.Linkages[i].References...), canonical)
	}
	return set
}

// SimplifyGenres deduplicates tags, applies the rewrite table in order and
// deduplicates again. The first occurrence of a tag keeps its position;
// rewritten tags are appended.
func (n *Normalizer) SimplifyGenres(genres []records.ItemID) []records.ItemID {
	out := dedupe(genres)
	for _, rw := range n.tables.Rewrites {
		if !containsAll(out, rw.From) {
			continue
		}
		var kept []records.ItemID
		for _, g := range out {
			if !slices.Contains(rw.From, g) {
				kept = append(kept, g)
			}
		}
		out = append(kept, rw.To)
	}
	return dedupe(out)
}

// ClassifyLink maps a URL to an external identifier statement or a
// "described at URL" statement. It reports false when the link is
// blacklisted or empty.
func (n *Normalizer) ClassifyLink(link Link) (facts.Statement, bool) {
	url := strings.TrimSpace(link.URL)
	if url == "" {
		return facts.Statement{}, false
	}
	for _, p := range n.tables.Identifiers {
		if id, ok := p.Match(url); ok {
			return facts.Statement{Property: p.Property, Value: records.NewString(id), Rank: records.RankNormal}, true
		}
	}
	if n.tables.Blacklisted(url) {
		return facts.Statement{}, false
	}
	s := facts.Statement{Property: records.PropDescribedAtURL, Value: records.NewString(url), Rank: records.RankNormal}
	if link.Language != "" {
		s.Qualifiers = append(s.Qualifiers, facts.Qualifier{
			Property:          records.PropLanguage,
			Value:             records.NewItem(link.Language),
			SkipIfConflicting: true,
		})
	}
	return s, true
}

// OfficialWebsite builds the official website statement. Wayback Machine
// URLs are unwrapped to the original URL, ranked deprecated and qualified
// with the archive URL and date.
func OfficialWebsite(url string) facts.Statement {
	s := facts.Statement{Property: records.PropOfficialWebsite, Value: records.NewString(url), Rank: records.RankNormal}
	m := archiveRegex.FindStringSubmatch(url)
	if m == nil {
		return s
	}
	ts, err := time.Parse("20060102150405", m[1])
	if err != nil {
		return s
	}
	s.Value = records.NewString(m[2])
	s.Rank = records.RankDeprecated
	s.Qualifiers = append(s.Qualifiers,
		facts.Qualifier{Property: records.PropArchiveURL, Value: records.NewString(url), SkipIfConflicting: true},
		facts.Qualifier{
			Property:          records.PropArchiveDate,
			Value:             records.NewTime(ts.Year(), int(ts.Month()), ts.Day(), records.PrecisionDay),
			SkipIfConflicting: true,
		},
	)
	return s
}

func sortedProperties(m map[records.PropertyID][]string) []records.PropertyID {
	props := make([]records.PropertyID, 0, len(m))
	for p := range m {
		props = append(props, p)
	}
	sort.Slice(props, func(i, j int) bool { return props[i] < props[j] })
	return props
}

func dedupe(items []records.ItemID) []records.ItemID {
	seen := make(map[records.ItemID]struct{}, len(items))
	out := make([]records.ItemID, 0, len(items))
	for _, it := range items {
		if it == "" {
			continue
		}
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}

func containsAll(items, want []records.ItemID) bool {
	for _, w := range want {
		if !slices.Contains(items, w) {
			return false
		}
	}
	return true
}
