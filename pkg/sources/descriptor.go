package sources

import (
	"regexp"
	"strings"

	"github.com/agentstation/factmap/pkg/provenance"
	"github.com/agentstation/factmap/pkg/records"
)

// idPlaceholder is substituted with the identifier in URL templates.
const idPlaceholder = "{id}"

// urlBoundary ends the identifier part of a URL.
const urlBoundary = "/?#"

// Descriptor is the static identity of a source: who publishes it and how
// its identifiers look in references. It implements provenance.Matcher.
type Descriptor struct {
	SourceID   string             `json:"id" yaml:"id"`
	Display    string             `json:"name" yaml:"name"`
	IDProperty records.PropertyID `json:"property" yaml:"property"`
	StatedIn   records.ItemID     `json:"stated_in" yaml:"stated_in"`

	// URLTemplate is the canonical page of an identifier, e.g.
	// "https://myanimelist.net/manga/{id}".
	URLTemplate string `json:"url_template" yaml:"url_template"`

	// URLPattern optionally widens URL recognition. It is a regular
	// expression in which {id} stands for the quoted identifier, e.g.
	// "https://mangadex.org/(manga|title)/{id}".
	URLPattern string `json:"url_pattern,omitempty" yaml:"url_pattern,omitempty"`
}

// ID returns the source id.
func (d Descriptor) ID() string { return d.SourceID }

// Name returns the display name, falling back to the id.
func (d Descriptor) Name() string {
	if d.Display == "" {
		return d.SourceID
	}
	return d.Display
}

// Property returns the identifier property.
func (d Descriptor) Property() records.PropertyID { return d.IDProperty }

// URL returns the canonical URL of an identifier.
func (d Descriptor) URL(id string) string {
	if d.URLTemplate == "" {
		return ""
	}
	return strings.ReplaceAll(d.URLTemplate, idPlaceholder, id)
}

// Origin returns where an identifier is published.
func (d Descriptor) Origin(id string) provenance.Origin {
	return provenance.Origin{StatedIn: d.StatedIn, URL: d.URL(id)}
}

// IsSimilar reports whether ref attributes a statement to this source for
// id: it is stated in the source's origin item, one of its URLs points at
// the identifier's page, or it carries the source's own id property with
// the same value.
func (d Descriptor) IsSimilar(ref records.Reference, id string) bool {
	if d.StatedIn != "" && ref.Has(records.PropStatedIn, records.NewItem(d.StatedIn)) {
		return true
	}
	if d.matchesURL(ref, id) {
		return true
	}
	return d.IDProperty != "" && ref.Has(d.IDProperty, records.NewString(id))
}

func (d Descriptor) matchesURL(ref records.Reference, id string) bool {
	urls := ref.Values(records.PropReferenceURL)
	if len(urls) == 0 {
		return false
	}
	var pattern *regexp.Regexp
	if d.URLPattern != "" {
		expr := strings.ReplaceAll(d.URLPattern, idPlaceholder, regexp.QuoteMeta(strings.ToLower(id)))
		if strings.HasSuffix(d.URLPattern, idPlaceholder) {
			expr += `(?:[/?#]|$)`
		}
		re, err := regexp.Compile(expr)
		if err == nil {
			pattern = re
		}
	}
	canonical := strings.ToLower(d.URL(id))
	for _, v := range urls {
		if v.Kind != records.KindString {
			continue
		}
		lower := strings.ToLower(v.String)
		if pattern != nil && pattern.MatchString(lower) {
			return true
		}
		if canonical != "" && containsURL(lower, canonical) {
			return true
		}
	}
	return false
}

// containsURL reports whether u occurs in s followed by the end of s or a
// path, query or fragment delimiter, so ".../manga/12" does not match
// ".../manga/123".
func containsURL(s, u string) bool {
	for from := 0; from <= len(s)-len(u); {
		i := strings.Index(s[from:], u)
		if i < 0 {
			return false
		}
		end := from + i + len(u)
		if end == len(s) || strings.IndexByte(urlBoundary, s[end]) >= 0 {
			return true
		}
		from += i + 1
	}
	return false
}
