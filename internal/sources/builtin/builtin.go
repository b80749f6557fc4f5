// Package builtin holds the descriptors of the catalog sites factmap knows
// out of the box. A descriptor fixes how a site's identifiers appear in
// references; the identifier property and the "stated in" item can be
// completed or overridden from configuration.
package builtin

import (
	"github.com/agentstation/factmap/pkg/errors"
	"github.com/agentstation/factmap/pkg/records"
	"github.com/agentstation/factmap/pkg/sources"
)

// Source ids.
const (
	MyAnimeList  = "mal"
	AniList      = "anilist"
	MangaDex     = "mangadex"
	MangaUpdates = "mangaupdates"
	Kitsu        = "kitsu"
	AnimePlanet  = "animeplanet"
	INKR         = "inkr"
)

// descriptors in default reconciliation order.
var descriptors = []sources.Descriptor{
	{
		SourceID:    MyAnimeList,
		Display:     "MyAnimeList",
		IDProperty:  "P4087",
		StatedIn:    "Q4044680",
		URLTemplate: "https://myanimelist.net/manga/{id}",
	},
	{
		SourceID:    AniList,
		Display:     "AniList",
		IDProperty:  "P8731",
		URLTemplate: "https://anilist.co/manga/{id}",
	},
	{
		SourceID:    MangaDex,
		Display:     "MangaDex",
		IDProperty:  "P10589",
		URLTemplate: "https://mangadex.org/title/{id}",
		URLPattern:  "mangadex\\.org/(manga|title)/{id}",
	},
	{
		SourceID:    MangaUpdates,
		Display:     "MangaUpdates",
		URLTemplate: "https://www.mangaupdates.com/series/{id}",
	},
	{
		SourceID:    Kitsu,
		Display:     "Kitsu",
		URLTemplate: "https://kitsu.io/manga/{id}",
	},
	{
		SourceID:    AnimePlanet,
		Display:     "Anime-Planet",
		URLTemplate: "https://www.anime-planet.com/manga/{id}",
	},
	{
		SourceID:    INKR,
		Display:     "INKR",
		URLTemplate: "https://comics.inkr.com/title/{id}",
	},
}

// All returns every built-in descriptor in default order.
func All() []sources.Descriptor {
	return append([]sources.Descriptor(nil), descriptors...)
}

// IDs returns the built-in source ids in default order.
func IDs() []string {
	ids := make([]string, len(descriptors))
	for i, d := range descriptors {
		ids[i] = d.SourceID
	}
	return ids
}

// Lookup returns the built-in descriptor for id.
func Lookup(id string) (sources.Descriptor, bool) {
	for _, d := range descriptors {
		if d.SourceID == id {
			return d, true
		}
	}
	return sources.Descriptor{}, false
}

// Resolve completes a configured descriptor from the built-in one with the
// same id. Non-empty configured fields win. The result must name an
// identifier property.
func Resolve(configured sources.Descriptor) (sources.Descriptor, error) {
	d, ok := Lookup(configured.SourceID)
	if !ok {
		d = sources.Descriptor{SourceID: configured.SourceID}
	}
	if configured.Display != "" {
		d.Display = configured.Display
	}
	if configured.IDProperty != "" {
		d.IDProperty = configured.IDProperty
	}
	if configured.StatedIn != "" {
		d.StatedIn = configured.StatedIn
	}
	if configured.URLTemplate != "" {
		d.URLTemplate = configured.URLTemplate
	}
	if configured.URLPattern != "" {
		d.URLPattern = configured.URLPattern
	}

	if d.SourceID == "" {
		return d, errors.NewValidationError("id", "", "source id is required")
	}
	if d.IDProperty == "" {
		return d, errors.NewValidationError("property", d.SourceID, "source has no identifier property configured")
	}
	if !isPropertyID(d.IDProperty) {
		return d, errors.NewValidationError("property", d.IDProperty, "not a property id")
	}
	return d, nil
}

func isPropertyID(p records.PropertyID) bool {
	if len(p) < 2 || p[0] != 'P' {
		return false
	}
	for _, c := range p[1:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
