package sources

import (
	"context"
	"testing"

	"github.com/agentstation/utc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/factmap/pkg/errors"
	"github.com/agentstation/factmap/pkg/normalize"
	"github.com/agentstation/factmap/pkg/provenance"
	"github.com/agentstation/factmap/pkg/records"
)

var mangadex = Descriptor{
	SourceID:    "mangadex",
	Display:     "MangaDex",
	IDProperty:  "P10589",
	StatedIn:    "Q110093307",
	URLTemplate: "https://mangadex.org/title/{id}",
	URLPattern:  "https://mangadex.org/(manga|title)/{id}",
}

func refWith(p records.PropertyID, v records.Value) records.Reference {
	ref := records.NewReference()
	ref.Add(p, v)
	return ref
}

func TestDescriptorIsSimilar(t *testing.T) {
	id := "a1c7c817-4e59-43b7-9365-09675a149a6f"
	tests := []struct {
		name string
		ref  records.Reference
		want bool
	}{
		{"stated in origin", refWith(records.PropStatedIn, records.NewItem("Q110093307")), true},
		{"stated in other", refWith(records.PropStatedIn, records.NewItem("Q4044680")), false},
		{"canonical url", refWith(records.PropReferenceURL, records.NewString("https://mangadex.org/title/"+id)), true},
		{"legacy url case insensitive", refWith(records.PropReferenceURL, records.NewString("HTTPS://MANGADEX.ORG/MANGA/"+id)), true},
		{"url for other id", refWith(records.PropReferenceURL, records.NewString("https://mangadex.org/title/other")), false},
		{"url with longer id", refWith(records.PropReferenceURL, records.NewString("https://mangadex.org/manga/"+id+"0")), false},
		{"url with trailing path", refWith(records.PropReferenceURL, records.NewString("https://mangadex.org/title/"+id+"/berserk")), true},
		{"own id property", refWith("P10589", records.NewString(id)), true},
		{"own id property other value", refWith("P10589", records.NewString("x")), false},
		{"empty", records.NewReference(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mangadex.IsSimilar(tt.ref, id))
		})
	}
}

func TestDescriptorOriginRoundTrip(t *testing.T) {
	mal := Descriptor{SourceID: "mal", IDProperty: "P4087", URLTemplate: "https://myanimelist.net/manga/{id}"}
	origin := mal.Origin("2")
	assert.Equal(t, "https://myanimelist.net/manga/2", origin.URL)
	assert.Equal(t, "mal", mal.Name())

	ref := provenance.Build(origin, utc.Now())
	assert.True(t, mal.IsSimilar(ref, "2"))
	assert.False(t, mal.IsSimilar(ref, "3"))
}

func TestDescriptorURLBoundary(t *testing.T) {
	mal := Descriptor{SourceID: "mal", IDProperty: "P4087", URLTemplate: "https://myanimelist.net/manga/{id}"}
	tests := []struct {
		url  string
		want bool
	}{
		{"https://myanimelist.net/manga/12", true},
		{"https://myanimelist.net/manga/12/", true},
		{"https://myanimelist.net/manga/12/Berserk", true},
		{"https://myanimelist.net/manga/12?tab=stats", true},
		{"https://myanimelist.net/manga/12#reviews", true},
		{"https://myanimelist.net/manga/123", false},
		{"https://myanimelist.net/manga/120/Other", false},
		{"https://myanimelist.net/manga/123 https://myanimelist.net/manga/12", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			ref := refWith(records.PropReferenceURL, records.NewString(tt.url))
			assert.Equal(t, tt.want, mal.IsSimilar(ref, "12"))
		})
	}
}

type stub struct {
	Descriptor
}

func (stub) Get(context.Context, string, *records.Record) (*normalize.Payload, error) {
	return &normalize.Payload{}, nil
}

func TestRegistry(t *testing.T) {
	a := stub{Descriptor{SourceID: "a", IDProperty: "P1"}}
	b := stub{Descriptor{SourceID: "b", IDProperty: "P2"}}

	r, err := NewRegistry(a, b)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, r.IDs())
	assert.Equal(t, 2, r.Len())

	got, ok := r.ByProperty("P2")
	require.True(t, ok)
	assert.Equal(t, "b", got.ID())
	_, ok = r.Get("c")
	assert.False(t, ok)

	list := r.List()
	list[0] = nil
	assert.NotNil(t, r.List()[0])
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	a := stub{Descriptor{SourceID: "a", IDProperty: "P1"}}

	_, err := NewRegistry(a, stub{Descriptor{SourceID: "a", IDProperty: "P9"}})
	assert.True(t, errors.IsValidationError(err))

	_, err = NewRegistry(a, stub{Descriptor{SourceID: "z", IDProperty: "P1"}})
	assert.True(t, errors.IsValidationError(err))

	_, err = NewRegistry(stub{Descriptor{SourceID: "x"}})
	assert.True(t, errors.IsValidationError(err))
}
