// Package httpsource adapts any HTTP endpoint that serves payloads in the
// factmap JSON form into a source. Site-specific scraping stays outside the
// module: a sidecar or proxy renders each site's data into this form.
//
// The endpoint is a URL template with an {id} placeholder. A 404 means the
// identifier was removed upstream.
package httpsource

import (
	"context"
	"encoding/json"
	"net/url"
	"sort"
	"strings"

	"github.com/agentstation/factmap/internal/transport"
	"github.com/agentstation/factmap/pkg/errors"
	"github.com/agentstation/factmap/pkg/facts"
	"github.com/agentstation/factmap/pkg/logging"
	"github.com/agentstation/factmap/pkg/normalize"
	"github.com/agentstation/factmap/pkg/records"
	"github.com/agentstation/factmap/pkg/sources"
)

var _ sources.Source = (*Source)(nil)

// Source fetches payloads over HTTP.
type Source struct {
	sources.Descriptor
	endpoint string
	client   *transport.Client
}

// New creates a source for descriptor d served at endpoint.
func New(d sources.Descriptor, endpoint string, client *transport.Client) (*Source, error) {
	if !strings.Contains(endpoint, "{id}") {
		return nil, errors.NewValidationError("endpoint", endpoint, "must contain {id}")
	}
	if _, err := url.Parse(strings.ReplaceAll(endpoint, "{id}", "x")); err != nil {
		return nil, errors.NewValidationError("endpoint", endpoint, err.Error())
	}
	if client == nil {
		client = transport.New(d.SourceID)
	}
	return &Source{Descriptor: d, endpoint: endpoint, client: client}, nil
}

// Endpoint returns the endpoint template.
func (s *Source) Endpoint() string {
	return s.endpoint
}

// Get fetches and decodes the payload for id. A field that does not decode
// is dropped and the rest of the payload is kept.
func (s *Source) Get(ctx context.Context, id string, _ *records.Record) (*normalize.Payload, error) {
	target := strings.ReplaceAll(s.endpoint, "{id}", url.PathEscape(id))
	body, err := s.client.Get(ctx, target)
	if err != nil {
		return nil, err
	}
	doc, err := Decode(ctx, body)
	if err != nil {
		return nil, errors.WrapParse("json", target, err)
	}
	payload := doc.Payload
	payload.Linkages = doc.linkages()
	logging.FromContext(ctx).Debug().
		Int("genres", len(payload.Genres)).
		Int("links", len(payload.Links)).
		Int("linkages", len(payload.Linkages)).
		Msg("Decoded payload")
	return &payload, nil
}

// Decode decodes a document one top-level field at a time. Only a body
// that is not a JSON object is an error; malformed fields are logged and
// skipped.
func Decode(ctx context.Context, body []byte) (Document, error) {
	var doc Document
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return doc, err
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	logger := logging.FromContext(ctx)
	for _, k := range keys {
		one, err := json.Marshal(map[string]json.RawMessage{k: fields[k]})
		if err != nil {
			continue
		}
		var check Document
		if err := json.Unmarshal(one, &check); err != nil {
			logger.Debug().Err(err).Str("field", k).Msg("Dropping malformed field")
			continue
		}
		_ = json.Unmarshal(one, &doc)
	}
	return doc, nil
}

// Document is the JSON form an endpoint serves.
type Document struct {
	normalize.Payload
	Linkages []Linkage `json:"linkages,omitempty"`
}

// Linkage is the JSON form of a deferred linkage.
type Linkage struct {
	Property          records.PropertyID `json:"property"`
	LookupProperty    records.PropertyID `json:"lookup_property"`
	Value             string             `json:"value"`
	Qualifiers        []Qualifier        `json:"qualifiers,omitempty"`
	QualifierLookups  []QualifierLookup  `json:"qualifier_lookups,omitempty"`
	RequireQualifiers bool               `json:"require_qualifiers,omitempty"`
	AllowDuplicates   bool               `json:"allow_duplicates,omitempty"`
}

// Qualifier is a plain qualifier attached to a linkage.
type Qualifier struct {
	Property          records.PropertyID `json:"property"`
	Value             records.Value      `json:"value"`
	SkipIfConflicting bool               `json:"skip_if_conflicting,omitempty"`
}

// QualifierLookup is a qualifier whose value is a record found by lookup.
type QualifierLookup struct {
	Qualifier      records.PropertyID `json:"qualifier"`
	LookupProperty records.PropertyID `json:"lookup_property"`
	Value          string             `json:"value"`
}

func (d Document) linkages() []facts.Linkage {
	if len(d.Linkages) == 0 {
		return nil
	}
	out := make([]facts.Linkage, 0, len(d.Linkages))
	for _, l := range d.Linkages {
		if l.Property == "" || l.LookupProperty == "" || l.Value == "" {
			continue
		}
		fl := facts.Linkage{
			Property:          l.Property,
			LookupProperty:    l.LookupProperty,
			Value:             l.Value,
			RequireQualifiers: l.RequireQualifiers,
			AllowDuplicates:   l.AllowDuplicates,
		}
		for _, q := range l.Qualifiers {
			fl.Qualifiers = append(fl.Qualifiers, facts.Qualifier{Property: q.Property, Value: q.Value, SkipIfConflicting: q.SkipIfConflicting})
		}
		for _, q := range l.QualifierLookups {
			fl.QualifierLookups.Add(q.Qualifier, q.LookupProperty, q.Value)
		}
		out = append(out, fl)
	}
	return out
}
