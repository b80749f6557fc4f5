package provenance

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/agentstation/utc"
	"github.com/goccy/go-yaml"

	"github.com/agentstation/factmap/pkg/constants"
	"github.com/agentstation/factmap/pkg/records"
)

// Action is the kind of mutation a provenance entry records.
type Action string

// Mutation kinds.
const (
	ActionStatementAdded Action = "statement_added"
	ActionQualifierAdded Action = "qualifier_added"
	ActionReferenceAdded Action = "reference_added"
	ActionReferenceMerge Action = "reference_merged"
	ActionRankChanged    Action = "rank_changed"
)

// Entry records one mutation made on behalf of a source.
type Entry struct {
	Source     string             `yaml:"source"`
	Identifier string             `yaml:"identifier"`
	Action     Action             `yaml:"action"`
	Property   records.PropertyID `yaml:"property"`
	Statement  string             `yaml:"statement"`
	Value      string             `yaml:"value"`
	Timestamp  utc.Time           `yaml:"timestamp"`
}

// Map tracks provenance for multiple records.
type Map map[string][]Entry // key is "recordID:property"

// Tracker records the history of a reconciliation session.
type Tracker interface {
	// Track records an entry for a record
	Track(recordID string, entry Entry)

	// FindByProperty retrieves the entries for one property of a record
	FindByProperty(recordID string, property records.PropertyID) []Entry

	// FindByRecord retrieves all entries for a record, keyed by property
	FindByRecord(recordID string) map[records.PropertyID][]Entry

	// Map returns a copy of the complete provenance map
	Map() Map

	// Clear removes all provenance data
	Clear()
}

type tracker struct {
	provenance Map
	enabled    bool
}

// NewTracker creates a new provenance tracker. A disabled tracker drops
// every entry.
func NewTracker(enabled bool) Tracker {
	return &tracker{
		provenance: make(Map),
		enabled:    enabled,
	}
}

func (p *tracker) Track(recordID string, entry Entry) {
	if !p.enabled {
		return
	}
	if entry.Timestamp.Time.IsZero() {
		entry.Timestamp = utc.Now()
	}
	key := makeKey(recordID, entry.Property)
	p.provenance[key] = append(p.provenance[key], entry)
}

func (p *tracker) FindByProperty(recordID string, property records.PropertyID) []Entry {
	if !p.enabled {
		return nil
	}
	return p.provenance[makeKey(recordID, property)]
}

func (p *tracker) FindByRecord(recordID string) map[records.PropertyID][]Entry {
	if !p.enabled {
		return nil
	}
	result := make(map[records.PropertyID][]Entry)
	prefix := recordID + ":"
	for key, entries := range p.provenance {
		if property, found := strings.CutPrefix(key, prefix); found {
			result[records.PropertyID(property)] = entries
		}
	}
	return result
}

func (p *tracker) Map() Map {
	if !p.enabled {
		return nil
	}
	result := make(Map, len(p.provenance))
	for k, v := range p.provenance {
		result[k] = append([]Entry{}, v...)
	}
	return result
}

func (p *tracker) Clear() {
	p.provenance = make(Map)
}

func makeKey(recordID string, property records.PropertyID) string {
	return recordID + ":" + string(property)
}

// Count returns the number of entries in the map.
func (m Map) Count() int {
	n := 0
	for _, entries := range m {
		n += len(entries)
	}
	return n
}

// Merge appends the entries of other into m.
func (m Map) Merge(other Map) {
	for k, v := range other {
		m[k] = append(m[k], v...)
	}
}

// String renders the map grouped by record and property.
func (m Map) String() string {
	var sb strings.Builder
	sb.WriteString("Provenance Report\n")
	sb.WriteString("=================\n\n")

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		sb.WriteString(key)
		sb.WriteString("\n")
		for _, e := range m[key] {
			fmt.Fprintf(&sb, "  - %s %s from %s:%s\n", e.Action, e.Value, e.Source, e.Identifier)
		}
	}
	return sb.String()
}

// File is a provenance map stored on disk.
type File struct {
	Provenance Map `yaml:"provenance"`
}

// Save writes the map to path as YAML.
func Save(path string, m Map) error {
	data, err := yaml.Marshal(File{Provenance: m})
	if err != nil {
		return fmt.Errorf("failed to encode provenance file: %w", err)
	}
	if err := os.WriteFile(path, data, constants.FilePermissions); err != nil {
		return fmt.Errorf("failed to write provenance file: %w", err)
	}
	return nil
}

// Load reads provenance data from a YAML file.
// Returns nil, nil if the file doesn't exist (not an error).
func Load(path string) (*File, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("failed to read provenance file: %w", err)
	}

	var pf File
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse provenance file: %w", err)
	}
	return &pf, nil
}
