package normalize

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/factmap/pkg/errors"
	"github.com/agentstation/factmap/pkg/records"
)

// Rewrite collapses co-occurring tags into one.
type Rewrite struct {
	From []records.ItemID
	To   records.ItemID
}

// IdentifierPattern turns a URL into an external identifier statement.
type IdentifierPattern struct {
	Property records.PropertyID
	// Pattern must capture the identifier in group 1.
	Pattern *regexp.Regexp
	// Exclude skips URLs containing any of these substrings.
	Exclude []string
	// Format renders the captured id, "%s" when empty.
	Format string
}

// Match returns the rendered identifier for url, if any.
func (p IdentifierPattern) Match(url string) (string, bool) {
	for _, ex := range p.Exclude {
		if strings.Contains(url, ex) {
			return "", false
		}
	}
	m := p.Pattern.FindStringSubmatch(url)
	if len(m) < 2 || m[1] == "" {
		return "", false
	}
	format := p.Format
	if format == "" {
		format = "%s"
	}
	return fmt.Sprintf(format, m[1]), true
}

// BlacklistEntry drops a URL when it contains Substring or matches Regexp.
type BlacklistEntry struct {
	Substring string
	Regexp    *regexp.Regexp
}

// Matches reports whether url is blacklisted by the entry.
func (b BlacklistEntry) Matches(url string) bool {
	if b.Substring != "" && strings.Contains(url, b.Substring) {
		return true
	}
	return b.Regexp != nil && b.Regexp.MatchString(url)
}

// Tables hold the data-driven parts of normalization.
type Tables struct {
	Rewrites    []Rewrite
	Identifiers []IdentifierPattern
	Blacklist   []BlacklistEntry
}

// Blacklisted reports whether any entry drops url.
func (t *Tables) Blacklisted(url string) bool {
	for _, b := range t.Blacklist {
		if b.Matches(url) {
			return true
		}
	}
	return false
}

// DefaultTables returns the built-in tables.
func DefaultTables() *Tables {
	return &Tables{
		Rewrites: []Rewrite{
			{From: []records.ItemID{records.ItemRomance, records.ItemComedy}, To: records.ItemRomanticComedy},
			{From: []records.ItemID{records.ItemComedy, records.ItemDrama}, To: records.ItemComedyDrama},
		},
		Identifiers: []IdentifierPattern{
			{
				Property: records.PropNiconicoID,
				Pattern:  regexp.MustCompile(`seiga\.nicovideo\.jp/comic/(\d+)`),
				Format:   "comic/%s",
			},
			{
				Property: records.PropBookWalkerID,
				Pattern:  regexp.MustCompile(`bookwalker\.jp/(?:series/)?(de[0-9a-f-]{8,}|\d+)`),
				Exclude:  []string{"global.bookwalker.jp"},
			},
		},
		Blacklist: []BlacklistEntry{
			{Substring: "amazon.co.jp"},
			{Substring: "amazon.com"},
			{Substring: "wikipedia.org"},
			{Regexp: regexp.MustCompile(`^https?://(?:www\.)?(?:twitter|x)\.com/`)},
		},
	}
}

type tablesFile struct {
	Rewrites []struct {
		From []string `yaml:"from"`
		To   string   `yaml:"to"`
	} `yaml:"rewrites"`
	Identifiers []struct {
		Property string   `yaml:"property"`
		Pattern  string   `yaml:"pattern"`
		Exclude  []string `yaml:"exclude"`
		Format   string   `yaml:"format"`
	} `yaml:"identifiers"`
	Blacklist []struct {
		Substring string `yaml:"substring"`
		Regexp    string `yaml:"regexp"`
	} `yaml:"blacklist"`
}

// LoadTables reads tables from a YAML file. Sections absent from the file
// keep their built-in defaults.
func LoadTables(path string) (*Tables, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}
	return ParseTables(data, path)
}

// ParseTables decodes tables from YAML. name is used in error messages.
func ParseTables(data []byte, name string) (*Tables, error) {
	var file tablesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.WrapParse("yaml", name, err)
	}

	tables := DefaultTables()
	if file.Rewrites != nil {
		tables.Rewrites = nil
		for _, r := range file.Rewrites {
			if len(r.From) == 0 || r.To == "" {
				return nil, errors.NewValidationError("rewrites", r, "rewrite needs from and to")
			}
			rw := Rewrite{To: records.ItemID(r.To)}
			for _, f := range r.From {
				rw.From = append(rw.From, records.ItemID(f))
			}
			tables.Rewrites = append(tables.Rewrites, rw)
		}
	}
	if file.Identifiers != nil {
		tables.Identifiers = nil
		for _, id := range file.Identifiers {
			re, err := regexp.Compile(id.Pattern)
			if err != nil {
				return nil, errors.WrapParse("regexp", name, err)
			}
			if re.NumSubexp() < 1 {
				return nil, errors.NewValidationError("identifiers", id.Pattern, "pattern must capture the identifier")
			}
			tables.Identifiers = append(tables.Identifiers, IdentifierPattern{
				Property: records.PropertyID(id.Property),
				Pattern:  re,
				Exclude:  id.Exclude,
				Format:   id.Format,
			})
		}
	}
	if file.Blacklist != nil {
		tables.Blacklist = nil
		for _, b := range file.Blacklist {
			entry := BlacklistEntry{Substring: b.Substring}
			if b.Regexp != "" {
				re, err := regexp.Compile(b.Regexp)
				if err != nil {
					return nil, errors.WrapParse("regexp", name, err)
				}
				entry.Regexp = re
			}
			tables.Blacklist = append(tables.Blacklist, entry)
		}
	}
	return tables, nil
}
