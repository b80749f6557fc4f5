// Package sources implements the sources command.
package sources

import (
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/agentstation/factmap"
	"github.com/agentstation/factmap/internal/cmd/output"
	"github.com/agentstation/factmap/internal/sources/builtin"
	"github.com/agentstation/factmap/pkg/sources"
)

// AppContext defines what the sources command needs from the app.
type AppContext interface {
	Factmap() (factmap.Factmap, error)
	Logger() *zerolog.Logger
	OutputFormat() string
}

// NewCommand creates the sources command.
func NewCommand(app AppContext) *cobra.Command {
	var builtins bool
	cmd := &cobra.Command{
		Use:     "sources",
		GroupID: "management",
		Short:   "List sources in reconciliation order",
		Example: `  factmap sources             # Configured sources
  factmap sources --builtin   # Descriptors known without configuration`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if builtins {
				return write(cmd.OutOrStdout(), app.OutputFormat(), FromDescriptors(builtin.All()))
			}
			fm, err := app.Factmap()
			if err != nil {
				return err
			}
			return write(cmd.OutOrStdout(), app.OutputFormat(), FromSources(fm.Sources()))
		},
	}
	cmd.Flags().BoolVar(&builtins, "builtin", false, "list built-in descriptors instead of configured sources")
	return cmd
}

// Row is the printable form of a source.
type Row struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Property string `json:"property,omitempty" yaml:"property,omitempty"`
	StatedIn string `json:"stated_in,omitempty" yaml:"stated_in,omitempty"`
	URL      string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Rows renders as a table.
type Rows []Row

// FromSources describes registered sources. The stated-in item and the
// URL template come from the source's origin for the placeholder "{id}".
func FromSources(srcs []sources.Source) Rows {
	rows := make(Rows, 0, len(srcs))
	for _, src := range srcs {
		origin := src.Origin("{id}")
		rows = append(rows, Row{
			ID:       src.ID(),
			Name:     src.Name(),
			Property: string(src.Property()),
			StatedIn: string(origin.StatedIn),
			URL:      origin.URL,
		})
	}
	return rows
}

// FromDescriptors describes built-in descriptors, including incomplete ones.
func FromDescriptors(ds []sources.Descriptor) Rows {
	rows := make(Rows, 0, len(ds))
	for _, d := range ds {
		rows = append(rows, Row{
			ID:       d.ID(),
			Name:     d.Name(),
			Property: string(d.Property()),
			StatedIn: string(d.StatedIn),
			URL:      d.URLTemplate,
		})
	}
	return rows
}

// Table implements output.Tabular.
func (r Rows) Table() output.Data {
	data := output.Data{Headers: []string{"ID", "NAME", "PROPERTY", "STATED IN", "URL"}}
	for _, row := range r {
		data.Rows = append(data.Rows, []string{row.ID, row.Name, dash(row.Property), dash(row.StatedIn), row.URL})
	}
	return data
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func write(w io.Writer, format string, rows Rows) error {
	return output.NewFormatter(output.DetectFormat(format)).Format(w, rows)
}
