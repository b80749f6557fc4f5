// Package anomalies implements the anomalies command, which lists the
// reports collected in the anomaly file.
package anomalies

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/factmap/internal/cmd/output"
	"github.com/agentstation/factmap/pkg/anomaly"
	"github.com/agentstation/factmap/pkg/errors"
)

// AppContext defines what the anomalies command needs from the app.
type AppContext interface {
	AnomalyFile() string
	OutputFormat() string
}

// NewCommand creates the anomalies command.
func NewCommand(app AppContext) *cobra.Command {
	var file, source string
	cmd := &cobra.Command{
		Use:     "anomalies",
		GroupID: "management",
		Short:   "List reported data anomalies",
		Long: `Anomalies lists the reports written to the anomaly file, such as a
linkage lookup that matched several records.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := file
			if path == "" {
				path = app.AnomalyFile()
			}
			if path == "" {
				return errors.NewValidationError("anomaly_file", nil, "no anomaly file configured; use --file or anomaly_file")
			}
			doc, err := anomaly.ReadFile(path)
			if err != nil {
				return err
			}
			reports := Filter(doc.Anomalies, source)
			return output.NewFormatter(output.DetectFormat(app.OutputFormat())).Format(cmd.OutOrStdout(), reports)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "anomaly file (default from config)")
	cmd.Flags().StringVar(&source, "source", "", "only reports from this source")
	return cmd
}

// Reports renders as a table.
type Reports []anomaly.Report

// Filter keeps the reports of one source; an empty source keeps all.
func Filter(reports []anomaly.Report, source string) Reports {
	out := make(Reports, 0, len(reports))
	for _, r := range reports {
		if source == "" || r.Source == source {
			out = append(out, r)
		}
	}
	return out
}

// Table implements output.Tabular.
func (r Reports) Table() output.Data {
	data := output.Data{Headers: []string{"TIME", "SOURCE", "IDENTIFIER", "MESSAGE"}}
	for _, x := range r {
		data.Rows = append(data.Rows, []string{x.Time.Time.Format("2006-01-02 15:04"), x.Source, x.Identifier, x.Message})
	}
	return data
}
