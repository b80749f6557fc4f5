// Package run implements the run command, which reconciles records.
package run

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/agentstation/factmap"
	"github.com/agentstation/factmap/internal/cmd/output"
	"github.com/agentstation/factmap/pkg/errors"
	factsync "github.com/agentstation/factmap/pkg/sync"
)

// AppContext defines what the run command needs from the app.
type AppContext interface {
	Factmap() (factmap.Factmap, error)
	FactmapWithOptions(...factmap.Option) (factmap.Factmap, error)
	Logger() *zerolog.Logger
	OutputFormat() string
}

type flags struct {
	records    []string
	inputFile  string
	all        bool
	restricted bool
	report     bool
}

// NewCommand creates the run command.
func NewCommand(app AppContext) *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:     "run [record...]",
		GroupID: "core",
		Short:   "Reconcile records against the configured sources",
		Long: `Run drives each record to a fixed point across the configured sources.

Records are processed one at a time, in the order given. A record that
aborts is reported and the batch continues; the command fails when any
record aborted.`,
		Example: `  factmap run Q1                      # Reconcile one record
  factmap run --record Q1 --record Q2 # Reconcile two records
  factmap run --input-file ids.txt    # One record id per line
  factmap run --all --restricted      # Every stored record, restricted creation`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := f.recordIDs(args)
			if err != nil {
				return err
			}
			if len(ids) == 0 && !f.all {
				return errors.NewValidationError("record", nil, "no records given; use --record, --input-file or --all")
			}

			var fm factmap.Factmap
			if cmd.Flags().Changed("restricted") {
				fm, err = app.FactmapWithOptions(factmap.WithRestricted(f.restricted))
			} else {
				fm, err = app.Factmap()
			}
			if err != nil {
				return err
			}

			var results []*factsync.Result
			if f.all {
				results, err = fm.ReconcileStored(cmd.Context())
			} else {
				results, err = fm.ReconcileAll(cmd.Context(), ids)
			}
			if printErr := printResults(cmd.OutOrStdout(), app.OutputFormat(), results, f.report); printErr != nil {
				app.Logger().Error().Err(printErr).Msg("Failed to print results")
			}
			return err
		},
	}

	cmd.Flags().StringSliceVar(&f.records, "record", nil, "record id to reconcile (repeatable)")
	cmd.Flags().StringVar(&f.inputFile, "input-file", "", "file with one record id per line ('-' for stdin)")
	cmd.Flags().BoolVar(&f.all, "all", false, "reconcile every record in the store")
	cmd.Flags().BoolVar(&f.restricted, "restricted", false, "only create statements for allowed properties")
	cmd.Flags().BoolVar(&f.report, "report", false, "print a per-pass report for each record")
	cmd.MarkFlagsMutuallyExclusive("all", "input-file")
	cmd.MarkFlagsMutuallyExclusive("all", "record")

	return cmd
}

// recordIDs collects ids from arguments, --record and --input-file, in that order.
func (f *flags) recordIDs(args []string) ([]string, error) {
	ids := append(append([]string(nil), args...), f.records...)
	if f.inputFile == "" {
		return ids, nil
	}

	var r io.Reader = os.Stdin
	if f.inputFile != "-" {
		file, err := os.Open(f.inputFile)
		if err != nil {
			return nil, errors.WrapIO("open", f.inputFile, err)
		}
		defer file.Close() //nolint:errcheck
		r = file
	}
	fromFile, err := ReadIDs(r)
	if err != nil {
		return nil, errors.WrapIO("read", f.inputFile, err)
	}
	return append(ids, fromFile...), nil
}

// ReadIDs reads one record id per line. Blank lines and lines starting with
// '#' are skipped.
func ReadIDs(r io.Reader) ([]string, error) {
	var ids []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	return ids, scanner.Err()
}

// Summary is the printable outcome of one record.
type Summary struct {
	Record     string `json:"record" yaml:"record"`
	State      string `json:"state" yaml:"state"`
	Passes     int    `json:"passes" yaml:"passes"`
	Statements int    `json:"statements_added" yaml:"statements_added"`
	Qualifiers int    `json:"qualifiers_added" yaml:"qualifiers_added"`
	References int    `json:"references_added" yaml:"references_added"`
	Ranks      int    `json:"ranks_modified" yaml:"ranks_modified"`
	Anomalies  int    `json:"anomalies" yaml:"anomalies"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
	Duration   string `json:"duration" yaml:"duration"`
}

// Summaries renders as a table.
type Summaries []Summary

// Summarize converts run results into summaries.
func Summarize(results []*factsync.Result) Summaries {
	out := make(Summaries, 0, len(results))
	for _, r := range results {
		s := Summary{
			Record:     r.RecordID,
			State:      string(r.State),
			Passes:     len(r.Passes),
			Statements: r.Totals.StatementsAdded,
			Qualifiers: r.Totals.QualifiersAdded,
			References: r.Totals.ReferencesAdded,
			Ranks:      r.Totals.RanksModified,
			Anomalies:  r.Anomalies,
			Duration:   r.Duration.Round(time.Millisecond).String(),
		}
		if r.Err != nil {
			s.Error = r.Err.Error()
		}
		out = append(out, s)
	}
	return out
}

// Table implements output.Tabular.
func (s Summaries) Table() output.Data {
	data := output.Data{
		Headers: []string{"RECORD", "STATE", "PASSES", "STATEMENTS", "QUALIFIERS", "REFERENCES", "RANKS", "ANOMALIES", "DURATION"},
		ColumnAlignment: []output.Align{
			output.AlignLeft, output.AlignLeft, output.AlignRight, output.AlignRight, output.AlignRight,
			output.AlignRight, output.AlignRight, output.AlignRight, output.AlignRight,
		},
	}
	for _, x := range s {
		data.Rows = append(data.Rows, []string{
			x.Record, x.State, strconv.Itoa(x.Passes), strconv.Itoa(x.Statements), strconv.Itoa(x.Qualifiers),
			strconv.Itoa(x.References), strconv.Itoa(x.Ranks), strconv.Itoa(x.Anomalies), x.Duration,
		})
	}
	return data
}

func printResults(w io.Writer, format string, results []*factsync.Result, report bool) error {
	if report {
		for _, r := range results {
			if _, err := fmt.Fprintln(w, r.Report()); err != nil {
				return err
			}
		}
	}
	return output.NewFormatter(output.DetectFormat(format)).Format(w, Summarize(results))
}
