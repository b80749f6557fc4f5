package sync

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentstation/factmap/pkg/provenance"
	"github.com/agentstation/factmap/pkg/reconciler"
)

// State is the terminal state of a reconciliation run.
type State string

// Run states.
const (
	StateRunning   State = "running"
	StateDone      State = "done"
	StateStalled   State = "stalled"
	StateExhausted State = "exhausted"
	StateAborted   State = "aborted"
)

// Result represents the outcome of reconciling one record.
type Result struct {
	RecordID string
	State    State
	Passes   []*PassResult

	// Totals sums every source result of every pass.
	Totals reconciler.Result

	// Anomalies is the number of anomaly reports emitted.
	Anomalies int

	// Provenance is the mutation history, when tracking is enabled.
	Provenance provenance.Map

	// Err is the error that aborted the run.
	Err error

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// PassResult holds the per-source results of one pass.
type PassResult struct {
	Number  int
	Sources []*SourceResult

	// Changed reports whether a source other than the seed changed the record.
	Changed bool
}

// SourceResult holds what one source did in one pass.
type SourceResult struct {
	Source      string
	Identifiers int
	Deprecated  int
	Result      reconciler.Result
	Errors      []error
}

// NewResult creates a running result for recordID.
func NewResult(recordID string) *Result {
	return &Result{
		RecordID:  recordID,
		State:     StateRunning,
		StartTime: time.Now(),
	}
}

// Finalize records the terminal state and computes totals and timing.
func (r *Result) Finalize(state State) {
	r.State = state
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)

	r.Totals = reconciler.Result{}
	for _, p := range r.Passes {
		for _, s := range p.Sources {
			r.Totals.Add(s.Result)
		}
	}
}

// HasErrors returns true if any source reported an error or the run aborted.
func (r *Result) HasErrors() bool {
	if r.Err != nil {
		return true
	}
	for _, p := range r.Passes {
		for _, s := range p.Sources {
			if len(s.Errors) > 0 {
				return true
			}
		}
	}
	return false
}

// Summary returns a human-readable summary of the run.
func (r *Result) Summary() string {
	summary := fmt.Sprintf("%s: %s after %d passes (%s)", r.RecordID, r.State, len(r.Passes), r.Totals.String())
	if r.Anomalies > 0 {
		summary += fmt.Sprintf(", %d anomalies", r.Anomalies)
	}
	if r.Err != nil {
		summary += ": " + r.Err.Error()
	}
	return summary
}

// Report returns a detailed per-pass report.
func (r *Result) Report() string {
	var sb strings.Builder
	sb.WriteString(r.Summary())
	sb.WriteString("\n")
	for _, p := range r.Passes {
		fmt.Fprintf(&sb, "  pass %d:\n", p.Number)
		for _, s := range p.Sources {
			fmt.Fprintf(&sb, "    %s: %d identifiers, %s", s.Source, s.Identifiers, s.Result.String())
			if s.Deprecated > 0 {
				fmt.Fprintf(&sb, ", %d deprecated", s.Deprecated)
			}
			sb.WriteString("\n")
			for _, err := range s.Errors {
				fmt.Fprintf(&sb, "      error: %v\n", err)
			}
		}
	}
	return sb.String()
}
