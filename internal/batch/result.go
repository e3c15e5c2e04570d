package batch

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/couchcryptid/ndvi-export/internal/domain"
)

// Stage is how far one year got through build and submit.
type Stage string

const (
	StagePending        Stage = "pending"
	StageBuilt          Stage = "built"
	StageSubmitted      Stage = "submitted"
	StageFailedAtBuild  Stage = "failed_at_build"
	StageFailedAtSubmit Stage = "failed_at_submit"
)

// Failed reports whether the stage is one of the failure stages.
func (s Stage) Failed() bool {
	return s == StageFailedAtBuild || s == StageFailedAtSubmit
}

// YearOutcome is the result for one year. Task is set only when Stage is
// StageSubmitted; Err only for the failure stages.
type YearOutcome struct {
	Year     int
	Stage    Stage
	FileName string
	Task     *domain.ExportTask
	Err      error
}

// Result is the per-year outcome of one batch run in ascending year order.
type Result struct {
	RunID   string
	Entries []YearOutcome
}

// Submitted returns the tasks created by the run.
func (r Result) Submitted() []domain.ExportTask {
	var out []domain.ExportTask
	for _, e := range r.Entries {
		if e.Stage == StageSubmitted && e.Task != nil {
			out = append(out, *e.Task)
		}
	}
	return out
}

// Failed returns the outcomes that produced no task.
func (r Result) Failed() []YearOutcome {
	var out []YearOutcome
	for _, e := range r.Entries {
		if e.Stage.Failed() {
			out = append(out, e)
		}
	}
	return out
}

// FileNames returns the output file name of every year, submitted or not.
func (r Result) FileNames() []string {
	out := make([]string, 0, len(r.Entries))
	for _, e := range r.Entries {
		out = append(out, e.FileName)
	}
	return out
}

// Err joins the per-year errors, or returns nil when every year submitted.
func (r Result) Err() error {
	var errs []error
	for _, e := range r.Failed() {
		errs = append(errs, fmt.Errorf("year %d: %w", e.Year, e.Err))
	}
	return errors.Join(errs...)
}

// Report writes one aligned line per year: the task handle for submissions,
// the failure reason otherwise.
func (r Result) Report(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "run %s\n", r.RunID)
	for _, e := range r.Entries {
		detail := ""
		switch {
		case e.Task != nil:
			detail = e.Task.Handle
		case e.Err != nil:
			detail = e.Err.Error()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.Year, e.Stage, e.FileName, detail)
	}
	fmt.Fprintf(tw, "submitted %d of %d\n", len(r.Submitted()), len(r.Entries))
	return tw.Flush()
}
