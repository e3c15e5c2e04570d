// Package batch runs one export batch: it resolves the job, then builds and
// submits one composite request per year in ascending order. It never waits
// for exports to finish.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/ndvi-export/internal/config"
	"github.com/couchcryptid/ndvi-export/internal/domain"
	"github.com/couchcryptid/ndvi-export/internal/observability"
	"github.com/couchcryptid/ndvi-export/internal/session"
	"github.com/google/uuid"
)

// SessionSource provides an authenticated session.
type SessionSource interface {
	Acquire(ctx context.Context) (session.Session, error)
}

// Submitter starts one export task.
type Submitter interface {
	Submit(ctx context.Context, req domain.CompositeRequest, folder, fileName string, sess session.Session) (domain.ExportTask, error)
}

// FailureRecorder stores per-year failures next to the submitted tasks.
type FailureRecorder interface {
	SaveFailure(ctx context.Context, f domain.Failure) error
}

// Orchestrator sequences build and submit across the years of a job.
type Orchestrator struct {
	sessions  SessionSource
	submitter Submitter
	failures  FailureRecorder
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// New creates an Orchestrator. failures may be nil.
func New(sessions SessionSource, submitter Submitter, failures FailureRecorder, metrics *observability.Metrics, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		sessions:  sessions,
		submitter: submitter,
		failures:  failures,
		metrics:   metrics,
		logger:    logger,
	}
}

// Run submits one export per year of job. Authentication and configuration
// errors abort before any submission and return no result. Per-year failures
// are recorded in the result and the loop moves on to the next year.
func (o *Orchestrator) Run(ctx context.Context, job config.Job) (Result, error) {
	sess, err := o.sessions.Acquire(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrAuthentication) {
			err = fmt.Errorf("%w: %w", domain.ErrAuthentication, err)
		}
		return Result{}, err
	}

	if err := job.Validate(); err != nil {
		return Result{}, err
	}
	region, years, err := domain.Resolve(job.Region, job.Years)
	if err != nil {
		return Result{}, err
	}

	result := Result{RunID: uuid.New().String()}
	ctx = domain.WithRunID(ctx, result.RunID)
	logger := o.logger.With("run_id", result.RunID)
	logger.Info("batch started",
		"region", region.Label,
		"first_year", years[0],
		"last_year", years[len(years)-1],
		"years", len(years),
		"folder", job.Folder,
	)
	o.metrics.BatchYears.Set(float64(len(years)))

	seen := make(map[string]bool, len(years))
	for _, year := range years {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		outcome := o.runYear(ctx, logger, job, region, year, sess, seen)
		result.Entries = append(result.Entries, outcome)
	}

	logger.Info("batch finished",
		"submitted", len(result.Submitted()),
		"failed", len(result.Failed()),
	)
	return result, nil
}

func (o *Orchestrator) runYear(ctx context.Context, logger *slog.Logger, job config.Job, region domain.Region, year int, sess session.Session, seen map[string]bool) YearOutcome {
	outcome := YearOutcome{
		Year:     year,
		Stage:    StagePending,
		FileName: domain.FileName(job.Prefix, year, region.Label),
	}
	if seen[outcome.FileName] {
		return o.fail(ctx, logger, outcome, StageFailedAtBuild,
			fmt.Errorf("%w: file name %s already used in this batch", domain.ErrConfiguration, outcome.FileName))
	}
	seen[outcome.FileName] = true

	req, err := domain.BuildRequest(year, region, job.Export)
	if err != nil {
		return o.fail(ctx, logger, outcome, StageFailedAtBuild, err)
	}
	outcome.Stage = StageBuilt

	task, err := o.submitter.Submit(ctx, req, job.Folder, outcome.FileName, sess)
	if err != nil {
		return o.fail(ctx, logger, outcome, StageFailedAtSubmit, err)
	}
	outcome.Stage = StageSubmitted
	outcome.Task = &task
	return outcome
}

func (o *Orchestrator) fail(ctx context.Context, logger *slog.Logger, outcome YearOutcome, stage Stage, err error) YearOutcome {
	outcome.Stage = stage
	outcome.Err = err
	o.metrics.SubmitErrors.WithLabelValues(string(stage)).Inc()
	logger.Error("year failed", "year", outcome.Year, "stage", stage, "error", err)

	if o.failures != nil {
		f := domain.Failure{
			RunID:   domain.RunIDFrom(ctx),
			Year:    outcome.Year,
			Stage:   string(stage),
			Message: err.Error(),
		}
		if err := o.failures.SaveFailure(ctx, f); err != nil {
			o.metrics.LedgerErrors.Inc()
			logger.Warn("ledger write failed", "year", outcome.Year, "error", err)
		}
	}
	return outcome
}
