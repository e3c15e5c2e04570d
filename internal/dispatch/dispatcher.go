// Package dispatch submits composite requests to the imagery service as
// asynchronous export tasks and reads their status back.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/ndvi-export/internal/domain"
	"github.com/couchcryptid/ndvi-export/internal/observability"
	"github.com/couchcryptid/ndvi-export/internal/session"
)

// Exporter is the remote side of a submission.
type Exporter interface {
	StartExport(ctx context.Context, sess session.Session, req domain.CompositeRequest, folder, fileName string) (string, error)
	OperationStatus(ctx context.Context, sess session.Session, handle string) (domain.Status, error)
}

// TaskLedger persists tasks so they can be polled after the batch exits.
type TaskLedger interface {
	SaveTask(ctx context.Context, task domain.ExportTask) error
	UpdateStatus(ctx context.Context, handle string, status domain.Status, at time.Time) error
}

// EventPublisher announces task changes.
type EventPublisher interface {
	Publish(ctx context.Context, events ...domain.TaskEvent) error
}

// Dispatcher turns composite requests into export tasks. Ledger and publisher
// are optional.
type Dispatcher struct {
	exporter  Exporter
	ledger    TaskLedger
	publisher EventPublisher
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// New creates a Dispatcher. ledger and publisher may be nil.
func New(exporter Exporter, ledger TaskLedger, publisher EventPublisher, metrics *observability.Metrics, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		exporter:  exporter,
		ledger:    ledger,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
	}
}

// Submit starts one export and returns as soon as the service accepts it.
// It never waits for the export to finish.
func (d *Dispatcher) Submit(ctx context.Context, req domain.CompositeRequest, folder, fileName string, sess session.Session) (domain.ExportTask, error) {
	if err := validateSubmission(req, folder, fileName); err != nil {
		return domain.ExportTask{}, err
	}

	start := time.Now()
	handle, err := d.exporter.StartExport(ctx, sess, req, folder, fileName)
	if err != nil {
		return domain.ExportTask{}, fmt.Errorf("%w: year %d: %w", domain.ErrSubmission, req.Year, err)
	}
	if handle == "" {
		return domain.ExportTask{}, fmt.Errorf("%w: year %d: service returned no task handle", domain.ErrSubmission, req.Year)
	}
	d.metrics.SubmitDuration.Observe(time.Since(start).Seconds())
	d.metrics.Submissions.Inc()

	task := domain.NewExportTask(domain.RunIDFrom(ctx), req, folder, fileName, handle)
	d.logger.Info("export submitted",
		"run_id", task.RunID,
		"year", task.Year,
		"file_name", task.FileName,
		"handle", task.Handle,
	)

	if d.ledger != nil {
		if err := d.ledger.SaveTask(ctx, task); err != nil {
			d.metrics.LedgerErrors.Inc()
			d.logger.Warn("ledger write failed", "handle", task.Handle, "error", err)
		}
	}
	d.publish(ctx, domain.TaskEvent{Kind: domain.EventSubmitted, Task: task})

	return task, nil
}

// PollStatus reads the current remote status of task and caches it on the
// task. Only Status and UpdatedAt are touched.
func (d *Dispatcher) PollStatus(ctx context.Context, task *domain.ExportTask, sess session.Session) (domain.Status, error) {
	if task == nil || task.Handle == "" {
		return domain.StatusUnknown, errors.New("poll status: task has no handle")
	}

	status, err := d.exporter.OperationStatus(ctx, sess, task.Handle)
	if err != nil {
		d.metrics.StatusPolls.WithLabelValues("error").Inc()
		return task.Status, fmt.Errorf("poll status %s: %w", task.Handle, err)
	}
	d.metrics.StatusPolls.WithLabelValues(string(status)).Inc()

	previous := task.Status
	if !task.Observe(status) {
		return status, nil
	}
	d.logger.Info("export status changed",
		"handle", task.Handle,
		"year", task.Year,
		"from", previous,
		"to", status,
	)

	if d.ledger != nil {
		if err := d.ledger.UpdateStatus(ctx, task.Handle, status, task.UpdatedAt); err != nil {
			d.metrics.LedgerErrors.Inc()
			d.logger.Warn("ledger update failed", "handle", task.Handle, "error", err)
		}
	}
	d.publish(ctx, domain.TaskEvent{Kind: domain.EventStatusChanged, Task: *task})

	return status, nil
}

func (d *Dispatcher) publish(ctx context.Context, event domain.TaskEvent) {
	if d.publisher == nil {
		return
	}
	if err := d.publisher.Publish(ctx, event); err != nil {
		d.logger.Warn("publish task event failed", "handle", event.Task.Handle, "kind", event.Kind, "error", err)
		return
	}
	d.metrics.EventsPublished.Inc()
}

func validateSubmission(req domain.CompositeRequest, folder, fileName string) error {
	switch {
	case req.Key == "":
		return fmt.Errorf("%w: request for year %d has no key", domain.ErrSubmission, req.Year)
	case len(req.Sources) == 0:
		return fmt.Errorf("%w: request for year %d has no sources", domain.ErrSubmission, req.Year)
	case folder == "":
		return fmt.Errorf("%w: destination folder is empty", domain.ErrSubmission)
	case fileName == "":
		return fmt.Errorf("%w: file name is empty", domain.ErrSubmission)
	}
	return nil
}
