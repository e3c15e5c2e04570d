package domain

import (
	"context"
	"time"
)

// Status is the lifecycle state of a remote export task as last observed.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusUnknown   Status = "unknown"
)

// Terminal reports whether the remote task can no longer change state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseStatus converts a stored status string, mapping anything unrecognized
// to StatusUnknown.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusSubmitted, StatusRunning, StatusCompleted, StatusFailed:
		return Status(s)
	default:
		return StatusUnknown
	}
}

// ExportTask is the local handle for one asynchronous export running inside
// the imagery service. Only Status and UpdatedAt ever change after creation,
// and only through polling.
type ExportTask struct {
	Handle      string    `json:"handle"`
	RunID       string    `json:"run_id,omitempty"`
	RequestKey  string    `json:"request_key"`
	Year        int       `json:"year"`
	Folder      string    `json:"folder"`
	FileName    string    `json:"file_name"`
	Status      Status    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewExportTask records a freshly accepted submission.
func NewExportTask(runID string, req CompositeRequest, folder, fileName, handle string) ExportTask {
	now := clock.Now().UTC()
	return ExportTask{
		Handle:      handle,
		RunID:       runID,
		RequestKey:  req.Key,
		Year:        req.Year,
		Folder:      folder,
		FileName:    fileName,
		Status:      StatusSubmitted,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
}

// Observe records a polled status and reports whether it differs from the
// previously cached one.
func (t *ExportTask) Observe(s Status) bool {
	t.UpdatedAt = clock.Now().UTC()
	if t.Status == s {
		return false
	}
	t.Status = s
	return true
}

type runIDKey struct{}

// WithRunID attaches a batch run identifier to ctx.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFrom returns the batch run identifier attached to ctx, if any.
func RunIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// Task event kinds published when a task is created or its status changes.
const (
	EventSubmitted     = "submitted"
	EventStatusChanged = "status_changed"
)

// TaskEvent announces an export task change to downstream consumers.
type TaskEvent struct {
	Kind string     `json:"kind"`
	Task ExportTask `json:"task"`
}

// Failure records why one year of a batch produced no export task.
type Failure struct {
	RunID     string
	Year      int
	Stage     string
	Message   string
	CreatedAt time.Time
}
