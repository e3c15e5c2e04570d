// Package monitor polls the imagery service for the status of every export
// task in the ledger that has not finished yet.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/ndvi-export/internal/domain"
	"github.com/couchcryptid/ndvi-export/internal/observability"
	"github.com/couchcryptid/ndvi-export/internal/session"
	"github.com/jonboulle/clockwork"
)

// SessionSource provides an authenticated session.
type SessionSource interface {
	Acquire(ctx context.Context) (session.Session, error)
}

// PendingStore lists tasks that still need polling.
type PendingStore interface {
	PendingTasks(ctx context.Context) ([]domain.ExportTask, error)
}

// StatusPoller reads one task's status, persisting and announcing changes.
type StatusPoller interface {
	PollStatus(ctx context.Context, task *domain.ExportTask, sess session.Session) (domain.Status, error)
}

// Monitor runs the poll loop.
type Monitor struct {
	sessions SessionSource
	store    PendingStore
	poller   StatusPoller
	logger   *slog.Logger
	metrics  *observability.Metrics
	clock    clockwork.Clock
	interval time.Duration
	ready    atomic.Bool
}

// New creates a Monitor that polls every interval.
func New(sessions SessionSource, store PendingStore, poller StatusPoller, logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock, interval time.Duration) *Monitor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Monitor{
		sessions: sessions,
		store:    store,
		poller:   poller,
		logger:   logger,
		metrics:  metrics,
		clock:    clock,
		interval: interval,
	}
}

// CheckReadiness returns nil once the monitor has completed a poll cycle.
func (m *Monitor) CheckReadiness(_ context.Context) error {
	if !m.ready.Load() {
		return errors.New("monitor has not completed a poll cycle yet")
	}
	return nil
}

// Run polls until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor started", "interval", m.interval)
	m.metrics.MonitorRunning.Set(1)
	defer m.metrics.MonitorRunning.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if err := m.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.logger.Error("poll cycle failed", "error", err, "retry_in", backoff)
			if !m.sleep(ctx, backoff) {
				return nil
			}
			backoff = nextBackoff(backoff, maxBackoff)
			continue
		}

		backoff = 200 * time.Millisecond
		if !m.sleep(ctx, m.interval) {
			return nil
		}
	}
}

// Cycle polls every pending task once. A failed poll of one task is logged
// and does not stop the others.
func (m *Monitor) Cycle(ctx context.Context) error {
	start := m.clock.Now()

	sess, err := m.sessions.Acquire(ctx)
	if err != nil {
		return err
	}
	tasks, err := m.store.PendingTasks(ctx)
	if err != nil {
		return err
	}

	pending := 0
	for i := range tasks {
		task := &tasks[i]
		status, err := m.poller.PollStatus(ctx, task, sess)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Warn("poll failed", "handle", task.Handle, "year", task.Year, "error", err)
			pending++
			continue
		}
		if !status.Terminal() {
			pending++
		}
	}

	m.metrics.TasksPending.Set(float64(pending))
	m.metrics.MonitorCycleTime.Observe(m.clock.Since(start).Seconds())
	m.ready.Store(true)
	m.logger.Debug("poll cycle complete", "polled", len(tasks), "pending", pending)
	return nil
}

func (m *Monitor) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := m.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
