package monitor_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/ndvi-export/internal/adapter/sqlite"
	"github.com/couchcryptid/ndvi-export/internal/dispatch"
	"github.com/couchcryptid/ndvi-export/internal/domain"
	"github.com/couchcryptid/ndvi-export/internal/monitor"
	"github.com/couchcryptid/ndvi-export/internal/observability"
	"github.com/couchcryptid/ndvi-export/internal/session"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type staticSessions struct {
	err error
}

func (s staticSessions) Acquire(context.Context) (session.Session, error) {
	if s.err != nil {
		return session.Session{}, s.err
	}
	return session.Session{Token: "tok", Project: "ndvi-demo", Expiry: time.Now().Add(time.Hour)}, nil
}

// statusService reports a fixed remote status per handle.
type statusService struct {
	mu       sync.Mutex
	statuses map[string]domain.Status
	failing  map[string]bool
	polls    int
}

func (s *statusService) StartExport(context.Context, session.Session, domain.CompositeRequest, string, string) (string, error) {
	return "", errors.New("not used")
}

func (s *statusService) OperationStatus(_ context.Context, _ session.Session, handle string) (domain.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	if s.failing[handle] {
		return "", errors.New("imagery API error: status 500")
	}
	return s.statuses[handle], nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedLedger(t *testing.T, handles ...string) *sqlite.Ledger {
	t.Helper()
	ctx := context.Background()
	ledger, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "exports.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	submitted := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, h := range handles {
		require.NoError(t, ledger.SaveTask(ctx, domain.ExportTask{
			Handle:      h,
			RunID:       "run-1",
			RequestKey:  "key-" + h,
			Year:        2020 + i,
			Folder:      "GEE_Exports",
			FileName:    h + ".tif",
			Status:      domain.StatusSubmitted,
			SubmittedAt: submitted,
			UpdatedAt:   submitted,
		}))
	}
	return ledger
}

// --- tests ---

func TestCycle_PersistsStatusChanges(t *testing.T) {
	ledger := seedLedger(t, "op-a", "op-b", "op-c")
	svc := &statusService{statuses: map[string]domain.Status{
		"op-a": domain.StatusCompleted,
		"op-b": domain.StatusRunning,
		"op-c": domain.StatusFailed,
	}}
	metrics := observability.NewMetricsForTesting()
	d := dispatch.New(svc, ledger, nil, metrics, discardLogger())
	m := monitor.New(staticSessions{}, ledger, d, discardLogger(), metrics, clockwork.NewFakeClock(), time.Minute)

	require.Error(t, m.CheckReadiness(context.Background()))
	require.NoError(t, m.Cycle(context.Background()))
	require.NoError(t, m.CheckReadiness(context.Background()))

	pending, err := ledger.PendingTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "op-b", pending[0].Handle)
	assert.Equal(t, domain.StatusRunning, pending[0].Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TasksPending))

	// Terminal tasks are not polled again.
	svc.polls = 0
	require.NoError(t, m.Cycle(context.Background()))
	assert.Equal(t, 1, svc.polls)
}

func TestCycle_OneFailedPollDoesNotStopOthers(t *testing.T) {
	ledger := seedLedger(t, "op-a", "op-b")
	svc := &statusService{
		statuses: map[string]domain.Status{"op-b": domain.StatusCompleted},
		failing:  map[string]bool{"op-a": true},
	}
	metrics := observability.NewMetricsForTesting()
	d := dispatch.New(svc, ledger, nil, metrics, discardLogger())
	m := monitor.New(staticSessions{}, ledger, d, discardLogger(), metrics, clockwork.NewFakeClock(), time.Minute)

	require.NoError(t, m.Cycle(context.Background()))

	pending, err := ledger.PendingTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "op-a", pending[0].Handle)
	assert.Equal(t, domain.StatusSubmitted, pending[0].Status)
}

func TestCycle_SessionError(t *testing.T) {
	ledger := seedLedger(t, "op-a")
	svc := &statusService{}
	metrics := observability.NewMetricsForTesting()
	d := dispatch.New(svc, ledger, nil, metrics, discardLogger())
	m := monitor.New(staticSessions{err: domain.ErrAuthentication}, ledger, d, discardLogger(), metrics, clockwork.NewFakeClock(), time.Minute)

	err := m.Cycle(context.Background())
	require.ErrorIs(t, err, domain.ErrAuthentication)
	assert.Zero(t, svc.polls)
	assert.Error(t, m.CheckReadiness(context.Background()))
}

func TestRun_PollsOnIntervalUntilCancelled(t *testing.T) {
	ledger := seedLedger(t, "op-a")
	svc := &statusService{statuses: map[string]domain.Status{"op-a": domain.StatusRunning}}
	metrics := observability.NewMetricsForTesting()
	d := dispatch.New(svc, ledger, nil, metrics, discardLogger())
	clock := clockwork.NewFakeClock()
	m := monitor.New(staticSessions{}, ledger, d, discardLogger(), metrics, clock, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(ctx) }()

	// First cycle runs immediately, then the loop waits on the interval timer.
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.NoError(t, m.CheckReadiness(ctx))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MonitorRunning))

	clock.Advance(time.Minute)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	cancel()
	require.NoError(t, <-errCh)
	assert.Zero(t, testutil.ToFloat64(metrics.MonitorRunning))

	svc.mu.Lock()
	defer svc.mu.Unlock()
	assert.Equal(t, 2, svc.polls)
}
