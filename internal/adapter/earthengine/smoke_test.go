//go:build earthengine

package earthengine

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/couchcryptid/ndvi-export/internal/domain"
	"github.com/couchcryptid/ndvi-export/internal/observability"
	"github.com/couchcryptid/ndvi-export/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests hit the real imagery service and need EE_PROJECT plus a cached
// credential at EE_CREDENTIALS.
// Run with: go test -tags=earthengine ./internal/adapter/earthengine/ -v -count=1

func smokeSession(t *testing.T) session.Session {
	t.Helper()
	path := os.Getenv("EE_CREDENTIALS")
	if path == "" {
		t.Fatal("EE_CREDENTIALS must be set to run smoke tests")
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sess, err := session.NewManager(path, os.Getenv("EE_PROJECT"), nil, logger).Acquire(context.Background())
	require.NoError(t, err)
	return sess
}

func smokeClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    "https://earthengine.googleapis.com",
		metrics:    observability.NewMetricsForTesting(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestSmoke_OperationStatus_Unknown(t *testing.T) {
	sess := smokeSession(t)
	c := smokeClient()

	_, err := c.OperationStatus(context.Background(), sess, "projects/"+sess.Project+"/operations/DOES_NOT_EXIST")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "imagery API error")
}

// TestSmoke_StartExport_SmallRegion submits a real export over a tiny area so
// the service validates the rendered expression. The export lands in the
// Drive folder named by EE_SMOKE_FOLDER (default ndvi_export_smoke).
func TestSmoke_StartExport_SmallRegion(t *testing.T) {
	sess := smokeSession(t)
	c := smokeClient()

	folder := os.Getenv("EE_SMOKE_FOLDER")
	if folder == "" {
		folder = "ndvi_export_smoke"
	}
	region, _, err := domain.Resolve(
		domain.NewBoundingBox("Smoke", -76.01, 35.99, -76.0, 36.0),
		domain.YearSpec{Start: 2020, End: 2020},
	)
	require.NoError(t, err)
	req, err := domain.BuildRequest(2020, region, domain.DefaultExportOptions())
	require.NoError(t, err)

	ctx := domain.WithRunID(context.Background(), time.Now().UTC().Format(time.RFC3339Nano))
	handle, err := c.StartExport(ctx, sess, req, folder, domain.FileName("NDVI", 2020, region.Label))
	require.NoError(t, err)
	assert.Contains(t, handle, "/operations/")

	status, err := c.OperationStatus(context.Background(), sess, handle)
	require.NoError(t, err)
	assert.NotEqual(t, domain.StatusFailed, status)
}
