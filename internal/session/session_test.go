package session

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/ndvi-export/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeCredential(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func newTestManager(path, project string) *Manager {
	return NewManager(path, project, clockwork.NewFakeClockAt(testNow), discardLogger())
}

func TestAcquire_Valid(t *testing.T) {
	path := writeCredential(t, `{"access_token":"ya29.token","expiry":"2024-05-01T13:00:00Z","project":"ndvi-demo"}`)

	sess, err := newTestManager(path, "").Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ya29.token", sess.Token)
	assert.Equal(t, "ndvi-demo", sess.Project)
	assert.NotContains(t, sess.String(), "ya29.token")
}

func TestAcquire_NoExpiry(t *testing.T) {
	path := writeCredential(t, `{"access_token":"ya29.token"}`)

	sess, err := newTestManager(path, "override").Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ya29.token", sess.Token)
	assert.Equal(t, "override", sess.Project)
	assert.True(t, sess.Expiry.IsZero())
}

func TestAcquire_RefreshTokenOnly(t *testing.T) {
	// Shape written by the earthengine CLI authorization flow.
	path := writeCredential(t, `{"client_id":"123.apps.googleusercontent.com","client_secret":"secret","refresh_token":"1//0abc","scopes":["https://www.googleapis.com/auth/earthengine"]}`)

	sess, err := newTestManager(path, "ndvi-demo").Acquire(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuthentication)
	assert.Contains(t, err.Error(), "refresh token")
	assert.Empty(t, sess.Token)
}

func TestAcquire_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent")

	_, err := newTestManager(path, "p").Acquire(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuthentication)
	assert.Contains(t, err.Error(), path)
}

func TestAcquire_Expired(t *testing.T) {
	path := writeCredential(t, `{"access_token":"ya29.token","expiry":"2024-05-01T12:00:00Z"}`)

	_, err := newTestManager(path, "p").Acquire(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuthentication)
	assert.Contains(t, err.Error(), "expired")
}

func TestAcquire_EmptyToken(t *testing.T) {
	path := writeCredential(t, `{"project":"p"}`)

	_, err := newTestManager(path, "").Acquire(context.Background())
	assert.ErrorIs(t, err, domain.ErrAuthentication)
}

func TestAcquire_Malformed(t *testing.T) {
	path := writeCredential(t, `not json`)

	_, err := newTestManager(path, "p").Acquire(context.Background())
	assert.ErrorIs(t, err, domain.ErrAuthentication)
}

func TestAcquire_NoProject(t *testing.T) {
	path := writeCredential(t, `{"access_token":"ya29.token"}`)

	_, err := newTestManager(path, "").Acquire(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuthentication)
	assert.Contains(t, err.Error(), "EE_PROJECT")
}

func TestSession_Valid(t *testing.T) {
	s := Session{Token: "t", Expiry: testNow}
	assert.True(t, s.Valid(testNow.Add(-time.Second)))
	assert.False(t, s.Valid(testNow))
	assert.False(t, Session{}.Valid(testNow))
}
