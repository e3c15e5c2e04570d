// Package session validates the locally cached credential for the imagery
// service. Obtaining the credential (the browser authorization flow) happens
// outside this program; Acquire only checks that a usable one is present.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/couchcryptid/ndvi-export/internal/domain"
	"github.com/jonboulle/clockwork"
)

// Session is an authorized connection context threaded through every remote call.
type Session struct {
	Token   string
	Project string
	Expiry  time.Time
}

// Valid reports whether the session can still be used at now. A zero expiry
// means the credential does not expire.
func (s Session) Valid(now time.Time) bool {
	if s.Token == "" {
		return false
	}
	return s.Expiry.IsZero() || now.Before(s.Expiry)
}

// String keeps the token out of logs and error messages.
func (s Session) String() string {
	return fmt.Sprintf("session{project=%s expiry=%s}", s.Project, s.Expiry.Format(time.RFC3339))
}

// LogValue implements slog.LogValuer.
func (s Session) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("project", s.Project),
		slog.Time("expiry", s.Expiry),
	)
}

// credentialFile is the on-disk shape of the cached credential.
type credentialFile struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
	Project      string    `json:"project"`
}

// Manager loads the cached credential. It never retries: a missing or stale
// credential is a setup problem for the operator.
type Manager struct {
	path    string
	project string
	clock   clockwork.Clock
	logger  *slog.Logger
}

// NewManager creates a Manager reading the credential at path. project, when
// non-empty, overrides the project stored alongside the credential.
func NewManager(path, project string, clock clockwork.Clock, logger *slog.Logger) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{path: path, project: project, clock: clock, logger: logger}
}

// Acquire returns a usable Session or an error wrapping domain.ErrAuthentication.
func (m *Manager) Acquire(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	data, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Session{}, fmt.Errorf("%w: no cached credential at %s; run the authorization flow first", domain.ErrAuthentication, m.path)
		}
		return Session{}, fmt.Errorf("%w: read credential: %w", domain.ErrAuthentication, err)
	}

	var cred credentialFile
	if err := json.Unmarshal(data, &cred); err != nil {
		return Session{}, fmt.Errorf("%w: decode credential %s: %w", domain.ErrAuthentication, m.path, err)
	}

	// A refresh token is not a bearer token. Exchanging it is left to the
	// external authorization flow.
	if cred.AccessToken == "" && cred.RefreshToken != "" {
		return Session{}, fmt.Errorf("%w: credential %s holds only a refresh token; write a current access_token to it first", domain.ErrAuthentication, m.path)
	}
	sess := Session{Token: cred.AccessToken, Project: cred.Project, Expiry: cred.Expiry}
	if m.project != "" {
		sess.Project = m.project
	}

	switch {
	case sess.Token == "":
		return Session{}, fmt.Errorf("%w: credential %s holds no token", domain.ErrAuthentication, m.path)
	case !sess.Valid(m.clock.Now()):
		return Session{}, fmt.Errorf("%w: credential expired at %s", domain.ErrAuthentication, sess.Expiry.Format(time.RFC3339))
	case sess.Project == "":
		return Session{}, fmt.Errorf("%w: no project configured (set EE_PROJECT)", domain.ErrAuthentication)
	}

	m.logger.Debug("session acquired", "session", sess)
	return sess, nil
}
