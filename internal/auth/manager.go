package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"calbrief/internal/metrics"
	"calbrief/internal/store"
	"calbrief/pkg/logging"
)

const revokeTimeout = 10 * time.Second

// AuthState is the Manager's view of the session.
type AuthState int

const (
	// AuthStateUnknown means no flow has run since start or logout.
	AuthStateUnknown AuthState = iota

	// AuthStateAuthenticated means a credential was obtained.
	AuthStateAuthenticated

	// AuthStatePendingAuth means a flow is waiting for the user.
	AuthStatePendingAuth

	// AuthStateError means the last flow or refresh failed.
	AuthStateError
)

func (s AuthState) String() string {
	switch s {
	case AuthStateUnknown:
		return "unknown"
	case AuthStateAuthenticated:
		return "authenticated"
	case AuthStatePendingAuth:
		return "pending_auth"
	case AuthStateError:
		return "error"
	default:
		return "unknown"
	}
}

// Manager owns the credential for the process. It runs at most one
// authorization flow and one refresh at a time; concurrent callers share
// the in-flight result.
type Manager struct {
	cfg   Config
	flow  *Flow
	store CredentialStore
	now   func() time.Time

	mu      sync.RWMutex
	cred    *store.Credential
	state   AuthState
	lastErr error

	group singleflight.Group
}

// NewManager creates a Manager backed by creds that presents consent
// through surface.
func NewManager(cfg Config, creds CredentialStore, surface ConsentSurface) *Manager {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Manager{
		cfg:   cfg,
		flow:  NewFlow(cfg, creds, surface),
		store: creds,
		now:   time.Now,
	}
}

// EnsureAuthenticated returns a valid credential, running the authorization
// flow if needed. An expired credential that still holds a refresh token is
// refreshed first; consent is only asked for when that fails. Callers
// arriving while a flow is running wait for it. The flow itself is not bound
// to any caller's context; it ends on redirect, surface closure or the
// consent timeout.
func (m *Manager) EnsureAuthenticated(ctx context.Context) (*store.Credential, error) {
	if cred := m.current(); cred.Valid(m.now()) {
		return cred, nil
	}

	ch := m.group.DoChan("authenticate", func() (interface{}, error) {
		detached := context.WithoutCancel(ctx)
		if cred, ok := m.refreshExpired(detached); ok {
			return cred, nil
		}

		m.setState(AuthStatePendingAuth, nil)

		cred, err := m.flow.Authenticate(detached)
		if err != nil {
			m.setState(AuthStateError, err)
			logging.Error("OAuth", err, "Authentication failed")
			return nil, &AuthenticationFailedError{Cause: err}
		}

		m.mu.Lock()
		m.cred = cred
		m.state = AuthStateAuthenticated
		m.lastErr = nil
		m.mu.Unlock()
		return cred, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return copyCredential(res.Val.(*store.Credential)), nil
	case <-ctx.Done():
		return nil, &AuthenticationFailedError{Cause: ctx.Err()}
	}
}

// refreshExpired renews a stored credential that has expired but can be
// refreshed. It reports false when there is nothing to refresh or the
// refresh failed, leaving the decision to run consent to the caller.
func (m *Manager) refreshExpired(ctx context.Context) (*store.Credential, bool) {
	cred := m.current()
	if cred == nil {
		stored, err := m.store.Get(ctx)
		if err != nil {
			logging.Debug("OAuth", "Credential store unreadable: %v", err)
			return nil, false
		}
		cred = stored
	}
	if cred == nil || cred.Valid(m.now()) || !cred.CanRefresh() {
		return nil, false
	}

	refreshed, err := m.Refresh(ctx)
	if err != nil {
		logging.Info("OAuth", "Refresh of expired credential failed, asking for consent: %v", err)
		return nil, false
	}
	return refreshed, true
}

// IsAuthenticated reports whether the store holds a valid credential. An
// unreadable store counts as not authenticated.
func (m *Manager) IsAuthenticated(ctx context.Context) bool {
	cred, err := m.store.Get(ctx)
	if err != nil {
		logging.Debug("OAuth", "Credential store unreadable: %v", err)
		return false
	}
	return cred.Valid(m.now())
}

// Refresh exchanges the refresh token for a new access token and persists
// it. When there is no usable refresh token the stored credential is
// dropped and ErrReauthenticationRequired is returned, so the next
// EnsureAuthenticated runs consent again.
func (m *Manager) Refresh(ctx context.Context) (*store.Credential, error) {
	ch := m.group.DoChan("refresh", func() (interface{}, error) {
		return m.refresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return copyCredential(res.Val.(*store.Credential)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) refresh(ctx context.Context) (*store.Credential, error) {
	cred := m.current()
	if cred == nil {
		stored, err := m.store.Get(ctx)
		if err != nil {
			logging.Warn("OAuth", "Credential store unreadable during refresh: %v", err)
		}
		cred = stored
	}

	if !cred.CanRefresh() {
		m.forget(ctx)
		metrics.TokenRefreshes.WithLabelValues("reauth_required").Inc()
		return nil, ErrReauthenticationRequired
	}

	// An empty access token forces the token source to hit the endpoint.
	src := m.cfg.OAuth2.TokenSource(m.cfg.httpContext(ctx), &oauth2.Token{RefreshToken: cred.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode == "invalid_grant" {
			m.forget(ctx)
			metrics.TokenRefreshes.WithLabelValues("reauth_required").Inc()
			return nil, fmt.Errorf("%w: %w", ErrReauthenticationRequired, err)
		}
		m.setState(AuthStateError, err)
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}

	refreshed := store.CredentialFromToken(tok)
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = cred.RefreshToken
	}

	// The refreshed token is still good for this session if it cannot be stored.
	if err := m.store.Set(ctx, refreshed); err != nil {
		logging.Warn("OAuth", "Failed to persist refreshed credential: %v", err)
	}

	m.mu.Lock()
	m.cred = refreshed
	m.state = AuthStateAuthenticated
	m.lastErr = nil
	m.mu.Unlock()

	metrics.TokenRefreshes.WithLabelValues("success").Inc()
	logging.Info("OAuth", "Access token refreshed")
	return refreshed, nil
}

// Logout deletes the stored credential, revokes it at the provider on a
// best-effort basis and clears the in-memory copy. Store and revocation
// failures are logged; logout always succeeds locally.
func (m *Manager) Logout(ctx context.Context) {
	cred := m.current()
	if cred == nil {
		stored, err := m.store.Get(ctx)
		if err != nil {
			logging.Warn("OAuth", "Credential store unreadable during logout: %v", err)
		}
		cred = stored
	}

	if err := m.store.Delete(ctx); err != nil {
		logging.Warn("OAuth", "Failed to delete stored credential: %v", err)
	}

	if cred != nil {
		if err := m.revoke(ctx, cred); err != nil {
			logging.Warn("OAuth", "Token revocation failed: %v", err)
		}
	}

	m.mu.Lock()
	m.cred = nil
	m.state = AuthStateUnknown
	m.lastErr = nil
	m.mu.Unlock()

	logging.Info("OAuth", "Logged out")
}

// State returns the current session state.
func (m *Manager) State() AuthState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// LastError returns the error of the last failed flow or refresh.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// revoke posts the refresh token (or the access token if there is none)
// to the revocation endpoint.
func (m *Manager) revoke(ctx context.Context, cred *store.Credential) error {
	if m.cfg.RevokeURL == "" {
		return nil
	}

	token := cred.RefreshToken
	if token == "" {
		token = cred.AccessToken
	}
	if token == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, revokeTimeout)
	defer cancel()

	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("revocation returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// forget drops a credential that can no longer be refreshed.
func (m *Manager) forget(ctx context.Context) {
	if err := m.store.Delete(ctx); err != nil {
		logging.Warn("OAuth", "Failed to delete unusable credential: %v", err)
	}
	m.mu.Lock()
	m.cred = nil
	m.state = AuthStatePendingAuth
	m.lastErr = ErrReauthenticationRequired
	m.mu.Unlock()
}

func (m *Manager) current() *store.Credential {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyCredential(m.cred)
}

func (m *Manager) setState(state AuthState, err error) {
	m.mu.Lock()
	m.state = state
	m.lastErr = err
	m.mu.Unlock()
}

func copyCredential(cred *store.Credential) *store.Credential {
	if cred == nil {
		return nil
	}
	c := *cred
	return &c
}
