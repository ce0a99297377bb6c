package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"calbrief/internal/metrics"
	"calbrief/internal/store"
	"calbrief/pkg/logging"
)

// DefaultConsentTimeout bounds how long a flow waits for the redirect.
const DefaultConsentTimeout = 10 * time.Minute

// FlowState is a step of the authorization-code flow.
type FlowState int

const (
	FlowStateIdle FlowState = iota
	FlowStateCheckingStored
	FlowStateAwaitingUserConsent
	FlowStateExchangingCode
	FlowStatePersisting
	FlowStateDone
	FlowStateAborted
)

func (s FlowState) String() string {
	switch s {
	case FlowStateIdle:
		return "idle"
	case FlowStateCheckingStored:
		return "checking_stored"
	case FlowStateAwaitingUserConsent:
		return "awaiting_user_consent"
	case FlowStateExchangingCode:
		return "exchanging_code"
	case FlowStatePersisting:
		return "persisting"
	case FlowStateDone:
		return "done"
	case FlowStateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// CredentialStore persists the single OAuth credential. Get returns
// (nil, nil) when nothing is stored.
type CredentialStore interface {
	Get(ctx context.Context) (*store.Credential, error)
	Set(ctx context.Context, cred *store.Credential) error
	Delete(ctx context.Context) error
}

// Config holds the OAuth client settings shared by Flow and Manager.
type Config struct {
	// OAuth2 carries client ID, secret, endpoint and scopes. RedirectURL is
	// ignored; each flow sets it from its own listener.
	OAuth2 oauth2.Config

	// CallbackAddr is the loopback address to bind, DefaultCallbackAddr if empty.
	CallbackAddr string

	// ConsentTimeout aborts a flow waiting for the redirect. Zero waits
	// until the surface closes or the context ends.
	ConsentTimeout time.Duration

	// Prompt is sent as the prompt parameter when non-empty.
	Prompt string

	// RevokeURL is the token revocation endpoint used on logout.
	RevokeURL string

	// HTTPClient is used for token endpoint and revocation calls.
	HTTPClient *http.Client
}

func (c Config) httpContext(ctx context.Context) context.Context {
	if c.HTTPClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, c.HTTPClient)
}

// Flow runs the installed-application authorization-code flow with a
// loopback redirect. A Flow may be reused but must not run concurrently;
// Manager guarantees that.
type Flow struct {
	cfg     Config
	store   CredentialStore
	surface ConsentSurface
	now     func() time.Time

	mu    sync.RWMutex
	state FlowState
}

// NewFlow creates a flow that reads and writes creds and presents consent
// through surface.
func NewFlow(cfg Config, creds CredentialStore, surface ConsentSurface) *Flow {
	return &Flow{
		cfg:     cfg,
		store:   creds,
		surface: surface,
		now:     time.Now,
	}
}

// State returns the current step.
func (f *Flow) State() FlowState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

// Authenticate returns a valid credential, running interactive consent only
// when the store holds none. Every exit path stops the callback server and
// closes the consent session. Failures are *FlowError.
func (f *Flow) Authenticate(ctx context.Context) (*store.Credential, error) {
	flowID := uuid.NewString()

	f.transition(flowID, FlowStateCheckingStored)
	cred, err := f.store.Get(ctx)
	if err != nil {
		logging.Warn("OAuth", "Stored credential unreadable, treating as absent: %v", err)
		cred = nil
	}
	if cred.Valid(f.now()) {
		f.transition(flowID, FlowStateDone)
		return cred, nil
	}

	f.transition(flowID, FlowStateAwaitingUserConsent)
	server := NewCallbackServer(f.cfg.CallbackAddr)
	redirectURI, err := server.Start(ctx)
	if err != nil {
		return nil, f.abort(flowID, FlowStateAwaitingUserConsent, err)
	}
	defer server.Stop()

	oauthCfg := f.cfg.OAuth2
	oauthCfg.RedirectURL = redirectURI

	state := oauth2.GenerateVerifier()
	verifier := oauth2.GenerateVerifier()
	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier)}
	if f.cfg.Prompt != "" {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", f.cfg.Prompt))
	}
	authURL := oauthCfg.AuthCodeURL(state, opts...)

	sess, err := f.surface.Present(ctx, authURL)
	if err != nil {
		return nil, f.abort(flowID, FlowStateAwaitingUserConsent, fmt.Errorf("%w: %w", ErrConsentAborted, err))
	}
	defer func() { _ = sess.Close() }()

	var timeout <-chan time.Time
	if f.cfg.ConsentTimeout > 0 {
		timer := time.NewTimer(f.cfg.ConsentTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var result CallbackResult
	select {
	case result = <-server.Results():
	case <-sess.Closed():
		return nil, f.abort(flowID, FlowStateAwaitingUserConsent, ErrConsentAborted)
	case <-timeout:
		return nil, f.abort(flowID, FlowStateAwaitingUserConsent,
			fmt.Errorf("%w: no redirect within %s", ErrConsentAborted, f.cfg.ConsentTimeout))
	case <-ctx.Done():
		return nil, f.abort(flowID, FlowStateAwaitingUserConsent, ctx.Err())
	}

	if result.Err != nil {
		return nil, f.abort(flowID, FlowStateAwaitingUserConsent, result.Err)
	}
	if result.State != state {
		logging.Warn("OAuth", "State mismatch on redirect (flow %s, expected len %d, got len %d)",
			flowID, len(state), len(result.State))
		return nil, f.abort(flowID, FlowStateAwaitingUserConsent, ErrStateMismatch)
	}

	f.transition(flowID, FlowStateExchangingCode)
	tok, err := oauthCfg.Exchange(f.cfg.httpContext(ctx), result.Code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, f.abort(flowID, FlowStateExchangingCode, fmt.Errorf("%w: %w", ErrCodeExchangeFailed, err))
	}

	cred = store.CredentialFromToken(tok)

	f.transition(flowID, FlowStatePersisting)
	if err := f.store.Set(ctx, cred); err != nil {
		return nil, f.abort(flowID, FlowStatePersisting, fmt.Errorf("%w: %w", ErrCredentialPersistFailed, err))
	}

	f.transition(flowID, FlowStateDone)
	metrics.AuthFlows.WithLabelValues("done").Inc()
	logging.Info("OAuth", "Authorization completed (flow %s)", flowID)
	return cred, nil
}

func (f *Flow) transition(flowID string, next FlowState) {
	f.mu.Lock()
	prev := f.state
	f.state = next
	f.mu.Unlock()

	logging.Debug("OAuth", "Flow %s: %s -> %s", flowID, prev, next)
}

func (f *Flow) abort(flowID string, stage FlowState, err error) error {
	f.transition(flowID, FlowStateAborted)
	metrics.AuthFlows.WithLabelValues("aborted").Inc()
	logging.Warn("OAuth", "Flow %s aborted during %s: %v", flowID, stage, err)
	return &FlowError{Stage: stage, Err: err}
}
