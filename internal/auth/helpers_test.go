package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"calbrief/internal/store"
)

// tokenServer is a fake OAuth token endpoint recording what it receives.
type tokenServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []url.Values
	status   int
	body     map[string]interface{}
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{
		status: http.StatusOK,
		body: map[string]interface{}{
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"token_type":    "Bearer",
			"expires_in":    3600,
		},
	}
	ts.Server = httptest.NewServer(http.HandlerFunc(ts.handle))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tokenServer) handle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ts.mu.Lock()
	ts.requests = append(ts.requests, r.PostForm)
	status, body := ts.status, ts.body
	ts.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (ts *tokenServer) respond(status int, body map[string]interface{}) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.status = status
	ts.body = body
}

func (ts *tokenServer) Requests() []url.Values {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]url.Values(nil), ts.requests...)
}

func testConfig(tokenURL string) Config {
	return Config{
		OAuth2: oauth2.Config{
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			Scopes:       []string{"https://www.googleapis.com/auth/calendar.readonly"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   "https://accounts.example.com/o/oauth2/auth",
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		ConsentTimeout: 5 * time.Second,
		Prompt:         "consent",
	}
}

// fakeSurface records presented URLs and reacts with a scripted behaviour.
type fakeSurface struct {
	mu      sync.Mutex
	urls    []string
	react   func(authURL string, sess *session)
	present error
}

func (f *fakeSurface) Present(_ context.Context, authURL string) (ConsentSession, error) {
	f.mu.Lock()
	f.urls = append(f.urls, authURL)
	react, presentErr := f.react, f.present
	f.mu.Unlock()

	if presentErr != nil {
		return nil, presentErr
	}
	sess := newSession()
	if react != nil {
		go react(authURL, sess)
	}
	return sess, nil
}

func (f *fakeSurface) URLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

// followRedirect behaves like a user granting consent: it calls the
// redirect URI with a code and the echoed state.
func followRedirect(code string) func(string, *session) {
	return func(authURL string, _ *session) {
		u, err := url.Parse(authURL)
		if err != nil {
			return
		}
		q := u.Query()
		followURL(q.Get("redirect_uri") + "?" + url.Values{"code": {code}, "state": {q.Get("state")}}.Encode())
	}
}

func followURL(u string) {
	resp, err := http.Get(u)
	if err == nil {
		resp.Body.Close()
	}
}

// failingStore fails the configured operations with ErrStoreUnavailable.
type failingStore struct {
	CredentialStore
	failGet, failSet, failDelete bool
}

func (f *failingStore) Get(ctx context.Context) (*store.Credential, error) {
	if f.failGet {
		return nil, errors.Join(store.ErrStoreUnavailable, errors.New("disk on fire"))
	}
	return f.CredentialStore.Get(ctx)
}

func (f *failingStore) Set(ctx context.Context, cred *store.Credential) error {
	if f.failSet {
		return errors.Join(store.ErrStoreUnavailable, errors.New("disk full"))
	}
	return f.CredentialStore.Set(ctx, cred)
}

func (f *failingStore) Delete(ctx context.Context) error {
	if f.failDelete {
		return errors.Join(store.ErrStoreUnavailable, errors.New("read-only"))
	}
	return f.CredentialStore.Delete(ctx)
}

func memoryCredentials() *store.Credentials {
	return store.NewCredentials(store.NewMemoryBackend(), "memory")
}

func validCredential() *store.Credential {
	return &store.Credential{
		AccessToken:  "stored-access",
		RefreshToken: "stored-refresh",
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}
