package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calbrief/internal/auth"
	"calbrief/internal/calendar"
	"calbrief/internal/message"
	"calbrief/internal/store"
)

var testNow = time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)

type fakeAuth struct {
	mu         sync.Mutex
	cred       *store.Credential
	err        error
	loggedOut  bool
	state      auth.AuthState
	loginCalls int
}

func (f *fakeAuth) EnsureAuthenticated(context.Context) (*store.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginCalls++
	if f.err != nil {
		return nil, f.err
	}
	f.state = auth.AuthStateAuthenticated
	return f.cred, nil
}

func (f *fakeAuth) IsAuthenticated(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cred != nil && !f.loggedOut
}

func (f *fakeAuth) Logout(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedOut = true
	f.state = auth.AuthStateUnknown
}

func (f *fakeAuth) State() auth.AuthState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

type fakeEvents struct {
	dates   []string
	err     error
	cleared int
}

func (f *fakeEvents) GetEvents(_ context.Context, date time.Time) ([]calendar.Event, error) {
	f.dates = append(f.dates, calendar.DateKey(date, time.UTC))
	if f.err != nil {
		return nil, f.err
	}
	return []calendar.Event{{ID: "e1", Title: "Lunch", Start: date, End: date.Add(time.Hour)}}, nil
}

func (f *fakeEvents) Location() *time.Location { return time.UTC }

func (f *fakeEvents) ClearCache() { f.cleared++ }

type fakeMessages struct {
	variants []message.Variant
	err      error
	cleared  int
}

func (f *fakeMessages) GetMessage(_ context.Context, date time.Time, v message.Variant) (string, error) {
	f.variants = append(f.variants, v)
	if f.err != nil {
		return "", f.err
	}
	return "message for " + calendar.DateKey(date, time.UTC), nil
}

func (f *fakeMessages) ClearCache() { f.cleared++ }

func newTestServer() (*Server, *fakeAuth, *fakeEvents, *fakeMessages) {
	a := &fakeAuth{cred: &store.Credential{AccessToken: "tok", ExpiresAt: testNow.Add(time.Hour)}}
	e := &fakeEvents{}
	m := &fakeMessages{}
	return New(a, e, m, func() time.Time { return testNow }), a, e, m
}

func do(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))

	var resp Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec, resp
}

func TestHealthzSetsRequestID(t *testing.T) {
	s, _, _, _ := newTestServer()
	rec, resp := do(t, s.Handler(), http.MethodGet, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	s, _, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestAuthEndpoints(t *testing.T) {
	s, a, _, _ := newTestServer()
	h := s.Handler()

	rec, resp := do(t, h, http.MethodPost, "/auth/login")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, true, data["authenticated"])
	assert.Equal(t, "authenticated", data["state"])
	assert.NotEmpty(t, data["expiresAt"])

	_, resp = do(t, h, http.MethodGet, "/auth/status")
	assert.Equal(t, true, resp.Data.(map[string]interface{})["authenticated"])

	rec, resp = do(t, h, http.MethodPost, "/auth/logout")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.True(t, a.loggedOut)

	_, resp = do(t, h, http.MethodGet, "/auth/status")
	data = resp.Data.(map[string]interface{})
	assert.Equal(t, false, data["authenticated"])
	assert.Equal(t, "unknown", data["state"])
}

func TestLoginFailureIsUnauthorized(t *testing.T) {
	s, a, _, _ := newTestServer()
	a.err = &auth.AuthenticationFailedError{Cause: auth.ErrConsentAborted}

	rec, resp := do(t, s.Handler(), http.MethodPost, "/auth/login")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "authentication failed")
}

func TestLoginRejectsGet(t *testing.T) {
	s, a, _, _ := newTestServer()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Zero(t, a.loginCalls)
}

func TestGetEvents(t *testing.T) {
	s, _, e, _ := newTestServer()
	h := s.Handler()

	rec, resp := do(t, h, http.MethodGet, "/events?date=2024-03-20")
	require.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "2024-03-20", data["date"])
	assert.Len(t, data["events"], 1)

	_, resp = do(t, h, http.MethodGet, "/events")
	assert.Equal(t, "2024-03-15", resp.Data.(map[string]interface{})["date"])
	assert.Equal(t, []string{"2024-03-20", "2024-03-15"}, e.dates)
}

func TestGetEventsBadDate(t *testing.T) {
	s, _, e, _ := newTestServer()
	rec, resp := do(t, s.Handler(), http.MethodGet, "/events?date=03/20/2024")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
	assert.Empty(t, e.dates)
}

func TestGetEventsUpstreamFailure(t *testing.T) {
	s, _, e, _ := newTestServer()
	e.err = &calendar.UpstreamError{Date: "2024-03-15", Err: errors.New("503 backend error")}

	rec, resp := do(t, s.Handler(), http.MethodGet, "/events")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, resp.Error, "503 backend error")
}

func TestGetMessageDefaultsVariantFromDate(t *testing.T) {
	s, _, _, m := newTestServer()
	h := s.Handler()

	for _, target := range []string{
		"/messages?date=2024-03-14",
		"/messages",
		"/messages?date=2024-03-16",
		"/messages?date=2024-03-16&variant=past",
	} {
		rec, _ := do(t, h, http.MethodGet, target)
		require.Equal(t, http.StatusOK, rec.Code, target)
	}

	assert.Equal(t, []message.Variant{
		message.VariantPast, message.VariantPresent, message.VariantFuture, message.VariantPast,
	}, m.variants)
}

func TestGetMessagePayload(t *testing.T) {
	s, _, _, _ := newTestServer()
	_, resp := do(t, s.Handler(), http.MethodGet, "/messages?date=2024-03-15")

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "present", data["variant"])
	assert.Equal(t, "message for 2024-03-15", data["message"])
}

func TestGetMessageErrors(t *testing.T) {
	s, _, _, m := newTestServer()
	h := s.Handler()

	rec, _ := do(t, h, http.MethodGet, "/messages?variant=tomorrow")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, m.variants)

	m.err = message.ErrAPIKeyNotConfigured
	rec, resp := do(t, h, http.MethodGet, "/messages")
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Equal(t, message.ErrAPIKeyNotConfigured.Error(), resp.Error)

	m.err = &message.GenerationError{Variant: message.VariantPresent, Err: errors.New("completion is empty")}
	rec, _ = do(t, h, http.MethodGet, "/messages")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	m.err = errors.New("boom")
	rec, _ = do(t, h, http.MethodGet, "/messages")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestClearCache(t *testing.T) {
	s, _, e, m := newTestServer()
	rec, resp := do(t, s.Handler(), http.MethodPost, "/cache/clear")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, 1, e.cleared)
	assert.Equal(t, 1, m.cleared)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _, _ := newTestServer()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	s, _, _, _ := newTestServer()
	ctx, cancel := context.WithCancel(context.Background())

	addrCh := make(chan net.Addr, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.ListenAndServe(ctx, "127.0.0.1:0", func(a net.Addr) { addrCh <- a })
	}()

	addr := <-addrCh
	resp, err := http.Get("http://" + addr.String() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestListenAndServeBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	s, _, _, _ := newTestServer()
	err = s.ListenAndServe(context.Background(), ln.Addr().String(), nil)
	assert.ErrorContains(t, err, "failed to listen")
}
