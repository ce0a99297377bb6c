package calendar

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calbrief/internal/auth"
	"calbrief/internal/store"
)

type fakeAuthenticator struct {
	mu        sync.Mutex
	ensured   int
	refreshed int
	access    string
	ensureErr error
	refresh   func() (*store.Credential, error)
}

func (a *fakeAuthenticator) EnsureAuthenticated(context.Context) (*store.Credential, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ensured++
	if a.ensureErr != nil {
		return nil, a.ensureErr
	}
	return &store.Credential{AccessToken: a.access, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (a *fakeAuthenticator) Refresh(context.Context) (*store.Credential, error) {
	a.mu.Lock()
	a.refreshed++
	refresh := a.refresh
	a.mu.Unlock()
	if refresh == nil {
		return nil, auth.ErrReauthenticationRequired
	}
	return refresh()
}

type fetchCall struct {
	start, end time.Time
	token      string
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls []fetchCall
	fn    func(start time.Time, token string) ([]Event, error)
}

func (f *fakeFetcher) ListEvents(_ context.Context, start, end time.Time, cred *store.Credential) ([]Event, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{start: start, end: end, token: cred.AccessToken})
	fn := f.fn
	f.mu.Unlock()
	if fn == nil {
		return []Event{{ID: start.Format(dateKeyLayout), Title: "Standup", Start: start.Add(9 * time.Hour), End: start.Add(10 * time.Hour)}}, nil
	}
	return fn(start, cred.AccessToken)
}

func (f *fakeFetcher) Calls() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetchCall(nil), f.calls...)
}

func tokyo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	return loc
}

func TestService_GetEvents_DayWindowAndCache(t *testing.T) {
	loc := tokyo(t)
	fetcher := &fakeFetcher{}
	s := NewService(&fakeAuthenticator{access: "at"}, fetcher, Options{Location: loc})

	// 2023-12-31T20:00Z is already Jan 1 in Tokyo.
	date := time.Date(2023, 12, 31, 20, 0, 0, 0, time.UTC)
	events, err := s.GetEvents(context.Background(), date)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "2024-01-01", events[0].ID)

	calls := fetcher.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, loc), calls[0].start)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, loc), calls[0].end)
	assert.Equal(t, "at", calls[0].token)

	s.Wait()
	_, err = s.GetEvents(context.Background(), date)
	require.NoError(t, err)
	assert.Len(t, fetcher.Calls(), 3, "second read is a hit; only the two prefetches were added")
}

func TestService_PrefetchesAdjacentDays(t *testing.T) {
	loc := tokyo(t)
	fetcher := &fakeFetcher{}
	s := NewService(&fakeAuthenticator{access: "at"}, fetcher, Options{Location: loc})

	_, err := s.GetEvents(context.Background(), time.Date(2024, 3, 1, 12, 0, 0, 0, loc))
	require.NoError(t, err)
	s.Wait()

	var days []string
	for _, c := range fetcher.Calls() {
		days = append(days, DateKey(c.start, loc))
	}
	assert.ElementsMatch(t, []string{"2024-02-29", "2024-03-01", "2024-03-02"}, days)

	_, err = s.GetEvents(context.Background(), time.Date(2024, 2, 29, 8, 0, 0, 0, loc))
	require.NoError(t, err)
	assert.Len(t, fetcher.Calls(), 3, "prefetched day is served from cache")
}

func TestService_RefreshesRejectedToken(t *testing.T) {
	authn := &fakeAuthenticator{access: "old"}
	authn.refresh = func() (*store.Credential, error) {
		return &store.Credential{AccessToken: "new", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}
	fetcher := &fakeFetcher{fn: func(start time.Time, token string) ([]Event, error) {
		if token == "old" {
			return nil, errors.New("googleapi: Error 401: Request had invalid authentication credentials")
		}
		return []Event{{ID: "ok"}}, nil
	}}
	s := NewService(authn, fetcher, Options{Location: time.UTC})

	events, err := s.GetEvents(context.Background(), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "ok", events[0].ID)

	calls := fetcher.Calls()
	assert.Equal(t, "old", calls[0].token)
	assert.Equal(t, "new", calls[1].token)
	s.Wait()
}

func TestService_ReauthenticatesWhenRefreshImpossible(t *testing.T) {
	authn := &fakeAuthenticator{access: "at"}
	rejected := true
	var mu sync.Mutex
	fetcher := &fakeFetcher{fn: func(time.Time, string) ([]Event, error) {
		mu.Lock()
		defer mu.Unlock()
		if rejected {
			rejected = false
			return nil, errors.New("401 Unauthorized")
		}
		return nil, nil
	}}
	s := NewService(authn, fetcher, Options{Location: time.UTC})

	events, err := s.GetEvents(context.Background(), time.Now())
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
	s.Wait()

	authn.mu.Lock()
	defer authn.mu.Unlock()
	assert.Equal(t, 1, authn.refreshed)
	assert.GreaterOrEqual(t, authn.ensured, 2)
}

func TestService_RefreshFailureIsUpstreamError(t *testing.T) {
	unreachable := errors.New("token refresh failed: dial tcp: connection refused")
	authn := &fakeAuthenticator{access: "old"}
	authn.refresh = func() (*store.Credential, error) { return nil, unreachable }
	fetcher := &fakeFetcher{fn: func(time.Time, string) ([]Event, error) {
		return nil, errors.New("googleapi: Error 401: Request had invalid authentication credentials")
	}}
	s := NewService(authn, fetcher, Options{Location: time.UTC})

	_, err := s.GetEvents(context.Background(), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, "2024-01-01", upstream.Date)
	assert.ErrorIs(t, err, unreachable)
	assert.Len(t, fetcher.Calls(), 1, "no retry without a fresh token")
	s.Wait()
}

func TestService_UpstreamErrorNotCached(t *testing.T) {
	boom := errors.New("googleapi: Error 503: backend error")
	var fail = true
	var mu sync.Mutex
	fetcher := &fakeFetcher{fn: func(start time.Time, _ string) ([]Event, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return nil, boom
		}
		return []Event{{ID: "recovered"}}, nil
	}}
	s := NewService(&fakeAuthenticator{access: "at"}, fetcher, Options{Location: time.UTC})
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.GetEvents(context.Background(), day)
	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, "2024-01-01", upstream.Date)
	assert.ErrorIs(t, err, boom)

	mu.Lock()
	fail = false
	mu.Unlock()

	events, err := s.GetEvents(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, "recovered", events[0].ID)
	s.Wait()
}

func TestService_AuthFailurePropagates(t *testing.T) {
	authn := &fakeAuthenticator{ensureErr: &auth.AuthenticationFailedError{Cause: auth.ErrConsentAborted}}
	fetcher := &fakeFetcher{}
	s := NewService(authn, fetcher, Options{Location: time.UTC})

	_, err := s.GetEvents(context.Background(), time.Now())
	assert.ErrorIs(t, err, auth.ErrAuthenticationFailed)
	assert.Empty(t, fetcher.Calls())
}

func TestService_ReturnsCopiesAndClearCache(t *testing.T) {
	fetcher := &fakeFetcher{}
	s := NewService(&fakeAuthenticator{access: "at"}, fetcher, Options{Location: time.UTC})
	ctx := context.Background()
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	events, err := s.GetEvents(ctx, day)
	require.NoError(t, err)
	events[0].Title = "mutated"

	again, err := s.GetEvents(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, "Standup", again[0].Title)
	s.Wait()

	before := len(fetcher.Calls())
	s.ClearCache()
	_, err = s.GetEvents(ctx, day)
	require.NoError(t, err)
	s.Wait()
	assert.Greater(t, len(fetcher.Calls()), before)
}

func TestAdjacentDays(t *testing.T) {
	assert.Equal(t, []string{"2023-12-31", "2024-01-02"}, AdjacentDays("2024-01-01"))
	assert.Equal(t, []string{"2024-02-28", "2024-03-01"}, AdjacentDays("2024-02-29"))
	assert.Nil(t, AdjacentDays("not-a-date"))
}

func TestDayBounds(t *testing.T) {
	loc := tokyo(t)
	start, end := DayBounds(time.Date(2024, 1, 1, 23, 59, 59, 0, loc), loc)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, loc), start)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, loc), end)

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	start, end = DayBounds(time.Date(2024, 3, 10, 12, 0, 0, 0, ny), ny)
	assert.Equal(t, 23*time.Hour, end.Sub(start), "spring-forward day")
}
