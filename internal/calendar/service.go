package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"calbrief/internal/auth"
	"calbrief/internal/cache"
	"calbrief/internal/store"
	"calbrief/pkg/logging"
)

// Authenticator supplies credentials for the fetcher. *auth.Manager
// implements it.
type Authenticator interface {
	EnsureAuthenticated(ctx context.Context) (*store.Credential, error)
	Refresh(ctx context.Context) (*store.Credential, error)
}

// Fetcher lists the events in [start, end].
type Fetcher interface {
	ListEvents(ctx context.Context, start, end time.Time, cred *store.Credential) ([]Event, error)
}

// UpstreamError is returned when the calendar provider fails for a day.
type UpstreamError struct {
	Date string
	Err  error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("failed to fetch events for %s: %v", e.Date, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Options configures a Service.
type Options struct {
	TTL           time.Duration
	PrefetchLimit int
	Location      *time.Location
	Now           func() time.Time
}

// Service serves a day's events through a read-through cache and
// prefetches the neighboring days after each miss.
type Service struct {
	auth    Authenticator
	fetcher Fetcher
	loc     *time.Location
	cache   *cache.Cache[[]Event]
}

// NewService creates a calendar service.
func NewService(authenticator Authenticator, fetcher Fetcher, opts Options) *Service {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	s := &Service{
		auth:    authenticator,
		fetcher: fetcher,
		loc:     loc,
	}
	s.cache = cache.New("events", s.fetchDay, cache.Options[[]Event]{
		TTL:           opts.TTL,
		Neighbors:     AdjacentDays,
		Clone:         cloneEvents,
		Now:           opts.Now,
		PrefetchLimit: opts.PrefetchLimit,
	})
	return s
}

// GetEvents returns the events of date's calendar day.
func (s *Service) GetEvents(ctx context.Context, date time.Time) ([]Event, error) {
	return s.cache.Get(ctx, DateKey(date, s.loc))
}

// Location returns the zone used to cut days.
func (s *Service) Location() *time.Location {
	return s.loc
}

// ClearCache drops all cached days.
func (s *Service) ClearCache() {
	s.cache.InvalidateAll()
}

// Wait blocks until background prefetches finish.
func (s *Service) Wait() {
	s.cache.Wait()
}

func (s *Service) fetchDay(ctx context.Context, key string) ([]Event, error) {
	day, err := ParseDateKey(key, s.loc)
	if err != nil {
		return nil, fmt.Errorf("invalid date key %q: %w", key, err)
	}
	start, end := DayBounds(day, s.loc)

	cred, err := s.auth.EnsureAuthenticated(ctx)
	if err != nil {
		return nil, err
	}

	events, err := s.fetcher.ListEvents(ctx, start, end, cred)
	if err != nil && auth.IsTokenExpiredError(err) {
		logging.Info("Calendar", "Access token rejected for %s, refreshing", key)

		cred, err = s.auth.Refresh(ctx)
		switch {
		case errors.Is(err, auth.ErrReauthenticationRequired):
			if cred, err = s.auth.EnsureAuthenticated(ctx); err != nil {
				return nil, err
			}
		case err != nil:
			return nil, &UpstreamError{Date: key, Err: err}
		}
		events, err = s.fetcher.ListEvents(ctx, start, end, cred)
	}
	if err != nil {
		return nil, &UpstreamError{Date: key, Err: err}
	}

	logging.Debug("Calendar", "Fetched %d events for %s", len(events), key)
	return events, nil
}
