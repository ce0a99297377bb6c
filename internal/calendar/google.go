package calendar

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"calbrief/internal/store"
	"calbrief/pkg/logging"
)

const pageSize = 250

// GoogleFetcher lists events with the Google Calendar v3 API.
type GoogleFetcher struct {
	calendarID string
	loc        *time.Location
	opts       []option.ClientOption
}

// NewGoogleFetcher creates a fetcher for calendarID. Extra client options
// are appended after the credential's token source, so tests can redirect
// the endpoint and HTTP client.
func NewGoogleFetcher(calendarID string, loc *time.Location, opts ...option.ClientOption) *GoogleFetcher {
	if loc == nil {
		loc = time.Local
	}
	return &GoogleFetcher{calendarID: calendarID, loc: loc, opts: opts}
}

// ListEvents returns single (expanded) events in [start, end) ordered by
// start time.
func (f *GoogleFetcher) ListEvents(ctx context.Context, start, end time.Time, cred *store.Credential) ([]Event, error) {
	if cred == nil {
		return nil, fmt.Errorf("no credential")
	}

	clientOpts := append([]option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(cred.Token())),
	}, f.opts...)

	srv, err := gcal.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar client: %w", err)
	}

	call := srv.Events.List(f.calendarID).
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(pageSize)

	var events []Event
	err = call.Pages(ctx, func(page *gcal.Events) error {
		for _, item := range page.Items {
			ev, err := convertEvent(item, f.loc)
			if err != nil {
				logging.Warn("Calendar", "Skipping event %s: %v", item.Id, err)
				continue
			}
			events = append(events, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func convertEvent(item *gcal.Event, loc *time.Location) (Event, error) {
	ev := Event{
		ID:          item.Id,
		Title:       item.Summary,
		Description: item.Description,
		Location:    item.Location,
	}
	if ev.Title == "" {
		ev.Title = NoTitle
	}

	var err error
	if ev.Start, ev.AllDay, err = parseEventTime(item.Start, loc); err != nil {
		return Event{}, fmt.Errorf("start: %w", err)
	}
	if ev.End, _, err = parseEventTime(item.End, loc); err != nil {
		return Event{}, fmt.Errorf("end: %w", err)
	}
	return ev, nil
}

// parseEventTime reads either a timed instant or an all-day date, which is
// taken as midnight in loc.
func parseEventTime(t *gcal.EventDateTime, loc *time.Location) (time.Time, bool, error) {
	switch {
	case t == nil:
		return time.Time{}, false, fmt.Errorf("missing")
	case t.DateTime != "":
		parsed, err := time.Parse(time.RFC3339, t.DateTime)
		return parsed, false, err
	case t.Date != "":
		parsed, err := time.ParseInLocation(dateKeyLayout, t.Date, loc)
		return parsed, true, err
	default:
		return time.Time{}, false, fmt.Errorf("neither date nor dateTime set")
	}
}
