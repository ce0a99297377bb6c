package calendar

import (
	"slices"
	"time"
)

// NoTitle replaces an empty event summary.
const NoTitle = "(no title)"

// Event is one calendar entry within a day.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"allDay"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
}

const dateKeyLayout = "2006-01-02"

// DateKey formats t as the cache key for its calendar day in loc.
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dateKeyLayout)
}

// ParseDateKey parses a YYYY-MM-DD key as midnight in loc.
func ParseDateKey(key string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dateKeyLayout, key, loc)
}

// DayBounds returns local midnight of day and the following midnight. The
// end is exclusive.
func DayBounds(day time.Time, loc *time.Location) (time.Time, time.Time) {
	d := day.In(loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// AdjacentDays returns the keys for the days before and after key.
func AdjacentDays(key string) []string {
	day, err := time.Parse(dateKeyLayout, key)
	if err != nil {
		return nil
	}
	return []string{
		day.AddDate(0, 0, -1).Format(dateKeyLayout),
		day.AddDate(0, 0, 1).Format(dateKeyLayout),
	}
}

func cloneEvents(events []Event) []Event {
	if events == nil {
		return []Event{}
	}
	return slices.Clone(events)
}
