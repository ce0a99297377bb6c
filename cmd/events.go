package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"calbrief/internal/app"
	"calbrief/internal/calendar"
)

var eventsDate string

// eventsCmd lists one day's events
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List a day's calendar events",
	Long: `List the events of one day in the configured calendar and time zone.

Signs in first if needed. Events are cached for the configured TTL and the
neighboring days are prefetched.

Examples:
  calbrief events                    # Today
  calbrief events --date 2024-06-01  # A specific day`,
	Args: cobra.NoArgs,
	RunE: runEvents,
}

func init() {
	eventsCmd.Flags().StringVar(&eventsDate, "date", "", "day to list (YYYY-MM-DD, default today)")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	application, err := loadApplication(cmd, app.ModeFull)
	if err != nil {
		return err
	}
	defer application.Close()

	services := application.Services()
	date, err := parseDateFlag(eventsDate, services.Location, time.Now())
	if err != nil {
		return err
	}

	events, err := services.Calendar.GetEvents(cmd.Context(), date)
	if err != nil {
		return err
	}
	renderEvents(cmd.OutOrStdout(), date, events, services.Location)
	return nil
}

// parseDateFlag parses YYYY-MM-DD in loc; empty means now.
func parseDateFlag(value string, loc *time.Location, now time.Time) (time.Time, error) {
	if value == "" {
		return now.In(loc), nil
	}
	date, err := calendar.ParseDateKey(value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q, want YYYY-MM-DD: %w", value, err)
	}
	return date, nil
}

func renderEvents(w io.Writer, date time.Time, events []calendar.Event, loc *time.Location) {
	day := date.In(loc).Format("Monday, January 2 2006")
	if len(events) == 0 {
		fmt.Fprintf(w, "%s\n", text.FgYellow.Sprintf("No events on %s", day))
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle(day)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("TIME"),
		text.FgHiCyan.Sprint("TITLE"),
		text.FgHiCyan.Sprint("LOCATION"),
	})
	for _, ev := range events {
		when := "all day"
		if !ev.AllDay {
			when = ev.Start.In(loc).Format("15:04") + "–" + ev.End.In(loc).Format("15:04")
		}
		t.AppendRow(table.Row{when, ev.Title, ev.Location})
	}
	t.Render()
}
