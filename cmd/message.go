package cmd

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"calbrief/internal/app"
	"calbrief/internal/message"
)

var (
	messageDate    string
	messageVariant string
)

// messageCmd prints the generated briefing for a day
var messageCmd = &cobra.Command{
	Use:   "message",
	Short: "Generate a briefing for a day's events",
	Long: `Generate a short commentary on a day's events with the configured
persona and model. Requires an API key (see "calbrief apikey").

The variant frames the day as past, present or future. By default it is
derived from the date relative to today.

Examples:
  calbrief message                                   # Today
  calbrief message --date 2024-06-01 --variant past`,
	Args: cobra.NoArgs,
	RunE: runMessage,
}

func init() {
	messageCmd.Flags().StringVar(&messageDate, "date", "", "day to describe (YYYY-MM-DD, default today)")
	messageCmd.Flags().StringVar(&messageVariant, "variant", "", "past, present or future (default from --date)")
	rootCmd.AddCommand(messageCmd)
}

func runMessage(cmd *cobra.Command, args []string) error {
	application, err := loadApplication(cmd, app.ModeFull)
	if err != nil {
		return err
	}
	defer application.Close()

	services := application.Services()
	now := time.Now()
	date, err := parseDateFlag(messageDate, services.Location, now)
	if err != nil {
		return err
	}

	variant := message.VariantFor(date, now, services.Location)
	if messageVariant != "" {
		if variant, err = message.ParseVariant(messageVariant); err != nil {
			return err
		}
	}

	msg, err := services.Messages.GetMessage(cmd.Context(), date, variant)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), text.FgHiBlack.Sprintf("%s (%s)", date.Format("2006-01-02"), variant))
	fmt.Fprintln(cmd.OutOrStdout(), msg)
	return nil
}
