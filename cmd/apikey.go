package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"calbrief/internal/app"
)

// apikeyCmd groups the generator API key commands
var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage the content generator API key",
	Long: `Manage the API key used for message generation. The key is kept in
the configured secret store next to the OAuth credential.

Examples:
  calbrief apikey test sk-...   # Check the key with a short request, then store it
  calbrief apikey set sk-...    # Store without checking
  calbrief apikey clear         # Remove the stored key`,
}

var apikeySetCmd = &cobra.Command{
	Use:   "set <key>",
	Short: "Store the API key without testing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := loadApplication(cmd, app.ModeSecrets)
		if err != nil {
			return err
		}
		defer application.Close()

		if err := application.Services().APIKeys.Set(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "API key stored")
		return nil
	},
}

var apikeyTestCmd = &cobra.Command{
	Use:   "test <key>",
	Short: "Send a greeting with the key and store it if it works",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := loadApplication(cmd, app.ModeSecrets)
		if err != nil {
			return err
		}
		defer application.Close()

		greeting, err := application.Services().Generator.TestAPIKey(cmd.Context(), args[0])
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), text.FgRed.Sprint("API key test failed"))
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), text.FgGreen.Sprint("API key works and was stored"))
		fmt.Fprintln(cmd.OutOrStdout(), greeting)
		return nil
	},
}

var apikeyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored API key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := loadApplication(cmd, app.ModeSecrets)
		if err != nil {
			return err
		}
		defer application.Close()

		if err := application.Services().APIKeys.Delete(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "API key cleared")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(apikeyCmd)
	apikeyCmd.AddCommand(apikeySetCmd)
	apikeyCmd.AddCommand(apikeyTestCmd)
	apikeyCmd.AddCommand(apikeyClearCmd)
}
