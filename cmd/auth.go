package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"calbrief/internal/app"
	"calbrief/internal/store"
)

// authCmd represents the auth command group
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the Google Calendar sign-in",
	Long: `Manage the OAuth credential used to read Google Calendar.

Examples:
  calbrief auth login                  # Sign in through the browser
  calbrief auth login --no-browser     # Print the consent URL instead
  calbrief auth status                 # Show credential and API key status
  calbrief auth logout                 # Delete and revoke the credential`,
}

// authLoginCmd represents the auth login command
var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to Google Calendar",
	Long: `Sign in to Google Calendar.

A valid stored credential is reused. Otherwise a loopback listener is
started on 127.0.0.1, the consent page is opened in the browser, and the
command waits for the redirect (10 minutes by default).`,
	Args: cobra.NoArgs,
	RunE: runAuthLogin,
}

// authLogoutCmd represents the auth logout command
var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Delete and revoke the stored credential",
	Args:  cobra.NoArgs,
	RunE:  runAuthLogout,
}

// authStatusCmd represents the auth status command
var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	Args:  cobra.NoArgs,
	RunE:  runAuthStatus,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	application, err := loadApplication(cmd, app.ModeFull)
	if err != nil {
		return err
	}
	defer application.Close()

	var s *spinner.Spinner
	if !noBrowser {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
		s.Suffix = " Waiting for browser consent..."
		s.Start()
	}

	cred, err := application.Services().Auth.EnsureAuthenticated(cmd.Context())
	if s != nil {
		s.Stop()
	}
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), text.FgRed.Sprint("Sign-in failed"))
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s (token valid until %s)\n",
		text.FgGreen.Sprint("Signed in"), cred.ExpiresAt.Local().Format(time.RFC1123))
	return nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	application, err := loadApplication(cmd, app.ModeFull)
	if err != nil {
		return err
	}
	defer application.Close()

	application.Services().Auth.Logout(cmd.Context())
	fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	application, err := loadApplication(cmd, app.ModeFull)
	if err != nil {
		return err
	}
	defer application.Close()

	ctx := cmd.Context()
	services := application.Services()

	// A read failure shows as "Not signed in"; the manager treats it the same.
	cred, _ := services.Credentials.Get(ctx)
	printCredentialStatus(cmd.OutOrStdout(), services.Auth.IsAuthenticated(ctx), cred)

	key, _ := services.APIKeys.Get(ctx)
	validated, _ := services.APIKeys.LastValidated(ctx)
	printAPIKeyStatus(cmd.OutOrStdout(), key != "", validated)
	return nil
}

func printCredentialStatus(w io.Writer, authenticated bool, cred *store.Credential) {
	fmt.Fprintln(w, "Google Calendar")
	switch {
	case authenticated && cred != nil:
		fmt.Fprintf(w, "  Status:    %s\n", text.FgGreen.Sprint("Signed in"))
		fmt.Fprintf(w, "  Expires:   %s\n", cred.ExpiresAt.Local().Format(time.RFC1123))
	case cred != nil:
		fmt.Fprintf(w, "  Status:    %s\n", text.FgYellow.Sprint("Token expired"))
	default:
		fmt.Fprintf(w, "  Status:    %s\n", text.FgYellow.Sprint("Not signed in"))
	}
	if cred == nil {
		return
	}
	if cred.CanRefresh() {
		fmt.Fprintf(w, "  Refresh:   %s\n", text.FgGreen.Sprint("Available"))
	} else {
		fmt.Fprintf(w, "  Refresh:   %s\n", text.FgYellow.Sprint("Not available (sign in again on expiry)"))
	}
}

func printAPIKeyStatus(w io.Writer, configured bool, validated time.Time) {
	fmt.Fprintln(w, "Generator API key")
	if !configured {
		fmt.Fprintf(w, "  Status:    %s\n", text.FgYellow.Sprint("Not configured"))
		return
	}
	fmt.Fprintf(w, "  Status:    %s\n", text.FgGreen.Sprint("Configured"))
	if !validated.IsZero() {
		fmt.Fprintf(w, "  Validated: %s\n", validated.Local().Format(time.RFC1123))
	}
}
