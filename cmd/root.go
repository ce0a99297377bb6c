package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"calbrief/internal/app"
	"calbrief/internal/auth"
	"calbrief/internal/message"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAPIKeyMissing indicates no generator API key is stored.
	ExitCodeAPIKeyMissing = 2
	// ExitCodeAuthFailed indicates the OAuth flow failed or re-authentication is needed.
	ExitCodeAuthFailed = 3
)

// Global flags.
var (
	configPath string
	debug      bool
	noBrowser  bool
)

// newApplication builds the application for a command. Tests replace it.
var newApplication = app.NewApplication

// rootCmd represents the base command for the calbrief application.
var rootCmd = &cobra.Command{
	Use:   "calbrief",
	Short: "Google Calendar events with a generated daily briefing",
	Long: `calbrief signs in to Google Calendar with a browser consent flow,
caches each day's events (prefetching the neighboring days) and asks an
OpenAI-compatible model for a short commentary on the day.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// Interrupts cancel the command context, which aborts a pending login.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "calbrief version %s\n" .Version}}`)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	var authFailed *auth.AuthenticationFailedError
	if errors.As(err, &authFailed) || errors.Is(err, auth.ErrReauthenticationRequired) {
		return ExitCodeAuthFailed
	}

	if errors.Is(err, message.ErrAPIKeyNotConfigured) {
		return ExitCodeAPIKeyMissing
	}

	return ExitCodeError
}

// loadApplication bootstraps the application for mode from the global flags.
func loadApplication(cmd *cobra.Command, mode app.Mode) (*app.Application, error) {
	cfg := app.NewConfig(debug, noBrowser, configPath)
	cfg.Mode = mode
	cfg.Out = cmd.ErrOrStderr()
	return newApplication(cfg)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "configuration directory (default is $HOME/.config/calbrief)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noBrowser, "no-browser", false, "print the consent URL instead of opening a browser")

	rootCmd.AddCommand(newVersionCmd())
}
