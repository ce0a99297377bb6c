package app

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"calbrief/internal/config"
	"calbrief/internal/server"
	"calbrief/pkg/logging"
)

// Mode selects which services InitializeServices builds.
type Mode int

const (
	// ModeFull builds everything and requires the OAuth client registration.
	ModeFull Mode = iota

	// ModeSecrets builds only the secret store and the generator, for
	// commands that manage the API key without talking to the calendar.
	ModeSecrets
)

func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeSecrets:
		return "secrets"
	default:
		return "unknown"
	}
}

// validate applies the checks the mode needs.
func (m Mode) validate(settings config.Config) error {
	if m == ModeSecrets {
		return settings.ValidateLocal()
	}
	return settings.Validate()
}

// runServeMode runs the local HTTP API until ctx ends or the process
// receives SIGINT or SIGTERM.
//
// Signal Handling:
//   - SIGINT (Ctrl+C): Triggers graceful shutdown
//   - SIGTERM: Triggers graceful shutdown (common in container environments)
func runServeMode(ctx context.Context, services *Services, addr string, ready func(net.Addr)) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(services.Auth, services.Calendar, services.Messages, nil)
	if err := srv.ListenAndServe(ctx, addr, ready); err != nil {
		logging.Error("Serve", err, "Local API stopped")
		return err
	}

	logging.Info("Serve", "Waiting for background prefetches")
	services.Calendar.Wait()
	return nil
}
