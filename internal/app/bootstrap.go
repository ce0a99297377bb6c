package app

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"

	"calbrief/internal/config"
	"calbrief/pkg/logging"
)

var stderr io.Writer = os.Stderr

// Application holds the loaded settings and the services built from them.
//
// The Application follows a two-phase initialization pattern:
//  1. Bootstrap phase: load and validate configuration, initialize logging, build services
//  2. Execution phase: commands call into Services, or Serve runs the local API
//
// Example usage:
//
//	application, err := app.NewApplication(app.NewConfig(false, false, ""))
//	if err != nil {
//	    return err
//	}
//	defer application.Close()
//	events, err := application.Services().Calendar.GetEvents(ctx, time.Now())
type Application struct {
	config    *Config
	settings  config.Config
	configDir string
	services  *Services
}

// NewApplication creates and initializes a new application instance.
// This function performs the complete bootstrap sequence:
//
//  1. Configures logging from the debug flag
//  2. Loads config.yaml (or uses cfg.Settings) and applies logging settings
//  3. Validates the settings for cfg.Mode
//  4. Initializes the services
func NewApplication(cfg *Config) (*Application, error) {
	appLogLevel := logging.LevelInfo
	if cfg.Debug {
		appLogLevel = logging.LevelDebug
	}
	logging.InitForCLI(appLogLevel, cfg.output())

	configDir := cfg.ConfigPath
	if configDir == "" {
		dir, err := config.DefaultConfigDir()
		if err != nil {
			return nil, err
		}
		configDir = dir
	}

	var settings config.Config
	if cfg.Settings != nil {
		settings = *cfg.Settings
	} else {
		loaded, err := config.LoadConfig(configDir)
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load configuration from %s", configDir)
			return nil, fmt.Errorf("failed to load configuration from %s: %w", configDir, err)
		}
		settings = loaded
	}

	if !cfg.Debug {
		appLogLevel = logging.ParseLevel(settings.Logging.Level)
	}
	logging.Init(appLogLevel, logging.Format(settings.Logging.Format), cfg.output())

	if err := cfg.Mode.validate(settings); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", configDir, err)
	}

	services, err := InitializeServices(cfg, settings, configDir)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	logging.Debug("Bootstrap", "Application ready (mode=%s, config=%s)", cfg.Mode, configDir)

	return &Application{
		config:    cfg,
		settings:  settings,
		configDir: configDir,
		services:  services,
	}, nil
}

// Services returns the initialized services.
func (a *Application) Services() *Services {
	return a.services
}

// Settings returns the effective configuration.
func (a *Application) Settings() config.Config {
	return a.settings
}

// ConfigDir returns the directory configuration was loaded from.
func (a *Application) ConfigDir() string {
	return a.configDir
}

// Serve runs the local HTTP API on the configured address until ctx ends or
// the process is signalled. ready, if non-nil, receives the bound address.
func (a *Application) Serve(ctx context.Context, ready func(net.Addr)) error {
	if a.config.Mode != ModeFull {
		return fmt.Errorf("serve requires mode %s, have %s", ModeFull, a.config.Mode)
	}
	return runServeMode(ctx, a.services, a.settings.Server.Addr(), ready)
}

// Close releases the services.
func (a *Application) Close() error {
	return a.services.Close()
}
