package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"calbrief/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/calbrief"
	configFileName = "config.yaml"
	secretsDirName = "secrets"
)

// Environment overrides, applied after config.yaml.
const (
	EnvClientID     = "CALBRIEF_OAUTH_CLIENT_ID"
	EnvClientSecret = "CALBRIEF_OAUTH_CLIENT_SECRET"
	EnvLogLevel     = "CALBRIEF_LOG_LEVEL"
)

var osUserHomeDir = os.UserHomeDir

// DefaultConfigDir returns ~/.config/calbrief.
func DefaultConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// SecretsDir returns the storage directory, defaulting to <configDir>/secrets.
func (c Config) SecretsDir(configDir string) string {
	if c.Storage.Dir != "" {
		return c.Storage.Dir
	}
	return filepath.Join(configDir, secretsDirName)
}

// LoadConfig loads config.yaml from configDir over the defaults and applies
// environment overrides. A missing file is not an error. The result is not
// validated; callers that need OAuth call Validate.
func LoadConfig(configDir string) (Config, error) {
	configFilePath := filepath.Join(configDir, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Debug("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
	case err != nil:
		return Config{}, &ConfigurationError{
			FilePath:  configFilePath,
			ErrorType: "io",
			Message:   err.Error(),
			Err:       err,
		}
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, &ConfigurationError{
				FilePath:    configFilePath,
				ErrorType:   "parse",
				Message:     err.Error(),
				Suggestions: []string{"Durations use Go syntax, e.g. 5m or 90s", "Keys are camelCase, e.g. clientId"},
				Err:         err,
			}
		}
		logging.Debug("ConfigLoader", "Loaded configuration from %s", configFilePath)
	}

	applyEnv(&config)
	return config, nil
}

func applyEnv(config *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvClientID)); v != "" {
		config.OAuth.ClientID = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvClientSecret)); v != "" {
		config.OAuth.ClientSecret = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		config.Logging.Level = v
	}
}
