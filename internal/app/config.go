package app

import (
	"io"

	"calbrief/internal/config"
)

// Config holds the application configuration
type Config struct {
	// Debug settings
	Debug bool

	// NoBrowser prints the consent URL instead of opening a browser.
	NoBrowser bool

	// Custom configuration directory (optional).
	// When empty, ~/.config/calbrief is used.
	ConfigPath string

	// Mode selects how much of the stack is built.
	Mode Mode

	// Out receives consent prompts and log output. Defaults to os.Stderr.
	Out io.Writer

	// Settings, when set, is used instead of loading config.yaml.
	Settings *config.Config
}

// NewConfig creates a new application configuration
func NewConfig(debug, noBrowser bool, configPath string) *Config {
	return &Config{
		Debug:      debug,
		NoBrowser:  noBrowser,
		ConfigPath: configPath,
		Mode:       ModeFull,
	}
}
