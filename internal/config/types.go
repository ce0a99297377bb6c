package config

import (
	"fmt"
	"time"
)

// Config is the top-level configuration structure for calbrief.
type Config struct {
	OAuth     OAuthConfig     `yaml:"oauth"`
	Storage   StorageConfig   `yaml:"storage"`
	Cache     CacheConfig     `yaml:"cache"`
	Calendar  CalendarConfig  `yaml:"calendar"`
	Generator GeneratorConfig `yaml:"generator"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// OAuthConfig holds the installed-application client registration.
type OAuthConfig struct {
	ClientID       string        `yaml:"clientId"`
	ClientSecret   string        `yaml:"clientSecret"`
	Scopes         []string      `yaml:"scopes,omitempty"`
	AuthURL        string        `yaml:"authUrl,omitempty"`
	TokenURL       string        `yaml:"tokenUrl,omitempty"`
	RevokeURL      string        `yaml:"revokeUrl,omitempty"`
	CallbackAddr   string        `yaml:"callbackAddr,omitempty"`   // loopback address for the redirect listener (default: 127.0.0.1:0)
	ConsentTimeout time.Duration `yaml:"consentTimeout,omitempty"` // 0 waits until the browser flow ends
	Prompt         string        `yaml:"prompt,omitempty"`
}

// Storage backends.
const (
	StorageBackendFile   = "file"
	StorageBackendSQLite = "sqlite"
	StorageBackendMemory = "memory"
)

// StorageConfig selects where secrets are kept.
type StorageConfig struct {
	Backend string `yaml:"backend,omitempty"`
	Dir     string `yaml:"dir,omitempty"` // default: <config dir>/secrets
}

// CacheConfig configures the read-through caches.
type CacheConfig struct {
	EventsTTL     time.Duration `yaml:"eventsTTL,omitempty"`
	MessagesTTL   time.Duration `yaml:"messagesTTL,omitempty"`
	PrefetchLimit int           `yaml:"prefetchLimit,omitempty"`
}

// CalendarConfig selects the calendar and the zone used to cut days.
type CalendarConfig struct {
	CalendarID string `yaml:"calendarId,omitempty"`
	Timezone   string `yaml:"timezone,omitempty"` // IANA name or "Local"
}

// Location resolves Timezone.
func (c CalendarConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// GeneratorConfig configures the chat-completion generator.
type GeneratorConfig struct {
	Model       string  `yaml:"model,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty"`
	MaxTokens   int64   `yaml:"maxTokens,omitempty"`
	BaseURL     string  `yaml:"baseUrl,omitempty"` // OpenAI-compatible endpoint; empty means api.openai.com
	Persona     string  `yaml:"persona,omitempty"`
}

// ServerConfig configures the local HTTP API.
type ServerConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"` // text or json
}
