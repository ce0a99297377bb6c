package config

import "time"

const (
	// DefaultCalendarScope grants read-only access to calendar events.
	DefaultCalendarScope = "https://www.googleapis.com/auth/calendar.readonly"

	DefaultAuthURL   = "https://accounts.google.com/o/oauth2/auth"
	DefaultTokenURL  = "https://oauth2.googleapis.com/token"
	DefaultRevokeURL = "https://oauth2.googleapis.com/revoke"

	DefaultCallbackAddr   = "127.0.0.1:0"
	DefaultConsentTimeout = 10 * time.Minute
	DefaultPrompt         = "consent"

	DefaultCacheTTL      = 5 * time.Minute
	DefaultPrefetchLimit = 2

	DefaultCalendarID = "primary"

	DefaultModel       = "gpt-3.5-turbo"
	DefaultTemperature = 0.8
	DefaultMaxTokens   = 500
	DefaultPersona     = "childhood-friend"

	DefaultServerHost = "127.0.0.1"
	DefaultServerPort = 8765
)

// GetDefaultConfig returns the configuration used when no config.yaml exists.
// OAuth client credentials have no default and must be supplied.
func GetDefaultConfig() Config {
	return Config{
		OAuth: OAuthConfig{
			Scopes:         []string{DefaultCalendarScope},
			AuthURL:        DefaultAuthURL,
			TokenURL:       DefaultTokenURL,
			RevokeURL:      DefaultRevokeURL,
			CallbackAddr:   DefaultCallbackAddr,
			ConsentTimeout: DefaultConsentTimeout,
			Prompt:         DefaultPrompt,
		},
		Storage: StorageConfig{
			Backend: StorageBackendFile,
		},
		Cache: CacheConfig{
			EventsTTL:     DefaultCacheTTL,
			MessagesTTL:   DefaultCacheTTL,
			PrefetchLimit: DefaultPrefetchLimit,
		},
		Calendar: CalendarConfig{
			CalendarID: DefaultCalendarID,
			Timezone:   "Local",
		},
		Generator: GeneratorConfig{
			Model:       DefaultModel,
			Temperature: DefaultTemperature,
			MaxTokens:   DefaultMaxTokens,
			Persona:     DefaultPersona,
		},
		Server: ServerConfig{
			Host: DefaultServerHost,
			Port: DefaultServerPort,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
