package app

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"calbrief/internal/auth"
	"calbrief/internal/calendar"
	"calbrief/internal/config"
	"calbrief/internal/message"
	"calbrief/internal/store"
	"calbrief/pkg/logging"
)

const tokenHTTPTimeout = 30 * time.Second

// Services holds the components built for one process. They are created
// once here and injected; nothing else constructs them.
//
// Field descriptions:
//   - Backend: the secret backend selected by storage.backend
//   - Credentials, APIKeys: typed views over Backend
//   - Auth: the credential lifecycle manager (nil in ModeSecrets)
//   - Calendar: cached events with neighbor prefetch (nil in ModeSecrets)
//   - Generator: the OpenAI-compatible content generator
//   - Messages: cached generated messages (nil in ModeSecrets)
type Services struct {
	Backend     store.Backend
	Credentials *store.Credentials
	APIKeys     *store.APIKeys

	Auth     *auth.Manager
	Calendar *calendar.Service

	Prompts   *message.Prompts
	Generator *message.OpenAIGenerator
	Messages  *message.Service

	Location *time.Location
}

// InitializeServices wires the services for settings. configDir anchors the
// default secrets directory.
//
// Service Dependencies:
//  1. Secret backend and typed stores
//  2. Auth manager (credential store + consent surface)
//  3. Calendar service (auth manager + Google fetcher)
//  4. Prompts and generator (API key store)
//  5. Message service (calendar service + generator)
func InitializeServices(cfg *Config, settings config.Config, configDir string) (*Services, error) {
	loc, err := settings.Calendar.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid calendar timezone: %w", err)
	}

	backend, err := OpenBackend(settings, configDir)
	if err != nil {
		return nil, err
	}

	target := settings.Storage.Backend
	s := &Services{
		Backend:     backend,
		Credentials: store.NewCredentials(backend, target),
		APIKeys:     store.NewAPIKeys(backend, target),
		Location:    loc,
	}

	s.Prompts, err = message.NewPrompts(loc)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	s.Generator = message.NewOpenAIGenerator(message.OpenAIConfig{
		Model:       settings.Generator.Model,
		Temperature: settings.Generator.Temperature,
		MaxTokens:   settings.Generator.MaxTokens,
		BaseURL:     settings.Generator.BaseURL,
		Persona:     settings.Generator.Persona,
	}, s.APIKeys, s.Prompts)

	if cfg.Mode == ModeSecrets {
		logging.Debug("Services", "Initialized secret store (%s) without calendar services", target)
		return s, nil
	}

	s.Auth = auth.NewManager(authConfig(settings), s.Credentials, consentSurface(cfg))

	s.Calendar = calendar.NewService(s.Auth,
		calendar.NewGoogleFetcher(settings.Calendar.CalendarID, loc),
		calendar.Options{
			TTL:           settings.Cache.EventsTTL,
			PrefetchLimit: settings.Cache.PrefetchLimit,
			Location:      loc,
		})

	s.Messages = message.NewService(s.Calendar, s.Generator, message.Options{
		TTL:      settings.Cache.MessagesTTL,
		Location: loc,
	})

	logging.Debug("Services", "Initialized services (storage=%s, calendar=%s, zone=%s)",
		target, settings.Calendar.CalendarID, loc)
	return s, nil
}

// Close waits for background prefetches and releases the backend.
func (s *Services) Close() error {
	if s.Calendar != nil {
		s.Calendar.Wait()
	}
	return s.Backend.Close()
}

// OpenBackend opens the secret backend named by storage.backend.
func OpenBackend(settings config.Config, configDir string) (store.Backend, error) {
	dir := settings.SecretsDir(configDir)
	switch settings.Storage.Backend {
	case config.StorageBackendMemory:
		logging.Warn("Services", "Using in-memory secret storage; credentials are lost on exit")
		return store.NewMemoryBackend(), nil
	case config.StorageBackendSQLite:
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create secret storage directory: %w", err)
		}
		b, err := store.NewSQLiteBackendInDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite secret store: %w", err)
		}
		return b, nil
	case config.StorageBackendFile, "":
		b, err := store.NewFileBackend(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to open file secret store: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", settings.Storage.Backend)
	}
}

func authConfig(settings config.Config) auth.Config {
	o := settings.OAuth
	endpoint := google.Endpoint
	if o.AuthURL != "" {
		endpoint.AuthURL = o.AuthURL
	}
	if o.TokenURL != "" {
		endpoint.TokenURL = o.TokenURL
	}
	return auth.Config{
		OAuth2: oauth2.Config{
			ClientID:     o.ClientID,
			ClientSecret: o.ClientSecret,
			Scopes:       o.Scopes,
			Endpoint:     endpoint,
		},
		CallbackAddr:   o.CallbackAddr,
		ConsentTimeout: o.ConsentTimeout,
		Prompt:         o.Prompt,
		RevokeURL:      o.RevokeURL,
		HTTPClient:     &http.Client{Timeout: tokenHTTPTimeout},
	}
}

func consentSurface(cfg *Config) auth.ConsentSurface {
	out := cfg.output()
	if cfg.NoBrowser {
		return &auth.PrintSurface{Out: out}
	}
	return auth.NewBrowserSurface(out)
}

func (c *Config) output() io.Writer {
	if c.Out != nil {
		return c.Out
	}
	return stderr
}
