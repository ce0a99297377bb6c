// Package config loads calbrief's configuration.
//
// Configuration lives in a single directory, ~/.config/calbrief by default
// or the directory given with --config:
//
//	~/.config/calbrief/
//	├── config.yaml
//	└── secrets/          (file storage backend)
//
// A minimal config.yaml only needs the OAuth client registration:
//
//	oauth:
//	  clientId: 1234.apps.googleusercontent.com
//	  clientSecret: GOCSPX-...
//	cache:
//	  eventsTTL: 5m
//	generator:
//	  model: gpt-4o-mini
//
// Everything else falls back to GetDefaultConfig. The client ID, client
// secret and log level can also be set through CALBRIEF_OAUTH_CLIENT_ID,
// CALBRIEF_OAUTH_CLIENT_SECRET and CALBRIEF_LOG_LEVEL.
//
// Validate reports every problem at once as ValidationErrors.
package config
