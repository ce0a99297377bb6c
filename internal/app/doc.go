// Package app bootstraps calbrief: it loads configuration, initializes
// logging and builds the services every command uses.
//
// # Architecture Overview
//
//  1. **Bootstrap (`bootstrap.go`)**: Application initialization and lifecycle
//  2. **Configuration (`config.go`)**: per-invocation flags (debug, no-browser, config path, mode)
//  3. **Services (`services.go`)**: secret backend, auth manager, calendar and message services
//  4. **Modes (`modes.go`)**: which services a command needs, and the serve loop
//
// # Modes
//
// ModeFull validates the OAuth client registration and builds the whole
// graph. ModeSecrets skips the OAuth checks and builds only the secret
// store and generator, so `calbrief apikey` works before OAuth is set up.
//
// # Dependency graph
//
//	Backend (file | sqlite | memory)
//	  ├── store.Credentials ── auth.Manager ── calendar.Service ──┐
//	  └── store.APIKeys ────── message.OpenAIGenerator ───────────┴── message.Service
//
// Components are constructed once per process and injected; no package
// keeps its own singleton.
package app
