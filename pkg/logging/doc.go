// Package logging provides the structured logging used across calbrief.
//
// It is a thin layer over log/slog. Every entry carries a subsystem
// attribute so output can be filtered per component.
//
// # Usage
//
//	logging.Init(logging.LevelInfo, logging.FormatText, os.Stderr)
//
//	logging.Info("Auth", "Starting authorization flow")
//	logging.Debug("Cache", "Miss for key %s", key)
//	logging.Error("Calendar", err, "Failed to list events for %s", day)
//
// # Subsystems
//
//   - Bootstrap: configuration loading and wiring
//   - Auth: loopback callback server, authorization flow, credential lifecycle
//   - Store: credential and API key persistence
//   - Cache: read-through caches and background prefetch
//   - Calendar, Message: the cache-backed data services
//   - Server: the local HTTP API
//
// # Audit Logging
//
// Writes and deletions of secrets are reported with Audit. Audit lines are
// prefixed with SECURITY_AUDIT and never include secret values:
//
//	logging.Audit(logging.AuditEvent{
//	    Event:   "credential_stored",
//	    Outcome: "success",
//	    Target:  "file",
//	})
package logging
