// Package store persists calbrief's secrets: the OAuth credential and the
// content generator API key.
//
// Secrets are opaque blobs kept in a Backend:
//   - FileBackend: one 0600 JSON file per secret under ~/.config/calbrief/secrets
//   - SQLiteBackend: a single "secrets" table (modernc.org/sqlite, no cgo)
//   - MemoryBackend: process memory, for tests and storage.backend: memory
//
// Credentials and APIKeys add typed encoding and audit logging on top.
// Backend failures wrap ErrStoreUnavailable; a missing credential is
// reported as (nil, nil) rather than an error.
package store
