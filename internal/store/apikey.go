package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"calbrief/pkg/logging"
)

// APIKeyName is the backend entry holding the generator API key.
const APIKeyName = "generator-api-key"

type apiKeyRecord struct {
	APIKey        string    `json:"api_key"`
	LastValidated time.Time `json:"last_validated"`
}

// APIKeys stores the content generator API key in a Backend.
type APIKeys struct {
	backend Backend
	target  string
	now     func() time.Time
}

// NewAPIKeys wraps backend. target names the backend kind in audit logs.
func NewAPIKeys(backend Backend, target string) *APIKeys {
	return &APIKeys{backend: backend, target: target, now: time.Now}
}

// Get returns the stored API key, or "" if none is set.
func (s *APIKeys) Get(ctx context.Context) (string, error) {
	rec, err := s.get(ctx)
	if err != nil || rec == nil {
		return "", err
	}
	return rec.APIKey, nil
}

// LastValidated returns when the stored key was last accepted by the provider.
func (s *APIKeys) LastValidated(ctx context.Context) (time.Time, error) {
	rec, err := s.get(ctx)
	if err != nil || rec == nil {
		return time.Time{}, err
	}
	return rec.LastValidated, nil
}

func (s *APIKeys) get(ctx context.Context) (*apiKeyRecord, error) {
	data, err := s.backend.Get(ctx, APIKeyName)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec apiKeyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: decode api key: %v", ErrStoreUnavailable, err)
	}
	return &rec, nil
}

// Set stores key and stamps it as validated now.
func (s *APIKeys) Set(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("api key must not be empty")
	}

	data, err := json.Marshal(apiKeyRecord{APIKey: key, LastValidated: s.now()})
	if err != nil {
		return fmt.Errorf("failed to marshal api key: %w", err)
	}
	if err := s.backend.Put(ctx, APIKeyName, data); err != nil {
		logging.Audit(logging.AuditEvent{Event: "api_key_store_failed", Outcome: "failure", Target: s.target, Err: err})
		return err
	}
	logging.Audit(logging.AuditEvent{Event: "api_key_stored", Outcome: "success", Target: s.target})
	return nil
}

// Delete removes the stored API key.
func (s *APIKeys) Delete(ctx context.Context) error {
	if err := s.backend.Delete(ctx, APIKeyName); err != nil {
		logging.Audit(logging.AuditEvent{Event: "api_key_delete_failed", Outcome: "failure", Target: s.target, Err: err})
		return err
	}
	logging.Audit(logging.AuditEvent{Event: "api_key_deleted", Outcome: "success", Target: s.target})
	return nil
}
