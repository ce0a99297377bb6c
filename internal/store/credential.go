package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"calbrief/pkg/logging"
)

// CredentialName is the backend entry holding the OAuth credential.
const CredentialName = "oauth-credential"

// Credential is the persisted result of a token exchange or refresh.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Valid reports whether the access token can still be used at now.
// A credential without an expiry is treated as expired.
func (c *Credential) Valid(now time.Time) bool {
	if c == nil || c.AccessToken == "" || c.ExpiresAt.IsZero() {
		return false
	}
	return now.Before(c.ExpiresAt)
}

// CanRefresh reports whether the credential can be renewed without user interaction.
func (c *Credential) CanRefresh() bool {
	return c != nil && c.RefreshToken != ""
}

// Token converts the credential to an oauth2.Token.
func (c *Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		Expiry:       c.ExpiresAt,
	}
}

// CredentialFromToken converts an oauth2.Token into a Credential.
func CredentialFromToken(tok *oauth2.Token) *Credential {
	return &Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    tok.Expiry,
	}
}

// Credentials stores the single OAuth credential in a Backend.
type Credentials struct {
	backend Backend
	target  string
}

// NewCredentials wraps backend. target names the backend kind in audit logs.
func NewCredentials(backend Backend, target string) *Credentials {
	return &Credentials{backend: backend, target: target}
}

// Get returns the stored credential, or (nil, nil) if none exists.
func (s *Credentials) Get(ctx context.Context) (*Credential, error) {
	data, err := s.backend.Get(ctx, CredentialName)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("%w: decode credential: %v", ErrStoreUnavailable, err)
	}
	return &cred, nil
}

// Set replaces the stored credential.
// SECURITY: token values are never logged, only expiry and refresh capability.
func (s *Credentials) Set(ctx context.Context, cred *Credential) error {
	if cred == nil {
		return errors.New("credential is nil")
	}

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	if err := s.backend.Put(ctx, CredentialName, data); err != nil {
		logging.Audit(logging.AuditEvent{
			Event:   "credential_store_failed",
			Outcome: "failure",
			Target:  s.target,
			Err:     err,
		})
		return err
	}

	logging.Audit(logging.AuditEvent{
		Event:   "credential_stored",
		Outcome: "success",
		Target:  s.target,
		Attrs: map[string]any{
			"expiry":            cred.ExpiresAt.Format(time.RFC3339),
			"has_refresh_token": cred.RefreshToken != "",
		},
	})
	return nil
}

// Delete removes the stored credential. Deleting a missing credential is not an error.
func (s *Credentials) Delete(ctx context.Context) error {
	if err := s.backend.Delete(ctx, CredentialName); err != nil {
		logging.Audit(logging.AuditEvent{
			Event:   "credential_delete_failed",
			Outcome: "failure",
			Target:  s.target,
			Err:     err,
		})
		return err
	}

	logging.Audit(logging.AuditEvent{
		Event:   "credential_deleted",
		Outcome: "success",
		Target:  s.target,
	})
	return nil
}
