package auth

import (
	"errors"
	"strings"
)

var (
	// ErrListenerBindFailed is returned when the loopback callback server cannot bind.
	ErrListenerBindFailed = errors.New("failed to bind loopback callback listener")

	// ErrConsentAborted is returned when the consent surface closed, or the
	// consent timeout elapsed, before an authorization code arrived.
	ErrConsentAborted = errors.New("user consent aborted")

	// ErrMissingAuthorizationCode is returned when the redirect carried no code.
	ErrMissingAuthorizationCode = errors.New("authorization code missing from redirect")

	// ErrStateMismatch is returned when the redirect state does not match the request.
	ErrStateMismatch = errors.New("state mismatch - possible CSRF attack")

	// ErrCodeExchangeFailed is returned when the token endpoint rejects the code.
	ErrCodeExchangeFailed = errors.New("authorization code exchange failed")

	// ErrCredentialPersistFailed is returned when a new credential cannot be stored.
	ErrCredentialPersistFailed = errors.New("failed to persist credential")

	// ErrAuthenticationFailed matches every *AuthenticationFailedError.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrReauthenticationRequired is returned by Refresh when the credential
	// has no refresh token or the refresh token was rejected.
	ErrReauthenticationRequired = errors.New("re-authentication required")

	// ErrAuthorizationAlreadyInProgress is reserved for callers that must not
	// join an in-flight flow. The Manager never returns it: concurrent
	// EnsureAuthenticated calls share the running flow.
	ErrAuthorizationAlreadyInProgress = errors.New("authorization already in progress")
)

// FlowError reports the state a Flow was in when it aborted.
type FlowError struct {
	Stage FlowState
	Err   error
}

func (e *FlowError) Error() string {
	return "oauth flow aborted during " + e.Stage.String() + ": " + e.Err.Error()
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// AuthenticationFailedError is returned by Manager.EnsureAuthenticated when
// no valid credential could be obtained.
type AuthenticationFailedError struct {
	Cause error
}

func (e *AuthenticationFailedError) Error() string {
	if e.Cause == nil {
		return ErrAuthenticationFailed.Error()
	}
	return ErrAuthenticationFailed.Error() + ": " + e.Cause.Error()
}

func (e *AuthenticationFailedError) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is(err, ErrAuthenticationFailed) true.
func (e *AuthenticationFailedError) Is(target error) bool {
	return target == ErrAuthenticationFailed
}

// IsTokenExpiredError checks if an error indicates that the access token was
// rejected by a resource server. Callers use it to decide whether a refresh
// and single retry is worthwhile.
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}

	patterns := []string{
		"401",
		"invalid_token",
		"invalid credentials",
		"token expired",
		"token has expired",
		"access token expired",
		"unauthorized",
		"unauthenticated",
	}

	errLower := strings.ToLower(err.Error())
	for _, pattern := range patterns {
		if strings.Contains(errLower, pattern) {
			return true
		}
	}

	return false
}
