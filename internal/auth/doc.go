// Package auth implements the OAuth 2.0 installed-application flow used to
// sign calbrief in to Google Calendar.
//
// # Components
//
//   - CallbackServer: a one-shot HTTP server on an ephemeral loopback port
//     that receives the authorization redirect on /oauth2callback.
//   - Flow: the authorization-code flow with PKCE and state. It reuses a
//     valid stored credential, otherwise presents consent, exchanges the
//     code against the redirect URI of its own listener and persists the
//     result.
//   - Manager: the process-wide credential lifecycle. It joins concurrent
//     callers onto one in-flight flow, refreshes access tokens, and logs out
//     with best-effort revocation.
//   - ConsentSurface: how the authorization URL reaches the user, either
//     the system browser (BrowserSurface) or printed text (PrintSurface).
//
// # Flow
//
//	CheckingStored -> AwaitingUserConsent -> ExchangingCode -> Persisting -> Done
//	                          |                    |              |
//	                          +--------------------+--------------+--> Aborted
//
// The callback listener is stopped on every exit path. A flow aborts when
// the consent session closes, the consent timeout elapses, or its context
// ends; failures are reported as *FlowError wrapping one of the package's
// sentinel errors.
//
// # Usage
//
//	mgr := auth.NewManager(cfg, store.NewCredentials(backend, "file"),
//	    auth.NewBrowserSurface(os.Stderr))
//
//	cred, err := mgr.EnsureAuthenticated(ctx)
//	if errors.Is(err, auth.ErrAuthenticationFailed) {
//	    // consent aborted, exchange failed, ...
//	}
package auth
