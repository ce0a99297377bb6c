package auth

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"calbrief/pkg/logging"
)

const (
	// DefaultCallbackAddr binds an ephemeral port on the IPv4 loopback.
	DefaultCallbackAddr = "127.0.0.1:0"

	// CallbackPath is the only path the callback server answers.
	CallbackPath = "/oauth2callback"

	shutdownTimeout = 5 * time.Second
)

//go:embed templates/*.html
var templateFS embed.FS

var callbackTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// CallbackResult is published once per CallbackServer.
type CallbackResult struct {
	// Code is the authorization code from the provider.
	Code string

	// State echoes the state parameter of the authorization request.
	State string

	// ProviderError and ProviderErrorDescription carry the provider's
	// error parameters when consent was denied.
	ProviderError            string
	ProviderErrorDescription string

	// Err is set when no usable code was received.
	Err error
}

// CallbackServer is a one-shot loopback HTTP server that receives the OAuth
// redirect. It answers the first request on CallbackPath, publishes the
// result and shuts itself down.
type CallbackServer struct {
	addr        string
	server      *http.Server
	listener    net.Listener
	port        int
	redirectURI string

	results    chan CallbackResult
	handleOnce sync.Once
	stopOnce   sync.Once
	stopped    chan struct{}
}

// NewCallbackServer creates a callback server for addr. An empty addr means
// DefaultCallbackAddr.
func NewCallbackServer(addr string) *CallbackServer {
	if addr == "" {
		addr = DefaultCallbackAddr
	}
	return &CallbackServer{
		addr:    addr,
		results: make(chan CallbackResult, 1),
		stopped: make(chan struct{}),
	}
}

// Start binds the listener and serves in the background. It returns the
// redirect URI carrying the actually bound port. The server stops when ctx
// is cancelled.
func (s *CallbackServer) Start(ctx context.Context) (string, error) {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return "", fmt.Errorf("%w on %s: %w", ErrListenerBindFailed, s.addr, err)
	}

	tcpAddr := listener.Addr().(*net.TCPAddr)
	s.listener = listener
	s.port = tcpAddr.Port
	s.redirectURI = "http://" + net.JoinHostPort(tcpAddr.IP.String(), strconv.Itoa(s.port)) + CallbackPath

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+CallbackPath, s.handleCallback)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.publish(CallbackResult{Err: fmt.Errorf("callback server failed: %w", err)})
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.stopped:
		}
	}()

	logging.Debug("OAuth", "Callback server listening on %s", s.redirectURI)
	return s.redirectURI, nil
}

// Results delivers the single callback outcome.
func (s *CallbackServer) Results() <-chan CallbackResult {
	return s.results
}

// RedirectURI returns the redirect URI, valid after Start.
func (s *CallbackServer) RedirectURI() string {
	return s.redirectURI
}

// Port returns the bound port, valid after Start.
func (s *CallbackServer) Port() int {
	return s.port
}

// Stop shuts the server down and closes the listener. It is idempotent and
// safe to call before Start; when it returns the port is free.
func (s *CallbackServer) Stop() {
	s.stopOnce.Do(func() {
		defer close(s.stopped)

		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := s.server.Shutdown(ctx); err != nil {
				logging.Debug("OAuth", "Callback server shutdown: %v", err)
			}
		}
		if s.listener != nil {
			_ = s.listener.Close()
		}
	})
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	handled := false
	s.handleOnce.Do(func() {
		handled = true
		s.processCallback(w, r)
	})

	if !handled {
		setSecurityHeaders(w)
		http.Error(w, "Callback already processed", http.StatusBadRequest)
	}
}

// processCallback runs exactly once.
func (s *CallbackServer) processCallback(w http.ResponseWriter, r *http.Request) {
	setSecurityHeaders(w)

	query := r.URL.Query()
	result := CallbackResult{
		Code:                     query.Get("code"),
		State:                    query.Get("state"),
		ProviderError:            query.Get("error"),
		ProviderErrorDescription: query.Get("error_description"),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if result.Code != "" {
		w.WriteHeader(http.StatusOK)
		if err := callbackTemplates.ExecuteTemplate(w, "callback_success.html", nil); err != nil {
			logging.Warn("OAuth", "Failed to render callback page: %v", err)
		}
	} else {
		result.Err = ErrMissingAuthorizationCode
		if result.ProviderError != "" {
			result.Err = fmt.Errorf("%w: provider returned %s", ErrMissingAuthorizationCode, result.ProviderError)
		}
		w.WriteHeader(http.StatusBadRequest)
		data := map[string]string{
			"Error":       result.ProviderError,
			"Description": result.ProviderErrorDescription,
		}
		if err := callbackTemplates.ExecuteTemplate(w, "callback_error.html", data); err != nil {
			logging.Warn("OAuth", "Failed to render callback page: %v", err)
		}
	}

	s.publish(result)

	// Shutdown waits for this handler to return, so it cannot run inline.
	go s.Stop()
}

func (s *CallbackServer) publish(result CallbackResult) {
	select {
	case s.results <- result:
	default:
	}
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")
}
