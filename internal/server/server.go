package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"calbrief/internal/auth"
	"calbrief/internal/calendar"
	"calbrief/internal/message"
	"calbrief/internal/store"
	"calbrief/pkg/logging"
)

const (
	// DefaultReadHeaderTimeout is the default timeout for reading request headers.
	DefaultReadHeaderTimeout = 10 * time.Second
	// DefaultWriteTimeout covers a login that waits for browser consent.
	DefaultWriteTimeout = 11 * time.Minute
	// DefaultIdleTimeout is the default idle timeout for keepalive connections.
	DefaultIdleTimeout = 120 * time.Second
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second

	// RequestIDHeader carries the per-request ID.
	RequestIDHeader = "X-Request-ID"
)

// Authenticator is the subset of *auth.Manager the API uses.
type Authenticator interface {
	EnsureAuthenticated(ctx context.Context) (*store.Credential, error)
	IsAuthenticated(ctx context.Context) bool
	Logout(ctx context.Context)
	State() auth.AuthState
}

// EventService is the subset of *calendar.Service the API uses.
type EventService interface {
	GetEvents(ctx context.Context, date time.Time) ([]calendar.Event, error)
	Location() *time.Location
	ClearCache()
}

// MessageService is the subset of *message.Service the API uses.
type MessageService interface {
	GetMessage(ctx context.Context, date time.Time, variant message.Variant) (string, error)
	ClearCache()
}

// Server serves the local JSON API.
type Server struct {
	auth     Authenticator
	events   EventService
	messages MessageService
	now      func() time.Time

	httpServer *http.Server
}

// New creates a Server. now may be nil.
func New(authenticator Authenticator, events EventService, messages MessageService, now func() time.Time) *Server {
	if now == nil {
		now = time.Now
	}
	return &Server{auth: authenticator, events: events, messages: messages, now: now}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.login)
		r.Get("/status", s.status)
		r.Post("/logout", s.logout)
	})
	r.Get("/events", s.getEvents)
	r.Get("/messages", s.getMessage)
	r.Post("/cache/clear", s.clearCache)

	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. ready, if non-nil, receives the bound address.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	logging.Info("Server", "Listening on http://%s", ln.Addr())
	if ready != nil {
		ready(ln.Addr())
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	logging.Info("Server", "Shutting down")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logging.Debug("Server", "%s %s -> %d in %s (request %s)",
			r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Millisecond), w.Header().Get(RequestIDHeader))
	})
}
