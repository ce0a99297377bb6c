package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"calbrief/internal/auth"
	"calbrief/internal/calendar"
	"calbrief/internal/message"
	"calbrief/pkg/logging"
)

// Response is the envelope of every API reply.
type Response struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// AuthStatus is the payload of /auth/status and /auth/login.
type AuthStatus struct {
	Authenticated bool       `json:"authenticated"`
	State         string     `json:"state"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

// EventsPayload is the payload of /events.
type EventsPayload struct {
	Date   string           `json:"date"`
	Events []calendar.Event `json:"events"`
}

// MessagePayload is the payload of /messages.
type MessagePayload struct {
	Date    string          `json:"date"`
	Variant message.Variant `json:"variant"`
	Message string          `json:"message"`
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: map[string]string{"status": "ok"}})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	cred, err := s.auth.EnsureAuthenticated(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	expiresAt := cred.ExpiresAt
	writeJSON(w, http.StatusOK, Response{Success: true, Data: AuthStatus{
		Authenticated: true,
		State:         s.auth.State().String(),
		ExpiresAt:     &expiresAt,
	}})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: AuthStatus{
		Authenticated: s.auth.IsAuthenticated(r.Context()),
		State:         s.auth.State().String(),
	}})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.auth.Logout(r.Context())
	writeJSON(w, http.StatusOK, Response{Success: true})
}

func (s *Server) getEvents(w http.ResponseWriter, r *http.Request) {
	loc := s.events.Location()
	date, err := s.parseDate(r, loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := s.events.GetEvents(r.Context(), date)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: EventsPayload{
		Date:   calendar.DateKey(date, loc),
		Events: events,
	}})
}

func (s *Server) getMessage(w http.ResponseWriter, r *http.Request) {
	loc := s.events.Location()
	date, err := s.parseDate(r, loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	variant := message.VariantFor(date, s.now(), loc)
	if v := r.URL.Query().Get("variant"); v != "" {
		if variant, err = message.ParseVariant(v); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	msg, err := s.messages.GetMessage(r.Context(), date, variant)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: MessagePayload{
		Date:    calendar.DateKey(date, loc),
		Variant: variant,
		Message: msg,
	}})
}

func (s *Server) clearCache(w http.ResponseWriter, _ *http.Request) {
	s.events.ClearCache()
	s.messages.ClearCache()
	logging.Info("Server", "Caches cleared")
	writeJSON(w, http.StatusOK, Response{Success: true})
}

// parseDate reads ?date=YYYY-MM-DD, defaulting to today.
func (s *Server) parseDate(r *http.Request, loc *time.Location) (time.Time, error) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return s.now().In(loc), nil
	}
	return calendar.ParseDateKey(raw, loc)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var upstream *calendar.UpstreamError
	var generation *message.GenerationError
	switch {
	case errors.Is(err, auth.ErrAuthenticationFailed), errors.Is(err, auth.ErrReauthenticationRequired):
		return http.StatusUnauthorized
	case errors.Is(err, message.ErrAPIKeyNotConfigured):
		return http.StatusPreconditionFailed
	case errors.Is(err, message.ErrInvalidVariant):
		return http.StatusBadRequest
	case errors.As(err, &upstream), errors.As(err, &generation):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.Error("Server", err, "Request failed")
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Response{Success: false, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
