package message

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"calbrief/internal/cache"
	"calbrief/internal/calendar"
	"calbrief/pkg/logging"
)

var (
	// ErrAPIKeyNotConfigured is returned when no generator API key is stored.
	ErrAPIKeyNotConfigured = errors.New("generator API key is not configured")

	// ErrInvalidVariant is returned for an unknown variant name.
	ErrInvalidVariant = errors.New("invalid message variant")
)

// GenerationError is returned when the content generator fails or returns
// nothing usable.
type GenerationError struct {
	Variant Variant
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("failed to generate %s message: %v", e.Variant, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// EventSource provides a day's events. *calendar.Service implements it.
type EventSource interface {
	GetEvents(ctx context.Context, date time.Time) ([]calendar.Event, error)
}

// Generator turns a day's events into commentary.
type Generator interface {
	Generate(ctx context.Context, events []calendar.Event, date time.Time, variant Variant) (string, error)
}

// Options configures a Service.
type Options struct {
	TTL      time.Duration
	Location *time.Location
	Now      func() time.Time
}

// Service caches generated messages per day and variant. Unlike the
// calendar service it does not prefetch neighbors: each generation costs
// an API call.
type Service struct {
	events    EventSource
	generator Generator
	loc       *time.Location
	cache     *cache.Cache[string]
}

// NewService creates a message service.
func NewService(events EventSource, generator Generator, opts Options) *Service {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	s := &Service{events: events, generator: generator, loc: loc}
	s.cache = cache.New("messages", s.generate, cache.Options[string]{
		TTL: opts.TTL,
		Now: opts.Now,
	})
	return s
}

// GetMessage returns the message for date's day framed as variant.
func (s *Service) GetMessage(ctx context.Context, date time.Time, variant Variant) (string, error) {
	if _, err := ParseVariant(string(variant)); err != nil {
		return "", err
	}
	return s.cache.Get(ctx, cacheKey(calendar.DateKey(date, s.loc), variant))
}

// ClearCache drops all cached messages.
func (s *Service) ClearCache() {
	s.cache.InvalidateAll()
}

func cacheKey(dateKey string, variant Variant) string {
	return dateKey + ":" + string(variant)
}

func (s *Service) generate(ctx context.Context, key string) (string, error) {
	dateKey, variantName, ok := strings.Cut(key, ":")
	if !ok {
		return "", fmt.Errorf("invalid message key %q", key)
	}
	variant, err := ParseVariant(variantName)
	if err != nil {
		return "", err
	}
	date, err := calendar.ParseDateKey(dateKey, s.loc)
	if err != nil {
		return "", fmt.Errorf("invalid message key %q: %w", key, err)
	}

	events, err := s.events.GetEvents(ctx, date)
	if err != nil {
		return "", err
	}

	msg, err := s.generator.Generate(ctx, events, date, variant)
	if err != nil {
		return "", err
	}
	logging.Debug("Message", "Generated %s message for %s (%d events)", variant, dateKey, len(events))
	return msg, nil
}
