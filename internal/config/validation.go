package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	messages := make([]string, 0, len(ve))
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// AddError appends err if it is non-nil. ValidationErrors are kept as-is.
func (ve *ValidationErrors) AddError(err error) {
	if err == nil {
		return
	}
	if v, ok := err.(ValidationError); ok {
		*ve = append(*ve, v)
		return
	}
	*ve = append(*ve, ValidationError{Message: err.Error()})
}

// ValidateRequired checks if a required string field is not empty
func ValidateRequired(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: "is required",
		}
	}
	return nil
}

// ValidateOneOf checks if a value is in a list of allowed values
func ValidateOneOf(field, value string, allowed []string) error {
	for _, allowedValue := range allowed {
		if value == allowedValue {
			return nil
		}
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// ValidatePositiveDuration checks that a duration is greater than zero
func ValidatePositiveDuration(field string, value time.Duration) error {
	if value <= 0 {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: "must be greater than zero",
		}
	}
	return nil
}

// ValidateRange checks that an integer lies in [lo, hi]
func ValidateRange(field string, value, lo, hi int) error {
	if value < lo || value > hi {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("must be between %d and %d", lo, hi),
		}
	}
	return nil
}

// Validate checks the whole configuration and returns ValidationErrors
// listing every problem, or nil.
func (c Config) Validate() error {
	var errs ValidationErrors

	errs.AddError(ValidateRequired("oauth.clientId", c.OAuth.ClientID))
	errs.AddError(ValidateRequired("oauth.clientSecret", c.OAuth.ClientSecret))
	if len(c.OAuth.Scopes) == 0 {
		errs.Add("oauth.scopes", "must have at least one scope")
	}
	errs.AddError(ValidateRequired("oauth.authUrl", c.OAuth.AuthURL))
	errs.AddError(ValidateRequired("oauth.tokenUrl", c.OAuth.TokenURL))
	if c.OAuth.ConsentTimeout < 0 {
		errs.Add("oauth.consentTimeout", "must not be negative", c.OAuth.ConsentTimeout)
	}
	c.validateLocal(&errs)

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// ValidateLocal checks everything except the OAuth client registration.
// Commands that only touch local secrets, such as apikey, use it.
func (c Config) ValidateLocal() error {
	var errs ValidationErrors
	c.validateLocal(&errs)
	if errs.HasErrors() {
		return errs
	}
	return nil
}

func (c Config) validateLocal(errs *ValidationErrors) {
	errs.AddError(ValidateOneOf("storage.backend", c.Storage.Backend,
		[]string{StorageBackendFile, StorageBackendSQLite, StorageBackendMemory}))

	errs.AddError(ValidatePositiveDuration("cache.eventsTTL", c.Cache.EventsTTL))
	errs.AddError(ValidatePositiveDuration("cache.messagesTTL", c.Cache.MessagesTTL))
	errs.AddError(ValidateRange("cache.prefetchLimit", c.Cache.PrefetchLimit, 1, 16))

	errs.AddError(ValidateRequired("calendar.calendarId", c.Calendar.CalendarID))
	if _, err := c.Calendar.Location(); err != nil {
		errs.Add("calendar.timezone", err.Error(), c.Calendar.Timezone)
	}

	errs.AddError(ValidateRequired("generator.model", c.Generator.Model))
	if c.Generator.Temperature < 0 || c.Generator.Temperature > 2 {
		errs.Add("generator.temperature", "must be between 0 and 2", c.Generator.Temperature)
	}
	if c.Generator.MaxTokens <= 0 {
		errs.Add("generator.maxTokens", "must be greater than zero", c.Generator.MaxTokens)
	}

	errs.AddError(ValidateRange("server.port", c.Server.Port, 1, 65535))
	errs.AddError(ValidateOneOf("logging.format", c.Logging.Format, []string{"text", "json"}))
}
