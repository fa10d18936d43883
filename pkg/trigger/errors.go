package trigger

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedEvent is matched by every UnsupportedEventError.
	ErrUnsupportedEvent = errors.New("unsupported event")
	// ErrMalformedPayload is matched by every MalformedPayloadError.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrNilConfig is returned when a caller passes a nil configuration or
	// prepared event.
	ErrNilConfig = errors.New("nil trigger configuration")
	// ErrInvalidConfig is matched by every ConfigError.
	ErrInvalidConfig = errors.New("invalid trigger configuration")
)

// UnsupportedEventError means no handler is registered for the pair.
type UnsupportedEventError struct {
	Provider  Provider
	EventType EventType
	Hint      string
}

func (e *UnsupportedEventError) Error() string {
	if e.EventType == "" {
		return fmt.Sprintf("unsupported event: provider=%s hint=%q", e.Provider, e.Hint)
	}
	return fmt.Sprintf("unsupported event: provider=%s event=%s", e.Provider, e.EventType)
}

func (e *UnsupportedEventError) Is(target error) bool {
	return target == ErrUnsupportedEvent
}

// MalformedPayloadError reports a payload missing a field normalize needs.
type MalformedPayloadError struct {
	Provider  Provider
	EventType EventType
	Field     string
	Err       error
}

func (e *MalformedPayloadError) Error() string {
	msg := fmt.Sprintf("malformed %s %s payload: field %s", e.Provider, e.EventType, e.Field)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedPayloadError) Is(target error) bool {
	return target == ErrMalformedPayload
}

func (e *MalformedPayloadError) Unwrap() error { return e.Err }

// Malformed builds a MalformedPayloadError for a missing field.
func Malformed(provider Provider, eventType EventType, field string) error {
	return &MalformedPayloadError{Provider: provider, EventType: eventType, Field: field}
}

// ConfigError reports a trigger configuration that cannot be compiled.
type ConfigError struct {
	Field   string
	Pattern string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Pattern == "" {
		return fmt.Sprintf("invalid trigger config %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("invalid trigger config %s pattern %q: %v", e.Field, e.Pattern, e.Err)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ConfigLookupError wraps a failure of the configuration collaborator.
// The engine never retries it.
type ConfigLookupError struct {
	Provider   Provider
	Repository string
	Err        error
}

func (e *ConfigLookupError) Error() string {
	return fmt.Sprintf("pipeline lookup for %s %s: %v", e.Provider, e.Repository, e.Err)
}

func (e *ConfigLookupError) Unwrap() error { return e.Err }
