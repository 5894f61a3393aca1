package models

import (
	"errors"
	"fmt"
)

// ErrorKind is the fixed taxonomy of lookup failures.
type ErrorKind string

const (
	KindValidation ErrorKind = "VALIDATION"
	KindNotFound   ErrorKind = "NOT_FOUND"
	KindInvalidKey ErrorKind = "INVALID_KEY"
	KindTimeout    ErrorKind = "TIMEOUT"
	KindNetwork    ErrorKind = "NETWORK_ERROR"
	KindUnknown    ErrorKind = "UNKNOWN"
)

// WeatherServiceError carries a classified, user-displayable failure.
// Err holds the underlying cause and is never serialized.
type WeatherServiceError struct {
	Kind    ErrorKind `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

// NewError returns a WeatherServiceError of the given kind.
func NewError(kind ErrorKind, message string) *WeatherServiceError {
	return &WeatherServiceError{Kind: kind, Message: message}
}

// WrapError returns a WeatherServiceError of the given kind that wraps cause.
func WrapError(kind ErrorKind, message string, cause error) *WeatherServiceError {
	return &WeatherServiceError{Kind: kind, Message: message, Err: cause}
}

func (e *WeatherServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *WeatherServiceError) Unwrap() error {
	return e.Err
}

// IsNetwork reports whether the failure belongs to the network-error class.
// Timeouts are reported to callers as network errors.
func (e *WeatherServiceError) IsNetwork() bool {
	return e.Kind == KindNetwork || e.Kind == KindTimeout
}

// AsWeatherError extracts a WeatherServiceError from err's chain. Any other
// non-nil error is reported as UNKNOWN.
func AsWeatherError(err error) *WeatherServiceError {
	if err == nil {
		return nil
	}
	var wse *WeatherServiceError
	if errors.As(err, &wse) {
		return wse
	}
	return WrapError(KindUnknown, "An unexpected error occurred.", err)
}

// KindOf returns the ErrorKind of err, or "" for nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	return AsWeatherError(err).Kind
}
