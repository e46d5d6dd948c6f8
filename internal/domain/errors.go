package domain

import (
	"errors"
	"fmt"
)

// ErrUpstreamUnavailable is wrapped by collaborators (market data, feature
// pipeline, model server) whose failure leaves no usable input.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// ValidationError reports a malformed or out-of-range input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Invalid is shorthand for constructing a *ValidationError.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
