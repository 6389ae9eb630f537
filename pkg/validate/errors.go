package validate

import (
	"errors"
	"fmt"
)

// ErrValidation matches every *ValidationError.
var ErrValidation = errors.New("validation failed")

// ValidationError reports an expectation a response did not meet.
type ValidationError struct {
	Kind     string // "status_code" or "header"
	Expected string
	Actual   string
	Message  string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return ErrValidation }

func newStatusError(expected, actual int) *ValidationError {
	return &ValidationError{
		Kind:     KindStatusCode,
		Expected: fmt.Sprint(expected),
		Actual:   fmt.Sprint(actual),
		Message:  fmt.Sprintf("expected status %d, got %d", expected, actual),
	}
}

func newHeaderError(key, expected, actual string) *ValidationError {
	return &ValidationError{
		Kind:     KindHeader,
		Expected: expected,
		Actual:   actual,
		Message:  fmt.Sprintf("expected header %s: %s, got %s", key, expected, actual),
	}
}
