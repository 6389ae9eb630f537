package route

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEndpointMissing       = errors.New("request args does not contain 'endpoint' to send request")
	ErrPlaceholder           = errors.New("invalid url placeholder")
	ErrInvalidArguments      = errors.New("request args contains invalid kwargs")
	ErrInvalidMethod         = errors.New("invalid http method")
	ErrScenarioNotFound      = errors.New("scenario not found")
	ErrNoScenarioGroups      = errors.New("scenario groups not defined for route")
	ErrScenarioGroupNotFound = errors.New("scenario group not found")
	ErrValidatorNotFound     = errors.New("validator not found")
	ErrExpectationFailed     = errors.New("response did not meet expectations")
	ErrHook                  = errors.New("hook failed")
	ErrLayer                 = errors.New("route args layer failed")
)

// ArgumentsError lists request argument keys a method does not accept.
type ArgumentsError struct {
	Method string
	Keys   []string
}

func (e *ArgumentsError) Error() string {
	return fmt.Sprintf("request args contains invalid kwargs, invalid keys: [%s], method: '%s'",
		strings.Join(e.Keys, ", "), e.Method)
}

func (e *ArgumentsError) Unwrap() error { return ErrInvalidArguments }
