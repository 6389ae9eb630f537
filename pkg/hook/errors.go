package hook

import "errors"

var (
	ErrInvalidEvent = errors.New("event must be 'request' or 'response'")
	ErrInvalidHook  = errors.New("invalid hook")
	ErrInvalidScope = errors.New("invalid hook scope")
)
