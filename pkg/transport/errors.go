package transport

import "errors"

var (
	ErrCircuitOpen = errors.New("circuit breaker is open")
	ErrRateLimited = errors.New("rate limiter wait failed")
	ErrSend        = errors.New("send request failed")
	ErrTLSConfig   = errors.New("invalid tls configuration")
	ErrProxy       = errors.New("invalid proxy configuration")
)

// errServerStatus marks 5xx responses as breaker failures without failing the call.
var errServerStatus = errors.New("server error status")
