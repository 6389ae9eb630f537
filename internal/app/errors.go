package service

import "errors"

// Sentinel error kinds for this package.
var (
	ErrRunInProgress = errors.New("a run is already in progress")
	ErrUnknownRoute  = errors.New("unknown route")
	ErrInterrupted   = errors.New("run interrupted")
)
