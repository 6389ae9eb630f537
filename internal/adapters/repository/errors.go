package repository

import "errors"

// Sentinel kinds for outcome store errors.
var (
	ErrNotFound     = errors.New("outcome not found")
	ErrInvalidLimit = errors.New("invalid outcome limit")
	ErrMissingJobID = errors.New("outcome has no job id")
)
