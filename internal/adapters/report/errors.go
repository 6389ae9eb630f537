package report

import "errors"

// Sentinel kinds for report errors.
var (
	ErrNilReport   = errors.New("nil report")
	ErrWriteReport = errors.New("write report failed")
	ErrReadReport  = errors.New("read report failed")
)
