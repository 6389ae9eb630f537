package meta

import (
	"errors"
	"fmt"
)

// ErrMeta is the root of every error returned by this package.
var ErrMeta = errors.New("meta error")

var (
	ErrAttributeNotFound  = errors.New("attribute not found in Meta")
	ErrInvalidAttribute   = errors.New("invalid attribute value")
	ErrInvalidAddition    = errors.New("cannot add non-Meta instance")
	ErrInvalidHTTPMethod  = errors.New("invalid HTTP method")
	ErrInvalidArguments   = errors.New("invalid request arguments")
	ErrUnsupportedPayload = errors.New("unsupported payload")
)

func metaErr(kind error, format string, a ...any) error {
	return fmt.Errorf("%w: %w: %s", ErrMeta, kind, fmt.Sprintf(format, a...))
}
