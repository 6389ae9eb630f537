package args

import "errors"

// Sentinel error kinds for this package. These allow errors.Is from callers.
var (
	ErrReservedKey          = errors.New("dictionary conversion not supported for keys 'items' or 'keys'")
	ErrInvalidMergeStrategy = errors.New("invalid merge strategy")
)
