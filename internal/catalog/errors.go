package catalog

import "errors"

// Sentinel error kinds for this package.
var (
	ErrInvalidCatalog    = errors.New("invalid catalog")
	ErrUnsupportedFormat = errors.New("unsupported catalog format")
	ErrRouteNotFound     = errors.New("route not found in catalog")
	ErrPlanNotFound      = errors.New("plan not found in catalog")
)
