package telemetry

import "errors"

// Sentinel error kinds for this package.
var (
	ErrUnsupportedExporter = errors.New("unsupported trace exporter")
	ErrSetup               = errors.New("telemetry setup failed")
)
