// Package version holds build metadata for the broutes binary.
// The variables are set via ldflags, e.g.
//
//	go build -ldflags "-X github.com/okian/broutes/pkg/version.Version=v1.2.0"
package version

import "runtime"

// Build metadata. Overridden at link time.
var (
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// String returns the version.
func String() string {
	return Version
}

// FullString returns a human readable version line.
func FullString() string {
	if Version == "dev" {
		return "broutes development version"
	}
	return "broutes " + Version
}

// Info returns all build metadata as a map.
func Info() map[string]string {
	return map[string]string{
		"version":   Version,
		"buildDate": BuildDate,
		"gitCommit": GitCommit,
		"goVersion": runtime.Version(),
	}
}
