package version

import (
	"fmt"
	"runtime"
)

// Build-time variables injected by ldflags
var (
	Version   = "dev"     // Version of the application
	BuildTime = "unknown" // Build timestamp
)

// GetVersionString returns the bare version, used for cobra's Version field.
func GetVersionString() string {
	return Version
}

// GetFullVersionString returns the multi-line output of `hbr --version`.
func GetFullVersionString() string {
	return fmt.Sprintf("Harbor %s\nBuilt: %s\nGo: %s",
		Version, BuildTime, runtime.Version())
}
