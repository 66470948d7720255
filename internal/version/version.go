// Package version carries build metadata set through -ldflags.
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = ""
)

// GetInfo returns a one-line description of the build.
func GetInfo() string {
	info := fmt.Sprintf("%s (commit %s, %s)", Version, Commit, runtime.Version())
	if BuildTime != "" {
		info += " built " + BuildTime
	}
	return info
}
