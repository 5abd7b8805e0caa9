// Package version exposes build metadata for the CLI.
package version

import (
	"fmt"
	"runtime/debug"
)

// Overridable via ldflags at build time. When the commit hash is absent the
// module build info embedded by the Go toolchain is used instead.
var (
	Version    = "dev"
	CommitHash = ""
	BuildTime  = ""
)

// GetInfo returns the version string, with a short commit hash when known.
func GetInfo() string {
	if CommitHash == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs.revision":
					CommitHash = setting.Value
				case "vcs.time":
					BuildTime = setting.Value
				}
			}
		}
	}

	res := Version
	if CommitHash != "" {
		shortHash := CommitHash
		if len(shortHash) > 7 {
			shortHash = shortHash[:7]
		}
		res += fmt.Sprintf(" (%s)", shortHash)
	}
	return res
}
