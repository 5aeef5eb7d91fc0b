// Package version holds build metadata injected with -ldflags.
package version

import (
	"runtime"
	"runtime/debug"
)

// Set via -ldflags "-X github.com/smazurov/camrelay/internal/version.Version=...".
var (
	Version   = "dev"
	GitCommit = ""
	BuildDate = "unknown"
)

// Info contains version and build metadata.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns version and build information. Without an injected commit
// the VCS revision recorded by the Go toolchain is used.
func Get() Info {
	commit := GitCommit
	if commit == "" {
		commit = vcsRevision()
	}
	return Info{
		Version:   Version,
		GitCommit: commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String returns the application version string.
func String() string {
	return Version
}

func vcsRevision() string {
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return "unknown"
}
