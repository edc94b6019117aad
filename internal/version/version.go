// Package version carries build information for muxarr.
//
// Version, Commit and Date are set at link time:
//
//	go build -ldflags "-X github.com/jmylchreest/muxarr/internal/version.Version=x.y.z \
//	                   -X github.com/jmylchreest/muxarr/internal/version.Commit=$(git rev-parse HEAD) \
//	                   -X github.com/jmylchreest/muxarr/internal/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import (
	"fmt"
	"runtime"
	"strings"
)

// Link-time variables.
var (
	// Version is a SemVer string; snapshots carry a "-SNAPSHOT.<sha>" suffix.
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// ApplicationName is the canonical name of this application.
const ApplicationName = "muxarr"

// Info is the build description printed by "muxarr version".
type Info struct {
	Version   string            `json:"version" yaml:"version"`
	Commit    string            `json:"commit" yaml:"commit"`
	Date      string            `json:"date" yaml:"date"`
	GoVersion string            `json:"go_version" yaml:"go_version"`
	Platform  string            `json:"platform" yaml:"platform"`
	Snapshot  bool              `json:"snapshot" yaml:"snapshot"`
	Backends  map[string]string `json:"backends,omitempty" yaml:"backends,omitempty"`
}

// GetInfo returns the build information. Backend versions are filled in by
// the caller, which is the only place that links them.
func GetInfo() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Snapshot:  IsSnapshot(),
	}
}

func shortCommit() (string, bool) {
	if Commit == "unknown" || len(Commit) < 8 {
		return "", false
	}
	return Commit[:8], true
}

// String returns a one-line human-readable description.
func String() string {
	info := GetInfo()
	if c, ok := shortCommit(); ok {
		return fmt.Sprintf("%s version %s (commit: %s, built: %s, %s, %s)",
			ApplicationName, info.Version, c, info.Date, info.GoVersion, info.Platform)
	}
	return fmt.Sprintf("%s version %s (%s, %s)", ApplicationName, info.Version, info.GoVersion, info.Platform)
}

// Short is the value cobra prints for --version; cobra adds the name.
func Short() string {
	if c, ok := shortCommit(); ok {
		return fmt.Sprintf("%s (%s)", Version, c)
	}
	return Version
}

// IsSnapshot reports whether this is an untagged build.
func IsSnapshot() bool {
	return Version == "dev" || strings.Contains(Version, "-SNAPSHOT")
}
