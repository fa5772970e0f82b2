// Package buildinfo holds the version information set at link time, e.g.,
// -ldflags "-X github.com/l7mp/windowfields/internal/buildinfo.Version=v0.1.0".
package buildinfo

import "fmt"

var (
	Version    = "dev"
	CommitHash = "n/a"
	BuildDate  = "<unknown>"
)

// BuildInfo holds all sorts of information about the build of an executable artifact.
type BuildInfo struct {
	Version    string
	CommitHash string
	BuildDate  string
}

// Get returns the build info of the running binary.
func Get() BuildInfo {
	return BuildInfo{Version: Version, CommitHash: CommitHash, BuildDate: BuildDate}
}

// String returns the build info as a string.
func (i BuildInfo) String() string {
	return fmt.Sprintf("version %s (%s) built on %s", i.Version, i.CommitHash, i.BuildDate)
}
