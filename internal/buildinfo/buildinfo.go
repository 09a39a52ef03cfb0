// Package buildinfo holds build-time metadata injected via -ldflags.
package buildinfo

// Version is the semantic version or tag for this build.
// Inject via: -X github.com/atom-api/atom/internal/buildinfo.Version=...
var Version = ""

// Commit is the git commit SHA for this build.
// Inject via: -X github.com/atom-api/atom/internal/buildinfo.Commit=...
var Commit = ""

// BuildDate is the RFC3339 build timestamp.
// Inject via: -X github.com/atom-api/atom/internal/buildinfo.BuildDate=...
var BuildDate = ""

// DisplayVersion returns Version, or "dev" for untagged builds.
func DisplayVersion() string {
	if Version == "" {
		return "dev"
	}
	return Version
}

// UserAgent is the User-Agent sent to upstream pages.
func UserAgent() string {
	return "Atom API/" + DisplayVersion()
}
