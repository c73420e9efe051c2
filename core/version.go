package core

import "runtime/debug"

// Build metadata, injected with:
//
//	go build -ldflags "-X ghibli_backend/core.Version=$(git describe --tags --always) \
//	  -X ghibli_backend/core.GitCommit=$(git rev-parse --short HEAD) \
//	  -X ghibli_backend/core.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" .
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

// Commit returns GitCommit, falling back to the VCS revision stamped by the
// Go toolchain.
func Commit() string {
	if GitCommit != "unknown" && GitCommit != "" {
		return GitCommit
	}
	info, ok := readBuildInfo()
	if !ok {
		return GitCommit
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			if len(s.Value) > 7 {
				return s.Value[:7]
			}
			return s.Value
		}
	}
	return GitCommit
}

// VersionInfo formats version, build time and commit for banners and logs.
//
//	"v1.0.0 (built 2024-01-15T10:30:00Z, commit abc1234)"
func VersionInfo() string {
	return Version + " (built " + BuildTime + ", commit " + Commit() + ")"
}
