// Package version derives the application version from build metadata.
//
// Resolution order: -ldflags override, then VCS info from debug.BuildInfo,
// then the "dev" fallback used by `go test` and non-git builds.
package version

import (
	"runtime/debug"
	"sync"
)

// AppName is used in version strings, logs, and the health endpoint.
const AppName = "ordo"

// commitOverride is set via -ldflags for container builds where .git
// is unavailable. Empty means no override.
var commitOverride string

// Commit returns the short (8 char) git commit hash, or "dev".
var Commit = sync.OnceValue(func() string {
	if commitOverride != "" {
		return short(commitOverride)
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return short(s.Value)
		}
	}
	return "dev"
})

func short(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

// Full returns "ordo/<commit>" for user-agent strings and logging.
func Full() string {
	return AppName + "/" + Commit()
}
