package version

import "fmt"

// These variables are injected at build time via -ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String returns a human-readable version string.
func String() string {
	return fmt.Sprintf("distrobaker %s (%s, %s)", Version, Commit, BuildDate)
}

// UserAgent identifies DistroBaker in outgoing HTTP requests.
func UserAgent() string {
	return "distrobaker/" + Version
}
