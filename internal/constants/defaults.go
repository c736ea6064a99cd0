package constants

// Build information defaults, replaced at build time through
// -ldflags "-X main.Version=..." in cmd/strata.

// DefaultVersion is the version reported by development builds
const DefaultVersion = "0.1.0-dev"

// DefaultBuildTime is reported when no build time was stamped
const DefaultBuildTime = "unknown"

// DefaultGitCommit is reported when no commit hash was stamped
const DefaultGitCommit = "unknown"

// DefaultGoVersion is reported when no Go version was stamped
const DefaultGoVersion = "unknown"
