package main

import (
	"os"

	"github.com/strata-db/strata/internal/constants"
	"github.com/strata-db/strata/internal/version"
)

// Overridden at build time via -ldflags "-X main.Version=...".
var (
	Version   string = constants.DefaultVersion
	BuildTime string = constants.DefaultBuildTime
	GitCommit string = constants.DefaultGitCommit
	GoVersion string = constants.DefaultGoVersion
)

func init() {
	version.SetInfo(Version, BuildTime, GitCommit, GoVersion)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
