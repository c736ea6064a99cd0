package main

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "Strata - document storage engine with background compaction",
	Long: `Strata is a document-oriented storage engine with append-only database
files, incrementally maintained view indexes, and a background daemon that
compacts fragmented files according to hot-reloadable rules.`,
	Version: Version,
}

func init() {
	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(compactCmd)
}
