package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/strata-db/strata/internal/constants"
	"github.com/strata-db/strata/internal/daemon"
	"github.com/strata-db/strata/internal/engine"
	"github.com/strata-db/strata/internal/logger"
)

var (
	compactDataDir string
	compactView    string
)

// compactCmd represents the compact command
var compactCmd = &cobra.Command{
	Use:   "compact <database>",
	Short: "Compact a database or view index once",
	Long: `Run a one-shot compaction of a database file, or of a single view
index file when --view is given, without starting the daemon.`,
	Args: cobra.ExactArgs(1),
	Run:  compactHandler,
}

func compactHandler(cmd *cobra.Command, args []string) {
	log, err := logger.New(logger.Config{
		Level:  "info",
		Format: "text",
		Output: "stdout",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	name := args[0]

	eng, err := engine.New(compactDataDir, log)
	if err != nil {
		log.Error("Failed to open storage engine", err,
			logger.Field{Key: "data_dir", Value: compactDataDir})
		os.Exit(1)
	}
	defer func() {
		if err := eng.Shutdown(); err != nil {
			log.Error("Failed to shut down storage engine", err)
		}
	}()

	db, err := eng.Open(name)
	if err != nil {
		log.Error("Failed to open database", err,
			logger.Field{Key: "database", Value: name})
		os.Exit(1)
	}
	defer eng.Release(db)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	info := func() (int64, int64, error) {
		if compactView != "" {
			return eng.ViewInfo(name, compactView)
		}
		return eng.DatabaseInfo(name)
	}

	before, beforeData, err := info()
	if err != nil {
		log.Error("Failed to read size info", err)
		os.Exit(1)
	}

	unit := name
	if compactView != "" {
		unit = name + "/" + compactView
		err = eng.CompactView(ctx, name, compactView)
	} else {
		err = eng.CompactDatabase(ctx, name)
	}
	if err != nil {
		log.Error("Compaction failed", err, logger.Field{Key: "unit", Value: unit})
		os.Exit(1)
	}

	after, afterData, err := info()
	if err != nil {
		log.Error("Failed to read size info", err)
		os.Exit(1)
	}

	log.Info("Compaction complete",
		logger.Field{Key: "unit", Value: unit},
		logger.Field{Key: "file_size_before", Value: before},
		logger.Field{Key: "file_size_after", Value: after},
		logger.Field{Key: "fragmentation_before_pct", Value: daemon.FragmentationPct(before, beforeData)},
		logger.Field{Key: "fragmentation_after_pct", Value: daemon.FragmentationPct(after, afterData)})
}

func init() {
	compactCmd.Flags().StringVarP(&compactDataDir, "data-dir", "d", constants.DefaultDataDir, "Data directory holding database files")
	compactCmd.Flags().StringVar(&compactView, "view", "", "Compact this view index instead of the database file")
}
