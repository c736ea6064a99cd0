package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/strata-db/strata/internal/config"
	"github.com/strata-db/strata/internal/constants"
	"github.com/strata-db/strata/internal/logger"
	"github.com/strata-db/strata/internal/rules"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Validate and manage Strata configuration.`,
}

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file and check for errors.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		// Initialize a minimal logger for this command
		log, err := logger.New(logger.Config{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
			os.Exit(1)
		}

		configPath := constants.DefaultConfigPath
		if len(args) > 0 {
			configPath = args[0]
		}

		log.Info("Validating configuration", logger.Field{Key: "path", Value: configPath})

		// Load configuration
		cfg, err := config.Load(configPath)
		if err != nil {
			log.Error("Failed to load config", err)
			os.Exit(1)
		}

		// Validate configuration
		errors := cfg.Validate()
		if len(errors) > 0 {
			log.Error("Config validation failed", fmt.Errorf("%d errors", len(errors)))
			for _, e := range errors {
				log.Error("Validation error", e)
			}
			os.Exit(1)
		}

		log.Info("Configuration is valid")
	},
}

// configRulesCmd represents the config rules command
var configRulesCmd = &cobra.Command{
	Use:   "rules [rules-file]",
	Short: "Validate compaction rules file",
	Long:  `Parse the compaction rules file and report malformed rules.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		log, err := logger.New(logger.Config{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
			os.Exit(1)
		}

		rulesPath := constants.DefaultRulesPath
		if len(args) > 0 {
			rulesPath = args[0]
		}

		data, err := os.ReadFile(rulesPath)
		if err != nil {
			log.Error("Failed to read rules file", err)
			os.Exit(1)
		}

		rs, errs := rules.Parse(data)
		if rs == nil {
			log.Error("Rules file is not parseable", errs[0])
			os.Exit(1)
		}
		for _, e := range errs {
			log.Warn("Rule dropped", logger.Field{Key: "reason", Value: e.Error()})
		}

		log.Info("Rules file parsed",
			logger.Field{Key: "path", Value: rulesPath},
			logger.Field{Key: "rules", Value: rs.Len()},
			logger.Field{Key: "dropped", Value: len(errs)})
		if len(errs) > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configRulesCmd)
}
