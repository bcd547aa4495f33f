package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/squadronhq/squadron/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "squadron",
	Short: "Multi-agent task orchestration engine",
	Long: `Squadron coordinates autonomous coding agents working on an
interdependent set of tasks. It tracks agent state, decides which tasks
may run next, arbitrates resource conflicts, detects deadlocks, escalates
problems a machine cannot resolve, and runs a compressed virtual-time
schedule of standups and review gates.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig honors --config when given, otherwise the standard paths.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(versionCmd)
}
