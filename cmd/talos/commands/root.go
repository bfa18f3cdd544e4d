package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	strategyFile string
	verbose      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "talos",
	Short: "Talos - historical backtest engine for multi-factor equity strategies",
	Long: `Talos simulates a periodically rebalanced multi-factor strategy over
historical data: composite scoring, momentum veto, re-entry gating,
conviction-tier sizing, stop rules, and portfolio de-risking.

Usage:
  go run ./cmd/talos [command]

Examples:
  go run ./cmd/talos validate --strategy strategy.yaml
  go run ./cmd/talos backtest run --strategy strategy.yaml
  go run ./cmd/talos schedule --strategy strategy.yaml`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// --verbose overrides the configured log level; config.Load
		// reads the environment after this runs.
		if verbose {
			os.Setenv("LOG_LEVEL", "debug")
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&strategyFile, "strategy", "strategy.yaml", "strategy YAML document")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
