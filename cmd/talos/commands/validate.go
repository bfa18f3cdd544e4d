package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dhkwon/talos/internal/strategyconfig"
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a strategy document",
	Long: `Loads the strategy YAML with strict field checking, runs the fatal
validations and the advisory checks, and prints the config hash.

Example:
  go run ./cmd/talos validate --strategy strategy.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	doc, _, err := strategyconfig.Load(strategyFile)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	hash, err := strategyconfig.Hash(doc)
	if err != nil {
		return fmt.Errorf("hash config: %w", err)
	}

	fmt.Printf("✅ %s is valid\n", strategyFile)
	fmt.Printf("Strategy: %s (version %s)\n", doc.Meta.StrategyID, doc.Meta.Version)
	fmt.Printf("Config Hash: %s\n", hash)

	warnings := strategyconfig.Warn(doc)
	if len(warnings) == 0 {
		fmt.Println("No advisories.")
		return nil
	}
	fmt.Printf("\n%d advisories:\n", len(warnings))
	for _, w := range warnings {
		fmt.Printf("⚠️  [%s] %s\n", w.Code, w.Message)
	}
	return nil
}
