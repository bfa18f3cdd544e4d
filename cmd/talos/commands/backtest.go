package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhkwon/talos/internal/backtest"
	"github.com/dhkwon/talos/internal/marketdata"
	"github.com/dhkwon/talos/internal/regime"
	"github.com/dhkwon/talos/internal/strategyconfig"
	"github.com/dhkwon/talos/pkg/config"
	"github.com/dhkwon/talos/pkg/database"
	"github.com/dhkwon/talos/pkg/logger"
)

// backtestCmd represents the backtest command
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run the historical simulation",
	Long: `Simulates the strategy document over historical data and reports
returns, risk metrics, benchmark comparison, and the trade log.

Example:
  go run ./cmd/talos backtest run --strategy strategy.yaml
  go run ./cmd/talos backtest run --from 2023-01-01 --to 2023-12-31`,
}

var (
	backtestRunCmd = &cobra.Command{
		Use:   "run",
		Short: "Execute a backtest",
		Long: `Runs the backtest defined by the strategy document.

Flags:
  --from   override the document's start date (YYYY-MM-DD)
  --to     override the document's end date (YYYY-MM-DD)
  --out    write the full result as JSON to this path

Example:
  go run ./cmd/talos backtest run --strategy strategy.yaml --out result.json`,
		RunE: runBacktest,
	}

	// Flags
	backtestFrom string
	backtestTo   string
	backtestOut  string
)

func init() {
	rootCmd.AddCommand(backtestCmd)
	backtestCmd.AddCommand(backtestRunCmd)

	backtestRunCmd.Flags().StringVar(&backtestFrom, "from", "", "start date override (YYYY-MM-DD)")
	backtestRunCmd.Flags().StringVar(&backtestTo, "to", "", "end date override (YYYY-MM-DD)")
	backtestRunCmd.Flags().StringVar(&backtestOut, "out", "", "write result JSON to path")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Talos Backtest Engine ===")

	doc, _, err := strategyconfig.Load(strategyFile)
	if err != nil {
		return fmt.Errorf("load strategy: %w", err)
	}
	for _, w := range strategyconfig.Warn(doc) {
		fmt.Printf("⚠️  [%s] %s\n", w.Code, w.Message)
	}

	btConfig, err := strategyconfig.ToBacktestConfig(doc)
	if err != nil {
		return fmt.Errorf("strategy to backtest config: %w", err)
	}
	if err := applyDateOverrides(&btConfig); err != nil {
		return err
	}

	engine, err := initBacktestEngine(btConfig, doc)
	if err != nil {
		return fmt.Errorf("init backtest engine: %w", err)
	}

	fmt.Printf("\n📅 Period: %s ~ %s (%s, top %d of %d symbols)\n",
		btConfig.StartDate.Format("2006-01-02"),
		btConfig.EndDate.Format("2006-01-02"),
		btConfig.Cadence, btConfig.TopN, len(btConfig.Universe))
	fmt.Printf("💰 Initial Capital: %.0f\n", btConfig.InitialCapital)
	fmt.Printf("💸 Transaction Cost: %.2f%% per side\n\n", btConfig.TransactionCostRate*100)

	fmt.Println("🚀 Starting backtest...")
	result, err := engine.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	printBacktestResult(result)

	if backtestOut != "" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		if err := os.WriteFile(backtestOut, data, 0o644); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
		fmt.Printf("📝 Result written to %s\n", backtestOut)
	}

	return nil
}

func applyDateOverrides(btConfig *backtest.Config) error {
	if backtestFrom != "" {
		start, err := time.Parse("2006-01-02", backtestFrom)
		if err != nil {
			return fmt.Errorf("invalid start date: %w", err)
		}
		btConfig.StartDate = start
	}
	if backtestTo != "" {
		end, err := time.Parse("2006-01-02", backtestTo)
		if err != nil {
			return fmt.Errorf("invalid end date: %w", err)
		}
		btConfig.EndDate = end
	}
	return nil
}

func initBacktestEngine(btConfig backtest.Config, doc *strategyconfig.Config) (*backtest.Engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)

	_, store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	deps, err := buildDeps(store, doc)
	if err != nil {
		return nil, err
	}

	return backtest.NewEngine(btConfig, deps, log)
}

// openStore connects the research database. The in-memory store exists
// for tests and has no loader here; runs need the research database.
func openStore(cfg *config.Config) (*database.DB, *marketdata.PostgresStore, error) {
	if cfg.DataSource != "postgres" {
		return nil, nil, fmt.Errorf("data source %q is not runnable from the CLI; set DATA_SOURCE=postgres", cfg.DataSource)
	}

	db, err := database.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	return db, marketdata.NewPostgresStore(db), nil
}

// buildDeps wires one store into every engine role that reads it.
func buildDeps(store *marketdata.PostgresStore, doc *strategyconfig.Config) (backtest.Deps, error) {
	deps := backtest.Deps{
		Prices:     store,
		Scorer:     store,
		SourceName: "postgres",
	}
	if doc.Selection.AdaptiveWeights {
		source, err := regime.NewPresetSource(regime.DefaultPresets(), regime.TrendVolClassifier(store, doc.Benchmark.IndexSymbol))
		if err != nil {
			return backtest.Deps{}, fmt.Errorf("build regime source: %w", err)
		}
		deps.Regimes = source
	}
	return deps, nil
}

func printBacktestResult(result *backtest.Result) {
	fmt.Println("\n✅ Backtest Completed")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println()

	fmt.Println("📊 Summary")
	fmt.Printf("Trading Days: %d, Rebalances: %d, Duration: %.2fs\n",
		result.TradingDays, result.RebalanceCount, result.Duration.Seconds())
	fmt.Printf("Config Hash: %s\n", result.Provenance.ConfigHash[:12])
	if result.Provenance.Truncated {
		fmt.Println("⚠️  Run was truncated; results cover the completed prefix only")
	}
	fmt.Println()

	fmt.Println("💰 Performance")
	fmt.Printf("Initial Capital: %.0f\n", result.InitialCapital)
	fmt.Printf("Final Value:     %.0f\n", result.FinalValue)
	if m := result.Metrics; m != nil {
		fmt.Printf("Total Return:    %+.2f%%\n", m.TotalReturn*100)
		fmt.Printf("CAGR:            %+.2f%%\n", m.CAGR*100)
		fmt.Printf("Volatility:      %.2f%%\n", m.Volatility*100)
		fmt.Println()

		fmt.Println("📉 Risk Metrics")
		fmt.Printf("Sharpe Ratio:    %.2f\n", m.Sharpe)
		fmt.Printf("Sortino Ratio:   %.2f\n", m.Sortino)
		fmt.Printf("Max Drawdown:    %.2f%%\n", m.MaxDrawdown*100)
		fmt.Printf("Calmar Ratio:    %.2f\n", m.Calmar)
		fmt.Println()

		if !m.BenchmarkUnavailable {
			fmt.Println("🎯 Benchmark")
			fmt.Printf("Alpha: %+.2f%%  Beta: %.2f\n", m.Alpha*100, m.Beta)
			fmt.Printf("vs Benchmark: %+.2f%%  vs Index: %+.2f%%\n", m.VsBenchmark*100, m.VsIndex*100)
			fmt.Println()
		}

		fmt.Println("💹 Trading")
		fmt.Printf("Trades: %d, Win Rate: %.1f%%, Profit Factor: %.2f\n",
			m.TotalTrades, m.WinRate*100, m.ProfitFactor)
		fmt.Println()
	}

	if len(result.Provenance.Caveats) > 0 {
		fmt.Println("📎 Caveats")
		for _, c := range result.Provenance.Caveats {
			fmt.Printf("- %s\n", c)
		}
		fmt.Println()
	}
}
