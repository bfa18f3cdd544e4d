package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dhkwon/talos/internal/scheduler"
	"github.com/dhkwon/talos/internal/scheduler/jobs"
	"github.com/dhkwon/talos/internal/strategyconfig"
	"github.com/dhkwon/talos/pkg/config"
	"github.com/dhkwon/talos/pkg/logger"
)

// scheduleCmd represents the schedule command
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the rolling-backtest scheduler",
	Long: `Starts a scheduler that re-runs the strategy over a trailing window
on a cron schedule and persists the summary for drift monitoring.

Example:
  go run ./cmd/talos schedule --strategy strategy.yaml --cron "0 0 18 * * 5" --window 365`,
	RunE: runSchedule,
}

var (
	scheduleCron   string
	scheduleWindow int
)

func init() {
	rootCmd.AddCommand(scheduleCmd)

	scheduleCmd.Flags().StringVar(&scheduleCron, "cron", "0 0 18 * * 5", "cron expression (with seconds)")
	scheduleCmd.Flags().IntVar(&scheduleWindow, "window", 365, "trailing window in calendar days")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	doc, _, err := strategyconfig.Load(strategyFile)
	if err != nil {
		return fmt.Errorf("load strategy: %w", err)
	}
	btConfig, err := strategyconfig.ToBacktestConfig(doc)
	if err != nil {
		return fmt.Errorf("strategy to backtest config: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg)

	// One pool serves both the engine reads and the summary writes.
	db, store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	deps, err := buildDeps(store, doc)
	if err != nil {
		return err
	}

	sched := scheduler.New(log)
	job := jobs.NewRollingBacktest(btConfig, deps, store, scheduleCron, scheduleWindow, log)
	if err := sched.AddJob(job); err != nil {
		return fmt.Errorf("add job: %w", err)
	}

	sched.Start()
	fmt.Printf("Scheduler running (%s). Press Ctrl+C to stop.\n", scheduleCron)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	sched.Stop()
	return nil
}
