package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/dhkwon/talos/internal/backtest"
	"github.com/dhkwon/talos/internal/marketdata"
	"github.com/dhkwon/talos/pkg/logger"
)

// RollingBacktest re-runs the strategy over a trailing window ending
// yesterday, so strategy drift shows up as a changed summary row, not
// as a surprise in live selection.
type RollingBacktest struct {
	config   backtest.Config
	deps     backtest.Deps
	store    *marketdata.PostgresStore // nil skips persistence
	schedule string
	window   int // calendar days
	logger   *logger.Logger
}

// NewRollingBacktest creates the job. windowDays is the trailing
// window length; schedule is the cron expression.
func NewRollingBacktest(config backtest.Config, deps backtest.Deps, store *marketdata.PostgresStore, schedule string, windowDays int, log *logger.Logger) *RollingBacktest {
	return &RollingBacktest{
		config:   config,
		deps:     deps,
		store:    store,
		schedule: schedule,
		window:   windowDays,
		logger:   log,
	}
}

func (j *RollingBacktest) Name() string {
	return "rolling_backtest"
}

func (j *RollingBacktest) Schedule() string {
	return j.schedule
}

// Run executes the backtest over the current trailing window.
func (j *RollingBacktest) Run(ctx context.Context) error {
	end := time.Now().AddDate(0, 0, -1).Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -j.window)

	cfg := j.config
	cfg.StartDate = start
	cfg.EndDate = end

	engine, err := backtest.NewEngine(cfg, j.deps, j.logger)
	if err != nil {
		return fmt.Errorf("rolling backtest setup: %w", err)
	}

	result, err := engine.Run(ctx)
	if err != nil {
		return fmt.Errorf("rolling backtest run: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"window_days": j.window,
		"final_value": result.FinalValue,
		"trades":      len(result.TradeLog),
		"truncated":   result.Provenance.Truncated,
	}).Info("Rolling backtest finished")

	if j.store == nil || result.Metrics == nil {
		return nil
	}
	return j.store.SaveResultSummary(ctx,
		result.Provenance.ConfigHash,
		cfg.StartDate, cfg.EndDate,
		result.FinalValue,
		result.Metrics.TotalReturn,
		result.Metrics.MaxDrawdown,
		result.Metrics.TotalTrades,
	)
}
