package strategyconfig

import (
	"time"

	"github.com/dhkwon/talos/internal/backtest"
)

// ToBacktestConfig converts a validated strategy document into the
// engine's run configuration. Call Validate first; date parse errors
// here mean the document was never validated.
func ToBacktestConfig(cfg *Config) (backtest.Config, error) {
	start, err := time.Parse("2006-01-02", cfg.Backtest.StartDate)
	if err != nil {
		return backtest.Config{}, ValidationError{"backtest.start_date", err.Error()}
	}
	end, err := time.Parse("2006-01-02", cfg.Backtest.EndDate)
	if err != nil {
		return backtest.Config{}, ValidationError{"backtest.end_date", err.Error()}
	}

	return backtest.Config{
		StartDate: start,
		EndDate:   end,
		Universe:  cfg.Universe,
		Cadence:   backtest.Cadence(cfg.Backtest.Cadence),
		TopN:      cfg.Backtest.TopN,

		InitialCapital:      cfg.Backtest.InitialCapital,
		TransactionCostRate: cfg.Backtest.TransactionCostRate,
		CashBufferPct:       cfg.Backtest.CashBufferPct,

		Risk:           cfg.riskLimits(),
		MaxDrawdownPct: cfg.Risk.MaxDrawdownPct,
		DeRiskFraction: cfg.Risk.DeRiskFraction,

		Weights:         cfg.Selection.Weights,
		AdaptiveWeights: cfg.Selection.AdaptiveWeights,
		Veto: backtest.MomentumVeto{
			HardFloor:        cfg.Selection.Veto.HardFloor,
			SoftMomentum:     cfg.Selection.Veto.SoftMomentum,
			SoftFundamentals: cfg.Selection.Veto.SoftFundamentals,
			Exempt:           cfg.Selection.Veto.Exempt,
		},

		ReentryThreshold:    cfg.Reentry.FundamentalsThreshold,
		ReentryLookbackDays: cfg.Reentry.LookbackDays,

		Sizing: cfg.sizingConfig(),

		RiskFreeRate:    cfg.Benchmark.RiskFreeRate,
		BenchmarkSymbol: cfg.Benchmark.BenchmarkSymbol,
		IndexSymbol:     cfg.Benchmark.IndexSymbol,

		ScoreWorkers:   cfg.Scoring.Workers,
		ScoreRateLimit: cfg.Scoring.RateLimitCPS,
	}, nil
}
