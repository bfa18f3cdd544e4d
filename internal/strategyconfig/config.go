package strategyconfig

import (
	"time"

	"github.com/dhkwon/talos/internal/contracts"
	"github.com/dhkwon/talos/internal/risk"
	"github.com/dhkwon/talos/internal/sizing"
)

// Config is the full strategy document. One YAML file is the single
// source of truth for a run; every threshold the simulation uses lives
// here so alternative strategies diff as config, not code.
type Config struct {
	Meta      Meta      `yaml:"meta" json:"meta"`
	Backtest  Backtest  `yaml:"backtest" json:"backtest"`
	Universe  []string  `yaml:"universe" json:"universe"`
	Selection Selection `yaml:"selection" json:"selection"`
	Reentry   Reentry   `yaml:"reentry" json:"reentry"`
	Sizing    Sizing    `yaml:"sizing" json:"sizing"`
	Risk      Risk      `yaml:"risk" json:"risk"`
	Scoring   Scoring   `yaml:"scoring" json:"scoring"`
	Benchmark Benchmark `yaml:"benchmark" json:"benchmark"`
}

type Meta struct {
	StrategyID string `yaml:"strategy_id" json:"strategy_id"`
	Version    string `yaml:"version" json:"version"`
	Timezone   string `yaml:"timezone" json:"timezone"`
}

// Backtest holds the simulation window and accounting knobs.
type Backtest struct {
	StartDate string `yaml:"start_date" json:"start_date"` // YYYY-MM-DD
	EndDate   string `yaml:"end_date" json:"end_date"`

	Cadence string `yaml:"cadence" json:"cadence"` // weekly | monthly | quarterly
	TopN    int    `yaml:"top_n" json:"top_n"`

	InitialCapital      float64 `yaml:"initial_capital" json:"initial_capital"`
	TransactionCostRate float64 `yaml:"transaction_cost_rate" json:"transaction_cost_rate"`
	CashBufferPct       float64 `yaml:"cash_buffer_pct" json:"cash_buffer_pct"`
}

// Selection holds the factor weights and the momentum veto.
type Selection struct {
	Weights         contracts.FactorWeights `yaml:"weights" json:"weights"`
	AdaptiveWeights bool                    `yaml:"adaptive_weights" json:"adaptive_weights"`

	Veto Veto `yaml:"veto" json:"veto"`
}

type Veto struct {
	HardFloor        float64  `yaml:"hard_floor" json:"hard_floor"`
	SoftMomentum     float64  `yaml:"soft_momentum" json:"soft_momentum"`
	SoftFundamentals float64  `yaml:"soft_fundamentals" json:"soft_fundamentals"`
	Exempt           []string `yaml:"exempt" json:"exempt"`
}

// Reentry gates repurchases after a risk-driven stop.
type Reentry struct {
	FundamentalsThreshold float64 `yaml:"fundamentals_threshold" json:"fundamentals_threshold"`
	LookbackDays          int     `yaml:"lookback_days" json:"lookback_days"`
}

// Sizing holds the conviction tiers.
type Sizing struct {
	Tiers            []SizingTier `yaml:"tiers" json:"tiers"`
	DefaultWeight    float64      `yaml:"default_weight" json:"default_weight"`
	InvestedFraction float64      `yaml:"invested_fraction" json:"invested_fraction"`
}

type SizingTier struct {
	Name         string  `yaml:"name" json:"name"`
	MinComposite float64 `yaml:"min_composite" json:"min_composite"`
	MinQuality   float64 `yaml:"min_quality" json:"min_quality"`
	BaseWeight   float64 `yaml:"base_weight" json:"base_weight"`
}

// Risk holds the stop rules and the portfolio de-risk trigger.
type Risk struct {
	StaticStops     []StopTier `yaml:"static_stops" json:"static_stops"`
	DefaultStopPct  float64    `yaml:"default_stop_pct" json:"default_stop_pct"`
	TrailingStopPct float64    `yaml:"trailing_stop_pct" json:"trailing_stop_pct"`

	MaxDrawdownPct float64 `yaml:"max_drawdown_pct" json:"max_drawdown_pct"`
	DeRiskFraction float64 `yaml:"de_risk_fraction" json:"de_risk_fraction"`
}

type StopTier struct {
	MinQuality float64 `yaml:"min_quality" json:"min_quality"`
	StopPct    float64 `yaml:"stop_pct" json:"stop_pct"`
}

// Scoring controls the oracle fan-out.
type Scoring struct {
	Workers      int     `yaml:"workers" json:"workers"`
	RateLimitCPS float64 `yaml:"rate_limit_cps" json:"rate_limit_cps"` // calls/sec, 0 = unlimited
}

// Benchmark names the comparison series and the risk-free rate.
type Benchmark struct {
	BenchmarkSymbol string  `yaml:"benchmark_symbol" json:"benchmark_symbol"`
	IndexSymbol     string  `yaml:"index_symbol" json:"index_symbol"`
	RiskFreeRate    float64 `yaml:"risk_free_rate" json:"risk_free_rate"` // annualized
}

// DecisionSnapshot pins a run to its exact inputs for reproducibility.
type DecisionSnapshot struct {
	ConfigHash     string    `json:"config_hash"`
	ConfigYAML     string    `json:"config_yaml"`
	StrategyID     string    `json:"strategy_id"`
	GitCommit      string    `json:"git_commit"`
	DataSnapshotID string    `json:"data_snapshot_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// riskLimits converts the document's stop section to engine limits.
func (c *Config) riskLimits() risk.Limits {
	tiers := make([]risk.StopTier, len(c.Risk.StaticStops))
	for i, t := range c.Risk.StaticStops {
		tiers[i] = risk.StopTier{MinQuality: t.MinQuality, StopPct: t.StopPct}
	}
	return risk.Limits{
		StaticStops:     tiers,
		DefaultStopPct:  c.Risk.DefaultStopPct,
		TrailingStopPct: c.Risk.TrailingStopPct,
	}
}

// sizingConfig converts the document's tier section to sizer config.
func (c *Config) sizingConfig() sizing.Config {
	tiers := make([]sizing.Tier, len(c.Sizing.Tiers))
	for i, t := range c.Sizing.Tiers {
		tiers[i] = sizing.Tier{
			Name:         t.Name,
			MinComposite: t.MinComposite,
			MinQuality:   t.MinQuality,
			BaseWeight:   t.BaseWeight,
		}
	}
	return sizing.Config{
		Tiers:            tiers,
		DefaultWeight:    c.Sizing.DefaultWeight,
		InvestedFraction: c.Sizing.InvestedFraction,
	}
}
