package backtest

import (
	"fmt"
	"time"

	"github.com/dhkwon/talos/internal/contracts"
	"github.com/dhkwon/talos/internal/risk"
	"github.com/dhkwon/talos/internal/sizing"
)

// Cadence is the rebalance frequency. The engine rebalances on the
// first trading day of each period.
type Cadence string

const (
	CadenceWeekly    Cadence = "weekly"
	CadenceMonthly   Cadence = "monthly"
	CadenceQuarterly Cadence = "quarterly"
)

// MomentumVeto excludes symbols in acute technical collapse. A symbol
// is vetoed when momentum < HardFloor, or when momentum < SoftMomentum
// and fundamentals < SoftFundamentals. Symbols in Exempt are never
// vetoed: durable large-cap names historically mean-revert out of
// temporary weakness and should not be filtered for it.
type MomentumVeto struct {
	HardFloor        float64  `yaml:"hard_floor" json:"hard_floor"`
	SoftMomentum     float64  `yaml:"soft_momentum" json:"soft_momentum"`
	SoftFundamentals float64  `yaml:"soft_fundamentals" json:"soft_fundamentals"`
	Exempt           []string `yaml:"exempt" json:"exempt"`
}

// Excludes reports whether the veto rule removes the symbol.
func (v MomentumVeto) Excludes(symbol string, momentum, fundamentals float64, exempt map[string]bool) bool {
	if exempt[symbol] {
		return false
	}
	if momentum < v.HardFloor {
		return true
	}
	return momentum < v.SoftMomentum && fundamentals < v.SoftFundamentals
}

// Config is the immutable input of a backtest run. Validated once
// before the simulation starts; every threshold is an explicit knob so
// alternative configurations can be compared without code changes.
type Config struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Universe  []string  `json:"universe"`
	Cadence   Cadence   `json:"cadence"`
	TopN      int       `json:"top_n"`

	InitialCapital      float64 `json:"initial_capital"`
	TransactionCostRate float64 `json:"transaction_cost_rate"`

	// CashBufferPct of portfolio value is never spent on buys.
	CashBufferPct float64 `json:"cash_buffer_pct"`

	// Risk limits
	Risk           risk.Limits `json:"risk"`
	MaxDrawdownPct float64     `json:"max_drawdown_pct"` // portfolio-level de-risk trigger
	DeRiskFraction float64     `json:"de_risk_fraction"` // fraction of each position liquidated

	// Selection
	Weights         contracts.FactorWeights `json:"weights"`
	AdaptiveWeights bool                    `json:"adaptive_weights"`
	Veto            MomentumVeto            `json:"veto"`

	// Re-entry gating after risk-driven stops
	ReentryThreshold    float64 `json:"reentry_threshold"`
	ReentryLookbackDays int     `json:"reentry_lookback_days"`

	// Conviction-tier sizing
	Sizing sizing.Config `json:"sizing"`

	// Performance analysis
	RiskFreeRate    float64 `json:"risk_free_rate"`
	BenchmarkSymbol string  `json:"benchmark_symbol"`
	IndexSymbol     string  `json:"index_symbol"`

	// Scoring fan-out
	ScoreWorkers   int     `json:"score_workers"`
	ScoreRateLimit float64 `json:"score_rate_limit"` // oracle calls/sec, 0 = unlimited
}

// ConfigError is a fatal pre-run configuration error. The simulation
// never starts when one is returned.
type ConfigError struct {
	Field   string
	Message string
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("backtest config: %s: %s", e.Field, e.Message)
}

// Validate checks the configuration. Returned errors are fatal.
func (c *Config) Validate() error {
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		return ConfigError{"date_range", "start and end dates are required"}
	}
	if !c.StartDate.Before(c.EndDate) {
		return ConfigError{"date_range", fmt.Sprintf("start %s must be before end %s",
			c.StartDate.Format("2006-01-02"), c.EndDate.Format("2006-01-02"))}
	}
	if len(c.Universe) == 0 {
		return ConfigError{"universe", "must not be empty"}
	}
	seen := make(map[string]bool, len(c.Universe))
	for _, sym := range c.Universe {
		if sym == "" {
			return ConfigError{"universe", "contains an empty symbol"}
		}
		if seen[sym] {
			return ConfigError{"universe", fmt.Sprintf("duplicate symbol %s", sym)}
		}
		seen[sym] = true
	}
	if c.TopN <= 0 {
		return ConfigError{"top_n", fmt.Sprintf("must be > 0, got %d", c.TopN)}
	}
	if c.TopN > len(c.Universe) {
		return ConfigError{"top_n", fmt.Sprintf("%d exceeds universe size %d", c.TopN, len(c.Universe))}
	}
	switch c.Cadence {
	case CadenceWeekly, CadenceMonthly, CadenceQuarterly:
	default:
		return ConfigError{"cadence", fmt.Sprintf("unknown cadence %q", c.Cadence)}
	}
	if c.InitialCapital <= 0 {
		return ConfigError{"initial_capital", fmt.Sprintf("must be > 0, got %.2f", c.InitialCapital)}
	}
	if c.TransactionCostRate < 0 || c.TransactionCostRate >= 1 {
		return ConfigError{"transaction_cost_rate", fmt.Sprintf("must be in [0, 1), got %.4f", c.TransactionCostRate)}
	}
	if c.CashBufferPct < 0 || c.CashBufferPct >= 1 {
		return ConfigError{"cash_buffer_pct", fmt.Sprintf("must be in [0, 1), got %.4f", c.CashBufferPct)}
	}
	if err := c.Weights.Validate(); err != nil {
		return ConfigError{"weights", err.Error()}
	}
	if err := c.Risk.Validate(); err != nil {
		return ConfigError{"risk", err.Error()}
	}
	if c.MaxDrawdownPct <= 0 || c.MaxDrawdownPct >= 1 {
		return ConfigError{"max_drawdown_pct", fmt.Sprintf("must be in (0, 1), got %.4f", c.MaxDrawdownPct)}
	}
	if c.DeRiskFraction <= 0 || c.DeRiskFraction > 1 {
		return ConfigError{"de_risk_fraction", fmt.Sprintf("must be in (0, 1], got %.4f", c.DeRiskFraction)}
	}
	if c.ReentryLookbackDays < 0 {
		return ConfigError{"reentry_lookback_days", fmt.Sprintf("must be >= 0, got %d", c.ReentryLookbackDays)}
	}
	if err := c.Sizing.Validate(); err != nil {
		return ConfigError{"sizing", err.Error()}
	}
	if c.ScoreWorkers < 0 {
		return ConfigError{"score_workers", fmt.Sprintf("must be >= 0, got %d", c.ScoreWorkers)}
	}
	if c.ScoreRateLimit < 0 {
		return ConfigError{"score_rate_limit", fmt.Sprintf("must be >= 0, got %f", c.ScoreRateLimit)}
	}
	return nil
}

// exemptSet converts the veto exemption list to a lookup set.
func (c *Config) exemptSet() map[string]bool {
	set := make(map[string]bool, len(c.Veto.Exempt))
	for _, sym := range c.Veto.Exempt {
		set[sym] = true
	}
	return set
}

// shouldRebalance reports whether crossing from prev to current starts
// a new cadence period. The first trading day always rebalances.
func (c *Config) shouldRebalance(prev, current time.Time) bool {
	if prev.IsZero() {
		return true
	}
	switch c.Cadence {
	case CadenceWeekly:
		py, pw := prev.ISOWeek()
		cy, cw := current.ISOWeek()
		return py != cy || pw != cw
	case CadenceMonthly:
		return prev.Month() != current.Month() || prev.Year() != current.Year()
	case CadenceQuarterly:
		return quarterOf(prev) != quarterOf(current) || prev.Year() != current.Year()
	}
	return false
}

func quarterOf(t time.Time) int {
	return (int(t.Month()) - 1) / 3
}
