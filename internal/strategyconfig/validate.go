package strategyconfig

import (
	"fmt"
	"time"
)

// ValidationError is a fatal document error. The run never starts.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning is a recommended-constraint violation. Logged, never fatal.
type Warning struct {
	Code    string
	Message string
}

// Validate checks all required constraints. Structural checks live
// here; the numeric range checks the engine also needs are rechecked by
// the backtest config on construction.
func Validate(cfg *Config) error {
	// === Meta ===
	if cfg.Meta.StrategyID == "" {
		return ValidationError{"meta.strategy_id", "required"}
	}

	// === Backtest ===
	start, err := parseDay(cfg.Backtest.StartDate)
	if err != nil {
		return ValidationError{"backtest.start_date", err.Error()}
	}
	end, err := parseDay(cfg.Backtest.EndDate)
	if err != nil {
		return ValidationError{"backtest.end_date", err.Error()}
	}
	if !start.Before(end) {
		return ValidationError{"backtest", "start_date must be before end_date"}
	}
	switch cfg.Backtest.Cadence {
	case "weekly", "monthly", "quarterly":
	default:
		return ValidationError{"backtest.cadence", fmt.Sprintf("must be weekly, monthly, or quarterly, got %q", cfg.Backtest.Cadence)}
	}
	if cfg.Backtest.TopN <= 0 {
		return ValidationError{"backtest.top_n", "must be > 0"}
	}
	if cfg.Backtest.InitialCapital <= 0 {
		return ValidationError{"backtest.initial_capital", "must be > 0"}
	}

	// === Universe ===
	if len(cfg.Universe) == 0 {
		return ValidationError{"universe", "must not be empty"}
	}
	if cfg.Backtest.TopN > len(cfg.Universe) {
		return ValidationError{"backtest.top_n", fmt.Sprintf("%d exceeds universe size %d", cfg.Backtest.TopN, len(cfg.Universe))}
	}

	// === Selection ===
	if err := cfg.Selection.Weights.Validate(); err != nil {
		return ValidationError{"selection.weights", err.Error()}
	}
	if err := validateScoreThreshold(cfg.Selection.Veto.HardFloor, "selection.veto.hard_floor"); err != nil {
		return err
	}
	if err := validateScoreThreshold(cfg.Selection.Veto.SoftMomentum, "selection.veto.soft_momentum"); err != nil {
		return err
	}
	if err := validateScoreThreshold(cfg.Selection.Veto.SoftFundamentals, "selection.veto.soft_fundamentals"); err != nil {
		return err
	}

	// === Reentry ===
	if err := validateScoreThreshold(cfg.Reentry.FundamentalsThreshold, "reentry.fundamentals_threshold"); err != nil {
		return err
	}
	if cfg.Reentry.LookbackDays < 0 {
		return ValidationError{"reentry.lookback_days", "must be >= 0"}
	}

	// === Sizing ===
	if err := cfg.sizingConfig().Validate(); err != nil {
		return ValidationError{"sizing", err.Error()}
	}

	// === Risk ===
	if err := cfg.riskLimits().Validate(); err != nil {
		return ValidationError{"risk", err.Error()}
	}
	if cfg.Risk.MaxDrawdownPct <= 0 || cfg.Risk.MaxDrawdownPct >= 1 {
		return ValidationError{"risk.max_drawdown_pct", "must be in (0, 1)"}
	}
	if cfg.Risk.DeRiskFraction <= 0 || cfg.Risk.DeRiskFraction > 1 {
		return ValidationError{"risk.de_risk_fraction", "must be in (0, 1]"}
	}

	// === Scoring ===
	if cfg.Scoring.Workers < 0 {
		return ValidationError{"scoring.workers", "must be >= 0"}
	}
	if cfg.Scoring.RateLimitCPS < 0 {
		return ValidationError{"scoring.rate_limit_cps", "must be >= 0"}
	}

	return nil
}

// Warn checks recommended constraints (non-fatal).
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	if cfg.Backtest.TransactionCostRate > 0.01 {
		warnings = append(warnings, Warning{
			Code:    "HIGH_COST",
			Message: fmt.Sprintf("transaction cost %.2f%% per side is unusually high; results will be cost-dominated", cfg.Backtest.TransactionCostRate*100),
		})
	}

	// A trailing stop tighter than every static stop makes the static
	// tiers unreachable in practice.
	minStatic := cfg.Risk.DefaultStopPct
	for _, t := range cfg.Risk.StaticStops {
		if t.StopPct < minStatic {
			minStatic = t.StopPct
		}
	}
	if cfg.Risk.TrailingStopPct < minStatic {
		warnings = append(warnings, Warning{
			Code:    "TRAILING_DOMINATES",
			Message: fmt.Sprintf("trailing stop %.0f%% is tighter than every static stop; static tiers will rarely fire", cfg.Risk.TrailingStopPct*100),
		})
	}

	if cfg.Backtest.CashBufferPct == 0 {
		warnings = append(warnings, Warning{
			Code:    "NO_CASH_BUFFER",
			Message: "cash buffer is zero; every rebalance deploys all capital",
		})
	}

	if cfg.Selection.AdaptiveWeights && len(cfg.Selection.Veto.Exempt) == 0 {
		warnings = append(warnings, Warning{
			Code:    "NO_VETO_EXEMPTIONS",
			Message: "adaptive weights with no veto exemptions tends to whipsaw large caps in regime transitions",
		})
	}

	if float64(cfg.Backtest.TopN) > float64(len(cfg.Universe))*0.5 {
		warnings = append(warnings, Warning{
			Code:    "SHALLOW_SELECTION",
			Message: fmt.Sprintf("top_n %d selects over half the %d-symbol universe; ranking adds little", cfg.Backtest.TopN, len(cfg.Universe)),
		})
	}

	return warnings
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("required")
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("must be YYYY-MM-DD, got %q", s)
	}
	return t, nil
}

// validateScoreThreshold checks a threshold against the score scale.
func validateScoreThreshold(v float64, field string) error {
	if v < 0 || v > 100 {
		return ValidationError{field, "must be in range [0, 100]"}
	}
	return nil
}
