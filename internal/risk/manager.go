package risk

import (
	"fmt"
	"sort"

	"github.com/dhkwon/talos/internal/contracts"
)

// StopTier maps a minimum quality score to the static stop-loss width
// permitted from entry. Higher-quality names get wider stops: they
// recover from drawdowns more often, so a tight universal stop discards
// disproportionately more good positions than bad ones.
type StopTier struct {
	MinQuality float64 `yaml:"min_quality" json:"min_quality"`
	StopPct    float64 `yaml:"stop_pct" json:"stop_pct"` // e.g. 0.30 = exit at -30% from entry
}

// Limits holds the stop-rule thresholds. All values are configuration,
// never inline literals; the thresholds were tuned empirically and must
// stay swappable between runs.
type Limits struct {
	StaticStops     []StopTier `yaml:"static_stops" json:"static_stops"`
	DefaultStopPct  float64    `yaml:"default_stop_pct" json:"default_stop_pct"`
	TrailingStopPct float64    `yaml:"trailing_stop_pct" json:"trailing_stop_pct"` // drop from peak
}

// Validate checks the limits for use by the backtest.
func (l Limits) Validate() error {
	if l.TrailingStopPct <= 0 || l.TrailingStopPct >= 1 {
		return fmt.Errorf("trailing_stop_pct must be in (0, 1), got %.4f", l.TrailingStopPct)
	}
	if l.DefaultStopPct <= 0 || l.DefaultStopPct >= 1 {
		return fmt.Errorf("default_stop_pct must be in (0, 1), got %.4f", l.DefaultStopPct)
	}
	for i, t := range l.StaticStops {
		if t.StopPct <= 0 || t.StopPct >= 1 {
			return fmt.Errorf("static_stops[%d].stop_pct must be in (0, 1), got %.4f", i, t.StopPct)
		}
		if t.MinQuality < 0 || t.MinQuality > 100 {
			return fmt.Errorf("static_stops[%d].min_quality must be in [0, 100], got %.2f", i, t.MinQuality)
		}
	}
	return nil
}

// Manager is the stateless stop-rule evaluator. It owns no positions;
// the orchestrator feeds it one (position, price) pair at a time.
type Manager struct {
	limits Limits
}

// NewManager creates a Manager with the given limits. Tiers are kept
// sorted by MinQuality descending so the first match wins.
func NewManager(limits Limits) *Manager {
	tiers := make([]StopTier, len(limits.StaticStops))
	copy(tiers, limits.StaticStops)
	sort.Slice(tiers, func(i, j int) bool {
		return tiers[i].MinQuality > tiers[j].MinQuality
	})
	limits.StaticStops = tiers
	return &Manager{limits: limits}
}

// StaticStopPct returns the entry-based stop width for a quality score.
func (m *Manager) StaticStopPct(quality float64) float64 {
	for _, t := range m.limits.StaticStops {
		if quality >= t.MinQuality {
			return t.StopPct
		}
	}
	return m.limits.DefaultStopPct
}

// Evaluate returns the first breached exit rule, or nil when the
// position is held.
//
// The trailing stop is checked before the static stop. Once price has
// risen materially above entry, the trailing threshold measured from the
// higher peak is reached before the static threshold measured from the
// lower entry price, so the trailing rule supersedes.
func (m *Manager) Evaluate(pos *contracts.Position, price float64) *contracts.ExitReason {
	if pos == nil || price <= 0 {
		return nil
	}

	if pos.HighestPrice > 0 {
		drawdown := (price - pos.HighestPrice) / pos.HighestPrice
		if drawdown <= -m.limits.TrailingStopPct {
			reason := contracts.ExitTrailingStop
			return &reason
		}
	}

	if pos.EntryPrice > 0 {
		loss := (price - pos.EntryPrice) / pos.EntryPrice
		if loss <= -m.StaticStopPct(pos.EntryQuality) {
			reason := contracts.ExitStopLoss
			return &reason
		}
	}

	return nil
}

// TrailingTriggerPrice returns the price at which the trailing stop
// fires for the position's current peak.
func (m *Manager) TrailingTriggerPrice(pos *contracts.Position) float64 {
	return pos.HighestPrice * (1 - m.limits.TrailingStopPct)
}

// StaticTriggerPrice returns the price at which the static stop fires.
func (m *Manager) StaticTriggerPrice(pos *contracts.Position) float64 {
	return pos.EntryPrice * (1 - m.StaticStopPct(pos.EntryQuality))
}
