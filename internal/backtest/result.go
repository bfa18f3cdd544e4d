package backtest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/dhkwon/talos/internal/contracts"
	"github.com/dhkwon/talos/internal/perf"
)

// Provenance describes where the run's inputs came from and what
// caveats apply. Recoverable degradations (skipped symbols, oracle
// failures, truncation) surface here instead of being dropped.
type Provenance struct {
	DataSource  string    `json:"data_source"`
	ConfigHash  string    `json:"config_hash"`
	GeneratedAt time.Time `json:"generated_at"`
	Caveats     []string  `json:"caveats,omitempty"`
	Truncated   bool      `json:"truncated"`
}

// Result is the write-once output of a backtest run.
type Result struct {
	Config Config `json:"config"`

	EquityCurve  []contracts.EquityPoint     `json:"equity_curve"`
	TradeLog     []contracts.TradeLogEntry   `json:"trade_log"`
	ClosedTrades []contracts.ClosedTrade     `json:"closed_trades"`
	Rebalances   []contracts.RebalanceRecord `json:"rebalances"`

	// OpenPositions are holdings still open at the end of the run.
	OpenPositions []contracts.Position `json:"open_positions"`

	Metrics    *perf.Metrics `json:"metrics,omitempty"`
	Provenance Provenance    `json:"provenance"`

	InitialCapital float64       `json:"initial_capital"`
	FinalValue     float64       `json:"final_value"`
	TradingDays    int           `json:"trading_days"`
	RebalanceCount int           `json:"rebalance_count"`
	Duration       time.Duration `json:"duration"`
}

// hashConfig produces a deterministic SHA-256 over the canonical JSON
// encoding of the config, so two results can be compared by input.
func hashConfig(cfg *Config) string {
	jsonBytes, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:])
}
