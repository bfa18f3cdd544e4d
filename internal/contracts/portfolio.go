package contracts

import "time"

// ExitReason explains why a position was closed.
type ExitReason string

const (
	ExitRebalance       ExitReason = "rebalance_exit"
	ExitStopLoss        ExitReason = "stop_loss"
	ExitTrailingStop    ExitReason = "trailing_stop"
	ExitRegimeReduction ExitReason = "regime_reduction"
)

// IsStop reports whether the exit was a risk-driven per-position stop.
// Only these exits create a re-entry StopRecord.
func (r ExitReason) IsStop() bool {
	return r == ExitStopLoss || r == ExitTrailingStop
}

// Position is an open holding. Owned exclusively by the backtest ledger;
// at most one open Position exists per symbol.
type Position struct {
	Symbol         string    `json:"symbol"`
	Shares         float64   `json:"shares"` // >= 0
	EntryPrice     float64   `json:"entry_price"`
	EntryDate      time.Time `json:"entry_date"`
	EntryComposite float64   `json:"entry_composite"`
	EntryQuality   float64   `json:"entry_quality"`

	// HighestPrice is the peak price observed since entry. Monotonically
	// non-decreasing; the trailing stop is measured from it.
	HighestPrice float64 `json:"highest_price"`
}

// MarkPrice folds a new price into the position's peak.
func (p *Position) MarkPrice(price float64) {
	if price > p.HighestPrice {
		p.HighestPrice = price
	}
}

// ClosedTrade is the immutable record of a completed round trip.
type ClosedTrade struct {
	Symbol      string     `json:"symbol"`
	EntryDate   time.Time  `json:"entry_date"`
	EntryPrice  float64    `json:"entry_price"`
	ExitDate    time.Time  `json:"exit_date"`
	ExitPrice   float64    `json:"exit_price"`
	Shares      float64    `json:"shares"`
	Reason      ExitReason `json:"reason"`
	PnL         float64    `json:"pnl"`
	PnLPercent  float64    `json:"pnl_percent"`
	HoldingDays int        `json:"holding_days"`
}

// TradeAction is the side of a trade-log entry.
type TradeAction string

const (
	ActionBuy  TradeAction = "buy"
	ActionSell TradeAction = "sell"
)

// TradeLogEntry records a single execution. Sell entries also carry the
// entry context and realized P&L.
type TradeLogEntry struct {
	Date     time.Time   `json:"date"`
	Action   TradeAction `json:"action"`
	Symbol   string      `json:"symbol"`
	Shares   float64     `json:"shares"`
	Price    float64     `json:"price"`
	Notional float64     `json:"notional"`
	Cost     float64     `json:"cost"` // transaction cost on notional

	Composite float64 `json:"composite,omitempty"`
	Rank      int     `json:"rank,omitempty"`

	// Sell-only fields
	Reason      ExitReason `json:"reason,omitempty"`
	EntryPrice  float64    `json:"entry_price,omitempty"`
	EntryDate   time.Time  `json:"entry_date,omitempty"`
	HoldingDays int        `json:"holding_days,omitempty"`
	PnL         float64    `json:"pnl,omitempty"`
	PnLPercent  float64    `json:"pnl_percent,omitempty"`
}

// EquityPoint is one observation of total portfolio value.
type EquityPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// RebalanceRecord summarizes one rebalance cycle.
type RebalanceRecord struct {
	Date         time.Time `json:"date"`
	Selected     []string  `json:"selected"`
	AverageScore float64   `json:"average_score"`
	Regime       string    `json:"regime,omitempty"`
}

// StopRecord remembers a risk-driven exit for the re-entry filter.
// It expires after the configured lookback window.
type StopRecord struct {
	Symbol       string     `json:"symbol"`
	Date         time.Time  `json:"date"`
	Fundamentals float64    `json:"fundamentals"`
	Reason       ExitReason `json:"reason"`
}
