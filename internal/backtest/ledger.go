package backtest

import (
	"fmt"
	"sort"
	"time"

	"github.com/dhkwon/talos/internal/contracts"
)

// Ledger owns the cash balance, open positions, and every execution
// record of a run. It is mutated exclusively by the single-threaded
// engine loop; no concurrent writers exist.
type Ledger struct {
	cash     float64
	costRate float64

	positions map[string]*contracts.Position
	lastPrice map[string]float64 // latest known price per symbol, for valuation

	history  []contracts.EquityPoint
	closed   []contracts.ClosedTrade
	tradeLog []contracts.TradeLogEntry

	totalCosts float64
}

// NewLedger creates a ledger holding the initial capital in cash.
func NewLedger(initialCapital, costRate float64) *Ledger {
	return &Ledger{
		cash:      initialCapital,
		costRate:  costRate,
		positions: make(map[string]*contracts.Position),
		lastPrice: make(map[string]float64),
	}
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() float64 {
	return l.cash
}

// TotalCosts returns the cumulative transaction costs paid.
func (l *Ledger) TotalCosts() float64 {
	return l.totalCosts
}

// Position returns the open position for symbol, if any.
func (l *Ledger) Position(symbol string) (*contracts.Position, bool) {
	pos, ok := l.positions[symbol]
	return pos, ok
}

// HeldSymbols returns the open position symbols, sorted for
// deterministic iteration.
func (l *Ledger) HeldSymbols() []string {
	symbols := make([]string, 0, len(l.positions))
	for sym := range l.positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols
}

// MarkPrice records the latest known price for a symbol and folds it
// into the open position's peak, if one exists.
func (l *Ledger) MarkPrice(symbol string, price float64) {
	l.lastPrice[symbol] = price
	if pos, ok := l.positions[symbol]; ok {
		pos.MarkPrice(price)
	}
}

// LastPrice returns the most recent print seen for a symbol.
func (l *Ledger) LastPrice(symbol string) (float64, bool) {
	price, ok := l.lastPrice[symbol]
	return price, ok
}

// Value marks the portfolio to the latest known prices.
func (l *Ledger) Value() float64 {
	value := l.cash
	for sym, pos := range l.positions {
		if price, ok := l.lastPrice[sym]; ok {
			value += pos.Shares * price
		} else {
			// No print seen yet; carry at entry.
			value += pos.Shares * pos.EntryPrice
		}
	}
	return value
}

// RecordValue appends a point to the equity curve.
func (l *Ledger) RecordValue(date time.Time) {
	l.history = append(l.history, contracts.EquityPoint{Date: date, Value: l.Value()})
}

// History returns the recorded equity curve.
func (l *Ledger) History() []contracts.EquityPoint {
	return l.history
}

// ClosedTrades returns the completed round trips.
func (l *Ledger) ClosedTrades() []contracts.ClosedTrade {
	return l.closed
}

// TradeLog returns every execution in order.
func (l *Ledger) TradeLog() []contracts.TradeLogEntry {
	return l.tradeLog
}

// Buy opens a position at the target dollar allocation, net of the
// transaction cost applied to notional. When cash minus the reserve
// cannot fund the full allocation, shares are scaled down to fit; cash
// never goes negative and no margin exists. Returns the executed entry
// or nil when nothing could be funded.
func (l *Ledger) Buy(date time.Time, symbol string, price, targetDollars, reserve float64, composite, quality float64, rank int) (*contracts.TradeLogEntry, error) {
	if _, exists := l.positions[symbol]; exists {
		return nil, fmt.Errorf("position already open for %s", symbol)
	}
	if price <= 0 {
		return nil, fmt.Errorf("invalid price %.4f for %s", price, symbol)
	}

	// Shares such that shares*price*(1+cost) == targetDollars.
	shares := targetDollars / (price * (1 + l.costRate))

	available := l.cash - reserve
	if available <= 0 {
		return nil, nil
	}
	if cost := shares * price * (1 + l.costRate); cost > available {
		shares = available / (price * (1 + l.costRate))
	}
	if shares <= 0 {
		return nil, nil
	}

	notional := shares * price
	cost := notional * l.costRate
	l.cash -= notional + cost
	l.totalCosts += cost

	l.positions[symbol] = &contracts.Position{
		Symbol:         symbol,
		Shares:         shares,
		EntryPrice:     price,
		EntryDate:      date,
		EntryComposite: composite,
		EntryQuality:   quality,
		HighestPrice:   price,
	}
	l.lastPrice[symbol] = price

	entry := contracts.TradeLogEntry{
		Date:      date,
		Action:    contracts.ActionBuy,
		Symbol:    symbol,
		Shares:    shares,
		Price:     price,
		Notional:  notional,
		Cost:      cost,
		Composite: composite,
		Rank:      rank,
	}
	l.tradeLog = append(l.tradeLog, entry)
	return &entry, nil
}

// Sell closes the full position and appends a ClosedTrade.
func (l *Ledger) Sell(date time.Time, symbol string, price float64, reason contracts.ExitReason) (*contracts.ClosedTrade, error) {
	return l.sell(date, symbol, price, 1.0, reason)
}

// SellFraction liquidates part of a position (portfolio-level
// de-risking). The remainder stays open with its entry context intact.
func (l *Ledger) SellFraction(date time.Time, symbol string, price, fraction float64, reason contracts.ExitReason) (*contracts.ClosedTrade, error) {
	return l.sell(date, symbol, price, fraction, reason)
}

func (l *Ledger) sell(date time.Time, symbol string, price, fraction float64, reason contracts.ExitReason) (*contracts.ClosedTrade, error) {
	pos, exists := l.positions[symbol]
	if !exists {
		return nil, fmt.Errorf("no open position for %s", symbol)
	}
	if price <= 0 {
		return nil, fmt.Errorf("invalid price %.4f for %s", price, symbol)
	}
	if fraction <= 0 || fraction > 1 {
		return nil, fmt.Errorf("invalid sell fraction %.4f for %s", fraction, symbol)
	}

	shares := pos.Shares * fraction
	notional := shares * price
	cost := notional * l.costRate
	l.cash += notional - cost
	l.totalCosts += cost
	l.lastPrice[symbol] = price

	pnl := (price-pos.EntryPrice)*shares - cost
	pnlPct := 0.0
	if pos.EntryPrice > 0 {
		pnlPct = price/pos.EntryPrice - 1
	}
	holdingDays := int(date.Sub(pos.EntryDate).Hours() / 24)

	trade := contracts.ClosedTrade{
		Symbol:      symbol,
		EntryDate:   pos.EntryDate,
		EntryPrice:  pos.EntryPrice,
		ExitDate:    date,
		ExitPrice:   price,
		Shares:      shares,
		Reason:      reason,
		PnL:         pnl,
		PnLPercent:  pnlPct,
		HoldingDays: holdingDays,
	}
	l.closed = append(l.closed, trade)

	l.tradeLog = append(l.tradeLog, contracts.TradeLogEntry{
		Date:        date,
		Action:      contracts.ActionSell,
		Symbol:      symbol,
		Shares:      shares,
		Price:       price,
		Notional:    notional,
		Cost:        cost,
		Reason:      reason,
		EntryPrice:  pos.EntryPrice,
		EntryDate:   pos.EntryDate,
		HoldingDays: holdingDays,
		PnL:         pnl,
		PnLPercent:  pnlPct,
	})

	if fraction >= 1.0 {
		delete(l.positions, symbol)
	} else {
		pos.Shares -= shares
	}
	return &trade, nil
}
